package ifunny

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

const (
	// DefaultBaseURL is the default iFunny API base URL
	DefaultBaseURL = "https://api.ifunny.mobi/v4/"
	// DefaultChatURL is the default chat API base URL
	DefaultChatURL = "https://api-us-1.sendbird.com/v3/"
	// DefaultClientID and DefaultClientSecret identify the official iOS integration.
	DefaultClientID     = "MsOIJ39Q28"
	DefaultClientSecret = "PTDc3H8a)Vi=UYap"
	// DefaultUserAgent is the user agent the integration constants belong to
	DefaultUserAgent = "iFunny/6.20.1(21471) iphone/14.4 (Apple; iPhone8,1)"
	// DefaultProjectID is sent in the ifunny-project-id header
	DefaultProjectID = "iFunny"
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second
	// DefaultPageSize is the number of items requested per page
	DefaultPageSize = 30
	// DefaultGuestSettleDelay is how long a new guest token is given to propagate
	DefaultGuestSettleDelay = 10 * time.Second
	// DefaultTaskPollInterval is the pause between upload task polls
	DefaultTaskPollInterval = 500 * time.Millisecond

	projectHeader    = "ifunny-project-id"
	sessionKeyHeader = "Session-Key"
)

// RateLimitConfig throttles outgoing requests. Zero fields take the defaults
// of 60 requests per minute with a burst of 10.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
}

// Config holds the configuration for the iFunny client. Every field is
// optional; zero values are replaced with the package defaults.
//
// Example using a private credential directory:
//
//	config := &Config{
//		ConfigRoot: "/var/lib/mybot/ifunny",
//		PageSize:   100,
//		Logger:     slog.Default(),
//	}
type Config struct {
	// ClientID and ClientSecret are the integration constants used to derive
	// guest tokens. Defaults to DefaultClientID / DefaultClientSecret.
	ClientID     string
	ClientSecret string

	// UserAgent must match the integration the client id belongs to.
	UserAgent string
	ProjectID string `validate:"header"`

	BaseURL string `validate:"required,url"`
	ChatURL string `validate:"required,url"`

	// ConfigRoot is the directory holding the credential store.
	// Defaults to DefaultConfigRoot().
	ConfigRoot string `validate:"required"`
	// ConfigFile is the credential document name inside ConfigRoot.
	ConfigFile string `validate:"required,excludesall=/"`
	// UseKeyring keeps the credential document in the OS keyring instead of a file.
	UseKeyring bool

	// PageSize is the default number of items per page, at most 100.
	PageSize int `validate:"gte=1,lte=100"`

	// GuestSettleDelay is waited after deriving a guest token. Negative disables it.
	GuestSettleDelay time.Duration
	// TaskPollInterval is the pause between upload task polls.
	TaskPollInterval time.Duration

	RateLimit *RateLimitConfig

	// HTTPClient to use for requests.
	// Defaults to a client with DefaultTimeout if not specified.
	HTTPClient *http.Client

	// Logger for structured diagnostics.
	// Optional. If provided, debug information will be logged during API calls.
	Logger *slog.Logger
}

// DefaultConfigRoot returns $HOME/.config/ifunny.
func DefaultConfigRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ifunny"), nil
}

// Client is the main iFunny API client. It is safe for concurrent use.
type Client struct {
	config    Config
	api       *internal.Client
	chat      *internal.Client
	auth      *internal.Authenticator
	store     *internal.Store
	validator *internal.Validator

	chatSession    *internal.ConnectionManager
	mu             sync.RWMutex
	messengerToken string
}

// NewClient creates a new client with the provided configuration.
// No network call is made; the first request derives or loads a guest token.
//
// Returns a *errors.ConfigError if the configuration is invalid or the
// credential store cannot be opened.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, &pkgerrs.ConfigError{Message: "config cannot be nil"}
	}

	cfg := *config
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}

	v := internal.NewValidator()
	if err := v.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if err := v.ValidateUserAgent(cfg.UserAgent); err != nil {
		return nil, err
	}

	store, err := internal.NewStore(internal.StoreConfig{
		Root:       cfg.ConfigRoot,
		File:       cfg.ConfigFile,
		UseKeyring: cfg.UseKeyring,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:      cfg,
		store:       store,
		validator:   v,
		chatSession: internal.NewConnectionManager(),
	}

	var rateLimit *internal.RateLimitConfig
	if cfg.RateLimit != nil {
		rateLimit = &internal.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}
	}

	header := http.Header{}
	header.Set(projectHeader, cfg.ProjectID)

	c.api, err = internal.NewClient(internal.ClientConfig{
		HTTPClient:   cfg.HTTPClient,
		BaseURL:      cfg.BaseURL,
		UserAgent:    cfg.UserAgent,
		Header:       header,
		Credentials:  internal.CredentialFunc(c.Credential),
		DataEnvelope: true,
		RateLimit:    rateLimit,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	c.chat, err = internal.NewClient(internal.ClientConfig{
		HTTPClient:  cfg.HTTPClient,
		BaseURL:     cfg.ChatURL,
		UserAgent:   cfg.UserAgent,
		Credentials: internal.CredentialFunc(c.chatCredential),
		AuthHeader:  sessionKeyHeader,
		RateLimit:   rateLimit,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	settle := cfg.GuestSettleDelay
	if settle < 0 {
		settle = 0
	}

	c.auth, err = internal.NewAuthenticator(internal.AuthConfig{
		Gateway:      c.api,
		Store:        store,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		SettleDelay:  settle,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.ClientID == "" && cfg.ClientSecret == "" {
		cfg.ClientID = DefaultClientID
		cfg.ClientSecret = DefaultClientSecret
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return &pkgerrs.ConfigError{Field: "ClientID", Message: "ClientID and ClientSecret must be set together"}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = DefaultProjectID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatURL == "" {
		cfg.ChatURL = DefaultChatURL
	}
	if cfg.ConfigRoot == "" {
		root, err := DefaultConfigRoot()
		if err != nil {
			return &pkgerrs.ConfigError{Field: "ConfigRoot", Message: "cannot determine home directory: " + err.Error()}
		}
		cfg.ConfigRoot = root
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = internal.DefaultConfigFile
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.GuestSettleDelay == 0 {
		cfg.GuestSettleDelay = DefaultGuestSettleDelay
	}
	if cfg.TaskPollInterval <= 0 {
		cfg.TaskPollInterval = DefaultTaskPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return nil
}

// Credential returns the credential attached to iFunny API requests: the
// bearer token once logged in, otherwise the stored or newly derived guest token.
// Repeated calls return the same credential until Login, ForceRefresh or
// RefreshGuestToken changes it.
func (c *Client) Credential(ctx context.Context) (types.Credential, error) {
	return c.auth.Credential(ctx)
}

// RefreshGuestToken derives, announces and stores a new guest token,
// replacing any stored one. It blocks for GuestSettleDelay.
func (c *Client) RefreshGuestToken(ctx context.Context) (types.Credential, error) {
	return c.auth.RefreshGuestToken(ctx)
}

// Login authenticates as email. Unless fresh is set, a bearer token stored
// for email by an earlier login is reused without a network call and is not
// checked for validity; a revoked token surfaces as an *errors.APIError on
// the next request.
//
// A rejected password grant returns an *errors.AuthError wrapping the
// *errors.APIError that carries the platform's error code and description.
func (c *Client) Login(ctx context.Context, email, password string, fresh bool) (types.Session, error) {
	session, err := c.auth.Login(ctx, email, password, fresh)
	if err != nil {
		return types.Session{}, err
	}
	c.resetChatSession()
	return session, nil
}

// ForceRefresh discards the stored guest token and the in-memory bearer
// token. The next request derives a new guest token.
func (c *Client) ForceRefresh() error {
	c.resetChatSession()
	return c.auth.ForceRefresh()
}

// Session returns a snapshot of the authentication state.
func (c *Client) Session() types.Session {
	return c.auth.Session()
}

// IsAuthenticated reports whether a bearer token is held.
func (c *Client) IsAuthenticated() bool {
	return c.auth.Session().Authenticated()
}

// SetNewbie marks the current installation as new or not.
func (c *Client) SetNewbie(ctx context.Context, state bool) error {
	return c.auth.SetNewbie(ctx, state)
}

// Store exposes the credential store backing this client.
func (c *Client) Store() *internal.Store {
	return c.store
}

// Account fetches the logged in account.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	if !c.IsAuthenticated() {
		return nil, &pkgerrs.StateError{Operation: "account", Message: "login required"}
	}

	obj, err := c.api.FetchObject(ctx, accountPath)
	if err != nil {
		return nil, err
	}
	if id, ok := obj["id"].(string); ok {
		c.auth.SetAccountID(id)
	}
	return c.newAccount(obj), nil
}

func (c *Client) resetChatSession() {
	c.chatSession.Reset()
	c.mu.Lock()
	c.messengerToken = ""
	c.mu.Unlock()
}

// chatCredential returns the Session-Key for the chat API, fetching the
// account's messenger token once per session.
func (c *Client) chatCredential(ctx context.Context) (types.Credential, error) {
	if err := c.ensureChatSession(ctx); err != nil {
		return types.Credential{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.Credential{Token: c.messengerToken}, nil
}

func (c *Client) ensureChatSession(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return &pkgerrs.StateError{Operation: "chat session", Message: "login required"}
	}
	return c.chatSession.Initialize(ctx, c.initChatSession)
}

func (c *Client) initChatSession(ctx context.Context) error {
	obj, err := c.api.FetchObject(ctx, accountPath)
	if err != nil {
		return err
	}

	id, _ := obj["id"].(string)
	token, _ := obj["messenger_token"].(string)
	if id == "" || token == "" {
		return &pkgerrs.StateError{Operation: "chat session", Message: "account has no messenger token"}
	}

	c.auth.SetAccountID(id)
	c.mu.Lock()
	c.messengerToken = token
	c.mu.Unlock()

	if c.config.Logger != nil {
		c.config.Logger.Debug("chat session ready", "account", id)
	}
	return nil
}

// chatAccountID returns the id the chat API knows the account by.
func (c *Client) chatAccountID(ctx context.Context) (string, error) {
	if err := c.ensureChatSession(ctx); err != nil {
		return "", err
	}
	return c.auth.Session().AccountID, nil
}
