package internal

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

const (
	tokenEndpointPath  = "oauth2/token"
	clientsMePath      = "clients/me"
	guestTokenAlphabet = "ABCDEF1234567890"
	guestTokenLength   = 72

	guestFlightKey   = "basic"
	refreshFlightKey = "refresh"
)

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	// Gateway sends the token and newbie requests. Required.
	Gateway *Client
	// Store persists the guest token and per-account bearer tokens. Required.
	Store        *Store
	ClientID     string
	ClientSecret string
	// SettleDelay is slept after a guest token is derived and announced.
	// Zero or negative skips the wait.
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// Authenticator chooses the credential for each outgoing request and runs
// the guest-token derivation and password-grant login protocols.
type Authenticator struct {
	gateway      *Client
	store        *Store
	clientID     string
	clientSecret string
	settleDelay  time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	session types.Session

	// derivation dedupes concurrent guest-token derivations in this process.
	derivation singleflight.Group
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.Gateway == nil {
		return nil, &pkgerrs.ConfigError{Field: "Gateway", Message: "request gateway cannot be nil"}
	}
	if cfg.Store == nil {
		return nil, &pkgerrs.ConfigError{Field: "Store", Message: "credential store cannot be nil"}
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &pkgerrs.ConfigError{Field: "ClientID", Message: "client id and secret are required to derive guest tokens"}
	}

	return &Authenticator{
		gateway:      cfg.Gateway,
		store:        cfg.Store,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		settleDelay:  cfg.SettleDelay,
		logger:       cfg.Logger,
	}, nil
}

// GenerateBasicToken derives a new anonymous installation credential from
// 72 random hex symbols and the integration's client id and secret.
func GenerateBasicToken(clientID, clientSecret string) (string, error) {
	buf := make([]byte, guestTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = guestTokenAlphabet[b&0x0F]
	}
	random := string(buf)

	digest := sha1.Sum([]byte(random + ":" + clientID + ":" + clientSecret))
	plain := random + "_" + clientID + ":" + hex.EncodeToString(digest[:])

	return base64.StdEncoding.EncodeToString([]byte(plain)), nil
}

// Credential returns the bearer credential while logged in, otherwise the
// stored guest token, deriving one if the store has none.
func (a *Authenticator) Credential(ctx context.Context) (types.Credential, error) {
	a.mu.RLock()
	bearer := a.session.BearerToken
	a.mu.RUnlock()

	if bearer != "" {
		return types.Credential{Scheme: types.SchemeBearer, Token: bearer}, nil
	}
	return a.BasicCredential(ctx)
}

// BasicCredential returns the guest credential regardless of login state.
func (a *Authenticator) BasicCredential(ctx context.Context) (types.Credential, error) {
	token, err := a.storedBasicToken()
	if err != nil {
		return types.Credential{}, err
	}
	if token != "" {
		return types.Credential{Scheme: types.SchemeBasic, Token: token}, nil
	}

	v, err, _ := a.derivation.Do(guestFlightKey, func() (any, error) {
		// Another caller may have finished deriving while this one waited.
		if token, err := a.storedBasicToken(); err != nil || token != "" {
			return types.Credential{Scheme: types.SchemeBasic, Token: token}, err
		}
		return a.deriveGuestToken(ctx)
	})
	if err != nil {
		return types.Credential{}, err
	}
	return v.(types.Credential), nil
}

// RefreshGuestToken derives and persists a new guest token unconditionally,
// replacing any stored one.
func (a *Authenticator) RefreshGuestToken(ctx context.Context) (types.Credential, error) {
	v, err, _ := a.derivation.Do(refreshFlightKey, func() (any, error) {
		return a.deriveGuestToken(ctx)
	})
	if err != nil {
		return types.Credential{}, err
	}
	return v.(types.Credential), nil
}

func (a *Authenticator) storedBasicToken() (string, error) {
	token, _, err := a.store.Get(BasicTokenKey)
	return token, err
}

// deriveGuestToken generates, persists and announces a new guest token, then
// waits for it to become usable server side. The wait ignores ctx.
func (a *Authenticator) deriveGuestToken(ctx context.Context) (types.Credential, error) {
	token, err := GenerateBasicToken(a.clientID, a.clientSecret)
	if err != nil {
		return types.Credential{}, &pkgerrs.AuthError{Message: "failed to generate guest token", Err: err}
	}

	if err := a.store.Set(BasicTokenKey, token); err != nil {
		return types.Credential{}, err
	}

	cred := types.Credential{Scheme: types.SchemeBasic, Token: token}
	if a.logger != nil {
		a.logger.Debug("derived guest token", "store", a.store.Location())
	}

	if err := a.setNewbie(ctx, cred, false); err != nil && a.logger != nil {
		a.logger.Warn("failed to announce guest token", "error", err)
	}

	if a.settleDelay > 0 {
		time.Sleep(a.settleDelay)
	}

	return cred, nil
}

// Login authenticates accountKey. Unless fresh is set, a bearer token stored
// for accountKey is adopted without contacting the server.
func (a *Authenticator) Login(ctx context.Context, accountKey, secret string, fresh bool) (types.Session, error) {
	if accountKey == "" {
		return types.Session{}, &pkgerrs.ValidationError{Field: "accountKey", Message: "account key cannot be empty"}
	}

	if !fresh {
		token, found, err := a.store.Get(BearerKey(accountKey))
		if err != nil {
			return types.Session{}, err
		}
		if found && token != "" {
			if a.logger != nil {
				a.logger.Debug("adopted stored bearer token", "account", accountKey)
			}
			return a.adopt(types.Session{AccountKey: accountKey, BearerToken: token}), nil
		}
	}

	basic, err := a.BasicCredential(ctx)
	if err != nil {
		return types.Session{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", accountKey)
	form.Set("password", secret)

	req, err := a.gateway.NewRequestAs(ctx, basic, http.MethodPost, tokenEndpointPath, strings.NewReader(form.Encode()))
	if err != nil {
		return types.Session{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResp types.TokenResponse
	if _, err := a.gateway.Do(req, &tokenResp); err != nil {
		var apiErr *pkgerrs.APIError
		if errors.As(err, &apiErr) {
			return types.Session{}, &pkgerrs.AuthError{
				StatusCode: apiErr.StatusCode,
				Message:    "password grant rejected",
				Err:        apiErr,
			}
		}
		return types.Session{}, err
	}

	if tokenResp.AccessToken == "" {
		return types.Session{}, &pkgerrs.AuthError{Message: "access token was empty in response"}
	}

	if err := a.store.Set(BearerKey(accountKey), tokenResp.AccessToken); err != nil {
		return types.Session{}, err
	}

	if a.logger != nil {
		a.logger.Debug("logged in", "account", accountKey, "expires_in", tokenResp.ExpiresIn)
	}

	return a.adopt(types.Session{
		AccountKey:  accountKey,
		BearerToken: tokenResp.AccessToken,
		ExpiresIn:   tokenResp.ExpiresIn,
	}), nil
}

func (a *Authenticator) adopt(s types.Session) types.Session {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s
}

// ForceRefresh drops the stored guest token and the in-memory bearer token.
// Stored bearer tokens are kept; pass fresh to Login to replace them.
func (a *Authenticator) ForceRefresh() error {
	a.mu.Lock()
	a.session = types.Session{}
	a.mu.Unlock()

	return a.store.Delete(BasicTokenKey)
}

// Session returns a snapshot of the session state.
func (a *Authenticator) Session() types.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// SetAccountID records the platform id of the logged in account.
func (a *Authenticator) SetAccountID(id string) {
	a.mu.Lock()
	a.session.AccountID = id
	a.mu.Unlock()
}

// SetNewbie tells the server whether the current installation is new.
func (a *Authenticator) SetNewbie(ctx context.Context, state bool) error {
	cred, err := a.Credential(ctx)
	if err != nil {
		return err
	}
	return a.setNewbie(ctx, cred, state)
}

func (a *Authenticator) setNewbie(ctx context.Context, cred types.Credential, state bool) error {
	form := url.Values{}
	form.Set("newbie", strconv.FormatBool(state))

	req, err := a.gateway.NewRequestAs(ctx, cred, http.MethodPut, clientsMePath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = a.gateway.DoRaw(req)
	return err
}
