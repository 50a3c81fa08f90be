package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// CredentialSource resolves the credential to attach to an outgoing request.
type CredentialSource interface {
	Credential(ctx context.Context) (types.Credential, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (types.Credential, error)

// Credential calls f(ctx).
func (f CredentialFunc) Credential(ctx context.Context) (types.Credential, error) {
	return f(ctx)
}

// RateLimitConfig controls how requests are throttled before reaching the API.
type RateLimitConfig struct {
	// RequestsPerMinute caps steady-state throughput. Defaults to 60 if zero.
	RequestsPerMinute float64
	// Burst allows short spikes above the steady-state rate. Defaults to 10 if zero.
	Burst int
}

const (
	DefaultRequestsPerMinute = 60
	DefaultRateLimitBurst    = 10
	SecondsPerMinute         = 60.0
	ParseFloatBitSize        = 64

	// maxErrorBodyPreview bounds how much of a non-JSON error body ends up in an APIError.
	maxErrorBodyPreview = 200
)

// ClientConfig configures a request gateway.
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	UserAgent  string
	// Header holds fixed headers sent with every request.
	Header http.Header
	// Credentials resolves the per-request credential. May be nil.
	Credentials CredentialSource
	// AuthHeader is the header the credential is written to. Defaults to Authorization.
	AuthHeader string
	// DataEnvelope marks APIs that wrap successful payloads in {"data": ...}.
	DataEnvelope bool
	RateLimit    *RateLimitConfig
	Logger       *slog.Logger
}

// Client issues single HTTP calls against one API and parses its JSON envelope.
type Client struct {
	client       *http.Client
	BaseURL      *url.URL
	UserAgent    string
	header       http.Header
	credentials  CredentialSource
	authHeader   string
	dataEnvelope bool
	logger       *slog.Logger

	limiter        *rate.Limiter
	mu             sync.Mutex
	forceWaitUntil time.Time
}

// NewClient returns a new request gateway.
// If a nil HTTPClient is provided, http.DefaultClient will be used.
func NewClient(cfg ClientConfig) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &pkgerrs.ConfigError{Field: "BaseURL", Message: err.Error()}
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	rateCfg := cfg.RateLimit
	if rateCfg == nil {
		rateCfg = &RateLimitConfig{}
	}

	authHeader := cfg.AuthHeader
	if authHeader == "" {
		authHeader = "Authorization"
	}

	return &Client{
		client:       httpClient,
		BaseURL:      parsedURL,
		UserAgent:    cfg.UserAgent,
		header:       cfg.Header.Clone(),
		credentials:  cfg.Credentials,
		authHeader:   authHeader,
		dataEnvelope: cfg.DataEnvelope,
		logger:       cfg.Logger,
		limiter:      buildLimiter(*rateCfg),
	}, nil
}

// NewRequest creates an API request carrying the credential resolved from the
// configured CredentialSource. A relative path is resolved against BaseURL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	var cred types.Credential
	if c.credentials != nil {
		resolved, err := c.credentials.Credential(ctx)
		if err != nil {
			return nil, err
		}
		cred = resolved
	}
	return c.NewRequestAs(ctx, cred, method, path, body)
}

// NewRequestAs creates an API request carrying an explicit credential,
// bypassing the CredentialSource.
func (c *Client) NewRequestAs(ctx context.Context, cred types.Credential, method, path string, body io.Reader) (*http.Request, error) {
	u, err := c.BaseURL.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, &pkgerrs.RequestError{Operation: "build request", URL: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &pkgerrs.RequestError{Operation: "build request", URL: u.String(), Err: err}
	}

	for name, values := range c.header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if !cred.IsZero() {
		req.Header.Set(c.authHeader, cred.String())
	}

	return req, nil
}

// Do sends an API request and decodes the payload into v. For APIs with a data
// envelope the payload is the "data" member; otherwise it is the whole body.
// A top-level "error" member or a non-2xx status is returned as *errors.APIError.
func (c *Client) Do(req *http.Request, v any) (*http.Response, error) {
	resp, body, err := c.send(req)
	if err != nil {
		return resp, err
	}

	if v == nil || len(bytes.TrimSpace(body)) == 0 {
		return resp, nil
	}

	payload := body
	if c.dataEnvelope {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
			payload = envelope.Data
		}
	}

	if err := decodeJSON(payload, v); err != nil {
		return resp, &pkgerrs.ParseError{Operation: req.Method + " " + req.URL.Path, Err: err}
	}
	return resp, nil
}

// DoRaw executes an HTTP request and returns the raw response bytes after
// the envelope error check.
func (c *Client) DoRaw(req *http.Request) ([]byte, error) {
	_, body, err := c.send(req)
	return body, err
}

// FetchObject GETs path and returns its payload as a JSON object.
func (c *Client) FetchObject(ctx context.Context, path string) (types.Object, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	obj := types.Object{}
	if _, err := c.Do(req, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// decodeJSON keeps numbers as json.Number so large ids survive untouched.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (c *Client) send(req *http.Request) (*http.Response, []byte, error) {
	if err := c.waitForRateLimit(req.Context()); err != nil {
		return nil, nil, &pkgerrs.RequestError{Operation: req.Method, URL: req.URL.String(), Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, &pkgerrs.RequestError{Operation: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	c.applyRateHeaders(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, &pkgerrs.RequestError{Operation: req.Method, URL: req.URL.String(), Message: "failed to read response body", Err: err}
	}

	if c.logger != nil {
		c.logger.Debug("ifunny request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "bytes", len(body))
	}

	if apiErr := parseAPIError(resp.StatusCode, body); apiErr != nil {
		return resp, body, apiErr
	}
	return resp, body, nil
}

// parseAPIError extracts an error from a response. The iFunny API reports
// {"error": "code", "error_description": "..."}; the chat API reports
// {"error": true, "message": "...", "code": 400201}.
func parseAPIError(status int, body []byte) *pkgerrs.APIError {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Error            json.RawMessage `json:"error"`
			ErrorDescription string          `json:"error_description"`
			Message          string          `json:"message"`
			Code             json.RawMessage `json:"code"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Error) > 0 {
			var code string
			var flagged bool
			switch {
			case json.Unmarshal(envelope.Error, &code) == nil && code != "":
			case json.Unmarshal(envelope.Error, &flagged) == nil && flagged:
				code = strings.Trim(string(envelope.Code), `"`)
			}

			if code != "" || flagged {
				desc := envelope.ErrorDescription
				if desc == "" {
					desc = envelope.Message
				}
				return &pkgerrs.APIError{StatusCode: status, Code: code, Description: desc}
			}
		}
	}

	if status < 200 || status >= 300 {
		preview := string(trimmed)
		if len(preview) > maxErrorBodyPreview {
			preview = preview[:maxErrorBodyPreview]
		}
		if preview == "" {
			preview = http.StatusText(status)
		}
		return &pkgerrs.APIError{StatusCode: status, Description: preview}
	}

	return nil
}

func buildLimiter(cfg RateLimitConfig) *rate.Limiter {
	requestsPerMinute := cfg.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}

	limitPerSecond := rate.Limit(requestsPerMinute / SecondsPerMinute)
	if limitPerSecond <= 0 {
		limitPerSecond = rate.Limit(1)
	}

	return rate.NewLimiter(limitPerSecond, burst)
}

func (c *Client) waitForRateLimit(ctx context.Context) error {
	if err := c.waitForForcedDelay(ctx); err != nil {
		return err
	}

	if c.limiter == nil {
		return nil
	}

	return c.limiter.Wait(ctx)
}

func (c *Client) waitForForcedDelay(ctx context.Context) error {
	for {
		c.mu.Lock()
		waitUntil := c.forceWaitUntil
		c.mu.Unlock()

		if waitUntil.IsZero() {
			return nil
		}

		now := time.Now()
		if !now.Before(waitUntil) {
			c.clearForcedDelay(waitUntil)
			return nil
		}

		timer := time.NewTimer(waitUntil.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			c.clearForcedDelay(waitUntil)
		}
	}
}

func (c *Client) clearForcedDelay(previous time.Time) {
	c.mu.Lock()
	if previous.Equal(c.forceWaitUntil) {
		c.forceWaitUntil = time.Time{}
	}
	c.mu.Unlock()
}

// applyRateHeaders honours Retry-After on any response. The chat API also
// reports x-ratelimit-remaining / x-ratelimit-reset.
func (c *Client) applyRateHeaders(resp *http.Response) {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, ParseFloatBitSize); err == nil && seconds > 0 {
			c.deferRequests(time.Duration(seconds * float64(time.Second)))
		}
	}

	remainingHeader := resp.Header.Get("X-Ratelimit-Remaining")
	resetHeader := resp.Header.Get("X-Ratelimit-Reset")
	if remainingHeader == "" || resetHeader == "" {
		return
	}

	remaining, errRemaining := strconv.ParseFloat(remainingHeader, ParseFloatBitSize)
	resetSeconds, errReset := strconv.ParseFloat(resetHeader, ParseFloatBitSize)
	if errRemaining != nil || errReset != nil || resetSeconds <= 0 {
		return
	}

	if remaining <= 1 {
		c.deferRequests(time.Duration(resetSeconds * float64(time.Second)))
	}
}

func (c *Client) deferRequests(d time.Duration) {
	if d <= 0 {
		return
	}

	until := time.Now().Add(d)

	c.mu.Lock()
	if until.After(c.forceWaitUntil) {
		c.forceWaitUntil = until
	}
	c.mu.Unlock()
}
