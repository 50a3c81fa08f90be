package test_helpers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockServer provides a configurable mock iFunny and chat API server for testing.
// Responses are registered per path, or per "METHOD path" when a path serves
// more than one method.
type MockServer struct {
	server  *httptest.Server
	handler *MockHandler
}

// RequestEntry logs incoming requests for debugging
type RequestEntry struct {
	Method       string
	Path         string
	Query        url.Values
	Headers      http.Header
	Body         string
	Timestamp    time.Time
	ResponseCode int
}

// MockHandler handles mock API responses
type MockHandler struct {
	responses   map[string]*MockResponse
	sequences   map[string][]*MockResponse
	defaultResp *MockResponse
	delay       time.Duration

	mutex      sync.RWMutex
	callCount  map[string]int
	requestLog []RequestEntry
}

// MockResponse defines a mock API response
type MockResponse struct {
	Status  int
	Body    string
	Headers map[string]string
	Delay   time.Duration
	// Handler, when set, builds the response from the request instead of Body.
	Handler func(r *http.Request) (int, string)
}

// NewMockServer creates a new mock server instance
func NewMockServer() *MockServer {
	handler := &MockHandler{
		responses: make(map[string]*MockResponse),
		sequences: make(map[string][]*MockResponse),
		callCount: make(map[string]int),
		defaultResp: &MockResponse{
			Status: http.StatusNotFound,
			Body:   `{"error":"not_found","error_description":"no mock response"}`,
		},
	}

	return &MockServer{
		server:  httptest.NewServer(handler),
		handler: handler,
	}
}

// URL returns the base URL of the mock server
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Client returns an HTTP client wired to the mock server.
func (ms *MockServer) Client() *http.Client {
	return ms.server.Client()
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse configures the response for a path or "METHOD path" key.
func (ms *MockServer) SetResponse(key string, response *MockResponse) {
	ms.handler.mutex.Lock()
	defer ms.handler.mutex.Unlock()
	ms.handler.responses[key] = response
}

// SetJSON is shorthand for a 200 response with body.
func (ms *MockServer) SetJSON(key, body string) {
	ms.SetResponse(key, &MockResponse{Status: http.StatusOK, Body: body})
}

// SetSequence queues responses for key; each request consumes one. The last
// response is repeated once the queue is drained.
func (ms *MockServer) SetSequence(key string, responses ...*MockResponse) {
	ms.handler.mutex.Lock()
	defer ms.handler.mutex.Unlock()
	ms.handler.sequences[key] = responses
}

// SetDefaultResponse configures the default response
func (ms *MockServer) SetDefaultResponse(response *MockResponse) {
	ms.handler.mutex.Lock()
	defer ms.handler.mutex.Unlock()
	ms.handler.defaultResp = response
}

// SetDelay adds delay to all responses
func (ms *MockServer) SetDelay(delay time.Duration) {
	ms.handler.mutex.Lock()
	defer ms.handler.mutex.Unlock()
	ms.handler.delay = delay
}

// SetupError makes every unregistered path fail with an iFunny error envelope.
func (ms *MockServer) SetupError(statusCode int, code, description string) {
	ms.SetDefaultResponse(&MockResponse{
		Status: statusCode,
		Body:   fmt.Sprintf(`{"error":%q,"error_description":%q,"status":%d}`, code, description, statusCode),
	})
}

// GetRequestLog returns the request log
func (ms *MockServer) GetRequestLog() []RequestEntry {
	ms.handler.mutex.RLock()
	defer ms.handler.mutex.RUnlock()
	return append([]RequestEntry{}, ms.handler.requestLog...)
}

// GetCallCount returns the call count for a path
func (ms *MockServer) GetCallCount(path string) int {
	ms.handler.mutex.RLock()
	defer ms.handler.mutex.RUnlock()
	return ms.handler.callCount[path]
}

// TotalCalls returns the number of requests served.
func (ms *MockServer) TotalCalls() int {
	ms.handler.mutex.RLock()
	defer ms.handler.mutex.RUnlock()
	return len(ms.handler.requestLog)
}

// ClearLog clears the request log and call counts
func (ms *MockServer) ClearLog() {
	ms.handler.mutex.Lock()
	defer ms.handler.mutex.Unlock()
	ms.handler.requestLog = nil
	ms.handler.callCount = make(map[string]int)
}

// ServeHTTP implements http.Handler
func (h *MockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entry := RequestEntry{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Headers:   r.Header.Clone(),
		Timestamp: time.Now(),
	}
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		entry.Body = string(body)
		r.Body = io.NopCloser(strings.NewReader(entry.Body))
	}

	h.mutex.Lock()
	h.callCount[r.URL.Path]++
	response := h.lookupLocked(r.Method, r.URL.Path)
	delay := h.delay
	h.mutex.Unlock()

	if total := delay + response.Delay; total > 0 {
		time.Sleep(total)
	}

	status, body := response.Status, response.Body
	if response.Handler != nil {
		status, body = response.Handler(r)
	}
	if status == 0 {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))

	entry.ResponseCode = status
	h.mutex.Lock()
	h.requestLog = append(h.requestLog, entry)
	h.mutex.Unlock()
}

func (h *MockHandler) lookupLocked(method, path string) *MockResponse {
	for _, key := range []string{method + " " + path, path} {
		if queue, ok := h.sequences[key]; ok && len(queue) > 0 {
			if len(queue) > 1 {
				h.sequences[key] = queue[1:]
			}
			return queue[0]
		}
		if resp, ok := h.responses[key]; ok {
			return resp
		}
	}
	return h.defaultResp
}

// WaitForRequests waits for a specific number of requests to be made
func (ms *MockServer) WaitForRequests(count int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %d requests", count)
		case <-ticker.C:
			if ms.TotalCalls() >= count {
				return nil
			}
		}
	}
}

// AssertRequestCount asserts that a specific number of requests were made to a path
func (ms *MockServer) AssertRequestCount(path string, expectedCount int) error {
	actualCount := ms.GetCallCount(path)
	if actualCount != expectedCount {
		return fmt.Errorf("expected %d requests to %s, got %d", expectedCount, path, actualCount)
	}
	return nil
}

// GetLastRequest returns the last request made to a specific path
func (ms *MockServer) GetLastRequest(path string) (*RequestEntry, error) {
	ms.handler.mutex.RLock()
	defer ms.handler.mutex.RUnlock()

	for i := len(ms.handler.requestLog) - 1; i >= 0; i-- {
		if ms.handler.requestLog[i].Path == path {
			entry := ms.handler.requestLog[i]
			return &entry, nil
		}
	}

	return nil, fmt.Errorf("no requests found for path: %s", path)
}

// IFunnyMockServer serves the iFunny API under /v4/ and the chat API under /v3/.
type IFunnyMockServer struct {
	*MockServer
}

const (
	// APIPrefix and ChatPrefix are the path prefixes of the two mocked APIs.
	APIPrefix  = "/v4/"
	ChatPrefix = "/v3/"
)

// NewIFunnyMockServer creates a mock server pre-configured with the
// authentication endpoints every client touches.
func NewIFunnyMockServer() *IFunnyMockServer {
	server := &IFunnyMockServer{MockServer: NewMockServer()}
	server.setupDefaultResponses()
	return server
}

// APIURL is the base URL to configure as the client's BaseURL.
func (s *IFunnyMockServer) APIURL() string {
	return s.URL() + APIPrefix
}

// ChatURL is the base URL to configure as the client's ChatURL.
func (s *IFunnyMockServer) ChatURL() string {
	return s.URL() + ChatPrefix
}

func (s *IFunnyMockServer) setupDefaultResponses() {
	s.SetJSON("POST "+APIPrefix+"oauth2/token", `{"access_token":"mock_bearer","token_type":"bearer","expires_in":3600}`)
	s.SetJSON("PUT "+APIPrefix+"clients/me", `{"status":200}`)
}

// SetupAccount serves the logged in account with the given chat credentials.
func (s *IFunnyMockServer) SetupAccount(id, nick, messengerToken string) {
	s.SetJSON(APIPrefix+"account", fmt.Sprintf(
		`{"data":{"id":%q,"nick":%q,"email":"%s@example.com","messenger_token":%q},"status":200}`,
		id, nick, nick, messengerToken,
	))
}

// SetupLoginFailure makes the password grant fail like a wrong password does.
func (s *IFunnyMockServer) SetupLoginFailure() {
	s.SetResponse("POST "+APIPrefix+"oauth2/token", &MockResponse{
		Status: http.StatusBadRequest,
		Body:   `{"error":"invalid_grant","error_description":"Wrong user credentials"}`,
	})
}

// SetupPages serves a paginated iFunny collection at path. Each page is
// chosen by the "next" query parameter: the first page has no cursor and
// page i+1 is reached with the cursor returned by page i.
func (s *IFunnyMockServer) SetupPages(path, key string, pages [][]map[string]any) {
	s.SetResponse(APIPrefix+path, &MockResponse{
		Handler: func(r *http.Request) (int, string) {
			index := PageIndex(r.URL.Query().Get("next"))
			if index < 0 || index >= len(pages) {
				return http.StatusBadRequest, `{"error":"bad_cursor","error_description":"unknown cursor"}`
			}
			next := ""
			if index+1 < len(pages) {
				next = PageCursor(index + 1)
			}
			return http.StatusOK, CursorEnvelope(key, pages[index], next)
		},
	})
}

// SetupChatPages serves a paginated chat collection whose cursor travels in
// cursorParam and comes back in a top-level "next" member.
func (s *IFunnyMockServer) SetupChatPages(path, key, cursorParam string, pages [][]map[string]any) {
	s.SetResponse(ChatPrefix+path, &MockResponse{
		Handler: func(r *http.Request) (int, string) {
			index := PageIndex(r.URL.Query().Get(cursorParam))
			if index < 0 || index >= len(pages) {
				return http.StatusBadRequest, `{"error":true,"code":400111,"message":"invalid token"}`
			}
			next := ""
			if index+1 < len(pages) {
				next = PageCursor(index + 1)
			}
			return http.StatusOK, RawNextEnvelope(key, pages[index], next)
		},
	})
}
