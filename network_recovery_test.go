package ifunny

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
	"github.com/jamesprial/go-ifunny-api-wrapper/test_helpers"
)

// seedGuestToken stores a guest token so requests skip derivation.
func seedGuestToken(t *testing.T, client *Client) {
	t.Helper()
	require.NoError(t, client.Store().Set(internal.BasicTokenKey, "seeded-guest-token"))
}

// TestNetworkTimeout tests that a slow server surfaces as a RequestError
// and that the next request succeeds without any retry
func TestNetworkTimeout(t *testing.T) {
	client, server := newTestClient(t)
	seedGuestToken(t, client)
	client.config.HTTPClient.Timeout = 100 * time.Millisecond
	server.SetSequence(test_helpers.APIPrefix+"users/u1",
		&test_helpers.MockResponse{Status: http.StatusOK, Body: `{"data":{"nick":"late"}}`, Delay: 500 * time.Millisecond},
		&test_helpers.MockResponse{Status: http.StatusOK, Body: `{"data":{"nick":"kermit"}}`},
	)

	_, err := client.User("u1").Nick(context.Background())
	var reqErr *pkgerrs.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 1, server.GetCallCount(test_helpers.APIPrefix+"users/u1"))

	nick, err := client.User("u1").Nick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kermit", nick)
}

// TestConnectionRefused tests requests against a closed server
func TestConnectionRefused(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL + "/v4/"
	dead.Close()

	client, err := NewClient(&Config{
		BaseURL:          url,
		ConfigRoot:       t.TempDir(),
		GuestSettleDelay: -1,
	})
	require.NoError(t, err)
	seedGuestToken(t, client)

	_, err = client.FeaturedFeed(context.Background(), types.PageParams{})
	var reqErr *pkgerrs.RequestError
	require.ErrorAs(t, err, &reqErr)
}

// TestHTTPErrorStatuses tests that error responses are never retried
func TestHTTPErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"internal","error_description":"boom"}`, wantCode: "internal"},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"too_many_requests","error_description":"slow down"}`, wantCode: "too_many_requests"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"unauthorized","error_description":"token revoked"}`, wantCode: "unauthorized"},
		{name: "bare status", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(t)
			seedGuestToken(t, client)
			server.SetResponse(test_helpers.APIPrefix+"feeds/featured", &test_helpers.MockResponse{Status: tt.status, Body: tt.body})

			_, err := client.FeaturedFeed(context.Background(), types.PageParams{})
			var apiErr *pkgerrs.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, apiErr.Code)
			}
			assert.Equal(t, 1, server.GetCallCount(test_helpers.APIPrefix+"feeds/featured"))
		})
	}
}

// TestErrorEnvelopeWithSuccessStatus tests a 200 response carrying an error
func TestErrorEnvelopeWithSuccessStatus(t *testing.T) {
	client, server := newTestClient(t)
	seedGuestToken(t, client)
	server.SetJSON(test_helpers.APIPrefix+"feeds/featured", `{"error":"not_found","error_description":"feed is gone"}`)

	_, err := client.FeaturedFeed(context.Background(), types.PageParams{})
	var apiErr *pkgerrs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "feed is gone", apiErr.Description)
}

// TestPartialResponse tests truncated JSON
func TestPartialResponse(t *testing.T) {
	client, server := newTestClient(t)
	seedGuestToken(t, client)
	server.SetJSON(test_helpers.APIPrefix+"feeds/featured", `{"data":{"content":{"items":[{"id":"p1"`)

	_, err := client.FeaturedFeed(context.Background(), types.PageParams{})
	var parseErr *pkgerrs.ParseError
	require.ErrorAs(t, err, &parseErr)
}

// TestContextCancellationDuringRequest tests that cancellation aborts an
// in-flight request
func TestContextCancellationDuringRequest(t *testing.T) {
	client, server := newTestClient(t)
	seedGuestToken(t, client)
	server.SetDelay(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.FeaturedFeed(ctx, types.PageParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
