package adversarial_tests

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	ifunny "github.com/jamesprial/go-ifunny-api-wrapper"
	"github.com/jamesprial/go-ifunny-api-wrapper/adversarial_tests/helpers"
	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// recordingServer answers every request with body and remembers the escaped
// path and query of each.
type recordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	paths    []string
	queries  []url.Values
	requests int
}

func newRecordingServer(t *testing.T, body string) *recordingServer {
	t.Helper()

	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.paths = append(rs.paths, r.URL.EscapedPath())
		rs.queries = append(rs.queries, r.URL.Query())
		rs.requests++
		rs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) last() (string, url.Values) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.paths) == 0 {
		return "", nil
	}
	return rs.paths[len(rs.paths)-1], rs.queries[len(rs.queries)-1]
}

func (rs *recordingServer) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.requests
}

// newGuestClient builds a client against rs with a stored guest token so no
// request goes to the token endpoints.
func newGuestClient(t *testing.T, rs *recordingServer) *ifunny.Client {
	t.Helper()

	client, err := ifunny.NewClient(&ifunny.Config{
		BaseURL:          rs.URL + "/v4/",
		ChatURL:          rs.URL + "/v3/",
		ConfigRoot:       t.TempDir(),
		GuestSettleDelay: -1,
		RateLimit:        &ifunny.RateLimitConfig{RequestsPerMinute: 600000, Burst: 10000},
		HTTPClient:       rs.Client(),
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Store().Set(internal.BasicTokenKey, "adversarial-guest-token"); err != nil {
		t.Fatalf("failed to seed guest token: %v", err)
	}
	return client
}

// assertSingleSegment fails unless escaped is prefix followed by exactly one
// path segment that decodes back to id.
func assertSingleSegment(t *testing.T, escaped, prefix, id string) {
	t.Helper()

	if !strings.HasPrefix(escaped, prefix) {
		t.Fatalf("id %q escaped its collection: request went to %s", id, escaped)
	}
	segment := strings.TrimPrefix(escaped, prefix)
	if strings.Contains(segment, "/") {
		t.Fatalf("id %q split into several segments: %s", id, escaped)
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		t.Fatalf("id %q produced an undecodable segment %q: %v", id, segment, err)
	}
	if decoded != id {
		t.Errorf("id %q arrived as %q", id, decoded)
	}
}

// TestHostileEntityIDs tests that post ids stay inside the content collection
func TestHostileEntityIDs(t *testing.T) {
	fuzzer := helpers.NewFuzzer(42)
	rs := newRecordingServer(t, `{"data":{"id":"x","title":"t","nick":"n"},"status":200}`)
	client := newGuestClient(t, rs)
	ctx := context.Background()

	ids := append(fuzzer.FuzzIdentifier(), fuzzer.RandomIdentifiers(50, 40)...)
	for _, id := range ids {
		if _, err := client.Post(id).Title(ctx); err != nil {
			t.Errorf("Post(%q).Title: %v", id, err)
			continue
		}
		escaped, _ := rs.last()
		assertSingleSegment(t, escaped, "/v4/content/", id)

		if _, err := client.User(id).Nick(ctx); err != nil {
			t.Errorf("User(%q).Nick: %v", id, err)
			continue
		}
		escaped, _ = rs.last()
		assertSingleSegment(t, escaped, "/v4/users/", id)
	}
}

// TestHostileTimelineIDs tests ids embedded in the middle of a collection path
func TestHostileTimelineIDs(t *testing.T) {
	fuzzer := helpers.NewFuzzer(7)
	rs := newRecordingServer(t, `{"data":{"content":{"items":[],"paging":{"hasNext":false}}}}`)
	client := newGuestClient(t, rs)
	ctx := context.Background()

	for _, id := range fuzzer.FuzzIdentifier() {
		if _, err := client.Comments(ctx, id, types.PageParams{}); err != nil {
			t.Errorf("Comments(%q): %v", id, err)
			continue
		}
		escaped, _ := rs.last()
		if !strings.HasSuffix(escaped, "/comments") {
			t.Fatalf("post id %q rewrote the comments path: %s", id, escaped)
		}
		assertSingleSegment(t, strings.TrimSuffix(escaped, "/comments"), "/v4/content/", id)
	}
}

// TestHostileSearchQueries tests that a query never leaks into other parameters
func TestHostileSearchQueries(t *testing.T) {
	fuzzer := helpers.NewFuzzer(1)
	rs := newRecordingServer(t, `{"data":{"users":{"items":[],"paging":{"hasNext":false}}}}`)
	client := newGuestClient(t, rs)
	ctx := context.Background()

	for _, query := range fuzzer.FuzzQuery() {
		if _, err := client.SearchUsers(ctx, query, types.PageParams{Limit: 5}); err != nil {
			t.Errorf("SearchUsers(%q): %v", query, err)
			continue
		}
		_, q := rs.last()
		if got := q.Get("q"); got != query {
			t.Errorf("query %q arrived as %q", query, got)
		}
		if got := q["limit"]; len(got) != 1 || got[0] != "5" {
			t.Errorf("query %q changed the limit to %v", query, got)
		}
	}
}

// TestHostileCursors tests that cursors are passed through as a single value
func TestHostileCursors(t *testing.T) {
	fuzzer := helpers.NewFuzzer(3)
	rs := newRecordingServer(t, `{"data":{"content":{"items":[],"paging":{"hasNext":false}}}}`)
	client := newGuestClient(t, rs)
	ctx := context.Background()

	cursors := append(fuzzer.FuzzQuery()[1:], fuzzer.RandomIdentifiers(20, 60)...)
	for _, cursor := range cursors {
		if _, err := client.FeaturedFeed(ctx, types.PageParams{Next: types.Cursor(cursor)}); err != nil {
			t.Errorf("FeaturedFeed(next=%q): %v", cursor, err)
			continue
		}
		_, q := rs.last()
		if got := q["next"]; len(got) != 1 || got[0] != cursor {
			t.Errorf("cursor %q arrived as %v", cursor, got)
		}
	}
}

// TestPageLimitBounds tests that invalid limits are rejected before any request
func TestPageLimitBounds(t *testing.T) {
	rs := newRecordingServer(t, `{"data":{"content":{"items":[],"paging":{"hasNext":false}}}}`)
	client := newGuestClient(t, rs)
	ctx := context.Background()

	for _, limit := range []int{-1, -100, 101, 1 << 20} {
		_, err := client.FeaturedFeed(ctx, types.PageParams{Limit: limit})
		var validationErr *pkgerrs.ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("limit %d: expected *ValidationError, got %v", limit, err)
		}
	}
	if n := rs.count(); n != 0 {
		t.Errorf("expected no requests for invalid limits, got %d", n)
	}

	for _, limit := range []int{1, 100} {
		if _, err := client.FeaturedFeed(ctx, types.PageParams{Limit: limit}); err != nil {
			t.Errorf("limit %d: unexpected error %v", limit, err)
		}
	}
}

// TestHostileUserAgents tests that header-splitting user agents are refused
func TestHostileUserAgents(t *testing.T) {
	agents := []string{
		"agent\r\nX-Injected: 1",
		"agent\nsecond line",
		"agent\x00nul",
	}

	for _, ua := range agents {
		_, err := ifunny.NewClient(&ifunny.Config{ConfigRoot: t.TempDir(), UserAgent: ua})
		if err == nil {
			t.Errorf("expected user agent %q to be rejected", ua)
		}
	}
}
