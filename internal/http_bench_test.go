package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

var benchEndpoint = Endpoint{Path: "feeds/featured", Key: "content", Shape: ShapeCursors}

func benchPage(items int) string {
	var b strings.Builder
	b.WriteString(`{"data":{"content":{"items":[`)
	for i := 0; i < items; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":"post-%d","title":"title %d","num":{"smiles":%d,"comments":3},"creator":{"id":"u%d","nick":"nick"}}`, i, i, i, i)
	}
	b.WriteString(`],"paging":{"cursors":{"next":"abc","prev":null},"hasNext":true,"hasPrev":false}}},"status":200}`)
	return b.String()
}

func benchGateway(b *testing.B, body string, logger *slog.Logger) *Client {
	b.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	b.Cleanup(server.Close)

	creds := CredentialFunc(func(context.Context) (types.Credential, error) {
		return types.Credential{Scheme: types.SchemeBasic, Token: "bench"}, nil
	})
	client, err := NewClient(ClientConfig{
		HTTPClient:   server.Client(),
		BaseURL:      server.URL + "/v4/",
		UserAgent:    "bench/1.0",
		Credentials:  creds,
		DataEnvelope: true,
		RateLimit:    &RateLimitConfig{RequestsPerMinute: 1e9, Burst: 1 << 20},
		Logger:       logger,
	})
	if err != nil {
		b.Fatalf("NewClient: %v", err)
	}
	return client
}

func BenchmarkFetchPage_WithLogging(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := benchGateway(b, benchPage(30), logger)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := client.FetchPage(ctx, benchEndpoint, types.PageParams{Limit: 30}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFetchPage_WithoutLogging(b *testing.B) {
	client := benchGateway(b, benchPage(30), nil)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := client.FetchPage(ctx, benchEndpoint, types.PageParams{Limit: 30}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParsePage(b *testing.B) {
	for _, items := range []int{10, 100} {
		body := []byte(benchPage(items))
		b.Run(fmt.Sprintf("items=%d", items), func(b *testing.B) {
			b.SetBytes(int64(len(body)))
			for i := 0; i < b.N; i++ {
				if _, err := ParsePage(body, benchEndpoint); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
