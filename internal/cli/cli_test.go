package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
	"github.com/jamesprial/go-ifunny-api-wrapper/test_helpers"
)

type harness struct {
	t      *testing.T
	server *test_helpers.IFunnyMockServer
	root   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(EnvEmail, "")
	t.Setenv(EnvPassword, "")
	t.Setenv(EnvConfigRoot, "")

	server := test_helpers.NewIFunnyMockServer()
	t.Cleanup(server.Close)

	root := t.TempDir()
	settings := strings.Join([]string{
		"base_url: " + server.APIURL(),
		"chat_url: " + server.ChatURL(),
		"guest_settle_delay: -1s",
		"requests_per_minute: 60000",
		"burst: 1000",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultConfigName), []byte(settings), 0o600))

	return &harness{t: t, server: server, root: root}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--root", h.root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func lines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var docs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		doc := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &doc), line)
		docs = append(docs, doc)
	}
	return docs
}

func TestTokenCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "token")
	require.NoError(t, err)
	first := lines(t, out)
	require.Len(t, first, 1)
	assert.Equal(t, "Basic", first[0]["scheme"])
	assert.Len(t, first[0]["token"], 168)

	out, err = h.run("", "token")
	require.NoError(t, err)
	assert.Equal(t, first, lines(t, out))
	assert.Equal(t, 1, h.server.GetCallCount(test_helpers.APIPrefix+"clients/me"))

	out, err = h.run("", "token", "--fresh")
	require.NoError(t, err)
	assert.NotEqual(t, first, lines(t, out))
}

func TestLoginThenWhoami(t *testing.T) {
	h := newHarness(t)
	h.server.SetupAccount("acc-1", "tester", "messenger")
	email := uuid.NewString() + "@example.com"
	t.Setenv(EnvPassword, "secret")

	out, err := h.run("", "login", email)
	require.NoError(t, err)
	assert.Equal(t, email, lines(t, out)[0]["email"])

	login, err := h.server.GetLastRequest(test_helpers.APIPrefix + "oauth2/token")
	require.NoError(t, err)
	assert.Contains(t, login.Body, "password=secret")

	// a later run reuses the stored token of the last login
	t.Setenv(EnvPassword, "")
	out, err = h.run("", "whoami", "--jq", ".nick")
	require.NoError(t, err)
	assert.Equal(t, "\"tester\"\n", out)
	assert.Equal(t, 1, h.server.GetCallCount(test_helpers.APIPrefix+"oauth2/token"))
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("hunter2\n", "login", "me@example.com")
	require.NoError(t, err)

	login, err := h.server.GetLastRequest(test_helpers.APIPrefix + "oauth2/token")
	require.NoError(t, err)
	assert.Contains(t, login.Body, "password=hunter2")

	store, err := internal.NewStore(internal.StoreConfig{Root: h.root, File: internal.DefaultConfigFile})
	require.NoError(t, err)
	last, found, err := store.Get(lastLoginKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "me@example.com", last)
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.server.SetupLoginFailure()
	t.Setenv(EnvPassword, "wrong")

	_, err := h.run("", "login", "me@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestFeedCommand(t *testing.T) {
	h := newHarness(t)
	h.server.SetupPages("feeds/featured", "content", test_helpers.Split(test_helpers.Items("id", 0, 5), 2))

	out, err := h.run("", "feed", "featured", "--limit", "2", "--max", "3")
	require.NoError(t, err)
	docs := lines(t, out)
	require.Len(t, docs, 3)
	for i, doc := range docs {
		assert.EqualValues(t, i, doc["seq"])
	}

	assert.Equal(t, 2, h.server.GetCallCount(test_helpers.APIPrefix+"feeds/featured"))
	last, err := h.server.GetLastRequest(test_helpers.APIPrefix + "feeds/featured")
	require.NoError(t, err)
	assert.Equal(t, "2", last.Query.Get("limit"))
}

func TestFeedCommand_RejectsUnknownFeed(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "feed", "popular")
	require.Error(t, err)
	assert.Zero(t, h.server.TotalCalls())
}

func TestChatsRequireAccount(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "chats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account")
}

func TestSearchCommand_JQ(t *testing.T) {
	h := newHarness(t)
	h.server.SetupPages("search/users", "users", [][]map[string]any{{
		{"id": "u1", "nick": "kermit"},
		{"id": "u2", "nick": "piggy"},
	}})

	out, err := h.run("", "search", "users", "muppet", "--jq", ".nick")
	require.NoError(t, err)
	assert.Equal(t, "\"kermit\"\n\"piggy\"\n", out)

	req, err := h.server.GetLastRequest(test_helpers.APIPrefix + "search/users")
	require.NoError(t, err)
	assert.Equal(t, "muppet", req.Query.Get("q"))
}

func TestInvalidJQFilter(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "token", "--jq", ".[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--jq")
}

func TestUploadCommand(t *testing.T) {
	h := newHarness(t)
	h.server.SetupAccount("acc-1", "tester", "messenger")
	h.server.SetJSON("POST "+test_helpers.APIPrefix+"content", `{"data":{"id":"task-7","state":"pending"}}`)
	t.Setenv(EnvPassword, "secret")
	_, err := h.run("", "login", "me@example.com")
	require.NoError(t, err)

	media := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(media, []byte("png"), 0o600))

	out, err := h.run("", "upload", media, "--tag", "cats")
	require.NoError(t, err)
	assert.Equal(t, "task-7", lines(t, out)[0]["task_id"])
}

func TestExplicitConfigMustExist(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "--config", filepath.Join(h.root, "missing.yaml"), "token")
	require.Error(t, err)
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
email: me@example.com
page_size: 50
keyring: true
guest_settle_delay: 2s
`), 0o600))

	cfg, err := LoadFileConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", cfg.Email)
	assert.Equal(t, 50, cfg.PageSize)
	assert.True(t, cfg.Keyring)
	assert.Equal(t, 2*time.Second, cfg.GuestSettleDelay)

	cfg, err = LoadFileConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, &FileConfig{}, cfg)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p, err := newPrinter(&buf, ".tags[]")
	require.NoError(t, err)

	require.NoError(t, p.Print(context.Background(), map[string]any{"tags": []string{"a", "b"}}))
	assert.Equal(t, "\"a\"\n\"b\"\n", buf.String())

	buf.Reset()
	plain, err := newPrinter(&buf, "")
	require.NoError(t, err)
	require.NoError(t, plain.Print(context.Background(), map[string]string{"url": "a&b"}))
	assert.Equal(t, "{\"url\":\"a&b\"}\n", buf.String())
}
