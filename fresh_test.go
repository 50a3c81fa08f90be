package ifunny

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// countingFetcher serves canned objects and counts requests per path.
type countingFetcher struct {
	mu      sync.Mutex
	objects map[string]types.Object
	err     error
	calls   int
}

func (f *countingFetcher) FetchObject(_ context.Context, path string) (types.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[path]
	if !ok {
		return nil, &pkgerrs.APIError{StatusCode: 404, Code: "not_found"}
	}
	return copyValue(obj).(types.Object), nil
}

func (f *countingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFetcher(path string, obj types.Object) *countingFetcher {
	return &countingFetcher{objects: map[string]types.Object{path: obj}}
}

func TestFreshable_ServesSeedWithoutFetching(t *testing.T) {
	fetcher := newFetcher("content/p1", types.Object{"title": "remote"})
	f := NewFreshable("p1", Resource{Fetcher: fetcher, Path: "content/p1"}, types.Object{"title": "seeded"})

	v, err := f.Get(context.Background(), "title")
	require.NoError(t, err)
	assert.Equal(t, "seeded", v)
	assert.Zero(t, fetcher.callCount())
}

func TestFreshable_MissingKeyRefetchesOnce(t *testing.T) {
	fetcher := newFetcher("content/p1", types.Object{"title": "remote", "type": "pic"})
	f := NewFreshable("p1", Resource{Fetcher: fetcher, Path: "content/p1"}, types.Object{"title": "seeded"})
	ctx := context.Background()

	v, err := f.Get(ctx, "type")
	require.NoError(t, err)
	assert.Equal(t, "pic", v)
	assert.Equal(t, 1, fetcher.callCount())

	// the response replaced the whole payload
	title, err := f.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "remote", title)

	v, err = f.Get(ctx, "absent", WithDefault("fallback"))
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestFreshable_NullValueCountsAsMissing(t *testing.T) {
	fetcher := newFetcher("users/u1", types.Object{"about": "hi"})
	f := NewFreshable("u1", Resource{Fetcher: fetcher, Path: "users/u1"}, types.Object{"about": nil})

	v, err := f.Get(context.Background(), "about")
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestFreshable_Transform(t *testing.T) {
	f := NewFreshable("p1", Resource{}, types.Object{"num": map[string]any{"smiles": 7}})
	ctx := context.Background()

	v, err := f.Get(ctx, "num", WithTransform(pluck("smiles")))
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// the default is returned untransformed
	v, err = f.Get(ctx, "missing", WithDefault(-1), WithTransform(pluck("smiles")))
	require.NoError(t, err)
	assert.Equal(t, -1, v)
}

func TestFreshable_StaleForcesRefetch(t *testing.T) {
	fetcher := newFetcher("content/p1", types.Object{"title": "remote"})
	f := NewFreshable("p1", Resource{Fetcher: fetcher, Path: "content/p1"}, types.Object{"title": "seeded"})
	ctx := context.Background()

	assert.Same(t, f, f.MarkStale())
	assert.True(t, f.IsStale())

	v, err := f.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "remote", v)
	assert.False(t, f.IsStale())

	_, err = f.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestFreshable_FailedRefreshKeepsState(t *testing.T) {
	boom := errors.New("network down")
	fetcher := &countingFetcher{err: boom}
	f := NewFreshable("p1", Resource{Fetcher: fetcher, Path: "content/p1"}, types.Object{"title": "seeded"})
	ctx := context.Background()

	_, err := f.Get(ctx, "type")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.Object{"title": "seeded"}, f.Data())

	f.MarkStale()
	_, err = f.MarkStale().Get(ctx, "title")
	assert.ErrorIs(t, err, boom)
	assert.True(t, f.IsStale())
	assert.Equal(t, 2, fetcher.callCount())
}

func TestFreshable_SeedOnlyNeverFetches(t *testing.T) {
	f := NewFreshable("n1", Resource{}, types.Object{"text": "hello"})
	ctx := context.Background()

	v, err := f.Get(ctx, "missing", WithDefault("none"))
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	f.MarkStale()
	v, err = f.Get(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	var stateErr *pkgerrs.StateError
	require.ErrorAs(t, f.Refresh(ctx), &stateErr)
}

func TestFreshable_Fresh(t *testing.T) {
	fetcher := newFetcher("content/p1", types.Object{"title": "remote"})
	f := NewFreshable("p1", Resource{Fetcher: fetcher, Path: "content/p1"}, types.Object{"title": "seeded"})
	ctx := context.Background()

	fresh := f.Fresh()
	assert.Equal(t, f.ID(), fresh.ID())
	assert.Equal(t, f.Path(), fresh.Path())
	assert.True(t, fresh.IsStale())

	v, err := fresh.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "remote", v)

	v, err = f.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "seeded", v)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestFreshable_DataIsDeepCopy(t *testing.T) {
	seed := types.Object{"num": map[string]any{"smiles": 1}, "tags": []any{"a"}}
	f := NewFreshable("p1", Resource{}, seed)

	seed["extra"] = true
	data := f.Data()
	data["num"].(map[string]any)["smiles"] = 99
	data["tags"].([]any)[0] = "z"

	again := f.Data()
	assert.NotContains(t, again, "extra")
	assert.Equal(t, 1, again["num"].(map[string]any)["smiles"])
	assert.Equal(t, "a", again["tags"].([]any)[0])
}

func TestFreshable_RefreshUnwrapsKey(t *testing.T) {
	tests := []struct {
		name    string
		remote  types.Object
		wantErr bool
	}{
		{name: "wrapped", remote: types.Object{"comment": map[string]any{"text": "nice"}}},
		{name: "missing member", remote: types.Object{"text": "nice"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "content/p1/comments/c1"
			f := NewFreshable("c1", Resource{Fetcher: newFetcher(path, tt.remote), Path: path, Key: "comment"}, nil)

			err := f.Refresh(context.Background())
			if tt.wantErr {
				var parseErr *pkgerrs.ParseError
				require.ErrorAs(t, err, &parseErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.Object{"text": "nice"}, f.Data())
		})
	}
}

func TestFreshable_ConcurrentReadsFetchOnce(t *testing.T) {
	fetcher := newFetcher("users/u1", types.Object{"nick": "kermit"})
	f := NewFreshable("u1", Resource{Fetcher: fetcher, Path: "users/u1"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Get(context.Background(), "nick")
			assert.NoError(t, err)
			assert.Equal(t, "kermit", v)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fetcher.callCount())
}

func TestField(t *testing.T) {
	f := NewFreshable("p1", Resource{}, types.Object{
		"count":  json.Number("42"),
		"title":  "hello",
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"ok": true},
		"bad":    "not a number",
	})
	ctx := context.Background()

	n, err := Field[int](ctx, f, "count")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	title, err := Field[string](ctx, f, "title")
	require.NoError(t, err)
	assert.Equal(t, "hello", title)

	tags, err := Field[[]string](ctx, f, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)

	nested, err := Field[struct {
		OK bool `json:"ok"`
	}](ctx, f, "nested")
	require.NoError(t, err)
	assert.True(t, nested.OK)

	zero, err := Field[int](ctx, f, "missing")
	require.NoError(t, err)
	assert.Zero(t, zero)

	_, err = Field[int](ctx, f, "bad")
	var parseErr *pkgerrs.ParseError
	require.ErrorAs(t, err, &parseErr)
}
