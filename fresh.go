package ifunny

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// ObjectFetcher retrieves the canonical JSON object stored at path.
// *internal.Client satisfies it for both the iFunny and chat APIs.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, path string) (types.Object, error)
}

// Resource locates the canonical representation of an entity.
type Resource struct {
	Fetcher ObjectFetcher
	// Path is relative to the fetcher's base URL. An empty path marks a
	// seed-only entity that is never refetched.
	Path string
	// Key, when set, names the member of the fetched object holding the entity.
	Key string
}

// Freshable caches the raw payload of one entity and refetches it when a
// requested field is missing or the cache was marked stale.
//
// A Freshable is safe for concurrent use; concurrent reads that need a
// refetch are serialized so only one request is made.
type Freshable struct {
	id       string
	resource Resource
	logger   *slog.Logger

	mu      sync.Mutex
	payload types.Object
	stale   bool
}

// NewFreshable returns a cache for entity id seeded with seed, which may be nil.
func NewFreshable(id string, resource Resource, seed types.Object) *Freshable {
	payload := types.Object{}
	for k, v := range seed {
		payload[k] = v
	}
	return &Freshable{
		id:       id,
		resource: resource,
		payload:  payload,
	}
}

// WithLogger attaches a logger for refetch diagnostics and returns f.
func (f *Freshable) WithLogger(logger *slog.Logger) *Freshable {
	f.logger = logger
	return f
}

// ID returns the entity id.
func (f *Freshable) ID() string {
	return f.id
}

// Path returns the entity's canonical resource path.
func (f *Freshable) Path() string {
	return f.resource.Path
}

type getOptions struct {
	fallback  any
	transform func(any) any
}

// GetOption customizes a Freshable.Get lookup.
type GetOption func(*getOptions)

// WithDefault sets the value returned when the key is still absent after a refetch.
func WithDefault(v any) GetOption {
	return func(o *getOptions) {
		o.fallback = v
	}
}

// WithTransform maps a found value before it is returned. It is not applied
// to the default.
func WithTransform(fn func(any) any) GetOption {
	return func(o *getOptions) {
		o.transform = fn
	}
}

// Get returns the value stored under key. The payload is refetched at most
// once per call, when the key is absent or the cache is stale, and the
// response replaces the whole payload. A failed refetch leaves the cache
// untouched, including its stale flag. Seed-only entities always answer from
// their seed.
func (f *Freshable) Get(ctx context.Context, key string, opts ...GetOption) (any, error) {
	o := getOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	seedOnly := !f.refreshable()
	if !f.stale || seedOnly {
		if v, ok := f.payload[key]; ok && v != nil {
			return o.apply(v), nil
		}
	}

	if seedOnly {
		return o.fallback, nil
	}

	if err := f.refreshLocked(ctx); err != nil {
		return nil, err
	}

	if v, ok := f.payload[key]; ok && v != nil {
		return o.apply(v), nil
	}
	return o.fallback, nil
}

func (o getOptions) apply(v any) any {
	if o.transform != nil {
		return o.transform(v)
	}
	return v
}

// Refresh refetches the payload unconditionally.
func (f *Freshable) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.refreshable() {
		return &pkgerrs.StateError{Operation: "refresh " + f.id, Message: "entity has no canonical path"}
	}
	return f.refreshLocked(ctx)
}

func (f *Freshable) refreshable() bool {
	return f.resource.Path != "" && f.resource.Fetcher != nil
}

func (f *Freshable) refreshLocked(ctx context.Context) error {
	obj, err := f.resource.Fetcher.FetchObject(ctx, f.resource.Path)
	if err != nil {
		return err
	}

	if f.resource.Key != "" {
		nested, ok := obj[f.resource.Key].(map[string]any)
		if !ok {
			return &pkgerrs.ParseError{
				Operation: "refresh " + f.resource.Path,
				Message:   "response has no object under " + f.resource.Key,
			}
		}
		obj = nested
	}

	if f.logger != nil {
		f.logger.Debug("refreshed entity", "path", f.resource.Path, "fields", len(obj))
	}

	f.payload = obj
	f.stale = false
	return nil
}

// MarkStale forces the next Get to refetch and returns f for chaining.
func (f *Freshable) MarkStale() *Freshable {
	f.mu.Lock()
	f.stale = true
	f.mu.Unlock()
	return f
}

// IsStale reports whether the next Get will refetch.
func (f *Freshable) IsStale() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

// Fresh returns an independent handle on the same entity whose first Get
// refetches. The receiver's payload is left as it is.
func (f *Freshable) Fresh() *Freshable {
	return &Freshable{
		id:       f.id,
		resource: f.resource,
		logger:   f.logger,
		payload:  types.Object{},
		stale:    true,
	}
}

// Data returns a deep copy of the cached payload.
func (f *Freshable) Data() types.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyValue(f.payload).(types.Object)
}

func copyValue(v any) any {
	switch t := v.(type) {
	case types.Object:
		out := make(types.Object, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Field reads key from f and decodes it into T. The zero value is returned
// when the key is absent and no default was given.
func Field[T any](ctx context.Context, f *Freshable, key string, opts ...GetOption) (T, error) {
	var out T
	v, err := f.Get(ctx, key, opts...)
	if err != nil || v == nil {
		return out, err
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return out, &pkgerrs.ParseError{Operation: "field " + key, Err: err}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &pkgerrs.ParseError{Operation: "field " + key, Err: err}
	}
	return out, nil
}

// pluck returns a transform selecting member name of an object value.
func pluck(name string) func(any) any {
	return func(v any) any {
		switch obj := v.(type) {
		case map[string]any:
			return obj[name]
		case types.Object:
			return obj[name]
		}
		return nil
	}
}
