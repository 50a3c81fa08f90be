package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/zalando/go-keyring"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
)

const (
	// DefaultConfigFile is the credential document file name inside the config root.
	DefaultConfigFile = "config.json"

	// BasicTokenKey is the document key of the derived guest token.
	BasicTokenKey = "basic_token"

	keyringService = "ifunny"

	// storeLockTimeout bounds how long a write waits for another process.
	// Past it the write proceeds unlocked rather than hanging.
	storeLockTimeout = 100 * time.Millisecond
)

// BearerKey returns the document key holding the bearer token of an account.
func BearerKey(accountKey string) string {
	return "bearer " + accountKey
}

// StoreConfig locates the credential document.
type StoreConfig struct {
	// Root is the configuration directory. Required.
	Root string
	// File is the document name inside Root. Defaults to DefaultConfigFile.
	File string
	// UseKeyring keeps the document in the OS keyring instead of a file.
	UseKeyring bool
}

// documentBackend persists the serialized credential document.
type documentBackend interface {
	load() (data []byte, found bool, err error)
	save(data []byte) error
	lock() (unlock func(), err error)
	location() string
}

// Store is a flat string-to-string credential document persisted under a
// single configuration root. It is read lazily on first access and written
// through on every mutation.
type Store struct {
	backend documentBackend

	mu    sync.Mutex
	cache map[string]string
}

// NewStore creates a credential store for cfg.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Root == "" {
		return nil, &pkgerrs.ConfigError{Field: "ConfigRoot", Message: "credential store root cannot be empty"}
	}
	if cfg.File == "" {
		cfg.File = DefaultConfigFile
	}

	path := filepath.Join(cfg.Root, cfg.File)

	if cfg.UseKeyring {
		return &Store{backend: &keyringBackend{user: path}}, nil
	}

	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, &pkgerrs.ConfigError{Field: "ConfigRoot", Message: fmt.Sprintf("cannot create %s: %v", cfg.Root, err)}
	}

	return &Store{backend: &fileBackend{path: path}}, nil
}

// Location describes where the document lives (a file path, or keyring entry).
func (s *Store) Location() string {
	return s.backend.location()
}

// Read returns a copy of the whole document. A missing document is created
// empty. The result is cached until the next write.
func (s *Store) Read() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return copyDocument(doc), nil
}

// Write replaces the whole document. doc must be a map with string values;
// anything else fails with a ValidationError and leaves the store untouched.
func (s *Store) Write(doc any) error {
	normalized, err := normalizeDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.backend.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.writeLocked(normalized)
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return "", false, err
	}
	value, ok := doc[key]
	return value, ok, nil
}

// Set stores value under key, preserving every other key.
func (s *Store) Set(key, value string) error {
	return s.update(func(doc map[string]string) {
		doc[key] = value
	})
}

// Delete removes key from the document. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.update(func(doc map[string]string) {
		delete(doc, key)
	})
}

// Clear empties the document.
func (s *Store) Clear() error {
	return s.Write(map[string]string{})
}

// Keys returns the document keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	doc, err := s.Read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// update performs a locked read-merge-write. The document is re-read from
// the backend under the lock so keys written by another process survive.
func (s *Store) update(mutate func(map[string]string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.backend.lock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	mutate(doc)
	return s.writeLocked(doc)
}

func (s *Store) readLocked() (map[string]string, error) {
	if s.cache != nil {
		return s.cache, nil
	}

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	s.cache = doc
	return doc, nil
}

// loadLocked reads the backend, creating an empty document when none exists.
func (s *Store) loadLocked() (map[string]string, error) {
	data, found, err := s.backend.load()
	if err != nil {
		return nil, err
	}

	if !found {
		if err := s.backend.save([]byte("{}")); err != nil {
			return nil, err
		}
		return map[string]string{}, nil
	}

	doc := map[string]string{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &pkgerrs.ParseError{Operation: "read credential store " + s.backend.location(), Err: err}
	}
	return doc, nil
}

func (s *Store) writeLocked(doc map[string]string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.backend.save(data); err != nil {
		return err
	}
	s.cache = copyDocument(doc)
	return nil
}

func normalizeDocument(doc any) (map[string]string, error) {
	switch v := doc.(type) {
	case map[string]string:
		return copyDocument(v), nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for key, value := range v {
			str, ok := value.(string)
			if !ok {
				return nil, &pkgerrs.ValidationError{
					Field:   "document[" + key + "]",
					Message: fmt.Sprintf("value should be string, not %T", value),
				}
			}
			out[key] = str
		}
		return out, nil
	default:
		return nil, &pkgerrs.ValidationError{
			Field:   "document",
			Message: fmt.Sprintf("value should be object, not %T", doc),
		}
	}
}

func copyDocument(doc map[string]string) map[string]string {
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// fileBackend stores the document as a JSON file guarded by a sibling lock file.
type fileBackend struct {
	path string
}

func (b *fileBackend) location() string {
	return b.path
}

func (b *fileBackend) load() ([]byte, bool, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (b *fileBackend) save(data []byte) error {
	dir := filepath.Dir(b.path)

	tmpFile, err := os.CreateTemp(dir, filepath.Base(b.path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(b.path)
			return os.Rename(tmpPath, b.path)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// lock takes an exclusive lock across processes. If the lock cannot be had
// within storeLockTimeout the caller proceeds unlocked.
func (b *fileBackend) lock() (func(), error) {
	fl := flock.New(b.path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), storeLockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return func() {}, nil
		}
		return nil, err
	}
	if !locked {
		return func() {}, nil
	}

	return func() { _ = fl.Unlock() }, nil
}

// keyringBackend stores the document as one secret in the OS keyring.
type keyringBackend struct {
	user string
}

func (b *keyringBackend) location() string {
	return "keyring:" + keyringService + "/" + b.user
}

func (b *keyringBackend) load() ([]byte, bool, error) {
	data, err := keyring.Get(keyringService, b.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(data), true, nil
}

func (b *keyringBackend) save(data []byte) error {
	return keyring.Set(keyringService, b.user, string(data))
}

func (b *keyringBackend) lock() (func(), error) {
	return func() {}, nil
}
