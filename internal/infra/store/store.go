// Package store implements the persisted key-value document used to survive
// restarts. The document is a JSON object addressed by dotted paths
// ("queues.<tenant>"); every backend keeps the whole document as one blob.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrInvalidPath is returned for empty paths or paths with empty segments.
var ErrInvalidPath = errors.New("invalid path")

// Backend loads and saves the raw document.
type Backend interface {
	// Load returns the stored document, or nil when nothing was stored yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Type     string // "file", "redis", "sqlite" or "none"
	Path     string // file or sqlite database path
	RedisURL string
	Key      string // redis key or sqlite document name
}

// Store is a dotted-path JSON document over a Backend. Writes go through to
// the backend immediately.
type Store struct {
	mu      sync.Mutex
	backend Backend
	doc     map[string]any
}

// Open creates the configured backend and loads the document.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Type {
	case "file", "":
		backend, err = NewFileBackend(cfg.Path)
	case "redis":
		backend, err = NewRedisBackend(ctx, cfg.RedisURL, cfg.Key)
	case "sqlite":
		backend, err = NewSQLiteBackend(ctx, cfg.Path, cfg.Key)
	case "none":
		backend = NewMemoryBackend()
	default:
		return nil, errors.Newf("unknown store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return New(ctx, backend)
}

// New loads the document from backend. An empty or corrupt document starts
// out as an empty object.
func New(ctx context.Context, backend Backend) (*Store, error) {
	data, err := backend.Load(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s store", backend.Name())
	}

	doc := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			zlog.Warn().Msgf("store: corrupt document, starting empty: backend=%s err=%v", backend.Name(), err)
			doc = make(map[string]any)
		}
		if doc == nil {
			doc = make(map[string]any)
		}
	}

	zlog.Info().Msgf("store: loaded: backend=%s keys=%d", backend.Name(), len(doc))
	return &Store{backend: backend, doc: doc}, nil
}

// Get returns a copy of the value at path, or nil when the path does not exist.
func (s *Store) Get(_ context.Context, path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cur any = s.doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		if cur, ok = m[p]; !ok {
			return nil, nil
		}
	}
	return clone(cur), nil
}

// Set stores value at path, creating intermediate objects and replacing
// non-object intermediates. The value is normalized through JSON so reads
// return plain maps, slices, strings, float64 and bool.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}

	normalized, err := normalize(value)
	if err != nil {
		return errors.Wrapf(err, "failed to encode value for %s", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// undo restores the document when the backend rejects the write.
	var undo func()
	cur := s.doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			if undo == nil {
				undo = restoreKey(cur, p)
			}
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if undo == nil {
		undo = restoreKey(cur, last)
	}
	cur[last] = normalized

	if err := s.saveLocked(ctx); err != nil {
		undo()
		return err
	}
	return nil
}

func restoreKey(m map[string]any, key string) func() {
	prev, existed := m[key]
	return func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	}
}

// Delete removes the value at path. Deleting a missing path is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if _, ok := cur[last]; !ok {
		return nil
	}
	undo := restoreKey(cur, last)
	delete(cur, last)

	if err := s.saveLocked(ctx); err != nil {
		undo()
		return err
	}
	return nil
}

// Keys returns the sorted child keys of the object at path. An empty path
// lists the top level.
func (s *Store) Keys(_ context.Context, path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur any = s.doc
	if path != "" {
		parts, err := splitPath(path)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, nil
			}
			if cur, ok = m[p]; !ok {
				return nil, nil
			}
		}
	}

	m, ok := cur.(map[string]any)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// saveLocked must be called with lock held.
func (s *Store) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode document")
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return errors.Wrapf(err, "failed to save %s store", s.backend.Name())
	}
	return nil
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, errors.Wrapf(ErrInvalidPath, "%q", path)
		}
	}
	return parts, nil
}

func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// clone deep-copies a normalized value.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = clone(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = clone(e)
		}
		return s
	default:
		return v
	}
}
