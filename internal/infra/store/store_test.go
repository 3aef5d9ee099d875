package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queued struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), NewMemoryBackend())
	require.NoError(t, err)
	return s
}

func TestStore_GetMissing(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	v, err := s.Get(ctx, "queues.g1")
	require.NoError(t, err)
	assert.Nil(t, v)

	keys, err := s.Keys(ctx, "queues")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_SetGetDelete(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "queues.g1", []queued{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}}))
	require.NoError(t, s.Set(ctx, "queues.g2", []queued{}))
	require.NoError(t, s.Set(ctx, "current.g1", queued{ID: "0", Title: "Z"}))

	v, err := s.Get(ctx, "queues.g1")
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": "1", "title": "A"},
		map[string]any{"id": "2", "title": "B"},
	}, v)

	v, err = s.Get(ctx, "current.g1.title")
	require.NoError(t, err)
	assert.Equal(t, "Z", v)

	keys, err := s.Keys(ctx, "queues")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, keys)

	top, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "queues"}, top)

	require.NoError(t, s.Delete(ctx, "queues.g1"))
	require.NoError(t, s.Delete(ctx, "queues.g1"))
	require.NoError(t, s.Delete(ctx, "nothing.here"))

	v, err = s.Get(ctx, "queues.g1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "stats.g1", map[string]any{"totalRequests": 1}))

	v, err := s.Get(ctx, "stats.g1")
	require.NoError(t, err)
	v.(map[string]any)["totalRequests"] = 99.0

	again, err := s.Get(ctx, "stats.g1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.(map[string]any)["totalRequests"])
}

func TestStore_SetReplacesScalarIntermediate(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "scalar"))
	require.NoError(t, s.Set(ctx, "a.b", 1))

	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 1.0}, v)
}

func TestStore_InvalidPath(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	for _, p := range []string{"", "a..b", ".a", "a."} {
		_, err := s.Get(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
		assert.ErrorIs(t, s.Set(ctx, p, 1), ErrInvalidPath, p)
	}
}

// flakyBackend rejects saves while fail is set.
type flakyBackend struct {
	*MemoryBackend
	fail bool
}

func (b *flakyBackend) Save(ctx context.Context, data []byte) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.MemoryBackend.Save(ctx, data)
}

func TestStore_FailedSaveLeavesDocumentUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend()}
	s, err := New(ctx, backend)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "queues.g1", []queued{{ID: "1", Title: "A"}}))
	backend.fail = true

	tests := []struct {
		name string
		op   func() error
	}{
		{"replace", func() error { return s.Set(ctx, "queues.g1", []queued{{ID: "2", Title: "B"}}) }},
		{"new key", func() error { return s.Set(ctx, "queues.g2", []queued{{ID: "3", Title: "C"}}) }},
		{"new parent", func() error { return s.Set(ctx, "stats.g1.totalRequests", 1) }},
		{"delete", func() error { return s.Delete(ctx, "queues.g1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.op())

			v, err := s.Get(ctx, "queues.g1")
			require.NoError(t, err)
			assert.Equal(t, []any{map[string]any{"id": "1", "title": "A"}}, v)

			keys, err := s.Keys(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"queues"}, keys)
			keys, err = s.Keys(ctx, "queues")
			require.NoError(t, err)
			assert.Equal(t, []string{"g1"}, keys)
		})
	}
}

func TestStore_CorruptDocumentStartsEmpty(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), []byte("{not json")))

	s, err := New(context.Background(), backend)
	require.NoError(t, err)

	keys, err := s.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// roundTrip writes through one store and reads back through a fresh one on
// the same backend.
func roundTrip(t *testing.T, open func() Backend) {
	t.Helper()
	ctx := context.Background()

	s, err := New(ctx, open())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "queues.g1", []queued{{ID: "1", Title: "A"}}))
	require.NoError(t, s.Set(ctx, "stats.g1.totalRequests", 3))
	require.NoError(t, s.Close())

	reopened, err := New(ctx, open())
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, "queues.g1")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "1", "title": "A"}}, v)

	v, err = reopened.Get(ctx, "stats.g1.totalRequests")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "music_data.json")

	roundTrip(t, func() Backend {
		b, err := NewFileBackend(path)
		require.NoError(t, err)
		return b
	})

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	roundTrip(t, func() Backend {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return NewRedisBackendWithClient(rdb, "test:data")
	})

	assert.True(t, mr.Exists("test:data"))
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	roundTrip(t, func() Backend {
		b, err := NewSQLiteBackend(context.Background(), path, "doc")
		require.NoError(t, err)
		return b
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Type: "none"})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", 1))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Type: "file", Path: filepath.Join(t.TempDir(), "d.json")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	s, err = Open(ctx, Config{Type: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Type: "mongo"})
	assert.Error(t, err)
}
