// Package cache provides the time-boxed content cache for downloaded audio files.
//
// Entries are indexed by source key (usually the source URL). Age is measured
// from creation; hits never extend it. The in-memory index is authoritative:
// an indexed entry whose file vanished is treated as a miss.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Default settings.
const (
	DefaultTTL            = 30 * time.Minute
	DefaultSweepInterval  = 5 * time.Minute
	DefaultMaxTitleLength = 50
	DefaultExtension      = ".mp3"
)

// Entry is a cached file.
type Entry struct {
	Key       string    // Source identifier
	FilePath  string    // Location on disk
	Title     string    // Display name
	CreatedAt time.Time // Creation time; age is measured from here
}

// Stats is a snapshot of the cache index.
type Stats struct {
	TotalIndexed int   // Entries in the index
	Valid        int   // Entries younger than the TTL
	Expired      int   // Entries past the TTL not yet swept
	TotalBytes   int64 // Size of the files of valid entries
}

// Config holds cache configuration.
type Config struct {
	Dir            string        // Managed directory
	TTL            time.Duration // Absolute entry lifetime
	SweepInterval  time.Duration // Interval of the background eviction sweep
	MaxTitleLength int           // Max runes of the title part of file names
	Extensions     []string      // Managed file extensions (ClearAll, startup scan)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache maps source keys to cached files.
type Cache struct {
	mu sync.Mutex

	config Config
	now    func() time.Time

	entries map[string]*Entry    // source key -> entry
	strays  map[string]time.Time // unindexed managed files -> mtime
	pins    map[string]int       // file path -> active pins
	doomed  map[string]bool      // pinned files to delete on last unpin
}

// New creates a cache rooted at cfg.Dir, creating the directory if needed.
// Existing managed files older than the TTL are deleted; younger ones are kept
// as strays and swept once they age out.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxTitleLength <= 0 {
		cfg.MaxTitleLength = DefaultMaxTitleLength
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{DefaultExtension}
	}

	c := &Cache{
		config:  cfg,
		now:     time.Now,
		entries: make(map[string]*Entry),
		strays:  make(map[string]time.Time),
		pins:    make(map[string]int),
		doomed:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}

	c.loadExisting()
	return c, nil
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.config.TTL
}

// SweepInterval returns the eviction sweep interval.
func (c *Cache) SweepInterval() time.Duration {
	return c.config.SweepInterval
}

// Dir returns the managed directory.
func (c *Cache) Dir() string {
	return c.config.Dir
}

// loadExisting scans the directory left over from a previous run.
func (c *Cache) loadExisting() {
	files, err := os.ReadDir(c.config.Dir)
	if err != nil {
		zlog.Error().Msgf("cache: failed to scan directory: dir=%s err=%v", c.config.Dir, err)
		return
	}

	now := c.now()
	for _, f := range files {
		if f.IsDir() || !c.isManaged(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(c.config.Dir, f.Name())
		if now.Sub(info.ModTime()) > c.config.TTL {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				zlog.Error().Msgf("cache: failed to delete old file: path=%s err=%v", path, err)
				continue
			}
			zlog.Debug().Msgf("cache: deleted old file: path=%s", path)
			continue
		}
		c.strays[path] = info.ModTime()
		zlog.Debug().Msgf("cache: keeping recent file: path=%s", path)
	}
}

// Lookup returns the entry for key if it is present, younger than the TTL
// and its file still exists. Aged or broken entries are purged and reported
// as a miss.
func (c *Cache) Lookup(key string) (*Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}

	if c.expired(e, c.now()) {
		delete(c.entries, key)
		remove := c.releaseLocked(e.FilePath)
		c.mu.Unlock()
		if remove {
			c.deleteFile(e.FilePath)
		}
		zlog.Debug().Msgf("cache: expired on lookup: key=%s", key)
		return nil, false
	}
	c.mu.Unlock()

	if _, err := os.Stat(e.FilePath); err != nil {
		c.mu.Lock()
		// Only drop the entry we looked at; a concurrent Store may have replaced it.
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		zlog.Warn().Msgf("cache: indexed file is missing: key=%s path=%s", key, e.FilePath)
		return nil, false
	}

	copied := *e
	return &copied, true
}

// Store moves tmpPath into the managed directory and indexes it under key.
// If the move fails the returned entry points at tmpPath and is not indexed.
func (c *Cache) Store(key, tmpPath, title string) *Entry {
	now := c.now()
	ext := filepath.Ext(tmpPath)
	if ext == "" {
		ext = DefaultExtension
	}
	target := filepath.Join(c.config.Dir, FileName(key, title, now, ext, c.config.MaxTitleLength))

	if err := os.Rename(tmpPath, target); err != nil {
		zlog.Error().Msgf("cache: failed to move downloaded file: src=%s dst=%s err=%v", tmpPath, target, err)
		return &Entry{Key: key, FilePath: tmpPath, Title: title, CreatedAt: now}
	}

	e := &Entry{Key: key, FilePath: target, Title: title, CreatedAt: now}

	c.mu.Lock()
	var superseded string
	if old, ok := c.entries[key]; ok && old.FilePath != target {
		if c.releaseLocked(old.FilePath) {
			superseded = old.FilePath
		}
	}
	c.entries[key] = e
	c.mu.Unlock()

	if superseded != "" {
		c.deleteFile(superseded)
	}

	zlog.Info().Msgf("cache: added: title=%s key=%s", title, key)
	copied := *e
	return &copied
}

// EvictExpired removes every entry older than the TTL and deletes its file.
// Index entries are removed before any file is touched. Returns the number of
// evicted entries.
func (c *Cache) EvictExpired() int {
	now := c.now()

	c.mu.Lock()
	var files []string
	evicted := 0
	for key, e := range c.entries {
		if !c.expired(e, now) {
			continue
		}
		delete(c.entries, key)
		evicted++
		if c.releaseLocked(e.FilePath) {
			files = append(files, e.FilePath)
		}
	}
	for path, modTime := range c.strays {
		if now.Sub(modTime) <= c.config.TTL {
			continue
		}
		delete(c.strays, path)
		if c.releaseLocked(path) {
			files = append(files, path)
		}
	}
	c.mu.Unlock()

	for _, path := range files {
		c.deleteFile(path)
	}

	if evicted > 0 {
		zlog.Info().Msgf("cache: cleaned up expired files: count=%d", evicted)
	}
	return evicted
}

// Run sweeps expired entries every SweepInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	zlog.Info().Msgf("cache: cleanup timer started: interval=%v ttl=%v", c.config.SweepInterval, c.config.TTL)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.EvictExpired()
		}
	}
}

// Stats returns a snapshot of the index.
func (c *Cache) Stats() Stats {
	now := c.now()

	c.mu.Lock()
	var s Stats
	s.TotalIndexed = len(c.entries)
	var valid []string
	for _, e := range c.entries {
		if c.expired(e, now) {
			s.Expired++
			continue
		}
		s.Valid++
		valid = append(valid, e.FilePath)
	}
	c.mu.Unlock()

	for _, path := range valid {
		if info, err := os.Stat(path); err == nil {
			s.TotalBytes += info.Size()
		}
	}
	return s
}

// ClearAll deletes every managed file in the directory, indexed or not, and
// empties the index. Returns the number of deleted files.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.strays = make(map[string]time.Time)
	c.doomed = make(map[string]bool)

	files, err := os.ReadDir(c.config.Dir)
	if err != nil {
		zlog.Error().Msgf("cache: failed to clear: dir=%s err=%v", c.config.Dir, err)
		return 0
	}

	deleted := 0
	for _, f := range files {
		if f.IsDir() || !c.isManaged(f.Name()) {
			continue
		}
		path := filepath.Join(c.config.Dir, f.Name())
		if err := os.Remove(path); err != nil {
			zlog.Error().Msgf("cache: failed to delete file: path=%s err=%v", path, err)
			continue
		}
		deleted++
	}

	zlog.Info().Msgf("cache: cleared: deleted=%d", deleted)
	return deleted
}

// Pin protects path from deletion until the matching Unpin. Eviction still
// removes the index entry; the file is deleted on the last Unpin.
func (c *Cache) Pin(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[path]++
}

// Unpin releases a pin taken with Pin.
func (c *Cache) Unpin(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	n, ok := c.pins[path]
	if !ok {
		c.mu.Unlock()
		return
	}
	remove := false
	if n <= 1 {
		delete(c.pins, path)
		if c.doomed[path] {
			delete(c.doomed, path)
			remove = true
		}
	} else {
		c.pins[path] = n - 1
	}
	c.mu.Unlock()

	if remove {
		c.deleteFile(path)
	}
}

// releaseLocked reports whether path may be deleted now. Pinned paths are
// marked for deletion on their last unpin instead.
// Must be called with lock held.
func (c *Cache) releaseLocked(path string) bool {
	if c.pins[path] > 0 {
		c.doomed[path] = true
		return false
	}
	return true
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) > c.config.TTL
}

func (c *Cache) isManaged(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, managed := range c.config.Extensions {
		if strings.EqualFold(ext, managed) {
			return true
		}
	}
	return false
}

func (c *Cache) deleteFile(path string) {
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			zlog.Error().Msgf("cache: failed to delete file: path=%s err=%v", path, err)
		}
		return
	}
	zlog.Debug().Msgf("cache: deleted file: path=%s", path)
}
