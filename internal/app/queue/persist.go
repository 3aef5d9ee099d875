package queue

import (
	"context"
	"os"
	"sort"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/domain/stats"
)

// Persisted layout:
//
//	queues.<tenant>  array of song.Persisted
//	current.<tenant> song.Persisted with startedAt
//	stats.<tenant>   stats.Guild

func (c *Coordinator) saveQueue(tenantID string, queue []song.Request) error {
	if c.store == nil {
		return nil
	}
	list := make([]song.Persisted, len(queue))
	for i, r := range queue {
		list[i] = r.Persist(i + 1)
	}
	return c.store.Set(c.ctx, "queues."+tenantID, list)
}

func (c *Coordinator) saveCurrent(tenantID string, req song.Request) {
	if c.store == nil {
		return
	}
	p := req.Persist(0)
	p.StartedAt = c.now()
	if err := c.store.Set(c.ctx, "current."+tenantID, p); err != nil {
		zlog.Warn().Msgf("queue: failed to persist current song: tenant=%s err=%v", tenantID, err)
	}
}

func (c *Coordinator) deleteKey(path string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(c.ctx, path); err != nil {
		zlog.Warn().Msgf("queue: failed to delete persisted key: path=%s err=%v", path, err)
	}
}

// loadStats returns the tenant statistics, reading them from the store on
// first use. Runs on the tenant executor.
func (c *Coordinator) loadStats(t *tenant) *stats.Guild {
	if t.guild == nil {
		t.guild = c.readStats(t.id)
	}
	return t.guild
}

// readStats reads the persisted statistics of tenantID.
func (c *Coordinator) readStats(tenantID string) *stats.Guild {
	if c.store == nil {
		return stats.New()
	}

	v, err := c.store.Get(c.ctx, "stats."+tenantID)
	if err != nil {
		zlog.Warn().Msgf("queue: failed to load stats: tenant=%s err=%v", tenantID, err)
		return stats.New()
	}
	if v == nil {
		return stats.New()
	}
	g, err := stats.Decode(v)
	if err != nil {
		zlog.Warn().Msgf("queue: ignoring unreadable stats: tenant=%s err=%v", tenantID, err)
		return stats.New()
	}
	return g
}

func (c *Coordinator) saveStats(tenantID string, g *stats.Guild) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(c.ctx, "stats."+tenantID, g); err != nil {
		zlog.Warn().Msgf("queue: failed to persist stats: tenant=%s err=%v", tenantID, err)
	}
}

// Restore rebuilds the queue of tenantID from the store. Songs whose file is
// gone are dropped; an interrupted current song goes back to the head of the
// queue. Playback is not started. Returns the number of restored songs.
func (c *Coordinator) Restore(ctx context.Context, tenantID string) int {
	if c.store == nil {
		return 0
	}
	var restored int
	_ = c.run(ctx, tenantID, func(t *tenant) {
		restored = c.restore(t)
	})
	return restored
}

// RestoreAll restores every tenant found in the store.
func (c *Coordinator) RestoreAll(ctx context.Context) map[string]int {
	result := make(map[string]int)
	if c.store == nil {
		return result
	}

	ids := make(map[string]struct{})
	for _, prefix := range []string{"queues", "current"} {
		keys, err := c.store.Keys(ctx, prefix)
		if err != nil {
			zlog.Warn().Msgf("queue: failed to list persisted tenants: prefix=%s err=%v", prefix, err)
			continue
		}
		for _, k := range keys {
			ids[k] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		if n := c.Restore(ctx, id); n > 0 {
			result[id] = n
		}
	}
	return result
}

// restore runs on the tenant executor.
func (c *Coordinator) restore(t *tenant) int {
	if t.session != nil && (len(t.queue) > 0 || t.session.State().Active()) {
		zlog.Debug().Msgf("queue: tenant already active, skipping restore: tenant=%s", t.id)
		return 0
	}

	var songs []song.Request

	if v, err := c.store.Get(c.ctx, "current."+t.id); err != nil {
		zlog.Warn().Msgf("queue: failed to read current song: tenant=%s err=%v", t.id, err)
	} else if cur, err := song.DecodeOne(v); err != nil {
		zlog.Warn().Msgf("queue: ignoring unreadable current song: tenant=%s err=%v", t.id, err)
	} else if cur != nil {
		songs = append(songs, cur.Request())
	}

	if v, err := c.store.Get(c.ctx, "queues."+t.id); err != nil {
		zlog.Warn().Msgf("queue: failed to read queue: tenant=%s err=%v", t.id, err)
	} else if list, err := song.DecodeList(v); err != nil {
		zlog.Warn().Msgf("queue: ignoring unreadable queue: tenant=%s err=%v", t.id, err)
	} else {
		for _, p := range list {
			songs = append(songs, p.Request())
		}
	}

	kept := make([]song.Request, 0, len(songs))
	for _, r := range songs {
		if r.FilePath == "" {
			continue
		}
		if _, err := os.Stat(r.FilePath); err != nil {
			zlog.Info().Msgf("queue: dropping song with missing file: tenant=%s title=%s", t.id, r.Title)
			continue
		}
		r.QueuePosition = len(kept) + 1
		kept = append(kept, r)
	}

	c.deleteKey("current." + t.id)
	if len(kept) == 0 {
		c.deleteKey("queues." + t.id)
		return 0
	}

	if err := c.saveQueue(t.id, kept); err != nil {
		zlog.Warn().Msgf("queue: failed to persist restored queue: tenant=%s err=%v", t.id, err)
	}
	c.ensureSession(t)
	t.queue = kept

	zlog.Info().Msgf("queue: restored: tenant=%s songs=%d", t.id, len(kept))
	return len(kept)
}
