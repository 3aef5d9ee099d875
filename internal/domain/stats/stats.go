// Package stats provides the per-tenant music statistics entity.
package stats

import (
	"sort"
	"time"

	"github.com/osa030/guildbox/internal/domain/song"
)

// Guild holds the request and playback counters of one tenant.
type Guild struct {
	TotalSongsPlayed int            `json:"totalSongsPlayed" mapstructure:"totalSongsPlayed"`
	TotalRequests    int            `json:"totalRequests" mapstructure:"totalRequests"`
	LastActivity     time.Time      `json:"lastActivity" mapstructure:"lastActivity"`
	TopRequesters    map[string]int `json:"topRequesters" mapstructure:"topRequesters"`
}

// RequesterCount is a requester with their request count.
type RequesterCount struct {
	Requester string
	Count     int
}

// New creates empty statistics.
func New() *Guild {
	return &Guild{
		TopRequesters: make(map[string]int),
	}
}

// RecordRequest counts an accepted request.
func (g *Guild) RecordRequest(requester string, at time.Time) {
	g.TotalRequests++
	g.LastActivity = at
	if requester == "" {
		return
	}
	if g.TopRequesters == nil {
		g.TopRequesters = make(map[string]int)
	}
	g.TopRequesters[requester]++
}

// RecordPlayed counts a song that finished playing.
func (g *Guild) RecordPlayed(at time.Time) {
	g.TotalSongsPlayed++
	g.LastActivity = at
}

// Top returns the n most active requesters, highest count first.
// Ties are ordered by name.
func (g *Guild) Top(n int) []RequesterCount {
	result := make([]RequesterCount, 0, len(g.TopRequesters))
	for name, count := range g.TopRequesters {
		result = append(result, RequesterCount{Requester: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Requester < result[j].Requester
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// Decode decodes statistics from a persisted document value.
// A nil value yields empty statistics.
func Decode(value any) (*Guild, error) {
	g := New()
	if value == nil {
		return g, nil
	}
	if err := song.Decode(value, g); err != nil {
		return nil, err
	}
	if g.TopRequesters == nil {
		g.TopRequesters = make(map[string]int)
	}
	return g, nil
}

// Clone returns a deep copy.
func (g *Guild) Clone() Guild {
	c := *g
	c.TopRequesters = make(map[string]int, len(g.TopRequesters))
	for k, v := range g.TopRequesters {
		c.TopRequesters[k] = v
	}
	return c
}
