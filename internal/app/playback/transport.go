package playback

import (
	"context"
	"time"
)

// Item is what a connection plays.
type Item struct {
	FilePath string
	Title    string
	Duration time.Duration // Zero when unknown
}

// Transport opens audio connections for tenants.
type Transport interface {
	// Connect opens a connection owned by one tenant. Events for its tracks
	// are delivered to h.
	Connect(ctx context.Context, tenantID string, h EventHandler) (Connection, error)
}

// Connection is an audio output exclusively owned by one session.
type Connection interface {
	// Play starts item, replacing anything currently playing, and returns
	// the id that events for this track will carry.
	Play(item Item, volume float64) (uint64, error)
	Pause() error
	Resume() error
	SetVolume(volume float64) error
	// Stop stops the current track without emitting EventTrackEnded.
	Stop() error
	// Destroy releases the connection. No events are emitted afterwards.
	Destroy() error
}
