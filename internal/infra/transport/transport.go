// Package transport provides the audio outputs sessions play through.
package transport

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/app/playback"
)

// ErrDestroyed is returned by a connection after Destroy.
var ErrDestroyed = errors.New("connection destroyed")

// Config selects and configures a transport.
type Config struct {
	Type             string        // "exec" or "clock"
	PlayerCommand    []string      // exec: command template
	FallbackDuration time.Duration // clock: length of tracks with unknown duration
}

// New creates the transport named by cfg.Type.
func New(cfg Config) (playback.Transport, error) {
	switch cfg.Type {
	case "exec", "":
		return NewExec(cfg.PlayerCommand), nil
	case "clock":
		return NewClock(ClockConfig{FallbackDuration: cfg.FallbackDuration}), nil
	default:
		return nil, errors.Newf("unknown transport: %s", cfg.Type)
	}
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
