package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

// ClockConfig configures the clock transport.
type ClockConfig struct {
	FallbackDuration time.Duration // Used when an item has no duration; defaults to 3m
	Tick             time.Duration // Wall-clock polling interval; defaults to 100ms
}

// Clock is a headless transport. Tracks produce no sound; they end when
// their duration has elapsed on the wall clock, excluding paused time.
type Clock struct {
	config ClockConfig
}

// NewClock creates a clock transport.
func NewClock(cfg ClockConfig) *Clock {
	if cfg.FallbackDuration <= 0 {
		cfg.FallbackDuration = 3 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	return &Clock{config: cfg}
}

// Connect opens a connection for tenantID.
func (c *Clock) Connect(ctx context.Context, tenantID string, h playback.EventHandler) (playback.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("transport: clock connection opened: tenant=%s", tenantID)
	return &clockConn{config: c.config, tenantID: tenantID, handler: h}, nil
}

type clockConn struct {
	config   ClockConfig
	tenantID string
	handler  playback.EventHandler

	mu        sync.Mutex
	trackID   uint64
	playing   bool
	paused    bool
	remaining time.Duration // valid while paused
	endTime   time.Time     // valid while playing and not paused
	volume    float64
	cancel    func()
	destroyed bool
}

func (c *clockConn) Play(item playback.Item, volume float64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return 0, ErrDestroyed
	}
	c.stopTimerLocked()

	d := item.Duration
	if d <= 0 {
		d = c.config.FallbackDuration
	}

	c.trackID++
	c.playing = true
	c.paused = false
	c.volume = volume
	c.startTimerLocked(d)

	zlog.Debug().Msgf("transport: clock play: tenant=%s track=%d title=%s duration=%s", c.tenantID, c.trackID, item.Title, d)
	return c.trackID, nil
}

func (c *clockConn) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if !c.playing || c.paused {
		return errors.New("not playing")
	}
	c.remaining = c.endTime.Sub(toWallTime(time.Now()))
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.paused = true
	c.stopTimerLocked()
	return nil
}

func (c *clockConn) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if !c.playing || !c.paused {
		return errors.New("not paused")
	}
	c.paused = false
	c.startTimerLocked(c.remaining)
	return nil
}

func (c *clockConn) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	c.volume = volume
	return nil
}

func (c *clockConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.playing = false
	c.paused = false
	return nil
}

func (c *clockConn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.playing = false
	c.destroyed = true
	zlog.Debug().Msgf("transport: clock connection destroyed: tenant=%s", c.tenantID)
	return nil
}

func (c *clockConn) stopTimerLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// startTimerLocked ends the current track after d of wall-clock time.
func (c *clockConn) startTimerLocked(d time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.endTime = toWallTime(time.Now()).Add(d)

	id := c.trackID
	end := c.endTime
	go func() {
		ticker := time.NewTicker(c.config.Tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).Before(end) {
					continue
				}
				c.finish(ctx, id)
				return
			}
		}
	}()
}

// finish emits TrackEnded for id unless the timer was cancelled meanwhile.
func (c *clockConn) finish(ctx context.Context, id uint64) {
	c.mu.Lock()
	if ctx.Err() != nil || c.destroyed || c.trackID != id {
		c.mu.Unlock()
		return
	}
	c.playing = false
	c.stopTimerLocked()
	c.mu.Unlock()

	c.handler(playback.Event{Type: playback.EventTrackEnded, TrackID: id})
}
