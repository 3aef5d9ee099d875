package playback

import (
	"errors"
	"math"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/song"
)

// Errors
var (
	ErrNoConnection = errors.New("no transport connection")
	ErrNotPlaying   = errors.New("not playing")
	ErrNotPaused    = errors.New("not paused")
	ErrDestroyed    = errors.New("session destroyed")
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	State   State
	Current *song.Request
	Volume  float64
	Elapsed time.Duration
}

// Session is the playback state of one tenant bound to one Connection.
// Transitions: Idle -> Resolving -> Playing <-> Paused -> Idle, any -> Destroyed.
type Session struct {
	mu sync.RWMutex

	tenantID string
	conn     Connection

	state   State
	current *song.Request
	trackID uint64
	volume  float64

	startTime     time.Time
	pausedAt      *time.Time
	pausedElapsed time.Duration
}

// NewSession creates an idle session.
func NewSession(tenantID string, volume float64) *Session {
	return &Session{
		tenantID: tenantID,
		state:    StateIdle,
		volume:   ClampVolume(volume),
	}
}

// TenantID returns the owning tenant.
func (s *Session) TenantID() string {
	return s.tenantID
}

// Attach binds the connection used for playback.
func (s *Session) Attach(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// Connected reports whether a connection is attached.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// MarkResolving records that the session waits for its first song.
func (s *Session) MarkResolving() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		s.state = StateResolving
	}
}

// Start plays req through the connection, replacing any current track.
func (s *Session) Start(req song.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return ErrDestroyed
	}
	if s.conn == nil {
		return ErrNoConnection
	}

	id, err := s.conn.Play(Item{FilePath: req.FilePath, Title: req.Title, Duration: req.Duration}, s.volume)
	if err != nil {
		return err
	}

	current := req
	s.current = &current
	s.trackID = id
	s.state = StatePlaying
	s.startTime = toWallTime(time.Now())
	s.pausedAt = nil
	s.pausedElapsed = 0

	zlog.Debug().Msgf("playback: started: tenant=%s track=%d title=%s", s.tenantID, id, req.Title)
	return nil
}

// Pause pauses the current track.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying || s.current == nil {
		return ErrNotPlaying
	}
	if err := s.conn.Pause(); err != nil {
		return err
	}

	now := toWallTime(time.Now())
	s.pausedAt = &now
	s.state = StatePaused
	return nil
}

// Resume resumes a paused track.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused || s.current == nil {
		return ErrNotPaused
	}
	if err := s.conn.Resume(); err != nil {
		return err
	}

	if s.pausedAt != nil {
		s.pausedElapsed += toWallTime(time.Now()).Sub(*s.pausedAt)
	}
	s.pausedAt = nil
	s.state = StatePlaying
	return nil
}

// SetVolume clamps v to [0, 1], applies it to the live track if any and keeps
// it for subsequent tracks. Returns the applied volume.
func (s *Session) SetVolume(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = ClampVolume(v)
	if s.conn != nil && s.state.Active() {
		if err := s.conn.SetVolume(s.volume); err != nil {
			zlog.Warn().Msgf("playback: failed to apply volume: tenant=%s err=%v", s.tenantID, err)
		}
	}
	return s.volume
}

// Volume returns the session volume.
func (s *Session) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// StopTrack stops the current track and returns it. The session goes back to
// idle; no track-ended event is expected for the stopped track.
func (s *Session) StopTrack() *song.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	if s.conn != nil {
		if err := s.conn.Stop(); err != nil {
			zlog.Warn().Msgf("playback: failed to stop track: tenant=%s err=%v", s.tenantID, err)
		}
	}
	return s.clearLocked()
}

// Finish clears the current track after the transport reported its end.
func (s *Session) Finish() *song.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	return s.clearLocked()
}

// Destroy stops playback and releases the connection. Destroy is terminal and
// safe to call more than once.
func (s *Session) Destroy() *song.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return nil
	}

	var last *song.Request
	if s.conn != nil {
		if s.current != nil {
			if err := s.conn.Stop(); err != nil {
				zlog.Warn().Msgf("playback: failed to stop track: tenant=%s err=%v", s.tenantID, err)
			}
		}
		if err := s.conn.Destroy(); err != nil {
			zlog.Warn().Msgf("playback: failed to destroy connection: tenant=%s err=%v", s.tenantID, err)
		}
		s.conn = nil
	}
	if s.current != nil {
		last = s.clearLocked()
	}
	s.state = StateDestroyed
	return last
}

// Accepts reports whether ev belongs to the current track.
func (s *Session) Accepts(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Active() && s.current != nil && ev.TrackID == s.trackID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Current returns a copy of the current song.
func (s *Session) Current() (*song.Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	c := *s.current
	return &c, true
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:   s.state,
		Volume:  s.volume,
		Elapsed: s.elapsedLocked(),
	}
	if s.current != nil {
		c := *s.current
		snap.Current = &c
	}
	return snap
}

func (s *Session) elapsedLocked() time.Duration {
	if s.current == nil || s.startTime.IsZero() {
		return 0
	}
	now := toWallTime(time.Now())
	elapsed := now.Sub(s.startTime) - s.pausedElapsed
	if s.state == StatePaused && s.pausedAt != nil {
		elapsed -= now.Sub(*s.pausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// clearLocked must be called with lock held.
func (s *Session) clearLocked() *song.Request {
	ended := s.current
	s.current = nil
	s.trackID = 0
	s.state = StateIdle
	s.startTime = time.Time{}
	s.pausedAt = nil
	s.pausedElapsed = 0
	return ended
}

// ClampVolume limits v to [0, 1].
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
