// Package queue provides the per-tenant queue coordinator: ordered song
// queues, the playback session of each tenant and the ordered draining of
// asynchronous resolutions.
//
// Every tenant owns an executor goroutine. All reads and writes of a tenant's
// state run on that executor, so operations on one tenant are strictly
// ordered while different tenants never wait on each other.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/domain/stats"
)

// Store is the advisory persisted document.
type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	Delete(ctx context.Context, path string) error
	Keys(ctx context.Context, path string) ([]string, error)
}

// Notifier delivers user-facing status messages.
type Notifier interface {
	Notify(tenantID, message string)
}

// Pinner protects files from deletion while they play.
type Pinner interface {
	Pin(path string)
	Unpin(path string)
}

// Messages are the user-facing texts emitted by the coordinator. A "%s" in
// NowPlaying and Added is replaced by the song title.
type Messages struct {
	NowPlaying    string
	Added         string
	PlaybackError string
	Stopped       string
	DefaultError  string
}

// DefaultMessages returns the built-in messages.
func DefaultMessages() Messages {
	return Messages{
		NowPlaying:    "🎵 Now playing: **%s**",
		Added:         "✅ Added to queue: **%s**",
		PlaybackError: "An error occurred while playing music.",
		Stopped:       "⏹️ Music stopped and queue cleared!",
		DefaultError:  "❌ Could not add the song.",
	}
}

// Config holds coordinator configuration.
type Config struct {
	DefaultVolume  float64       // Volume of new sessions
	ResolveTimeout time.Duration // Bound on each pending resolution; zero waits forever
	Messages       Messages
}

// FailureMessageFunc renders the notification for a failed resolution.
type FailureMessageFunc func(p *Pending, err error) string

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore enables persistence.
func WithStore(s Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithNotifier sets the notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithPinner pins playing files.
func WithPinner(p Pinner) Option {
	return func(c *Coordinator) { c.pinner = p }
}

// WithFailureMessage overrides the message sent when a resolution fails.
func WithFailureMessage(fn FailureMessageFunc) Option {
	return func(c *Coordinator) { c.failureMessage = fn }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Status is a read-only snapshot of a tenant.
type Status struct {
	TenantID    string
	HasSession  bool
	State       playback.State
	IsPlaying   bool
	IsPaused    bool
	Volume      float64
	Current     *song.Request
	Elapsed     time.Duration
	QueueLength int
	Pending     int
}

// Coordinator owns the tenant registry.
type Coordinator struct {
	transport      playback.Transport
	store          Store
	notifier       Notifier
	pinner         Pinner
	failureMessage FailureMessageFunc
	config         Config
	now            func() time.Time

	// ctx bounds work done on executors; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tenants map[string]*tenant
	closed  bool
}

// New creates a coordinator playing through transport.
func New(transport playback.Transport, cfg Config, opts ...Option) *Coordinator {
	if cfg.Messages == (Messages{}) {
		cfg.Messages = DefaultMessages()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		transport: transport,
		config:    cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		tenants:   make(map[string]*tenant),
	}
	c.failureMessage = c.defaultFailureMessage
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tenant returns the registry entry for id, creating it on first use.
func (c *Coordinator) tenant(id string) (*tenant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	t, ok := c.tenants[id]
	if !ok {
		t = newTenant(c.ctx, id)
		c.tenants[id] = t
	}
	return t, nil
}

// lookup returns the registry entry for id without creating one.
func (c *Coordinator) lookup(id string) (*tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	t, ok := c.tenants[id]
	return t, ok
}

// run executes fn on the executor of tenantID and waits for it. A tenant
// retired while fn was being posted is recreated.
func (c *Coordinator) run(ctx context.Context, tenantID string, fn func(t *tenant)) error {
	for {
		t, err := c.tenant(tenantID)
		if err != nil {
			return err
		}
		err = t.exec.do(ctx, func() {
			fn(t)
			c.retireIfIdle(t)
		})
		if !errors.Is(err, ErrClosed) {
			return err
		}
	}
}

// view executes the read-only fn on the executor of an existing tenant.
// Reports false when the tenant is unknown.
func (c *Coordinator) view(ctx context.Context, tenantID string, fn func(t *tenant)) bool {
	t, ok := c.lookup(tenantID)
	if !ok {
		return false
	}
	return t.exec.do(ctx, func() { fn(t) }) == nil
}

// retireIfIdle removes an idle tenant from the registry and stops its
// executor. Runs on the tenant executor.
func (c *Coordinator) retireIfIdle(t *tenant) {
	if !t.idle() {
		return
	}
	// Without a store the statistics live only here.
	if c.store == nil && t.guild != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tenants[t.id] != t || !t.exec.retire() {
		return
	}
	delete(c.tenants, t.id)
	t.epochCancel()
	zlog.Debug().Msgf("queue: tenant retired: tenant=%s", t.id)
}

// EnqueueResolved appends req to the tenant queue, creating an idle session
// if none exists. It returns false only when the queue could not be
// persisted; the song is not queued in that case. Playback is not started.
func (c *Coordinator) EnqueueResolved(ctx context.Context, tenantID string, req song.Request) bool {
	var ok bool
	if err := c.run(ctx, tenantID, func(t *tenant) {
		ok = c.enqueue(t, req)
	}); err != nil {
		zlog.Warn().Msgf("queue: enqueue aborted: tenant=%s err=%v", tenantID, err)
		return false
	}
	return ok
}

// EnqueueOrdered submits an unsettled resolution. Results are appended in
// submission order regardless of which resolution settles first. Playback
// starts automatically when the session is idle. It never blocks.
func (c *Coordinator) EnqueueOrdered(tenantID string, p *Pending) {
	for {
		t, err := c.tenant(tenantID)
		if err != nil {
			zlog.Warn().Msgf("queue: submission rejected: tenant=%s err=%v", tenantID, err)
			p.release()
			return
		}
		if t.exec.post(func() { c.submit(t, p) }) {
			return
		}
	}
}

// PlayNext starts the head of the queue. With an empty queue the session is
// cleaned up; without a session it does nothing. Reports whether a song
// started.
func (c *Coordinator) PlayNext(ctx context.Context, tenantID string) bool {
	var started bool
	_ = c.run(ctx, tenantID, func(t *tenant) {
		started = c.playNext(t)
	})
	return started
}

// Skip stops the current song and plays the next one. With an empty queue
// the session terminates. Reports false when nothing was playing.
func (c *Coordinator) Skip(ctx context.Context, tenantID string) bool {
	var skipped bool
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		stopped := t.session.StopTrack()
		if stopped == nil {
			return
		}
		skipped = true
		c.unpin(stopped)
		zlog.Info().Msgf("queue: skipped: tenant=%s title=%s", t.id, stopped.Title)
		c.advance(t)
	})
	return skipped
}

// Pause pauses the current song. Reports false when nothing is playing.
func (c *Coordinator) Pause(ctx context.Context, tenantID string) bool {
	var ok bool
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		if err := t.session.Pause(); err != nil {
			zlog.Debug().Msgf("queue: pause rejected: tenant=%s err=%v", t.id, err)
			return
		}
		ok = true
	})
	return ok
}

// Resume resumes a paused song. Reports false when nothing is paused.
func (c *Coordinator) Resume(ctx context.Context, tenantID string) bool {
	var ok bool
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		if err := t.session.Resume(); err != nil {
			zlog.Debug().Msgf("queue: resume rejected: tenant=%s err=%v", t.id, err)
			return
		}
		ok = true
	})
	return ok
}

// TogglePause pauses a playing song or resumes a paused one and returns the
// resulting state.
func (c *Coordinator) TogglePause(ctx context.Context, tenantID string) (playback.State, bool) {
	var (
		state playback.State
		ok    bool
	)
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		var err error
		switch t.session.State() {
		case playback.StatePlaying:
			err = t.session.Pause()
		case playback.StatePaused:
			err = t.session.Resume()
		default:
			return
		}
		if err != nil {
			zlog.Warn().Msgf("queue: toggle pause failed: tenant=%s err=%v", t.id, err)
			return
		}
		state = t.session.State()
		ok = true
	})
	return state, ok
}

// SetVolume clamps fraction to [0, 1] and applies it to the session. Reports
// false when the tenant has no session.
func (c *Coordinator) SetVolume(ctx context.Context, tenantID string, fraction float64) (float64, bool) {
	applied := playback.ClampVolume(fraction)
	var ok bool
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		applied = t.session.SetVolume(fraction)
		ok = true
	})
	return applied, ok
}

// AdjustVolume changes the session volume by delta.
func (c *Coordinator) AdjustVolume(ctx context.Context, tenantID string, delta float64) (float64, bool) {
	var (
		applied float64
		ok      bool
	)
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		applied = t.session.SetVolume(t.session.Volume() + delta)
		ok = true
	})
	return applied, ok
}

// Cleanup stops playback, discards the queue and pending resolutions,
// releases the connection and removes the session. Without a session it
// does nothing.
func (c *Coordinator) Cleanup(ctx context.Context, tenantID string) {
	_ = c.run(ctx, tenantID, func(t *tenant) {
		c.cleanup(t)
	})
}

// Stop cleans up the session and tells the tenant. Reports false when there
// was no session.
func (c *Coordinator) Stop(ctx context.Context, tenantID string) bool {
	var stopped bool
	_ = c.run(ctx, tenantID, func(t *tenant) {
		if t.session == nil {
			return
		}
		c.cleanup(t)
		c.notify(t.id, c.config.Messages.Stopped)
		stopped = true
	})
	return stopped
}

// Status returns a snapshot of the tenant. It never mutates state; an
// unknown tenant gets the zero snapshot.
func (c *Coordinator) Status(ctx context.Context, tenantID string) Status {
	st := Status{TenantID: tenantID, State: playback.StateDestroyed, Volume: c.config.DefaultVolume}
	c.view(ctx, tenantID, func(t *tenant) {
		st = c.status(t)
	})
	return st
}

// Queue returns a copy of the waiting songs.
func (c *Coordinator) Queue(ctx context.Context, tenantID string) []song.Request {
	var q []song.Request
	c.view(ctx, tenantID, func(t *tenant) {
		q = append([]song.Request(nil), t.queue...)
	})
	return q
}

// Stats returns the request and playback statistics of the tenant. Retired
// tenants are read straight from the store.
func (c *Coordinator) Stats(ctx context.Context, tenantID string) stats.Guild {
	var g stats.Guild
	if !c.view(ctx, tenantID, func(t *tenant) {
		g = c.loadStats(t).Clone()
	}) {
		g = c.readStats(tenantID).Clone()
	}
	return g
}

// Tenants returns the snapshots of every tenant with a session, by id.
func (c *Coordinator) Tenants(ctx context.Context) []Status {
	c.mu.Lock()
	ids := make([]string, 0, len(c.tenants))
	for id := range c.tenants {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	var result []Status
	for _, id := range ids {
		if st := c.Status(ctx, id); st.HasSession {
			result = append(result, st)
		}
	}
	return result
}

// Close releases every connection, keeping persisted queues for a later
// Restore, and stops all executors.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	tenants := make([]*tenant, 0, len(c.tenants))
	for _, t := range c.tenants {
		tenants = append(tenants, t)
	}
	c.mu.Unlock()

	for _, t := range tenants {
		t.exec.post(func() {
			t.nextEpoch(c.ctx)
			c.dropPending(t)
			if t.session != nil {
				if last := t.session.Destroy(); last != nil {
					c.unpin(last)
				}
				t.session = nil
			}
		})
		t.exec.close()
	}
	c.cancel()
	zlog.Info().Msgf("queue: coordinator closed: tenants=%d", len(tenants))
}

// --- executor-side operations; each must run on the tenant executor ---

// ensureSession returns the live session, creating an idle one if needed.
func (c *Coordinator) ensureSession(t *tenant) *playback.Session {
	if t.session == nil || t.session.State() == playback.StateDestroyed {
		t.session = playback.NewSession(t.id, c.config.DefaultVolume)
		zlog.Info().Msgf("queue: session created: tenant=%s", t.id)
	}
	return t.session
}

func (c *Coordinator) enqueue(t *tenant, req song.Request) bool {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = c.now()
	}
	req.QueuePosition = len(t.queue) + 1

	next := make([]song.Request, len(t.queue), len(t.queue)+1)
	copy(next, t.queue)
	next = append(next, req)

	if err := c.saveQueue(t.id, next); err != nil {
		zlog.Error().Msgf("queue: failed to persist queue, song not added: tenant=%s title=%s err=%v", t.id, req.Title, err)
		return false
	}

	c.ensureSession(t)
	t.queue = next

	g := c.loadStats(t)
	g.RecordRequest(req.RequestedBy, c.now())
	c.saveStats(t.id, g)

	zlog.Info().Msgf("queue: added: tenant=%s title=%s position=%d", t.id, req.Title, req.QueuePosition)
	return true
}

func (c *Coordinator) playNext(t *tenant) bool {
	if t.session == nil {
		return false
	}

	if stopped := t.session.StopTrack(); stopped != nil {
		c.unpin(stopped)
	}

	if len(t.queue) == 0 {
		zlog.Info().Msgf("queue: queue finished: tenant=%s", t.id)
		c.cleanup(t)
		return false
	}

	if !t.session.Connected() {
		conn, err := c.transport.Connect(c.ctx, t.id, c.eventHandler(t, t.epoch))
		if err != nil {
			zlog.Error().Msgf("queue: failed to connect transport: tenant=%s err=%v", t.id, err)
			c.notify(t.id, c.config.Messages.PlaybackError)
			c.cleanup(t)
			return false
		}
		t.session.Attach(conn)
	}

	head := t.queue[0]
	t.queue = t.queue[1:]

	c.pin(&head)
	if err := t.session.Start(head); err != nil {
		c.unpin(&head)
		zlog.Error().Msgf("queue: failed to play: tenant=%s title=%s err=%v", t.id, head.Title, err)
		c.notify(t.id, c.config.Messages.PlaybackError)
		c.cleanup(t)
		return false
	}

	if err := c.saveQueue(t.id, t.queue); err != nil {
		zlog.Warn().Msgf("queue: failed to persist queue: tenant=%s err=%v", t.id, err)
	}
	c.saveCurrent(t.id, head)

	zlog.Info().Msgf("queue: now playing: tenant=%s title=%s remaining=%d", t.id, head.Title, len(t.queue))
	c.notify(t.id, formatMessage(c.config.Messages.NowPlaying, head.Title))
	return true
}

// advance continues after the current song stopped or ended.
func (c *Coordinator) advance(t *tenant) {
	if len(t.queue) > 0 {
		c.playNext(t)
		return
	}
	if len(t.pending) > 0 || t.waiting {
		// A resolution is still outstanding; the drainer starts it.
		t.session.MarkResolving()
		c.deleteKey("current." + t.id)
		return
	}
	zlog.Info().Msgf("queue: queue finished: tenant=%s", t.id)
	c.cleanup(t)
}

func (c *Coordinator) cleanup(t *tenant) {
	if t.session == nil {
		return
	}

	t.nextEpoch(c.ctx)
	if last := t.session.Destroy(); last != nil {
		c.unpin(last)
	}
	t.session = nil
	t.queue = nil
	c.dropPending(t)

	c.deleteKey("queues." + t.id)
	c.deleteKey("current." + t.id)

	zlog.Info().Msgf("queue: session cleaned up: tenant=%s", t.id)
}

func (c *Coordinator) status(t *tenant) Status {
	st := Status{
		TenantID:    t.id,
		State:       playback.StateDestroyed,
		Volume:      c.config.DefaultVolume,
		QueueLength: len(t.queue),
		Pending:     len(t.pending),
	}
	if t.waiting {
		st.Pending++
	}
	if t.session == nil {
		return st
	}
	snap := t.session.Snapshot()
	st.HasSession = true
	st.State = snap.State
	st.IsPlaying = snap.State == playback.StatePlaying
	st.IsPaused = snap.State == playback.StatePaused
	st.Volume = snap.Volume
	st.Current = snap.Current
	st.Elapsed = snap.Elapsed
	return st
}

// eventHandler returns the transport callback for a connection opened in
// epoch. Events are posted to the tenant executor without blocking.
func (c *Coordinator) eventHandler(t *tenant, epoch uint64) playback.EventHandler {
	return func(ev playback.Event) {
		t.exec.post(func() {
			c.handleEvent(t, epoch, ev)
			c.retireIfIdle(t)
		})
	}
}

func (c *Coordinator) handleEvent(t *tenant, epoch uint64, ev playback.Event) {
	if epoch != t.epoch || t.session == nil || !t.session.Accepts(ev) {
		zlog.Debug().Msgf("queue: ignoring stale event: tenant=%s event=%s track=%d", t.id, ev.Type, ev.TrackID)
		return
	}

	switch ev.Type {
	case playback.EventTrackEnded:
		ended := t.session.Finish()
		c.unpin(ended)
		g := c.loadStats(t)
		g.RecordPlayed(c.now())
		c.saveStats(t.id, g)
		zlog.Info().Msgf("queue: track ended: tenant=%s title=%s", t.id, ended.Title)
		c.advance(t)

	case playback.EventError:
		zlog.Error().Msgf("queue: playback error: tenant=%s err=%v", t.id, ev.Err)
		c.notify(t.id, c.config.Messages.PlaybackError)
		c.cleanup(t)
	}
}

func (c *Coordinator) notify(tenantID, message string) {
	if c.notifier == nil || message == "" {
		return
	}
	c.notifier.Notify(tenantID, message)
}

func (c *Coordinator) pin(req *song.Request) {
	if c.pinner != nil && req != nil {
		c.pinner.Pin(req.FilePath)
	}
}

func (c *Coordinator) unpin(req *song.Request) {
	if c.pinner != nil && req != nil {
		c.pinner.Unpin(req.FilePath)
	}
}

func (c *Coordinator) defaultFailureMessage(p *Pending, err error) string {
	return c.config.Messages.DefaultError
}

// formatMessage substitutes title into msg when it has a placeholder.
func formatMessage(msg, title string) string {
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, title)
	}
	return msg
}
