package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/infra/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeTransport records connections; tests drive track ends by hand.
type fakeTransport struct {
	mu         sync.Mutex
	conns      []*fakeConn
	connectErr error
}

func (f *fakeTransport) Connect(_ context.Context, tenantID string, h playback.EventHandler) (playback.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	c := &fakeConn{tenantID: tenantID, handler: h}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeTransport) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeConn struct {
	mu        sync.Mutex
	tenantID  string
	handler   playback.EventHandler
	nextID    uint64
	current   uint64
	played    []string
	paused    bool
	volume    float64
	stops     int
	destroyed int
}

func (c *fakeConn) Play(item playback.Item, volume float64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.current = c.nextID
	c.played = append(c.played, item.Title)
	c.volume = volume
	return c.current, nil
}

func (c *fakeConn) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *fakeConn) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *fakeConn) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
	return nil
}

func (c *fakeConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.current = 0
	return nil
}

func (c *fakeConn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
	return nil
}

func (c *fakeConn) emit(typ playback.EventType, id uint64, err error) {
	c.handler(playback.Event{Type: typ, TrackID: id, Err: err})
}

// endCurrent reports the end of the current track.
func (c *fakeConn) endCurrent() {
	c.mu.Lock()
	id := c.current
	c.mu.Unlock()
	c.emit(playback.EventTrackEnded, id, nil)
}

func (c *fakeConn) playedTitles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.played...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(tenantID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, tenantID+": "+message)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakePinner struct {
	mu   sync.Mutex
	pins map[string]int
}

func (p *fakePinner) Pin(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins[path]++
}

func (p *fakePinner) Unpin(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins[path]--
}

func (p *fakePinner) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[path]
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (any, error)     { return nil, nil }
func (failingStore) Set(context.Context, string, any) error       { return errors.New("disk full") }
func (failingStore) Delete(context.Context, string) error         { return nil }
func (failingStore) Keys(context.Context, string) ([]string, error) { return nil, nil }

func newTestCoordinator(t *testing.T, cfg Config, opts ...Option) (*Coordinator, *fakeTransport, *fakeNotifier) {
	t.Helper()
	tr := &fakeTransport{}
	n := &fakeNotifier{}
	if cfg.DefaultVolume == 0 {
		cfg.DefaultVolume = 1
	}
	opts = append([]Option{WithNotifier(n)}, opts...)
	c := New(tr, cfg, opts...)
	t.Cleanup(c.Close)
	return c, tr, n
}

func titles(reqs []song.Request) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Title)
	}
	return out
}

func currentTitle(c *Coordinator, tenantID string) string {
	st := c.Status(context.Background(), tenantID)
	if st.Current == nil {
		return ""
	}
	return st.Current.Title
}

func TestCoordinator_OrderPreservation(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	p1 := NewPending("r1", "alice")
	p2 := NewPending("r2", "bob")
	p3 := NewPending("r3", "carol")
	c.EnqueueOrdered("T", p1)
	c.EnqueueOrdered("T", p2)
	c.EnqueueOrdered("T", p3)

	// R2 settles fastest, R3 second, R1 last.
	p2.Settle(&song.Request{Title: "R2"}, nil)
	time.Sleep(20 * time.Millisecond)
	p3.Settle(&song.Request{Title: "R3"}, nil)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, c.Queue(ctx, "T"))
	assert.Equal(t, playback.StateResolving, c.Status(ctx, "T").State)

	p1.Settle(&song.Request{Title: "R1"}, nil)

	require.Eventually(t, func() bool {
		return len(c.Queue(ctx, "T")) == 2
	}, waitFor, tick)
	assert.Equal(t, "R1", currentTitle(c, "T"))
	assert.Equal(t, []string{"R2", "R3"}, titles(c.Queue(ctx, "T")))

	conn := tr.last()
	conn.endCurrent()
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "R2" }, waitFor, tick)
	conn.endCurrent()
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "R3" }, waitFor, tick)
	assert.Equal(t, []string{"R1", "R2", "R3"}, conn.playedTitles())
}

func TestCoordinator_AtMostOneSession(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.EnqueueResolved(ctx, "T", song.Request{Title: fmt.Sprintf("song-%d", i)})
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}

	statuses := c.Tenants(ctx)
	require.Len(t, statuses, 1)
	assert.Equal(t, playback.StateIdle, statuses[0].State)
	assert.Equal(t, callers, statuses[0].QueueLength)

	seen := make(map[string]bool)
	for _, r := range c.Queue(ctx, "T") {
		assert.False(t, seen[r.Title], "duplicate %s", r.Title)
		seen[r.Title] = true
		assert.NotEmpty(t, r.ID)
	}
	assert.Len(t, seen, callers)

	// Enqueue alone never connects.
	assert.Equal(t, 0, tr.connCount())
	assert.True(t, c.PlayNext(ctx, "T"))
	assert.Equal(t, 1, tr.connCount())
}

func TestCoordinator_G1Scenario(t *testing.T) {
	c, tr, n := newTestCoordinator(t, Config{})
	ctx := context.Background()

	require.True(t, c.EnqueueResolved(ctx, "G1", song.Request{Title: "songA", FilePath: "/tmp/a.mp3"}))
	require.True(t, c.PlayNext(ctx, "G1"))

	st := c.Status(ctx, "G1")
	assert.True(t, st.HasSession)
	assert.Equal(t, playback.StatePlaying, st.State)
	assert.True(t, st.IsPlaying)
	require.NotNil(t, st.Current)
	assert.Equal(t, "songA", st.Current.Title)
	assert.Equal(t, 0, st.QueueLength)
	assert.Contains(t, n.all(), "G1: 🎵 Now playing: **songA**")

	require.True(t, c.Skip(ctx, "G1"))

	st = c.Status(ctx, "G1")
	assert.False(t, st.HasSession)
	assert.Equal(t, playback.StateDestroyed, st.State)
	assert.Equal(t, 1, tr.last().destroyed)

	// Nothing to skip any more.
	assert.False(t, c.Skip(ctx, "G1"))
}

func TestCoordinator_PlayNextWithoutSession(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})

	assert.False(t, c.PlayNext(context.Background(), "nobody"))
	assert.Equal(t, 0, tr.connCount())
	assert.Empty(t, c.Tenants(context.Background()))
}

func TestCoordinator_CleanupIdempotent(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	// No session: no-op.
	c.Cleanup(ctx, "T")
	assert.False(t, c.Status(ctx, "T").HasSession)

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A"}))
	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "B"}))
	require.True(t, c.PlayNext(ctx, "T"))

	c.Cleanup(ctx, "T")
	c.Cleanup(ctx, "T")

	st := c.Status(ctx, "T")
	assert.False(t, st.HasSession)
	assert.Equal(t, 0, st.QueueLength)
	assert.Equal(t, 1, tr.last().destroyed)
}

func TestCoordinator_TrackEndAdvancesThenDestroys(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A", RequestedBy: "alice"}))
	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "B", RequestedBy: "bob"}))
	require.True(t, c.PlayNext(ctx, "T"))

	conn := tr.last()
	conn.endCurrent()
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "B" }, waitFor, tick)

	conn.endCurrent()
	require.Eventually(t, func() bool { return !c.Status(ctx, "T").HasSession }, waitFor, tick)

	g := c.Stats(ctx, "T")
	assert.Equal(t, 2, g.TotalRequests)
	assert.Equal(t, 2, g.TotalSongsPlayed)
	assert.Equal(t, 1, g.TopRequesters["alice"])
}

func TestCoordinator_StaleEventIgnored(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A"}))
	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "B"}))
	require.True(t, c.PlayNext(ctx, "T"))

	conn := tr.last()
	conn.mu.Lock()
	stale := conn.current
	conn.mu.Unlock()

	require.True(t, c.Skip(ctx, "T"))
	assert.Equal(t, "B", currentTitle(c, "T"))

	// The end of the skipped track must not advance B.
	conn.emit(playback.EventTrackEnded, stale, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "B", currentTitle(c, "T"))
}

func TestCoordinator_PlaybackErrorCleansUp(t *testing.T) {
	c, tr, n := newTestCoordinator(t, Config{})
	ctx := context.Background()

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A"}))
	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "B"}))
	require.True(t, c.PlayNext(ctx, "T"))

	conn := tr.last()
	conn.mu.Lock()
	id := conn.current
	conn.mu.Unlock()
	conn.emit(playback.EventError, id, errors.New("decoder crashed"))

	require.Eventually(t, func() bool { return !c.Status(ctx, "T").HasSession }, waitFor, tick)
	assert.Contains(t, n.all(), "T: An error occurred while playing music.")
	assert.Empty(t, c.Queue(ctx, "T"))
}

func TestCoordinator_ConnectFailureCleansUp(t *testing.T) {
	c, tr, n := newTestCoordinator(t, Config{})
	tr.connectErr = errors.New("no audio device")
	ctx := context.Background()

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A"}))
	assert.False(t, c.PlayNext(ctx, "T"))

	assert.False(t, c.Status(ctx, "T").HasSession)
	assert.Contains(t, n.all(), "T: An error occurred while playing music.")
}

func TestCoordinator_StaleResolutionAfterCleanup(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	p := NewPending("late", "alice")
	c.EnqueueOrdered("T", p)
	require.Eventually(t, func() bool { return c.Status(ctx, "T").HasSession }, waitFor, tick)

	c.Cleanup(ctx, "T")
	p.Settle(&song.Request{Title: "Late"}, nil)

	time.Sleep(50 * time.Millisecond)
	st := c.Status(ctx, "T")
	assert.False(t, st.HasSession)
	assert.Equal(t, 0, st.QueueLength)
	assert.Equal(t, 0, tr.connCount())

	// A new request after the cleanup starts a fresh session.
	c.EnqueueOrdered("T", Settled(song.Request{Title: "Fresh"}))
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "Fresh" }, waitFor, tick)
}

func TestCoordinator_StopAbandonsUnsettledResolution(t *testing.T) {
	for _, timeout := range []time.Duration{0, time.Hour} {
		t.Run(timeout.String(), func(t *testing.T) {
			c, tr, _ := newTestCoordinator(t, Config{ResolveTimeout: timeout})
			ctx := context.Background()

			hung := NewPending("hung", "alice")
			c.EnqueueOrdered("T", hung)
			require.Eventually(t, func() bool { return c.Status(ctx, "T").Pending == 1 }, waitFor, tick)

			assert.True(t, c.Stop(ctx, "T"))
			c.EnqueueOrdered("T", Settled(song.Request{Title: "Fresh"}))

			require.Eventually(t, func() bool { return currentTitle(c, "T") == "Fresh" }, waitFor, tick)
			assert.Equal(t, []string{"Fresh"}, tr.last().playedTitles())

			// Settling the abandoned resolution later changes nothing.
			hung.Settle(&song.Request{Title: "Hung"}, nil)
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, 0, c.Status(ctx, "T").QueueLength)
		})
	}
}

func TestCoordinator_PendingHandled(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	queued := Settled(song.Request{Title: "A"})
	failed := NewPending("broken", "alice")
	failed.Settle(nil, errors.New("not found"))
	c.EnqueueOrdered("T", queued)
	c.EnqueueOrdered("T", failed)

	for _, p := range []*Pending{queued, failed} {
		select {
		case <-p.Handled():
		case <-time.After(waitFor):
			t.Fatalf("%s was never handled", p.Label)
		}
	}

	// Resolutions dropped by a stop are handled too.
	waiting := NewPending("waiting", "bob")
	behind := NewPending("behind", "bob")
	c.EnqueueOrdered("T", waiting)
	c.EnqueueOrdered("T", behind)
	require.Eventually(t, func() bool { return c.Status(ctx, "T").Pending == 2 }, waitFor, tick)
	require.True(t, c.Stop(ctx, "T"))

	for _, p := range []*Pending{waiting, behind} {
		select {
		case <-p.Handled():
		case <-time.After(waitFor):
			t.Fatalf("%s was never handled", p.Label)
		}
	}
}

func TestCoordinator_FailedResolutionSkipped(t *testing.T) {
	var failures []string
	var mu sync.Mutex
	c, _, n := newTestCoordinator(t, Config{}, WithFailureMessage(func(p *Pending, err error) string {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, p.Label)
		return "could not play " + p.Label
	}))

	p1 := NewPending("broken", "alice")
	p2 := NewPending("fine", "bob")
	c.EnqueueOrdered("T", p1)
	c.EnqueueOrdered("T", p2)

	p2.Settle(&song.Request{Title: "Fine"}, nil)
	p1.Settle(nil, errors.New("download failed"))

	require.Eventually(t, func() bool { return currentTitle(c, "T") == "Fine" }, waitFor, tick)
	assert.Contains(t, n.all(), "T: could not play broken")
	mu.Lock()
	assert.Equal(t, []string{"broken"}, failures)
	mu.Unlock()
}

func TestCoordinator_OnlyFailuresLeaveNoSession(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	p := NewPending("broken", "alice")
	c.EnqueueOrdered("T", p)
	p.Settle(nil, errors.New("not found"))

	require.Eventually(t, func() bool { return !c.Status(ctx, "T").HasSession }, waitFor, tick)
	assert.Equal(t, 0, tr.connCount())
}

func TestCoordinator_ResolveTimeout(t *testing.T) {
	c, _, n := newTestCoordinator(t, Config{ResolveTimeout: 30 * time.Millisecond})

	hung := NewPending("hung", "alice")
	c.EnqueueOrdered("T", hung)
	c.EnqueueOrdered("T", Settled(song.Request{Title: "After"}))

	require.Eventually(t, func() bool { return currentTitle(c, "T") == "After" }, waitFor, tick)
	assert.Contains(t, n.all(), "T: ❌ Could not add the song.")
}

func TestCoordinator_TrackEndWaitsForOutstandingResolution(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	c.EnqueueOrdered("T", Settled(song.Request{Title: "A"}))
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "A" }, waitFor, tick)

	p := NewPending("b", "bob")
	c.EnqueueOrdered("T", p)
	require.Eventually(t, func() bool { return c.Status(ctx, "T").Pending == 1 }, waitFor, tick)

	tr.last().endCurrent()
	require.Eventually(t, func() bool {
		return c.Status(ctx, "T").State == playback.StateResolving
	}, waitFor, tick)

	p.Settle(&song.Request{Title: "B"}, nil)
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "B" }, waitFor, tick)
	assert.Equal(t, 1, tr.connCount())
}

func TestCoordinator_PauseResumeVolume(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, Config{DefaultVolume: 0.5})
	ctx := context.Background()

	assert.False(t, c.Pause(ctx, "T"))
	_, ok := c.SetVolume(ctx, "T", 0.2)
	assert.False(t, ok)

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A"}))
	require.True(t, c.PlayNext(ctx, "T"))
	conn := tr.last()
	assert.Equal(t, 0.5, conn.volume)

	assert.False(t, c.Resume(ctx, "T"))
	assert.True(t, c.Pause(ctx, "T"))
	assert.True(t, c.Status(ctx, "T").IsPaused)
	assert.False(t, c.Pause(ctx, "T"))
	assert.True(t, c.Resume(ctx, "T"))

	state, ok := c.TogglePause(ctx, "T")
	require.True(t, ok)
	assert.Equal(t, playback.StatePaused, state)
	state, ok = c.TogglePause(ctx, "T")
	require.True(t, ok)
	assert.Equal(t, playback.StatePlaying, state)

	v, ok := c.SetVolume(ctx, "T", 1.5)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1.0, conn.volume)

	v, ok = c.AdjustVolume(ctx, "T", -0.25)
	require.True(t, ok)
	assert.Equal(t, 0.75, v)
	assert.Equal(t, 0.75, c.Status(ctx, "T").Volume)
}

func TestCoordinator_PersistenceFailureRejectsEnqueue(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{}, WithStore(failingStore{}))
	ctx := context.Background()

	assert.False(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A"}))
	st := c.Status(ctx, "T")
	assert.False(t, st.HasSession)
	assert.Equal(t, 0, st.QueueLength)
}

func TestCoordinator_PinsPlayingFile(t *testing.T) {
	pinner := &fakePinner{pins: make(map[string]int)}
	c, tr, _ := newTestCoordinator(t, Config{}, WithPinner(pinner))
	ctx := context.Background()

	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "A", FilePath: "/a.mp3"}))
	require.True(t, c.EnqueueResolved(ctx, "T", song.Request{Title: "B", FilePath: "/b.mp3"}))
	require.True(t, c.PlayNext(ctx, "T"))
	assert.Equal(t, 1, pinner.count("/a.mp3"))

	tr.last().endCurrent()
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "B" }, waitFor, tick)
	assert.Equal(t, 0, pinner.count("/a.mp3"))
	assert.Equal(t, 1, pinner.count("/b.mp3"))

	c.Stop(ctx, "T")
	assert.Equal(t, 0, pinner.count("/b.mp3"))
}

func TestCoordinator_PersistAndRestore(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(ctx, store.NewMemoryBackend())
	require.NoError(t, err)

	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.mp3")
	fileB := filepath.Join(dir, "b.mp3")
	require.NoError(t, os.WriteFile(fileA, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(fileB, []byte("b"), 0o644))

	first, _, _ := newTestCoordinator(t, Config{}, WithStore(s))
	require.True(t, first.EnqueueResolved(ctx, "T", song.Request{Title: "A", FilePath: fileA, SourceURL: "u/a"}))
	require.True(t, first.EnqueueResolved(ctx, "T", song.Request{Title: "Gone", FilePath: filepath.Join(dir, "gone.mp3")}))
	require.True(t, first.EnqueueResolved(ctx, "T", song.Request{Title: "B", FilePath: fileB}))
	require.True(t, first.PlayNext(ctx, "T"))

	cur, err := s.Get(ctx, "current.T.title")
	require.NoError(t, err)
	assert.Equal(t, "A", cur)
	persisted, err := s.Get(ctx, "queues.T")
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	// Simulate a restart.
	first.Close()

	second, _, _ := newTestCoordinator(t, Config{}, WithStore(s))
	restored := second.RestoreAll(ctx)
	assert.Equal(t, map[string]int{"T": 2}, restored)

	q := second.Queue(ctx, "T")
	assert.Equal(t, []string{"A", "B"}, titles(q))
	assert.Equal(t, "u/a", q[0].SourceURL)
	assert.Equal(t, 1, q[0].QueuePosition)
	assert.Equal(t, 2, q[1].QueuePosition)

	// Restoring an active tenant is a no-op.
	assert.Equal(t, 0, second.Restore(ctx, "T"))

	cur, err = s.Get(ctx, "current.T")
	require.NoError(t, err)
	assert.Nil(t, cur)

	g := second.Stats(ctx, "T")
	assert.Equal(t, 3, g.TotalRequests)

	second.Stop(ctx, "T")
	keys, err := s.Keys(ctx, "queues")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCoordinator_ClosedRejectsWork(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	c.Close()

	assert.False(t, c.EnqueueResolved(context.Background(), "T", song.Request{Title: "A"}))
	c.EnqueueOrdered("T", Settled(song.Request{Title: "B"}))
	assert.False(t, c.Status(context.Background(), "T").HasSession)
}

func registrySize(c *Coordinator) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tenants)
}

func TestCoordinator_ReadsDoNotRegisterTenants(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("guild-%d", i)
		st := c.Status(ctx, id)
		assert.False(t, st.HasSession)
		assert.Equal(t, playback.StateDestroyed, st.State)
		assert.Empty(t, c.Queue(ctx, id))
		assert.Zero(t, c.Stats(ctx, id).TotalRequests)
	}
	assert.Zero(t, registrySize(c))
}

func TestCoordinator_IdleTenantRetired(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(ctx, store.NewMemoryBackend())
	require.NoError(t, err)
	c, tr, _ := newTestCoordinator(t, Config{}, WithStore(s))

	assert.False(t, c.Skip(ctx, "empty"))
	assert.False(t, c.Stop(ctx, "empty"))
	assert.Zero(t, registrySize(c))

	c.EnqueueOrdered("T", Settled(song.Request{Title: "A", RequestedBy: "alice"}))
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "A" }, waitFor, tick)
	assert.Equal(t, 1, registrySize(c))

	tr.last().endCurrent()
	require.Eventually(t, func() bool { return registrySize(c) == 0 }, waitFor, tick)

	// Statistics survive retirement and the tenant comes back on demand.
	assert.Equal(t, 1, c.Stats(ctx, "T").TotalRequests)
	c.EnqueueOrdered("T", Settled(song.Request{Title: "B", RequestedBy: "bob"}))
	require.Eventually(t, func() bool { return currentTitle(c, "T") == "B" }, waitFor, tick)
	assert.Equal(t, 2, c.Stats(ctx, "T").TotalRequests)
}
