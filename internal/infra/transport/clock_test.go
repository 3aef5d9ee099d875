package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/playback"
)

type recorder struct {
	mu     sync.Mutex
	events []playback.Event
}

func (r *recorder) handle(ev playback.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []playback.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]playback.Event(nil), r.events...)
}

func newClockConn(t *testing.T, rec *recorder) playback.Connection {
	t.Helper()
	c := NewClock(ClockConfig{FallbackDuration: 60 * time.Millisecond, Tick: 5 * time.Millisecond})
	conn, err := c.Connect(context.Background(), "g1", rec.handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Destroy() })
	return conn
}

func TestClock_TrackEnds(t *testing.T) {
	rec := &recorder{}
	conn := newClockConn(t, rec)

	id, err := conn.Play(playback.Item{Title: "a", Duration: 30 * time.Millisecond}, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	ev := rec.snapshot()[0]
	assert.Equal(t, playback.EventTrackEnded, ev.Type)
	assert.Equal(t, id, ev.TrackID)
}

func TestClock_FallbackDuration(t *testing.T) {
	rec := &recorder{}
	conn := newClockConn(t, rec)

	start := time.Now()
	_, err := conn.Play(playback.Item{Title: "unknown length"}, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestClock_StopEmitsNothing(t *testing.T) {
	rec := &recorder{}
	conn := newClockConn(t, rec)

	_, err := conn.Play(playback.Item{Duration: 30 * time.Millisecond}, 1)
	require.NoError(t, err)
	require.NoError(t, conn.Stop())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestClock_PlayReplacesCurrentTrack(t *testing.T) {
	rec := &recorder{}
	conn := newClockConn(t, rec)

	_, err := conn.Play(playback.Item{Duration: 20 * time.Millisecond}, 1)
	require.NoError(t, err)
	second, err := conn.Play(playback.Item{Duration: 40 * time.Millisecond}, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, second, events[0].TrackID)
}

func TestClock_PauseHoldsTrack(t *testing.T) {
	rec := &recorder{}
	conn := newClockConn(t, rec)

	_, err := conn.Play(playback.Item{Duration: 40 * time.Millisecond}, 1)
	require.NoError(t, err)
	require.NoError(t, conn.Pause())
	assert.Error(t, conn.Pause())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "paused track must not end")

	require.NoError(t, conn.Resume())
	assert.Error(t, conn.Resume())
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestClock_Destroy(t *testing.T) {
	rec := &recorder{}
	conn := newClockConn(t, rec)

	_, err := conn.Play(playback.Item{Duration: 20 * time.Millisecond}, 1)
	require.NoError(t, err)
	require.NoError(t, conn.Destroy())
	require.NoError(t, conn.Destroy())

	_, err = conn.Play(playback.Item{Duration: 20 * time.Millisecond}, 1)
	assert.ErrorIs(t, err, ErrDestroyed)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestNew(t *testing.T) {
	tr, err := New(Config{Type: "clock"})
	require.NoError(t, err)
	assert.IsType(t, &Clock{}, tr)

	tr, err = New(Config{Type: "exec"})
	require.NoError(t, err)
	assert.IsType(t, &Exec{}, tr)

	_, err = New(Config{Type: "discord"})
	assert.Error(t, err)
}
