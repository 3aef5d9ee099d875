package transport

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

// DefaultPlayerCommand plays a file once through ffplay without a window.
// {file} is replaced by the path and {volume} by the volume in percent.
var DefaultPlayerCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", "{volume}", "{file}"}

// Exec plays each track by running an external player process. The process
// exiting ends the track.
type Exec struct {
	command []string
}

// NewExec creates an exec transport. An empty command uses
// DefaultPlayerCommand.
func NewExec(command []string) *Exec {
	if len(command) == 0 {
		command = DefaultPlayerCommand
	}
	return &Exec{command: command}
}

// Connect opens a connection for tenantID.
func (e *Exec) Connect(ctx context.Context, tenantID string, h playback.EventHandler) (playback.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(e.command[0]); err != nil {
		return nil, errors.Wrapf(err, "player not found: %s", e.command[0])
	}
	return &execConn{command: e.command, tenantID: tenantID, handler: h}, nil
}

// track is one running player process.
type track struct {
	id      uint64
	cmd     *exec.Cmd
	stopped bool // set before the process is killed on purpose
}

type execConn struct {
	command  []string
	tenantID string
	handler  playback.EventHandler

	mu        sync.Mutex
	trackID   uint64
	current   *track
	paused    bool
	destroyed bool
}

// expand substitutes the placeholders of the command template.
func expand(template []string, file string, volume float64) []string {
	percent := strconv.Itoa(int(volume*100 + 0.5))
	args := make([]string, len(template))
	for i, a := range template {
		a = strings.ReplaceAll(a, "{file}", file)
		a = strings.ReplaceAll(a, "{volume}", percent)
		args[i] = a
	}
	return args
}

func (c *execConn) Play(item playback.Item, volume float64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return 0, ErrDestroyed
	}
	c.killLocked()

	args := expand(c.command, item.FilePath, volume)
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return 0, errors.Wrapf(err, "failed to start player: %s", args[0])
	}

	c.trackID++
	t := &track{id: c.trackID, cmd: cmd}
	c.current = t
	c.paused = false

	go c.wait(t)

	zlog.Debug().Msgf("transport: exec play: tenant=%s track=%d pid=%d title=%s", c.tenantID, t.id, cmd.Process.Pid, item.Title)
	return t.id, nil
}

// wait reports how the player process of t ended.
func (c *execConn) wait(t *track) {
	err := t.cmd.Wait()

	c.mu.Lock()
	stopped := t.stopped || c.destroyed
	if c.current == t {
		c.current = nil
		c.paused = false
	}
	c.mu.Unlock()

	if stopped {
		return
	}
	if err != nil {
		zlog.Warn().Msgf("transport: player failed: tenant=%s track=%d err=%v", c.tenantID, t.id, err)
		c.handler(playback.Event{Type: playback.EventError, TrackID: t.id, Err: err})
		return
	}
	c.handler(playback.Event{Type: playback.EventTrackEnded, TrackID: t.id})
}

func (c *execConn) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if c.current == nil || c.paused {
		return errors.New("not playing")
	}
	if err := suspend(c.current.cmd.Process); err != nil {
		return err
	}
	c.paused = true
	return nil
}

func (c *execConn) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if c.current == nil || !c.paused {
		return errors.New("not paused")
	}
	if err := resume(c.current.cmd.Process); err != nil {
		return err
	}
	c.paused = false
	return nil
}

// SetVolume is accepted but only takes effect from the next track; the
// player has no control channel.
func (c *execConn) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	return nil
}

func (c *execConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killLocked()
	return nil
}

func (c *execConn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killLocked()
	c.destroyed = true
	return nil
}

// killLocked stops the running player, if any, without emitting events.
func (c *execConn) killLocked() {
	t := c.current
	if t == nil {
		return
	}
	t.stopped = true
	c.current = nil
	c.paused = false
	if err := t.cmd.Process.Kill(); err != nil {
		zlog.Debug().Msgf("transport: kill player: tenant=%s track=%d err=%v", c.tenantID, t.id, err)
	}
}
