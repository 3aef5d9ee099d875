package queue

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/domain/stats"
)

// ErrResolveTimeout is reported when a resolution exceeds the configured bound.
var ErrResolveTimeout = errors.New("resolution timed out")

// tenant is the registry entry of one tenant. Fields other than id and exec
// are owned by the executor.
type tenant struct {
	id   string
	exec *executor

	session *playback.Session
	queue   []song.Request
	guild   *stats.Guild // loaded lazily from the store

	// epoch changes on cleanup; work started in an older epoch is discarded.
	// epochCtx is cancelled when the epoch ends.
	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc

	pending  []pendingItem // submitted, not yet taken by the drainer
	draining bool          // a drainer goroutine is running
	waiting  bool          // the drainer is waiting on a taken item
}

type pendingItem struct {
	p     *Pending
	epoch uint64
	ctx   context.Context
}

func newTenant(parent context.Context, id string) *tenant {
	t := &tenant{id: id, exec: newExecutor()}
	t.epochCtx, t.epochCancel = context.WithCancel(parent)
	return t
}

// nextEpoch abandons everything started in the current epoch. In-flight
// waits on its resolutions return immediately.
func (t *tenant) nextEpoch(parent context.Context) {
	t.epoch++
	t.epochCancel()
	t.epochCtx, t.epochCancel = context.WithCancel(parent)
}

// idle reports whether t holds nothing worth keeping in the registry.
func (t *tenant) idle() bool {
	return t.session == nil && len(t.queue) == 0 && len(t.pending) == 0 && !t.draining && !t.waiting
}

// submit queues p and starts the drainer if none is running.
// Runs on the tenant executor.
func (c *Coordinator) submit(t *tenant, p *Pending) {
	s := c.ensureSession(t)
	if s.State() == playback.StateIdle {
		s.MarkResolving()
	}
	t.pending = append(t.pending, pendingItem{p: p, epoch: t.epoch, ctx: t.epochCtx})

	if !t.draining {
		t.draining = true
		go c.drain(t)
	}
}

// drain waits on the pending resolutions of t strictly in submission order.
// At most one drain goroutine runs per tenant.
func (c *Coordinator) drain(t *tenant) {
	zlog.Debug().Msgf("queue: drainer started: tenant=%s", t.id)
	defer zlog.Debug().Msgf("queue: drainer finished: tenant=%s", t.id)

	for {
		var (
			item pendingItem
			ok   bool
		)
		err := t.exec.do(context.Background(), func() {
			for len(t.pending) > 0 && t.pending[0].epoch != t.epoch {
				t.pending[0].p.release()
				t.pending = t.pending[1:]
			}
			if len(t.pending) == 0 {
				t.draining = false
				c.drained(t)
				c.retireIfIdle(t)
				return
			}
			item = t.pending[0]
			t.pending = t.pending[1:]
			t.waiting = true
			ok = true
		})
		if err != nil || !ok {
			return
		}

		req, werr := c.await(item.ctx, item.p)

		err = t.exec.do(context.Background(), func() {
			t.waiting = false
			c.settle(t, item, req, werr)
		})
		if err != nil {
			item.p.release()
			return
		}
	}
}

// await waits for p, bounded by the resolve timeout when configured. It
// returns early once ctx, the epoch the item was submitted in, is cancelled.
func (c *Coordinator) await(ctx context.Context, p *Pending) (*song.Request, error) {
	if c.config.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ResolveTimeout)
		defer cancel()
	}

	req, err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Wrapf(ErrResolveTimeout, "after %v", c.config.ResolveTimeout)
	}
	return req, err
}

// settle appends a resolved song or reports a failure.
// Runs on the tenant executor.
func (c *Coordinator) settle(t *tenant, item pendingItem, req *song.Request, err error) {
	defer item.p.release()

	if item.epoch != t.epoch {
		zlog.Debug().Msgf("queue: discarding stale resolution: tenant=%s label=%s", t.id, item.p.Label)
		return
	}

	if err != nil {
		zlog.Warn().Msgf("queue: resolution failed: tenant=%s label=%s err=%v", t.id, item.p.Label, err)
		c.notify(t.id, c.failureMessage(item.p, err))
		return
	}

	if !c.enqueue(t, *req) {
		c.notify(t.id, c.config.Messages.DefaultError)
		return
	}

	if t.session.State().Active() {
		c.notify(t.id, formatMessage(c.config.Messages.Added, req.Title))
		return
	}
	c.playNext(t)
}

// dropPending discards the submitted resolutions not yet taken by the
// drainer. Runs on the tenant executor.
func (c *Coordinator) dropPending(t *tenant) {
	for _, item := range t.pending {
		item.p.release()
	}
	t.pending = nil
}

// drained runs once the pending FIFO is empty. A session left with nothing
// playing and nothing queued is cleaned up.
// Runs on the tenant executor.
func (c *Coordinator) drained(t *tenant) {
	if t.session == nil || t.session.State().Active() || len(t.queue) > 0 {
		return
	}
	zlog.Info().Msgf("queue: nothing to play after resolutions: tenant=%s", t.id)
	c.cleanup(t)
}
