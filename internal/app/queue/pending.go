package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/domain/song"
)

// ErrNoResult is returned when a resolution settles without a song or an error.
var ErrNoResult = errors.New("resolution produced no song")

// ResolveFunc turns a request into a playable song.
type ResolveFunc func(ctx context.Context) (*song.Request, error)

// Pending is an in-flight resolution. It settles exactly once.
type Pending struct {
	Label       string // Query or title, for logs and messages
	RequestedBy string

	once sync.Once
	done chan struct{}
	req  *song.Request
	err  error

	handledOnce sync.Once
	handled     chan struct{}
}

// NewPending creates an unsettled resolution.
func NewPending(label, requestedBy string) *Pending {
	return &Pending{
		Label:       label,
		RequestedBy: requestedBy,
		done:        make(chan struct{}),
		handled:     make(chan struct{}),
	}
}

// Resolve starts fn immediately in its own goroutine and returns its future.
func Resolve(ctx context.Context, label, requestedBy string, fn ResolveFunc) *Pending {
	p := NewPending(label, requestedBy)
	go func() {
		req, err := fn(ctx)
		p.Settle(req, err)
	}()
	return p
}

// Settled returns a resolution that already produced req.
func Settled(req song.Request) *Pending {
	p := NewPending(req.Title, req.RequestedBy)
	p.Settle(&req, nil)
	return p
}

// Settle records the outcome. Only the first call has an effect.
func (p *Pending) Settle(req *song.Request, err error) {
	p.once.Do(func() {
		if err == nil && req == nil {
			err = ErrNoResult
		}
		if err != nil {
			req = nil
		}
		p.req = req
		p.err = err
		close(p.done)
	})
}

// Done is closed once the resolution settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the resolution settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*song.Request, error) {
	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		r := *p.req
		return &r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handled is closed once the coordinator is finished with the resolution:
// its song was queued, it failed, or it was discarded.
func (p *Pending) Handled() <-chan struct{} {
	return p.handled
}

func (p *Pending) release() {
	p.handledOnce.Do(func() { close(p.handled) })
}
