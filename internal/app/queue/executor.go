package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrClosed is returned once the coordinator has been closed.
var ErrClosed = errors.New("coordinator closed")

// executor runs posted functions one at a time, in posting order, on its own
// goroutine. The mailbox is unbounded so posting never blocks.
type executor struct {
	mu      sync.Mutex
	mailbox []func()
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newExecutor() *executor {
	e := &executor{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

// post queues fn. It reports false when the executor is stopped.
func (e *executor) post(fn func()) bool {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return false
	}
	e.mailbox = append(e.mailbox, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the executor and waits for it to finish.
func (e *executor) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !e.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		// The executor may have run fn right before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// close stops the executor after the functions already queued have run.
func (e *executor) close() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stop)
	<-e.done
}

// retire stops the executor when nothing is left in its mailbox. Unlike
// close it does not wait, so it may be called from a posted function.
func (e *executor) retire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || len(e.mailbox) > 0 {
		return false
	}
	e.stopped = true
	close(e.stop)
	return true
}

func (e *executor) run() {
	defer close(e.done)
	for {
		select {
		case <-e.wake:
			e.runBatch()
		case <-e.stop:
			e.runBatch()
			return
		}
	}
}

func (e *executor) runBatch() {
	for {
		e.mu.Lock()
		if len(e.mailbox) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.mailbox[0]
		e.mailbox[0] = nil
		e.mailbox = e.mailbox[1:]
		e.mu.Unlock()

		fn()
	}
}
