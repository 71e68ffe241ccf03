// Package dispatch implements the event-loop pool shared by the
// acceptor and every session.
//
// An operation is issued with [Dispatcher.Go].  Its blocking half runs
// on its own goroutine, parked on the runtime network poller, so it
// never occupies a worker.  When it finishes, its completion handler is
// queued and run by whichever worker of the pool is free.  Handlers
// carry no worker affinity.
//
// The dispatcher keeps a registry of pending operations together with
// the resource each one blocks on.  Stop closes those resources so that
// blocked I/O unwinds, and from then on every completion is delivered
// as a cancellation.  Workers return once the dispatcher is stopped and
// nothing is pending or queued.
package dispatch

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/eapache/queue"

	rerr "reqid/internal/errors"
	"reqid/util"
)

// Handler receives the outcome of an operation.
type Handler func(err error)

type operation struct {
	id    uint64
	owner io.Closer
	run   func() error
	done  Handler
	err   error
}

// Dispatcher multiplexes operation completions over a set of workers.
// The zero value is not usable; call New.
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ready   *queue.Queue // *operation, FIFO
	pending map[uint64]*operation
	nextID  uint64
	stopped bool
	done    chan struct{}

	logger *util.Logger
}

// New returns a running dispatcher.
func New(logger *util.Logger) *Dispatcher {
	d := &Dispatcher{
		ready:   queue.New(),
		pending: make(map[uint64]*operation),
		done:    make(chan struct{}),
		logger:  logger,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Go issues an asynchronous operation.  run performs the blocking part
// and must return once owner is closed; owner may be nil for
// operations that watch [Dispatcher.Done] instead.  done is invoked on
// a worker with run's error.  After Stop, done receives an error
// matching [rerr.ErrCanceled] and run is never started.
func (d *Dispatcher) Go(owner io.Closer, run func() error, done Handler) {
	op := &operation{owner: owner, run: run, done: done}

	d.mu.Lock()
	if d.stopped {
		op.err = rerr.ErrCanceled
		d.ready.Add(op)
		d.cond.Signal()
		d.mu.Unlock()
		return
	}
	d.nextID++
	op.id = d.nextID
	d.pending[op.id] = op
	d.mu.Unlock()

	go d.execute(op)
}

func (d *Dispatcher) execute(op *operation) {
	err := op.run()

	d.mu.Lock()
	delete(d.pending, op.id)
	if d.stopped && err != nil && !rerr.IsCanceled(err) {
		err = fmt.Errorf("%w: %w", rerr.ErrCanceled, err)
	}
	op.err = err
	d.ready.Add(op)
	d.cond.Signal()
	d.mu.Unlock()
}

// Run executes completion handlers until the dispatcher is stopped and
// no dispatchable work remains.  Every worker of a pool calls Run.  A
// worker that recovered from panicking handlers reports it on return
// with an error matching [rerr.ErrHandlerPanic].
func (d *Dispatcher) Run() error {
	panics := 0
	for {
		op, ok := d.next()
		if !ok {
			break
		}
		if !d.invoke(op) {
			panics++
		}
	}
	if panics > 0 {
		return fmt.Errorf("%w: %d times", rerr.ErrHandlerPanic, panics)
	}
	return nil
}

func (d *Dispatcher) next() (*operation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.ready.Length() > 0 {
			return d.ready.Remove().(*operation), true
		}
		if d.stopped && len(d.pending) == 0 {
			d.cond.Broadcast() // let the other idle workers see it too
			return nil, false
		}
		d.cond.Wait()
	}
}

// invoke runs one handler and reports whether it returned normally.
// A panicking handler is logged and the worker carries on.
func (d *Dispatcher) invoke(op *operation) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("completion handler panicked: %v", r)
			ok = false
		}
	}()
	op.done(op.err)
	return true
}

// Stop stops the dispatcher.  It closes the owner of every pending
// operation and wakes all workers.  Calling Stop more than once is
// harmless.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.done)

	owners := make([]io.Closer, 0, len(d.pending))
	for _, op := range d.pending {
		if op.owner != nil {
			owners = append(owners, op.owner)
		}
	}
	n := len(d.pending)
	d.cond.Broadcast()
	d.mu.Unlock()

	d.logger.Debug("stopping: canceling %d pending operations", n)
	for _, c := range owners {
		c.Close() //nolint:errcheck
	}
}

// After issues an operation that completes once delay has elapsed, or
// with a cancellation when the dispatcher stops first.
func (d *Dispatcher) After(delay time.Duration, done Handler) {
	d.Go(nil, func() error {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-d.done:
			return rerr.ErrCanceled
		}
	}, done)
}

// Done is closed when Stop is called.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Stopped reports whether Stop has been called.
func (d *Dispatcher) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Pending returns the number of operations still blocked.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
