package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rerr "reqid/internal/errors"
	"reqid/util"
)

// blocker is an owner whose operation blocks until it is closed.
type blocker struct {
	once   sync.Once
	closed chan struct{}
}

func newBlocker() *blocker { return &blocker{closed: make(chan struct{})} }

func (b *blocker) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *blocker) wait() error {
	<-b.closed
	return errors.New("use of closed resource")
}

func startPool(t *testing.T, workers int) (*Dispatcher, *Pool) {
	t.Helper()
	logger := util.NewLogger(0)
	d := New(logger)
	p := NewPool(d, workers, logger)
	p.Start()
	return d, p
}

func waitPool(t *testing.T, p *Pool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait() //nolint:errcheck
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("workers did not exit")
	}
}

func TestDispatcher_DeliversResult(t *testing.T) {
	d, p := startPool(t, 2)
	defer waitPool(t, p)
	defer d.Stop()

	boom := errors.New("boom")
	got := make(chan error, 2)
	d.Go(nil, func() error { return nil }, func(err error) { got <- err })
	d.Go(nil, func() error { return boom }, func(err error) { got <- err })

	results := []error{<-got, <-got}
	var sawNil, sawBoom bool
	for _, err := range results {
		switch {
		case err == nil:
			sawNil = true
		case errors.Is(err, boom):
			sawBoom = true
		}
	}
	if !sawNil || !sawBoom {
		t.Errorf("results = %v, want one nil and one boom", results)
	}
}

func TestDispatcher_CapturedValuesVisibleToHandler(t *testing.T) {
	d, p := startPool(t, 4)
	defer waitPool(t, p)
	defer d.Stop()

	const n = 200
	var wg sync.WaitGroup
	var bad atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		want := i
		var result int
		d.Go(nil, func() error { result = want; return nil }, func(error) {
			if result != want {
				bad.Add(1)
			}
			wg.Done()
		})
	}
	wg.Wait()
	if bad.Load() != 0 {
		t.Errorf("%d handlers saw a stale result", bad.Load())
	}
}

func TestDispatcher_StopCancelsPending(t *testing.T) {
	d, p := startPool(t, 2)

	b := newBlocker()
	got := make(chan error, 1)
	d.Go(b, b.wait, func(err error) { got <- err })

	// Let the operation register before stopping.
	deadline := time.Now().Add(time.Second)
	for d.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	d.Stop()

	select {
	case err := <-got:
		if !rerr.IsCanceled(err) {
			t.Errorf("err = %v, want cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending operation was not canceled")
	}
	waitPool(t, p)

	if d.Pending() != 0 {
		t.Errorf("pending = %d after drain", d.Pending())
	}
}

func TestDispatcher_GoAfterStop(t *testing.T) {
	logger := util.NewLogger(0)
	d := New(logger)
	d.Stop()
	d.Stop() // idempotent

	var ran atomic.Bool
	got := make(chan error, 1)
	d.Go(nil, func() error { ran.Store(true); return nil }, func(err error) { got <- err })

	// The canceled completion is queued; a worker started now still
	// delivers it before exiting.
	p := NewPool(d, 1, logger)
	p.Start()
	waitPool(t, p)

	select {
	case err := <-got:
		if !errors.Is(err, rerr.ErrCanceled) {
			t.Errorf("err = %v, want ErrCanceled", err)
		}
	default:
		t.Fatal("canceled completion was not delivered")
	}
	if ran.Load() {
		t.Error("run must not start after Stop")
	}
	if !d.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestDispatcher_HandlersRunInParallel(t *testing.T) {
	const workers = 4
	d, p := startPool(t, workers)
	defer waitPool(t, p)
	defer d.Stop()

	// Every handler blocks until all of them have started, which can
	// only happen if each runs on its own worker.
	var started sync.WaitGroup
	started.Add(workers)
	release := make(chan struct{})
	finished := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		d.Go(nil, func() error { return nil }, func(error) {
			started.Done()
			<-release
			finished <- struct{}{}
		})
	}

	all := make(chan struct{})
	go func() {
		started.Wait()
		close(all)
	}()
	select {
	case <-all:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers did not run concurrently across workers")
	}
	close(release)
	for i := 0; i < workers; i++ {
		<-finished
	}
}

func TestDispatcher_PanicKeepsWorker(t *testing.T) {
	d, p := startPool(t, 1)

	d.Go(nil, func() error { return nil }, func(error) { panic("handler bug") })

	got := make(chan struct{})
	d.Go(nil, func() error { return nil }, func(error) { close(got) })

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after a handler panic")
	}

	d.Stop()
	if err := p.Wait(); !errors.Is(err, rerr.ErrHandlerPanic) {
		t.Errorf("Wait() = %v, want ErrHandlerPanic", err)
	}
}

func TestPool_CleanExitReturnsNil(t *testing.T) {
	d, p := startPool(t, 3)

	done := make(chan struct{})
	d.Go(nil, func() error { return nil }, func(error) { close(done) })
	<-done

	d.Stop()
	if err := p.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestDispatcher_After(t *testing.T) {
	d, p := startPool(t, 1)

	start := time.Now()
	got := make(chan error, 1)
	d.After(20*time.Millisecond, func(err error) { got <- err })
	if err := <-got; err != nil {
		t.Fatalf("After: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("fired after %v, want ≥ 20ms", elapsed)
	}

	d.After(time.Hour, func(err error) { got <- err })
	d.Stop()
	select {
	case err := <-got:
		if !rerr.IsCanceled(err) {
			t.Errorf("err = %v, want cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer was not canceled by Stop")
	}
	waitPool(t, p)
}

func TestPool_SizeFloor(t *testing.T) {
	p := NewPool(New(util.NewLogger(0)), 0, util.NewLogger(0))
	if p.Size() != 1 {
		t.Errorf("Size() = %d, want 1", p.Size())
	}
}
