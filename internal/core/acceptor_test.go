package core

import (
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqid/internal/dispatch"
	"reqid/internal/metrics"
	"reqid/util"
)

// scriptedListener fails the first fails accepts with failErr (EMFILE
// by default), then hands out conns until it is closed.
type scriptedListener struct {
	mu      sync.Mutex
	fails   int
	failErr error
	conns   chan net.Conn
	once   sync.Once
	closed chan struct{}
}

func newScriptedListener(fails int) *scriptedListener {
	return &scriptedListener{
		fails:   fails,
		failErr: &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)},
		conns:   make(chan net.Conn, 1),
		closed:  make(chan struct{}),
	}
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.fails > 0 {
		l.fails--
		l.mu.Unlock()
		return nil, l.failErr
	}
	l.mu.Unlock()

	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *scriptedListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7000}
}

func startDispatcher(t *testing.T, logs *syncBuffer) (*dispatch.Dispatcher, *util.Logger) {
	t.Helper()
	logger := util.NewLogger(0)
	logger.SetOutput(logs)
	d := dispatch.New(logger)
	pool := dispatch.NewPool(d, 2, logger)
	pool.Start()
	t.Cleanup(func() {
		d.Stop()
		pool.Wait() //nolint:errcheck
	})
	return d, logger
}

func TestAcceptor_SurvivesAcceptFailures(t *testing.T) {
	logs := &syncBuffer{}
	d, logger := startDispatcher(t, logs)
	m := metrics.New()

	ln := newScriptedListener(3)
	got := make(chan net.Conn, 1)
	NewAcceptor(ln, d, func(c net.Conn) { got <- c }, m, logger).Start()

	client, server := net.Pipe()
	defer client.Close()
	ln.conns <- server

	select {
	case c := <-got:
		assert.Equal(t, server, c)
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not recover after failures")
	}

	assert.Equal(t, int64(3), m.AcceptErrors())
	assert.Equal(t, 3, strings.Count(logs.String(), "[ERR]"))
	assert.Contains(t, logs.String(), "too many open files")
}

func TestAcceptor_BacksOffBetweenFailures(t *testing.T) {
	d, logger := startDispatcher(t, &syncBuffer{})

	// Three failures back off 5ms + 10ms + 20ms, ±25%, before the next
	// accept.
	ln := newScriptedListener(3)
	got := make(chan struct{}, 1)
	start := time.Now()
	NewAcceptor(ln, d, func(c net.Conn) { c.Close(); got <- struct{}{} }, nil, logger).Start()

	_, server := net.Pipe()
	ln.conns <- server
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestAcceptor_NonRetryableFailureRearmsAtOnce(t *testing.T) {
	logs := &syncBuffer{}
	d, logger := startDispatcher(t, logs)
	m := metrics.New()

	// Backing off after each of these would take seconds.
	ln := newScriptedListener(12)
	ln.failErr = errors.New("accept: protocol botch")
	got := make(chan net.Conn, 1)
	NewAcceptor(ln, d, func(c net.Conn) { got <- c }, m, logger).Start()

	_, server := net.Pipe()
	ln.conns <- server
	select {
	case c := <-got:
		c.Close()
	case <-time.After(time.Second):
		t.Fatal("non-retryable failures were backed off")
	}
	assert.Equal(t, int64(12), m.AcceptErrors())
	assert.NotContains(t, logs.String(), "(retryable)")
}

func TestAcceptor_HandsOutEveryConnection(t *testing.T) {
	d, logger := startDispatcher(t, &syncBuffer{})

	ln := newScriptedListener(0)
	got := make(chan net.Conn, 8)
	NewAcceptor(ln, d, func(c net.Conn) { got <- c }, nil, logger).Start()

	for i := 0; i < 5; i++ {
		_, server := net.Pipe()
		ln.conns <- server
		select {
		case c := <-got:
			require.Equal(t, server, c)
			c.Close()
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d not accepted", i)
		}
	}
}

func TestAcceptor_StopIsSilent(t *testing.T) {
	logs := &syncBuffer{}
	logger := util.NewLogger(0)
	logger.SetOutput(logs)
	d := dispatch.New(logger)
	pool := dispatch.NewPool(d, 1, logger)
	pool.Start()

	ln := newScriptedListener(0)
	NewAcceptor(ln, d, func(c net.Conn) { c.Close() }, nil, logger).Start()

	assert.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)
	d.Stop()

	done := make(chan struct{})
	go func() {
		pool.Wait() //nolint:errcheck
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain after stop")
	}
	assert.NotContains(t, logs.String(), "[ERR]")
}

func TestAcceptor_ListenerClosedEndsLoop(t *testing.T) {
	logs := &syncBuffer{}
	d, logger := startDispatcher(t, logs)

	ln := newScriptedListener(0)
	NewAcceptor(ln, d, func(c net.Conn) { c.Close() }, nil, logger).Start()

	assert.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)
	ln.Close()

	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "accept loop ends")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
}
