package slidesync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory conn. The test plays the server: deliver pushes a
// frame to the client, drop simulates the server going away.
type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	open   atomic.Bool

	mu      sync.Mutex
	written [][]byte
	header  http.Header
}

func newFakeConn(header http.Header) *fakeConn {
	c := &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
		header: header,
	}
	c.open.Store(true)
	return c
}

func (c *fakeConn) read() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) write(data []byte) error {
	if !c.open.Load() {
		return ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) isOpen() bool {
	return c.open.Load()
}

func (c *fakeConn) close() error {
	c.once.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
	return nil
}

func (c *fakeConn) deliver(frame string) {
	c.frames <- []byte(frame)
}

func (c *fakeConn) drop() {
	c.close()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) getWritten() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// fakeDialer hands out fakeConns. failures makes the next n dials fail;
// gate, when set, blocks every dial until a value is received.
type fakeDialer struct {
	mu        sync.Mutex
	conns     []*fakeConn
	endpoints []string
	failures  int
	gate      chan struct{}

	dialed chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 64)}
}

func (d *fakeDialer) dial(ctx context.Context, endpoint string, header http.Header) (conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.endpoints = append(d.endpoints, endpoint)
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		d.dialed <- nil
		return nil, &ConnectionError{URL: endpoint, Reason: "refused"}
	}
	c := newFakeConn(header)
	d.conns = append(d.conns, c)
	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) failNext(n int) {
	d.mu.Lock()
	d.failures = n
	d.mu.Unlock()
}

// nextConn waits for the next dial result; nil means the dial failed.
func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// fakeClock records timers and fires them only when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) afterFunc(d time.Duration, fn func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// pending counts armed timers.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// delays lists the delay of every timer ever armed.
func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

// fire runs the oldest armed timer and reports whether there was one.
func (c *fakeClock) fire() bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.mu.Unlock()

	next.fn()
	return true
}

// errorRecorder collects everything sent to the ErrorHandler.
type errorRecorder struct {
	mu   sync.Mutex
	errs []SyncError
}

func (r *errorRecorder) handle(e SyncError) {
	r.mu.Lock()
	r.errs = append(r.errs, e)
	r.mu.Unlock()
}

func (r *errorRecorder) kinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorKind, len(r.errs))
	for i, e := range r.errs {
		out[i] = e.Kind
	}
	return out
}

func (r *errorRecorder) count(kind ErrorKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitStatus waits until the client reports want.
func waitStatus(t *testing.T, c *Client, want Status) {
	t.Helper()
	waitFor(t, "status "+want.String(), func() bool { return c.Status() == want })
}

type fakeEnv struct {
	client *Client
	dialer *fakeDialer
	clock  *fakeClock
	errs   *errorRecorder
}

func newFakeEnv(t *testing.T, cfg Config) *fakeEnv {
	t.Helper()
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://slides.test"
	}
	env := &fakeEnv{
		dialer: newFakeDialer(),
		clock:  newFakeClock(),
		errs:   &errorRecorder{},
	}
	client, err := NewClient(cfg, env.errs.handle, withDialer(env.dialer), withClock(env.clock))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	env.client = client
	return env
}

// connect starts the client and waits for the first connection to open.
func (e *fakeEnv) connect(t *testing.T, onUpdate UpdateFunc) *fakeConn {
	t.Helper()
	if err := e.client.Connect(context.Background(), onUpdate); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	c := e.dialer.nextConn(t)
	if c == nil {
		t.Fatal("dial failed unexpectedly")
	}
	waitStatus(t, e.client, StatusConnected)
	return c
}
