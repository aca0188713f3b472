package slidesync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is one logical sync channel: at most one connection at a time,
// reconnected after unexpected closures until Disconnect or Close.
type Client struct {
	cfg      Config
	endpoint string
	header   http.Header
	logger   *slog.Logger
	onError  ErrorHandler

	dialer   dialer
	state    *connectionState
	sched    *reconnectScheduler
	registry *handlerRegistry
	router   *router

	mu      sync.Mutex
	active  bool   // a dial or an open connection belongs to the current attempt
	gen     uint64 // bumped per attempt and on Disconnect; stale events compare against it
	closed  bool
	backoff *backoff
	ctx     context.Context
	unwatch func() bool

	visitorID string
}

// NewClient creates a new sync client with the given configuration.
// The onError handler is called for errors that cannot be returned to a
// direct caller (malformed frames, handler panics, transport drops).
// The client is not connected until Connect is called.
func NewClient(cfg Config, onError ErrorHandler, opts ...ClientOption) (*Client, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	endpoint, err := endpointURL(resolved)
	if err != nil {
		return nil, err
	}

	o := clientDefaults()
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = wsDialer{
			handshakeTimeout:  resolved.HandshakeTimeout,
			heartbeatInterval: resolved.HeartbeatInterval,
		}
	}

	visitorID := resolved.VisitorID
	if visitorID == "" {
		visitorID = uuid.NewString()
	}

	registry := newHandlerRegistry()
	return &Client{
		cfg:       resolved,
		endpoint:  endpoint,
		header:    handshakeHeader(resolved),
		logger:    resolved.Logger,
		onError:   onError,
		dialer:    o.dialer,
		state:     newConnectionState(),
		sched:     newReconnectScheduler(o.clock),
		registry:  registry,
		router:    newRouter(resolved.DiscriminatorField, registry, onError),
		backoff:   newBackoff(resolved.ReconnectDelay, resolved.MaxReconnectDelay),
		ctx:       context.Background(),
		visitorID: visitorID,
	}, nil
}

// Endpoint returns the WebSocket URL the client dials.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// VisitorID returns the participant ID used in poll messages.
func (c *Client) VisitorID() string {
	return c.visitorID
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	return c.state.status()
}

// OnStatusChange registers fn to observe status transitions. Observers run
// outside the client's locks and may call back into the client.
func (c *Client) OnStatusChange(fn StatusFunc) (unsubscribe func()) {
	return c.state.subscribe(fn)
}

// OnMessage registers a handler for typed messages. Handlers run in
// registration order on the connection's read goroutine. The returned
// function unregisters the handler; it may be called from inside a handler.
func (c *Client) OnMessage(fn HandlerFunc, opts ...HandlerOption) (unregister func()) {
	return c.registry.register(fn, opts...)
}

// Connect starts connecting in the background and returns immediately.
// Untyped inbound messages are delivered to onUpdate. If an attempt or
// connection is already active the call is a no-op. Canceling ctx has the
// same effect as Disconnect.
func (c *Client) Connect(ctx context.Context, onUpdate UpdateFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.active {
		c.mu.Unlock()
		return nil
	}

	if c.unwatch != nil {
		c.unwatch()
	}
	c.ctx = ctx
	c.unwatch = context.AfterFunc(ctx, func() {
		c.logger.Debug("slidesync: context done, disconnecting")
		c.Disconnect()
	})

	c.startLocked(onUpdate)
	c.mu.Unlock()

	c.state.flush()
	return nil
}

// WaitConnected blocks until the status is Connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	unsubscribe := c.state.subscribe(func(s Status) {
		if s == StatusConnected {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if c.state.status() == StatusConnected {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the current connection and stops reconnecting. The
// client can be connected again with Connect.
func (c *Client) Disconnect() {
	_ = c.disconnect()
}

// Close disconnects and permanently shuts the client down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	c.mu.Unlock()

	return c.disconnect()
}

func (c *Client) disconnect() error {
	c.mu.Lock()
	c.gen++
	c.active = false
	c.sched.cancel()
	c.state.changeStatus(StatusDisconnected)
	cn := c.state.connection()
	c.state.setConnection(nil)
	c.mu.Unlock()

	c.state.flush()

	if cn != nil {
		c.logger.Debug("slidesync: disconnecting", "url", c.endpoint)
		return cn.close()
	}
	return nil
}

// Send serializes payload and writes it if the connection is open. It
// returns whether a write was attempted; nothing is queued when closed.
func (c *Client) Send(payload any) bool {
	cn := c.state.connection()
	if cn == nil || !cn.isOpen() {
		return false
	}

	data, err := encodePayload(payload)
	if err != nil {
		c.onError(SyncError{
			Kind:      ErrEncodeFailure,
			Cause:     err,
			Timestamp: time.Now(),
		})
		return false
	}

	if err := cn.write(data); err != nil {
		c.onError(SyncError{
			Kind:      ErrTransportWrite,
			Cause:     err,
			Timestamp: time.Now(),
		})
	}
	return true
}

// startLocked begins a new connection attempt. Caller holds c.mu.
func (c *Client) startLocked(onUpdate UpdateFunc) {
	c.active = true
	c.gen++
	c.sched.cancel()
	c.router.setUpdateFunc(onUpdate)
	c.state.changeStatus(StatusConnecting)

	go c.run(c.ctx, c.gen)
}

// run owns one connection attempt from dial to close.
func (c *Client) run(ctx context.Context, gen uint64) {
	c.logger.Debug("slidesync: dialing", "url", c.endpoint)

	cn, err := c.dialer.dial(ctx, c.endpoint, c.header.Clone())
	if err != nil {
		c.handleClose(gen, nil, err)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnected (or superseded) while dialing.
		c.mu.Unlock()
		cn.close()
		return
	}
	c.state.setConnection(cn)
	c.state.changeStatus(StatusConnected)
	c.backoff.reset()
	c.mu.Unlock()

	c.state.flush()
	c.logger.Debug("slidesync: connected", "url", c.endpoint)

	for {
		data, err := cn.read()
		if err != nil {
			// The peer is gone but the socket and its ping loop are not.
			cn.close()
			c.handleClose(gen, cn, err)
			return
		}
		// Frames that race a teardown are dropped.
		if c.state.status() != StatusConnected {
			continue
		}
		c.router.dispatch(data)
	}
}

// handleClose runs once per attempt when its dial fails or its connection
// ends, and schedules the next attempt unless the client was disconnected.
func (c *Client) handleClose(gen uint64, cn conn, cause error) {
	c.mu.Lock()
	if cn != nil {
		c.state.clearConnection(cn)
	}
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.active = false
	if c.state.status() == StatusDisconnected {
		c.mu.Unlock()
		return
	}

	c.state.changeStatus(StatusConnecting)
	delay := c.backoff.next()
	c.sched.schedule(delay, c.reconnect)
	c.mu.Unlock()

	c.state.flush()
	c.logger.Debug("slidesync: connection closed, reconnect scheduled", "url", c.endpoint, "delay", delay, "err", cause)
	c.onError(SyncError{
		Kind:      ErrTransportClosed,
		Cause:     cause,
		Timestamp: time.Now(),
	})
}

// reconnect is the reconnect timer's callback.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed || c.active || c.state.status() == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.startLocked(c.router.updateFunc())
	c.mu.Unlock()

	c.state.flush()
}
