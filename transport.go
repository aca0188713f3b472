package slidesync

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// conn is one live transport to the sync server.
type conn interface {
	// read blocks until the next text frame arrives or the connection ends.
	read() ([]byte, error)

	// write sends a single text frame.
	write(data []byte) error

	// isOpen reports whether writes can currently be attempted.
	isOpen() bool

	// close tears the connection down. A pending read returns an error.
	close() error
}

// dialer opens new connections. The WebSocket implementation lives below;
// tests substitute an in-memory one.
type dialer interface {
	dial(ctx context.Context, endpoint string, header http.Header) (conn, error)
}

type wsDialer struct {
	handshakeTimeout  time.Duration
	heartbeatInterval time.Duration
}

func (d wsDialer) dial(ctx context.Context, endpoint string, header http.Header) (conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, &ConnectionError{URL: endpoint, Reason: err.Error()}
	}

	c := &wsConn{
		ws:   ws,
		done: make(chan struct{}),
	}
	c.open.Store(true)
	if d.heartbeatInterval > 0 {
		go c.heartbeatLoop(d.heartbeatInterval)
	}
	return c, nil
}

// wsConn adapts a gorilla connection to conn.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer
	open    atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) read() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			c.open.Store(false)
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.open.Load() {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) isOpen() bool {
	return c.open.Load()
}

func (c *wsConn) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)

		c.writeMu.Lock()
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// heartbeatLoop sends ping frames so idle proxies keep the connection open.
func (c *wsConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
