package panelsense_ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 20

	sendQueueSize  = 64
	frameQueueSize = 256

	DEFAULT_PATH = "/"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrClosedByClient   = errors.New("connection closed by client")
	ErrSendQueueFull    = errors.New("send queue full")
)

// Conn is an open full-duplex text channel to a panelsense server.
type Conn interface {
	// Send enqueues a text frame. It never blocks on the network.
	Send(frame []byte) error
	// Frames yields inbound text frames in arrival order and is closed when the connection ends.
	Frames() <-chan []byte
	// Err reports why the connection ended. Nil while open.
	Err() error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, host string, port uint) (Conn, error)
}

type WebsocketDialer struct {
	Path             string
	Secure           bool
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

func (d WebsocketDialer) Dial(ctx context.Context, host string, port uint) (Conn, error) {
	scheme := "ws"
	if d.Secure {
		scheme = "wss"
	}
	path := d.Path
	if path == "" {
		path = DEFAULT_PATH
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10)),
		Path:   path,
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return newWebsocketConn(conn, logger.With(zap.String("url", u.String()))), nil
}

type websocketConn struct {
	conn   *websocket.Conn
	send   chan []byte
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	logger *zap.Logger
}

func newWebsocketConn(conn *websocket.Conn, logger *zap.Logger) *websocketConn {
	c := &websocketConn{
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		frames: make(chan []byte, frameQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	go c.readPump()
	return c
}

func (c *websocketConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *websocketConn) Frames() <-chan []byte {
	return c.frames
}

func (c *websocketConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *websocketConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.shutdown(ErrClosedByClient)
	return nil
}

func (c *websocketConn) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

func (c *websocketConn) readPump() {
	defer close(c.frames)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket: unexpected close", zap.Error(err))
			}
			c.shutdown(err)
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("websocket: ignoring non text frame", zap.Int("type", messageType))
			continue
		}
		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *websocketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("websocket: write failed", zap.Error(err))
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
