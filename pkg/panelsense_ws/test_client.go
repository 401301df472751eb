package panelsense_ws

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TestServer is an in-memory panelsense server used by tests. Its Dialer hands out
// connections that record outbound frames and can be fed inbound frames.
type TestServer struct {
	mu          sync.Mutex
	credentials map[string]string
	silent      bool
	authDelay   time.Duration
	dialErr     error
	dials       int
	received    [][]byte
	conn        *testConn

	pendingAuths    int
	maxPendingAuths int
}

func NewTestServer() *TestServer {
	return &TestServer{}
}

// AcceptOnly restricts successful authentication to the given credentials.
func (s *TestServer) AcceptOnly(username, secret string) *TestServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credentials == nil {
		s.credentials = map[string]string{}
	}
	s.credentials[username] = secret
	return s
}

// SetSilent stops the server from answering AUTH requests.
func (s *TestServer) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

func (s *TestServer) SetAuthDelay(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authDelay = delay
}

func (s *TestServer) FailDials(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

func (s *TestServer) Dialer() Dialer {
	return testDialer{server: s}
}

func (s *TestServer) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *TestServer) MaxPendingAuths() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPendingAuths
}

// Received returns every decodable frame written by clients, oldest first.
func (s *TestServer) Received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]Message, 0, len(s.received))
	for _, frame := range s.received {
		if msg, err := DecodeOutbound(frame); err == nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (s *TestServer) ReceivedOfType(messageType MessageType) []Message {
	var msgs []Message
	for _, msg := range s.Received() {
		if msg.MessageType() == messageType {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (s *TestServer) ClearReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = nil
}

// Push sends a message to the currently connected client.
func (s *TestServer) Push(msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.PushRaw(frame)
}

func (s *TestServer) PushRaw(frame []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !conn.deliver(frame) {
		return ErrConnectionClosed
	}
	return nil
}

// DropConnection ends the current connection as if the network went away.
func (s *TestServer) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.shutdown(errors.New("connection reset by peer"))
	}
}

func (s *TestServer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.conn.closed()
}

func (s *TestServer) handle(conn *testConn, frame []byte) {
	s.mu.Lock()
	s.received = append(s.received, frame)
	s.mu.Unlock()

	msg, err := DecodeOutbound(frame)
	if err != nil {
		return
	}
	if req, ok := msg.(AuthRequest); ok {
		s.answerAuth(conn, req)
	}
}

func (s *TestServer) answerAuth(conn *testConn, req AuthRequest) {
	s.mu.Lock()
	if s.silent {
		s.mu.Unlock()
		return
	}
	result := AuthResult{AuthResult: AUTH_RESULT_SUCCESS}
	if s.credentials != nil {
		username, secret, err := ParseCredentialToken(req.Token)
		if expected, ok := s.credentials[username]; err != nil || !ok || expected != secret {
			result = AuthResult{AuthResult: AUTH_RESULT_FAILURE, Detail: "invalid credentials"}
		}
	}
	delay := s.authDelay
	s.pendingAuths++
	if s.pendingAuths > s.maxPendingAuths {
		s.maxPendingAuths = s.pendingAuths
	}
	s.mu.Unlock()

	respond := func() {
		s.mu.Lock()
		s.pendingAuths--
		s.mu.Unlock()
		if frame, err := Encode(result); err == nil {
			conn.deliver(frame)
		}
	}
	if delay > 0 {
		time.AfterFunc(delay, respond)
	} else {
		respond()
	}
}

type testDialer struct {
	server *TestServer
}

func (d testDialer) Dial(ctx context.Context, _ string, _ uint) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := d.server
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	conn := &testConn{
		server: s,
		frames: make(chan []byte, frameQueueSize),
		done:   make(chan struct{}),
	}
	s.conn = conn
	return conn, nil
}

type testConn struct {
	server *TestServer
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
}

func (c *testConn) Send(frame []byte) error {
	if c.closed() {
		return ErrConnectionClosed
	}
	c.server.handle(c, frame)
	return nil
}

func (c *testConn) Frames() <-chan []byte {
	return c.frames
}

func (c *testConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *testConn) Close() error {
	c.shutdown(ErrClosedByClient)
	return nil
}

func (c *testConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *testConn) deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return false
	}
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

func (c *testConn) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.err = err
		close(c.done)
		close(c.frames)
	})
}
