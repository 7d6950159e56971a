package socket

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var ErrClosed = errors.New("socket: connection closed")

// Message is one frame received from the server.
type Message struct {
	Type websocket.MessageType
	Data []byte
}

// Conn is an open session connection. Messages are delivered in the order
// the server sent them.
type Conn struct {
	ws    *websocket.Conn
	token string
	log   *slog.Logger

	messages chan Message
	done     chan struct{}
	closing  chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

func newConn(ws *websocket.Conn, token string, queue int, log *slog.Logger) *Conn {
	return &Conn{
		ws:       ws,
		token:    token,
		log:      log,
		messages: make(chan Message, queue),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
}

// Token returns the token this connection was opened with.
func (c *Conn) Token() string { return c.token }

// Messages is closed after the last message once the connection ends.
func (c *Conn) Messages() <-chan Message { return c.messages }

// Done is closed once the connection has ended for any reason.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the read side, or nil while open.
// A peer close is reported as a websocket.CloseError.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// CloseStatus returns the close code of the ending, or -1.
func (c *Conn) CloseStatus() websocket.StatusCode {
	return websocket.CloseStatus(c.Err())
}

func (c *Conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *Conn) SendJSON(ctx context.Context, v any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return wsjson.Write(ctx, c.ws, v)
}

// Close performs the closing handshake. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.closeErr = c.ws.Close(websocket.StatusNormalClosure, "client closing")
		<-c.done
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	ctx := context.Background()
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}

		select {
		case c.messages <- Message{Type: typ, Data: data}:
		case <-c.closing:
			c.finish(ErrClosed)
			return
		}
	}
}

func (c *Conn) finish(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	c.log.Info("socket.closed", "close_status", websocket.CloseStatus(err), "err", err)
}
