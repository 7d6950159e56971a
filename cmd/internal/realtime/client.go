package realtime

import (
	"sync"

	v1 "github.com/cracked-sourcecode/QuoteBidV1-sub008/shared/contracts/realtime/v1"
)

// Client is one connected socket.
//
// Send is never closed by the server; done signals goroutines to stop.
type Client struct {
	SessionID string
	UserID    string
	Mobile    bool
	Send      chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once

	revokeOnce sync.Once
	revoked    chan string
}

func NewClient(userID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
		revoked:   make(chan string, 1),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close is idempotent and leaves Send open.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Revoke asks the connection loop to send session.revoked and close with a
// policy violation. Only the first reason is kept.
func (c *Client) Revoke(reason string) {
	if c == nil {
		return
	}
	c.revokeOnce.Do(func() {
		c.revoked <- reason
	})
}

// Revoked delivers the revoke reason at most once.
func (c *Client) Revoked() <-chan string {
	return c.revoked
}
