// Package socket opens the realtime session connection of a client process.
//
// One Conn belongs to one token: the token is fixed at Open and changing it
// means closing the Conn and opening a new one. Conns never reconnect on
// their own; Done reports the close and recovery is up to the caller.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/tokenstore"

	"github.com/coder/websocket"
)

// TokenPolicy decides what Open does with an empty token.
type TokenPolicy uint8

const (
	// AllowAnonymous dials without a credential and lets the server decide.
	AllowAnonymous TokenPolicy = iota
	// RequireToken fails with ErrMissingToken before dialing.
	RequireToken
)

var ErrMissingToken = errors.New("socket: missing token")

func (p TokenPolicy) String() string {
	switch p {
	case RequireToken:
		return "require"
	default:
		return "anonymous"
	}
}

// ParseTokenPolicy accepts "anonymous" (or "") and "require".
func ParseTokenPolicy(s string) (TokenPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "anonymous", "allow":
		return AllowAnonymous, nil
	case "require", "required":
		return RequireToken, nil
	default:
		return AllowAnonymous, fmt.Errorf("socket: unknown token policy %q", s)
	}
}

// HandshakeError reports a handshake the server answered with a non-101
// status (typically 401 for a rejected token). It unwraps to the dial error.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("socket: handshake rejected: status=%d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

type Dialer struct {
	Endpoint Endpoint
	Tokens   tokenstore.Source
	Policy   TokenPolicy
	Logger   *slog.Logger

	HTTPHeader   http.Header
	Subprotocols []string
	HTTPClient   *http.Client

	ReadLimit int64
	QueueSize int
}

const (
	defaultReadLimit = 1 << 20
	defaultQueueSize = 64
)

// OpenCurrent opens a Conn with the token currently held by d.Tokens.
func (d *Dialer) OpenCurrent(ctx context.Context) (*Conn, error) {
	tok := ""
	if d.Tokens != nil {
		tok, _ = d.Tokens.Get()
	}
	return d.Open(ctx, tok)
}

// Open dials the endpoint with token as the query credential.
func (d *Dialer) Open(ctx context.Context, token string) (*Conn, error) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	if token == "" && d.Policy == RequireToken {
		log.Debug("socket.open.reject", "reason", "missing_token")
		return nil, ErrMissingToken
	}

	target := d.Endpoint.URL(token)

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   d.HTTPHeader,
		Subprotocols: d.Subprotocols,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			log.Info("socket.open.rejected", "host", d.Endpoint.Host, "port", d.Endpoint.Port, "status", resp.StatusCode)
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}

	readLimit := d.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	queue := d.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}

	log.Info("socket.open",
		"host", d.Endpoint.Host,
		"port", d.Endpoint.Port,
		"token_present", token != "",
		"subprotocol", conn.Subprotocol(),
	)

	c := newConn(conn, token, queue, log)
	go c.readLoop()
	return c, nil
}
