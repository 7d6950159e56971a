// Package v1 is the QuoteBid session socket protocol, shared by the gateway
// and its clients.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const Version = 1

const (
	// TypeSessionReady is the first envelope on every connection (server -> client).
	TypeSessionReady = "session.ready"
	// TypeSessionNotice is an informational banner, withheld from mobile clients.
	TypeSessionNotice = "session.notice"
	// TypeSessionRevoked precedes a policy-violation close when the session ends.
	TypeSessionRevoked = "session.revoked"

	TypePing = "ping"
	TypePong = "pong"

	TypeError = "error"
)

var allowedTypes = map[string]struct{}{
	TypeSessionReady:   {},
	TypeSessionNotice:  {},
	TypeSessionRevoked: {},
	TypePing:           {},
	TypePong:           {},
	TypeError:          {},
}

// Envelope wraps every frame in both directions.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds an envelope, marshalling payload when it is not nil.
func New(typ, id string, ts time.Time, payload any) (Envelope, error) {
	env := Envelope{V: Version, Type: typ, ID: id, TS: ts.UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("v1: marshal %s payload: %w", typ, err)
		}
		env.Payload = b
	}
	return env, nil
}

// Validate checks the fields every envelope must carry.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version %d", e.V)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := allowedTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type %q", e.Type)
	}
	return nil
}

// Decode unmarshals the payload into dst. An absent payload leaves dst untouched.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}
