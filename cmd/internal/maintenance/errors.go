package maintenance

import (
	"errors"
	"fmt"
)

// ErrConfig marks a missing or invalid operator setting.
var ErrConfig = errors.New("configuration error")

// ConfigError names the setting that stopped an operation before it touched the store.
type ConfigError struct {
	Key    string
	Reason string
}

func (e ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s is not set", ErrConfig, e.Key)
	}
	return fmt.Sprintf("%s: %s %s", ErrConfig, e.Key, e.Reason)
}

func (e ConfigError) Unwrap() error { return ErrConfig }

// OpError is a failed privileged operation: the store was unreachable or
// rejected the statement.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("maintenance: %s: %v", e.Op, e.Err) }

func (e *OpError) Unwrap() error { return e.Err }

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }
