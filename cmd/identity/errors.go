package identity

import (
	"errors"
	"fmt"
)

// OpError carries the failing operation and a sentinel Kind. Msg never
// contains secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness conflict on a logical field.
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
