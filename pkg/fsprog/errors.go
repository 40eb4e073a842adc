package fsprog

import (
	"errors"
	"fmt"
)

// Soft failures. The operation reports one of these and leaves the program unchanged.
var (
	ErrNoVariables = errors.New("no variables to remove")
	ErrNoSyscalls  = errors.New("no syscalls to remove")
)

// Render and persistence failures.
var (
	ErrUnsupportedPayload = errors.New("payload has no declaration form")
	ErrDanglingIndex      = errors.New("index does not name a variable")
	ErrInteriorNUL        = errors.New("text contains a NUL byte")
	ErrDecode             = errors.New("decode program")
)

// InvariantError is the panic value raised when the mutation API is used
// out of order or with a stale index.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// IsInvariant reports whether v, typically a recovered panic value, is an InvariantError.
func IsInvariant(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var ie *InvariantError
	return errors.As(err, &ie)
}
