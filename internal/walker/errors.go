package walker

import (
	"errors"
	"fmt"
)

// Walker error types
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownSignal   = errors.New("unknown signal")
	ErrUnknownOrder    = errors.New("unknown order")
)

// HandlerError wraps a failure returned by a Handler. The traversal is
// aborted at the entry that failed; entries already visited stay visited.
type HandlerError struct {
	Path string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed at %s: %v", e.Path, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError reports whether err originated from a Handler.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}
