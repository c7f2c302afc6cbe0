package dispatch

import "errors"

var (
	// ErrPreconditionViolation is returned when the nodes given to Dispatch
	// cannot be dispatched. Nothing has been executed or written when it is
	// returned.
	ErrPreconditionViolation = errors.New("precondition violation")
	// ErrUnknownDispatcher is returned by Registry.New for unregistered names.
	ErrUnknownDispatcher = errors.New("unknown dispatcher")
)
