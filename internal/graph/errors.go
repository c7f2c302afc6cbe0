package graph

import "errors"

var (
	// ErrInvalidOperation reports an illegal graph edit. The graph is left
	// unchanged when it is returned.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrProgramming reports a broken node implementation, such as an Affects
	// result containing a compound plug.
	ErrProgramming = errors.New("programming error")
)
