package graph

import "context"

// Signal is an ordered list of callbacks invoked with a value of type T.
// Callbacks may connect or disconnect slots while the signal is emitting; the
// set of callbacks invoked is fixed when emission starts, minus any slot that
// is disconnected before its turn.
type Signal[T any] struct {
	slots []*slot[T]
}

type slot[T any] struct {
	fn   func(context.Context, T)
	dead bool
}

// Connection is the handle returned by Signal.Connect.
type Connection struct {
	disconnect func()
}

// Disconnect removes the callback. It is safe to call more than once.
func (c Connection) Disconnect() {
	if c.disconnect != nil {
		c.disconnect()
	}
}

// Connect appends fn to the signal.
func (s *Signal[T]) Connect(fn func(context.Context, T)) Connection {
	sl := &slot[T]{fn: fn}
	s.slots = append(s.slots, sl)
	return Connection{disconnect: func() {
		if sl.dead {
			return
		}
		sl.dead = true
		for i, candidate := range s.slots {
			if candidate == sl {
				s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
				break
			}
		}
	}}
}

// Len returns the number of connected callbacks.
func (s *Signal[T]) Len() int {
	return len(s.slots)
}

// Emit invokes every connected callback in connection order.
func (s *Signal[T]) Emit(ctx context.Context, v T) {
	if len(s.slots) == 0 {
		return
	}
	snapshot := append([]*slot[T](nil), s.slots...)
	for _, sl := range snapshot {
		if !sl.dead {
			sl.fn(ctx, v)
		}
	}
}
