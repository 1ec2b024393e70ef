// Package channel provides generic channel interfaces for decoupled communication,
// used as the input event pump between the host and the frame loop.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T

	// TryReceive pops one value without blocking. The frame loop uses it
	// to drain pending input without stalling the frame.
	TryReceive() (T, bool)

	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
