package interfaces

import "context"

// MessageHandler callback invoked for every message received on a
// subscribed channel. Errors are logged by the listener, they never
// stop the listener loop.
type MessageHandler func(ctx context.Context, channel string, payload []byte) error

// PubSub named-channel publish/subscribe transport.
// The default implementation is Redis Pub/Sub.
type PubSub interface {
	// Publish serializes and publishes a payload to a channel
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers a handler for a channel. Must be called
	// before StartListener.
	Subscribe(channel string, handler MessageHandler) error

	// StartListener starts the background receive loop
	StartListener(ctx context.Context) error

	// StopListener stops the background receive loop
	StopListener()

	// Connected reports whether the transport is currently reachable
	Connected(ctx context.Context) bool

	// Close tears down subscriptions and the connection
	Close() error
}
