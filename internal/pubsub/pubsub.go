// Package pubsub provides the named-channel broadcast bus used to fan
// out stream events to live subscribers. Delivery is best-effort and
// at-most-once per subscriber connection; publishing to a channel with
// no subscribers is a no-op.
package pubsub

import "context"

// Message represents a payload delivered via a pub/sub subscription.
type Message struct {
	Payload []byte
}

// Subscription exposes a stream of messages published to a channel after
// the subscription was opened. Close must be safe to call multiple times.
type Subscription interface {
	// Messages returns the channel delivering published payloads. It is
	// closed when the subscription ends.
	Messages() <-chan Message

	// Close terminates the subscription and releases its resources.
	Close() error
}

// Provider describes a component capable of subscribing to named channels
// and delivering messages published to them.
type Provider interface {
	// Subscribe opens a fresh subscription delivering only future events;
	// there is no replay of history.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Publish sends the payload to every current subscriber of the
	// channel. It succeeds even when nobody is subscribed.
	Publish(ctx context.Context, channel string, payload []byte) error
}
