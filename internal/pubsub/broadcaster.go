package pubsub

import "context"

// Broadcaster fans committed stats patches out to subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}

// Noop drops every patch. Used when no NATS url is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }
func (Noop) Health(context.Context) error                        { return nil }

var _ Broadcaster = Noop{}
