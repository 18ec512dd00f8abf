package repository

import "context"

// Broker channel transport behind the fan-out.
// Subscribe returns once the subscription is live; the handler runs until ctx is done.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
}
