// Package channel defines the message transport the grading pipeline runs
// over. Delivery is at-least-once and ordered only within one routing key,
// so consumers have to be idempotent.
package channel

import "context"

// Publisher publishes one message body to a topic under a routing key.
// Messages sharing a key are delivered in publish order.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, body []byte) error
}

// Delivery is one received message. Exactly one of Ack or Nak must be
// called: Ack settles the message, Nak asks the broker to redeliver it.
type Delivery interface {
	Body() []byte
	Ack() error
	Nak() error
}

// HandlerFunc processes one delivery. It must not panic the subscriber
// loop; settling the delivery is the handler's job.
type HandlerFunc func(ctx context.Context, d Delivery)

// Subscriber binds a handler to a topic. Subscribe blocks until ctx is
// done; on consumer crash unsettled messages are redelivered.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h HandlerFunc) error
}
