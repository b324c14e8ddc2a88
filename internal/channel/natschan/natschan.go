// Package natschan carries the grading channel over NATS JetStream. One
// stream per topic, subject = topic + "." + routing key, explicit acks so
// the broker redelivers anything a crashed consumer left unsettled.
package natschan

import (
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/nats-io/nats.go"

	"github.com/programme-lv/grader/internal/channel"
)

const encodingHeader = "Content-Encoding"

type Channel struct {
	js      nats.JetStreamContext
	durable string
}

var _ channel.Publisher = (*Channel)(nil)
var _ channel.Subscriber = (*Channel)(nil)

// New wraps an established NATS connection. durable names the consumer so
// that a restarted process resumes from its last acked message.
func New(nc *nats.Conn, durable string) (*Channel, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	return &Channel{js: js, durable: durable}, nil
}

// EnsureTopic creates the backing stream if it does not exist yet.
func (c *Channel) EnsureTopic(topic string) error {
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:     topic,
		Subjects: []string{topic + ".>"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to ensure stream %s: %w", topic, err)
	}
	return nil
}

func (c *Channel) Publish(ctx context.Context, topic string, key string, body []byte) error {
	msg := &nats.Msg{
		Subject: topic + "." + key,
		Data:    snappy.Encode(nil, body),
		Header:  nats.Header{encodingHeader: []string{"snappy"}},
	}
	_, err := c.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}
	return nil
}

// Subscribe consumes the whole topic through a durable queue subscription
// and blocks until ctx is done. Messages sharing a subject keep their
// publish order.
func (c *Channel) Subscribe(ctx context.Context, topic string, h channel.HandlerFunc) error {
	sub, err := c.js.QueueSubscribe(topic+".>", c.durable, func(m *nats.Msg) {
		h(ctx, &delivery{msg: m})
	}, nats.ManualAck(), nats.AckExplicit(), nats.Durable(c.durable))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return nil
}

type delivery struct {
	msg *nats.Msg
}

func (d *delivery) Body() []byte {
	if d.msg.Header.Get(encodingHeader) != "snappy" {
		return d.msg.Data
	}
	decoded, err := snappy.Decode(nil, d.msg.Data)
	if err != nil {
		// Hand the raw payload to the handler; it will fail to unmarshal
		// and settle the message as malformed.
		return d.msg.Data
	}
	return decoded
}

func (d *delivery) Ack() error { return d.msg.Ack() }
func (d *delivery) Nak() error { return d.msg.Nak() }
