// Package memchan is an in-process transport backed by buffered Go
// channels. It exists for tests and for running the whole pipeline in one
// process without a broker; it keeps the broker semantics the pipeline
// relies on (at-least-once, redelivery on Nak, FIFO per topic).
package memchan

import (
	"context"
	"sync"

	"github.com/programme-lv/grader/internal/channel"
)

type Queue struct {
	mu     sync.Mutex
	topics map[string]chan *delivery
	size   int
}

var _ channel.Publisher = (*Queue)(nil)
var _ channel.Subscriber = (*Queue)(nil)

func New(size int) *Queue {
	return &Queue{
		topics: make(map[string]chan *delivery),
		size:   size,
	}
}

func (q *Queue) topic(name string) chan *delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan *delivery, q.size)
		q.topics[name] = ch
	}
	return ch
}

func (q *Queue) Publish(ctx context.Context, topic string, key string, body []byte) error {
	b := make([]byte, len(body))
	copy(b, body)
	d := &delivery{body: b, queue: q.topic(topic)}
	select {
	case d.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes the topic with a single goroutine, so deliveries are
// handled one at a time in publish order. Returns nil once ctx is done.
func (q *Queue) Subscribe(ctx context.Context, topic string, h channel.HandlerFunc) error {
	ch := q.topic(topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-ch:
			h(ctx, d)
		}
	}
}

type delivery struct {
	body  []byte
	queue chan *delivery
}

func (d *delivery) Body() []byte { return d.body }

func (d *delivery) Ack() error { return nil }

// Nak requeues the message at the back of the topic. The requeue must not
// block the handler that called it, hence the goroutine fallback.
func (d *delivery) Nak() error {
	redelivered := &delivery{body: d.body, queue: d.queue}
	select {
	case d.queue <- redelivered:
	default:
		go func() { d.queue <- redelivered }()
	}
	return nil
}
