package broker

import "context"

const TOPIC_WORKFLOWS string = "workflow-execution"
const TOPIC_NOTIFICATIONS string = "workflow-notifications"

// Message is one event keyed by run id. Brokers partition by Key, which
// pins all of a run's stage events to one partition and preserves their
// order.
type Message struct {
	Key   string
	Value []byte
}

// Handler processes one delivered message. A nil return acks the message
// (the manual offset commit); an error leaves it uncommitted so the broker
// delivers it again.
type Handler func(msg Message) error

// Broker is an external partitioned log with consumer-group semantics.
// Publish hands over a batch in one call; delivery is at-least-once.
type Broker interface {
	Publish(ctx context.Context, topic string, msgs []Message) error
	Subscribe(ctx context.Context, topic string, group string, handler Handler) error
	Close() error
}
