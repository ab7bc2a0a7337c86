package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaypoint/relaypoint/broker"
	"github.com/spaolacci/murmur3"
)

var _ broker.Broker = new(InMemBroker)

// InMemBroker mirrors the redis-streams broker semantics in memory: one
// ordered buffer per partition, key-based partition selection, and handler
// retry of uncommitted messages. Used by tests and single-process runs.
type InMemBroker struct {
	mu         sync.Mutex
	partitions int
	channels   map[string][]chan broker.Message
	retryDelay time.Duration

	// FailPublish makes Publish return an error, simulating broker
	// unavailability in tests.
	FailPublish bool
}

func NewInMemBroker(partitions int) *InMemBroker {
	return &InMemBroker{
		partitions: partitions,
		channels:   make(map[string][]chan broker.Message),
		retryDelay: 10 * time.Millisecond,
	}
}

func (b *InMemBroker) topicChannels(topic string) []chan broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	channels, ok := b.channels[topic]
	if !ok {
		channels = make([]chan broker.Message, b.partitions)
		for i := range channels {
			channels[i] = make(chan broker.Message, 1024)
		}
		b.channels[topic] = channels
	}
	return channels
}

func (b *InMemBroker) partition(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(b.partitions))
}

func (b *InMemBroker) Publish(ctx context.Context, topic string, msgs []broker.Message) error {
	b.mu.Lock()
	failPublish := b.FailPublish
	b.mu.Unlock()
	if failPublish {
		return fmt.Errorf("broker unavailable")
	}
	channels := b.topicChannels(topic)
	for _, msg := range msgs {
		channels[b.partition(msg.Key)] <- msg
	}
	return nil
}

func (b *InMemBroker) Subscribe(ctx context.Context, topic string, group string, handler broker.Handler) error {
	channels := b.topicChannels(topic)
	for _, ch := range channels {
		go b.consumePartition(ctx, ch, handler)
	}
	return nil
}

func (b *InMemBroker) consumePartition(ctx context.Context, ch chan broker.Message, handler broker.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			for {
				if err := handler(msg); err == nil {
					break
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.retryDelay):
				}
			}
		}
	}
}

func (b *InMemBroker) Close() error {
	return nil
}
