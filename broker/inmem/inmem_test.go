package inmem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/relaypoint/relaypoint/broker"
	"github.com/stretchr/testify/require"
)

func TestInMemBroker(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, b *InMemBroker,
	){
		"test same key preserves order":   testSameKeyOrder,
		"test handler error is retried":   testHandlerRetry,
		"test publish failure simulation": testPublishFailure,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewInMemBroker(4))
		})
	}
}

func testSameKeyOrder(t *testing.T, b *InMemBroker) {
	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := b.Subscribe(ctx, broker.TOPIC_WORKFLOWS, "g", func(msg broker.Message) error {
		mu.Lock()
		got = append(got, string(msg.Value))
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	msgs := make([]broker.Message, 0, 10)
	for i := 0; i < 10; i++ {
		msgs = append(msgs, broker.Message{Key: "run-1", Value: []byte(fmt.Sprintf("m%d", i))})
	}
	require.NoError(t, b.Publish(ctx, broker.TOPIC_WORKFLOWS, msgs))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 10; i++ {
		require.Equal(t, fmt.Sprintf("m%d", i), got[i])
	}
}

func testHandlerRetry(t *testing.T, b *InMemBroker) {
	var mu sync.Mutex
	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := b.Subscribe(ctx, broker.TOPIC_WORKFLOWS, "g", func(msg broker.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, broker.TOPIC_WORKFLOWS, []broker.Message{{Key: "run-1", Value: []byte("m")}}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	}, time.Second, 10*time.Millisecond)
}

func testPublishFailure(t *testing.T, b *InMemBroker) {
	b.FailPublish = true
	err := b.Publish(context.Background(), broker.TOPIC_WORKFLOWS, []broker.Message{{Key: "run-1", Value: []byte("m")}})
	require.Error(t, err)
}
