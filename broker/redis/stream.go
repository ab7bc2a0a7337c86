package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/relaypoint/relaypoint/broker"
	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

var _ broker.Broker = new(redisBroker)

// redisBroker maps one topic onto a fixed set of redis streams, one stream
// per partition. A consumer group per stream plus explicit XAck gives the
// ordered, manually committed, at-least-once delivery the stage consumer
// relies on.
type redisBroker struct {
	redisClient rd.UniversalClient
	namespace   string
	partitions  int
	consumerId  string
}

func NewRedisBroker(conf config.RedisConfig, partitions int, consumerId string) *redisBroker {
	redisClient := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs: conf.Addrs,
	})
	return &redisBroker{
		redisClient: redisClient,
		namespace:   conf.Namespace,
		partitions:  partitions,
		consumerId:  consumerId,
	}
}

func (b *redisBroker) streamKey(topic string, partition int) string {
	return fmt.Sprintf("%s:stream:%s:%d", b.namespace, topic, partition)
}

func (b *redisBroker) partition(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(b.partitions))
}

// Publish appends the whole batch in one MULTI/EXEC block, so a batch either
// reaches the log or fails as a unit.
func (b *redisBroker) Publish(ctx context.Context, topic string, msgs []broker.Message) error {
	_, err := b.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, msg := range msgs {
			stream := b.streamKey(topic, b.partition(msg.Key))
			pipe.XAdd(ctx, &rd.XAddArgs{
				Stream: stream,
				Values: map[string]any{"key": msg.Key, "value": string(msg.Value)},
			})
		}
		return nil
	})
	if err != nil {
		logger.Error("error publishing to broker", zap.String("topic", topic), zap.Int("count", len(msgs)), zap.Error(err))
		return err
	}
	return nil
}

func (b *redisBroker) Subscribe(ctx context.Context, topic string, group string, handler broker.Handler) error {
	for p := 0; p < b.partitions; p++ {
		stream := b.streamKey(topic, p)
		err := b.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
		go b.consumePartition(ctx, stream, group, handler)
	}
	logger.Info("subscribed to topic", zap.String("topic", topic), zap.String("group", group), zap.Int("partitions", b.partitions))
	return nil
}

func (b *redisBroker) consumePartition(ctx context.Context, stream string, group string, handler broker.Handler) {
	// Messages left unacked by a previous incarnation of this consumer are
	// replayed first, then the loop switches to new entries.
	cursor := "0"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		streams, err := b.redisClient.XReadGroup(ctx, &rd.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumerId,
			Streams:  []string{stream, cursor},
			Count:    16,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			logger.Error("error reading from stream", zap.String("stream", stream), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		delivered := 0
		for _, xstream := range streams {
			for _, xmsg := range xstream.Messages {
				delivered++
				b.handleMessage(ctx, stream, group, xmsg, handler)
			}
		}
		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
}

// handleMessage retries the handler until it succeeds, keeping the partition
// blocked. Moving on with the message unacked would break per-run stage
// ordering.
func (b *redisBroker) handleMessage(ctx context.Context, stream string, group string, xmsg rd.XMessage, handler broker.Handler) {
	msg := broker.Message{}
	if key, ok := xmsg.Values["key"].(string); ok {
		msg.Key = key
	}
	if value, ok := xmsg.Values["value"].(string); ok {
		msg.Value = []byte(value)
	}
	for {
		err := handler(msg)
		if err == nil {
			if err := b.redisClient.XAck(ctx, stream, group, xmsg.ID).Err(); err != nil {
				logger.Error("error acking message", zap.String("stream", stream), zap.String("id", xmsg.ID), zap.Error(err))
			}
			return
		}
		logger.Error("message handling failed, will redeliver", zap.String("stream", stream), zap.String("id", xmsg.ID), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (b *redisBroker) Close() error {
	return b.redisClient.Close()
}
