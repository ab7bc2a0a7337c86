package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"github.com/relaypoint/relaypoint/util"
	"go.uber.org/zap"
)

var _ persistence.OutboxDao = new(redisOutboxDao)

// Outbox entries live in a hash keyed by entry id. The pending index is a
// sorted set scored by creation time, which gives the oldest-first poll
// order; the processing index is scored by claim time so stale claims can be
// ranged out and reverted.
type redisOutboxDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.OutboxEntry]
}

func newRedisOutboxDao(base *baseDao) *redisOutboxDao {
	return &redisOutboxDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.OutboxEntry](),
	}
}

func (dao *redisOutboxDao) insert(ctx context.Context, pipe rd.Pipeliner, entry *model.OutboxEntry) error {
	data, err := dao.encoderDecoder.Encode(*entry)
	if err != nil {
		return err
	}
	pipe.HSet(ctx, dao.getNamespaceKey(OUTBOX_KEY), []string{entry.Id, string(data)})
	pipe.ZAdd(ctx, dao.getNamespaceKey(OUTBOX_PENDING_KEY), rd.Z{
		Score:  float64(entry.CreatedAt.UnixMilli()),
		Member: entry.Id,
	})
	return nil
}

func (dao *redisOutboxDao) PollPending(batchSize int) ([]*model.OutboxEntry, error) {
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min:    "0",
		Max:    "+inf",
		Offset: 0,
		Count:  int64(batchSize),
	}
	ids, err := dao.redisClient.ZRangeByScore(ctx, dao.getNamespaceKey(OUTBOX_PENDING_KEY), opt).Result()
	if err != nil {
		logger.Error("error polling pending outbox entries", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	fields := make([]string, len(ids))
	copy(fields, ids)
	values, err := dao.redisClient.HMGet(ctx, dao.getNamespaceKey(OUTBOX_KEY), fields...).Result()
	if err != nil {
		logger.Error("error reading outbox entries", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	entries := make([]*model.OutboxEntry, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		entry, err := dao.encoderDecoder.Decode([]byte(v.(string)))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (dao *redisOutboxDao) MarkProcessing(entries []*model.OutboxEntry) error {
	ctx := context.Background()
	now := time.Now()
	_, err := dao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, entry := range entries {
			entry.Status = model.OUTBOX_STATUS_PROCESSING
			entry.ClaimedAt = &now
			data, err := dao.encoderDecoder.Encode(*entry)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, dao.getNamespaceKey(OUTBOX_KEY), []string{entry.Id, string(data)})
			pipe.ZRem(ctx, dao.getNamespaceKey(OUTBOX_PENDING_KEY), entry.Id)
			pipe.ZAdd(ctx, dao.getNamespaceKey(OUTBOX_PROCESSING_KEY), rd.Z{
				Score:  float64(now.UnixMilli()),
				Member: entry.Id,
			})
		}
		return nil
	})
	if err != nil {
		logger.Error("error claiming outbox entries", zap.Int("count", len(entries)), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *redisOutboxDao) Delete(entries []*model.OutboxEntry) error {
	ctx := context.Background()
	_, err := dao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, entry := range entries {
			pipe.HDel(ctx, dao.getNamespaceKey(OUTBOX_KEY), entry.Id)
			pipe.ZRem(ctx, dao.getNamespaceKey(OUTBOX_PENDING_KEY), entry.Id)
			pipe.ZRem(ctx, dao.getNamespaceKey(OUTBOX_PROCESSING_KEY), entry.Id)
		}
		return nil
	})
	if err != nil {
		logger.Error("error deleting outbox entries", zap.Int("count", len(entries)), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *redisOutboxDao) MarkPending(entries []*model.OutboxEntry) error {
	ctx := context.Background()
	_, err := dao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, entry := range entries {
			entry.Status = model.OUTBOX_STATUS_PENDING
			entry.ClaimedAt = nil
			data, err := dao.encoderDecoder.Encode(*entry)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, dao.getNamespaceKey(OUTBOX_KEY), []string{entry.Id, string(data)})
			pipe.ZRem(ctx, dao.getNamespaceKey(OUTBOX_PROCESSING_KEY), entry.Id)
			pipe.ZAdd(ctx, dao.getNamespaceKey(OUTBOX_PENDING_KEY), rd.Z{
				Score:  float64(entry.CreatedAt.UnixMilli()),
				Member: entry.Id,
			})
		}
		return nil
	})
	if err != nil {
		logger.Error("error reverting outbox entries", zap.Int("count", len(entries)), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *redisOutboxDao) RecoverStale(olderThan time.Duration) (int, error) {
	ctx := context.Background()
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	opt := &rd.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff, 10),
	}
	ids, err := dao.redisClient.ZRangeByScore(ctx, dao.getNamespaceKey(OUTBOX_PROCESSING_KEY), opt).Result()
	if err != nil {
		logger.Error("error scanning stale outbox claims", zap.Error(err))
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	values, err := dao.redisClient.HMGet(ctx, dao.getNamespaceKey(OUTBOX_KEY), ids...).Result()
	if err != nil {
		logger.Error("error reading stale outbox entries", zap.Error(err))
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	entries := make([]*model.OutboxEntry, 0, len(values))
	for i, v := range values {
		if v == nil {
			// The hash row is gone; drop the orphaned index member.
			dao.redisClient.ZRem(ctx, dao.getNamespaceKey(OUTBOX_PROCESSING_KEY), ids[i])
			continue
		}
		entry, err := dao.encoderDecoder.Decode([]byte(v.(string)))
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry)
	}
	if err := dao.MarkPending(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
