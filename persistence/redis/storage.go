package redis

import (
	"context"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"go.uber.org/zap"
)

var _ persistence.Storage = new(redisStorage)

type redisStorage struct {
	*baseDao
	relays *redisRelayDao
	runs   *redisRunDao
	outbox *redisOutboxDao
}

func NewRedisStorage(conf config.RedisConfig) *redisStorage {
	base := newBaseDao(conf)
	return &redisStorage{
		baseDao: base,
		relays:  newRedisRelayDao(base),
		runs:    newRedisRunDao(base),
		outbox:  newRedisOutboxDao(base),
	}
}

func (s *redisStorage) Relays() persistence.RelayDao {
	return s.relays
}

func (s *redisStorage) Runs() persistence.RunDao {
	return s.runs
}

func (s *redisStorage) Outbox() persistence.OutboxDao {
	return s.outbox
}

func (s *redisStorage) CreateRunAndScheduleStart(run *model.Run, entry *model.OutboxEntry) error {
	ctx := context.Background()
	_, err := s.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		if err := s.runs.writeTo(ctx, pipe, run); err != nil {
			return err
		}
		return s.outbox.insert(ctx, pipe, entry)
	})
	if err != nil {
		logger.Error("error creating run with start entry", zap.String("runId", run.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// CompleteStage rewrites the run document and writes the next outbox entry in
// one MULTI/EXEC block. The run read before the pipeline is safe to reuse:
// the stage consumer is the only writer for an active run.
func (s *redisStorage) CompleteStage(runId string, entry model.ExecutionHistoryEntry, next *model.OutboxEntry, final *model.RunStatus) error {
	run, err := s.runs.Get(runId)
	if err != nil {
		return err
	}
	run.ExecutionHistory = append(run.ExecutionHistory, entry)
	if next != nil {
		run.CurrentStage = next.Stage
	}
	if final != nil && !run.Status.Terminal() {
		now := time.Now()
		run.Status = *final
		run.CompletedAt = &now
		if *final == model.RUN_STATUS_FAILED && len(entry.Error) != 0 {
			run.ErrorMessage = entry.Error
		}
	}
	ctx := context.Background()
	_, err = s.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		if err := s.runs.writeTo(ctx, pipe, run); err != nil {
			return err
		}
		if next != nil {
			return s.outbox.insert(ctx, pipe, next)
		}
		return nil
	})
	if err != nil {
		logger.Error("error completing stage", zap.String("runId", runId), zap.Int("stage", entry.ActionOrder), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
