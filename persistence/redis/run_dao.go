package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"github.com/relaypoint/relaypoint/util"
	"go.uber.org/zap"
)

var _ persistence.RunDao = new(redisRunDao)

type redisRunDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.Run]
}

func newRedisRunDao(base *baseDao) *redisRunDao {
	return &redisRunDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Run](),
	}
}

func (dao *redisRunDao) writeTo(ctx context.Context, pipe rd.Pipeliner, run *model.Run) error {
	data, err := dao.encoderDecoder.Encode(*run)
	if err != nil {
		return err
	}
	pipe.HSet(ctx, dao.getNamespaceKey(RUN_KEY), []string{run.Id, string(data)})
	return nil
}

func (dao *redisRunDao) Get(id string) (*model.Run, error) {
	key := dao.getNamespaceKey(RUN_KEY)
	ctx := context.Background()
	runStr, err := dao.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "run", Id: id}
		}
		logger.Error("error getting run", zap.String("runId", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return dao.encoderDecoder.Decode([]byte(runStr))
}

// Run documents are read-modified-written as whole JSON blobs. Safe because
// partition affinity makes the stage consumer the only writer for a given
// run while it is active.
func (dao *redisRunDao) update(id string, mutate func(*model.Run)) error {
	run, err := dao.Get(id)
	if err != nil {
		return err
	}
	mutate(run)
	ctx := context.Background()
	key := dao.getNamespaceKey(RUN_KEY)
	data, err := dao.encoderDecoder.Encode(*run)
	if err != nil {
		return err
	}
	if err := dao.redisClient.HSet(ctx, key, []string{id, string(data)}).Err(); err != nil {
		logger.Error("error saving run", zap.String("runId", id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *redisRunDao) MarkStarted(id string, at time.Time) error {
	return dao.update(id, func(run *model.Run) {
		if run.Status.Terminal() {
			return
		}
		run.Status = model.RUN_STATUS_RUNNING
		run.StartedAt = &at
	})
}

func (dao *redisRunDao) MarkTerminal(id string, status model.RunStatus, errorMessage string, at time.Time) error {
	return dao.update(id, func(run *model.Run) {
		if run.Status.Terminal() {
			return
		}
		run.Status = status
		run.CompletedAt = &at
		if len(errorMessage) != 0 {
			run.ErrorMessage = errorMessage
		}
	})
}
