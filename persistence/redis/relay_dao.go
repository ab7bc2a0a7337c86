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

var _ persistence.RelayDao = new(redisRelayDao)

type redisRelayDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.Relay]
}

func newRedisRelayDao(base *baseDao) *redisRelayDao {
	return &redisRelayDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Relay](),
	}
}

func (dao *redisRelayDao) Save(relay *model.Relay) error {
	key := dao.getNamespaceKey(RELAY_KEY)
	ctx := context.Background()
	data, err := dao.encoderDecoder.Encode(*relay)
	if err != nil {
		return err
	}
	if err := dao.redisClient.HSet(ctx, key, []string{relay.Id, string(data)}).Err(); err != nil {
		logger.Error("error saving relay", zap.String("relayId", relay.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *redisRelayDao) Get(id string) (*model.Relay, error) {
	key := dao.getNamespaceKey(RELAY_KEY)
	ctx := context.Background()
	relayStr, err := dao.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "relay", Id: id}
		}
		logger.Error("error getting relay", zap.String("relayId", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return dao.encoderDecoder.Decode([]byte(relayStr))
}

func (dao *redisRelayDao) List(userId string) ([]*model.Relay, error) {
	key := dao.getNamespaceKey(RELAY_KEY)
	ctx := context.Background()
	all, err := dao.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error listing relays", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	relays := make([]*model.Relay, 0, len(all))
	for _, relayStr := range all {
		relay, err := dao.encoderDecoder.Decode([]byte(relayStr))
		if err != nil {
			return nil, err
		}
		if len(userId) == 0 || relay.UserId == userId {
			relays = append(relays, relay)
		}
	}
	return relays, nil
}

func (dao *redisRelayDao) RecordTrigger(id string, at time.Time) error {
	relay, err := dao.Get(id)
	if err != nil {
		return err
	}
	relay.RunCount++
	relay.LastRunAt = &at
	return dao.Save(relay)
}
