package redis

import (
	"fmt"
	"strings"

	rd "github.com/go-redis/redis/v9"
	"github.com/relaypoint/relaypoint/config"
)

const RELAY_KEY string = "RELAY"
const RUN_KEY string = "RUN"
const OUTBOX_KEY string = "OUTBOX"
const OUTBOX_PENDING_KEY string = "OUTBOX:pending"
const OUTBOX_PROCESSING_KEY string = "OUTBOX:processing"

type baseDao struct {
	redisClient rd.UniversalClient
	namespace   string
}

func newBaseDao(conf config.RedisConfig) *baseDao {
	redisClient := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs: conf.Addrs,
	})
	return &baseDao{
		redisClient: redisClient,
		namespace:   conf.Namespace,
	}
}

func (bs *baseDao) getNamespaceKey(args ...string) string {
	return fmt.Sprintf("%s:%s", bs.namespace, strings.Join(args, ":"))
}
