package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/relaypoint/relaypoint/broker"
	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"github.com/relaypoint/relaypoint/util"
	"go.uber.org/zap"
)

// OutboxPublisher drains the outbox to the broker. Each cycle first reverts
// processing claims older than the claim timeout, then claims a batch of
// pending entries, publishes them keyed by run id, and deletes them on
// success. On failure the claimed entries go back to pending for the next
// cycle, which makes publishing at-least-once; the broker may therefore see
// the same event twice and consumers handle that.
type OutboxPublisher struct {
	storage    persistence.Storage
	broker     broker.Broker
	conf       config.PublisherConfig
	encDec     util.EncoderDecoder[model.StageEvent]
	tickWorker *util.TickWorker
	stop       chan struct{}
	wg         *sync.WaitGroup
}

const defaultClaimTimeout = 30 * time.Second

func NewOutboxPublisher(storage persistence.Storage, br broker.Broker, conf config.PublisherConfig, wg *sync.WaitGroup) *OutboxPublisher {
	if conf.ClaimTimeout <= 0 {
		conf.ClaimTimeout = defaultClaimTimeout
	}
	p := &OutboxPublisher{
		storage: storage,
		broker:  br,
		conf:    conf,
		encDec:  util.NewJsonEncoderDecoder[model.StageEvent](),
		stop:    make(chan struct{}),
		wg:      wg,
	}
	p.tickWorker = util.NewTickWorker("outbox-publisher", conf.PollInterval, p.stop, p.publishCycle, wg)
	return p
}

func (p *OutboxPublisher) Start() {
	p.tickWorker.Start()
}

func (p *OutboxPublisher) Stop() {
	if p.tickWorker.IsRunning() {
		p.tickWorker.Stop()
	}
}

func (p *OutboxPublisher) publishCycle() {
	recovered, err := p.storage.Outbox().RecoverStale(p.conf.ClaimTimeout)
	if err != nil {
		logger.Error("failed to recover stale outbox claims", zap.Error(err))
	} else if recovered > 0 {
		logger.Warn("recovered stale outbox claims", zap.Int("count", recovered))
	}
	entries, err := p.storage.Outbox().PollPending(p.conf.BatchSize)
	if err != nil {
		logger.Error("outbox poll failed", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}
	if err := p.storage.Outbox().MarkProcessing(entries); err != nil {
		logger.Error("failed to claim outbox entries", zap.Error(err))
		return
	}
	if err := p.publishBatch(entries); err != nil {
		logger.Error("publish failed, reverting outbox entries", zap.Int("count", len(entries)), zap.Error(err))
		if rerr := p.storage.Outbox().MarkPending(entries); rerr != nil {
			// Entries stranded in processing need operator attention.
			logger.Error("failed to revert outbox entries", zap.Error(rerr))
		}
		return
	}
	if err := p.storage.Outbox().Delete(entries); err != nil {
		// The batch is already on the broker. The entries stay claimed until
		// the claim timeout expires, then stale-claim recovery reverts them
		// to pending, they get republished, and the consumer absorbs the
		// duplicates.
		logger.Error("failed to delete published outbox entries", zap.Error(err))
		return
	}
	logger.Debug("outbox batch published", zap.Int("count", len(entries)))
}

func (p *OutboxPublisher) publishBatch(entries []*model.OutboxEntry) error {
	msgs := make([]broker.Message, 0, len(entries))
	for _, entry := range entries {
		data, err := p.encDec.Encode(entry.ToStageEvent())
		if err != nil {
			return err
		}
		msgs = append(msgs, broker.Message{Key: entry.RunId, Value: data})
	}
	operation := func() error {
		return p.broker.Publish(context.Background(), broker.TOPIC_WORKFLOWS, msgs)
	}
	return backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.conf.MaxRetries))
}
