package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/relaypoint/relaypoint/broker"
	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/executor"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/notifier"
	"github.com/relaypoint/relaypoint/persistence"
	"github.com/relaypoint/relaypoint/util"
	"go.uber.org/zap"
)

// StageConsumer drives runs forward one stage per delivered event. The
// offset for a message is committed only after every durable write for that
// stage has succeeded; a crash in between causes redelivery, never a lost
// stage. Errors split two ways: configuration problems fail the run and
// commit, storage problems leave the offset uncommitted so the broker
// redelivers.
type StageConsumer struct {
	storage    persistence.Storage
	broker     broker.Broker
	executor   *executor.ActionExecutor
	notifier   notifier.Notifier
	conf       config.ConsumerConfig
	relayCache *cache.Cache
	encDec     util.EncoderDecoder[model.StageEvent]
}

func NewStageConsumer(storage persistence.Storage, br broker.Broker, ex *executor.ActionExecutor, nf notifier.Notifier, conf config.ConsumerConfig) *StageConsumer {
	return &StageConsumer{
		storage:    storage,
		broker:     br,
		executor:   ex,
		notifier:   nf,
		conf:       conf,
		relayCache: cache.New(30*time.Second, time.Minute),
		encDec:     util.NewJsonEncoderDecoder[model.StageEvent](),
	}
}

func (c *StageConsumer) Start(ctx context.Context) error {
	return c.broker.Subscribe(ctx, broker.TOPIC_WORKFLOWS, c.conf.GroupId, c.handleMessage)
}

func (c *StageConsumer) handleMessage(msg broker.Message) error {
	event, err := c.encDec.Decode(msg.Value)
	if err != nil {
		logger.Warn("dropping undecodable stage event", zap.String("key", msg.Key), zap.Error(err))
		return nil
	}
	switch event.EventType {
	case model.EVENT_TYPE_WORKFLOW_START:
		return c.handleWorkflowStart(event)
	case model.EVENT_TYPE_STAGE_EXECUTION:
		return c.executeStage(event.RunId, event.Stage)
	default:
		logger.Warn("unknown event type", zap.String("eventType", string(event.EventType)), zap.String("runId", event.RunId))
		return nil
	}
}

func (c *StageConsumer) handleWorkflowStart(event *model.StageEvent) error {
	if err := c.storage.Runs().MarkStarted(event.RunId, time.Now()); err != nil {
		return c.classify(event.RunId, err)
	}
	return c.executeStage(event.RunId, 0)
}

func (c *StageConsumer) executeStage(runId string, stage int) error {
	run, err := c.storage.Runs().Get(runId)
	if err != nil {
		return c.classify(runId, err)
	}
	if run.Status.Terminal() {
		// Redelivery of an already finished run.
		logger.Debug("run already terminal, skipping stage", zap.String("runId", runId), zap.Int("stage", stage))
		return nil
	}
	for _, h := range run.ExecutionHistory {
		if h.ActionOrder == stage {
			logger.Debug("stage already recorded, skipping", zap.String("runId", runId), zap.Int("stage", stage))
			return nil
		}
	}
	relay, err := c.getRelay(run.RelayId)
	if err != nil {
		return c.classify(runId, err)
	}
	act := relay.ActionAt(stage)
	if act == nil {
		return c.failRun(runId, fmt.Sprintf("relay %s has no action at order %d", relay.Id, stage))
	}

	entry, err := c.executor.Execute(act, run.TriggerMetadata)
	if err != nil {
		// The only executor error is a missing handler for the action type.
		return c.failRun(runId, err.Error())
	}

	var next *model.OutboxEntry
	var final *model.RunStatus
	if stage >= len(relay.Actions)-1 {
		status := model.RUN_STATUS_SUCCESS
		if entry.Status == model.EXECUTION_STATUS_FAILED {
			status = model.RUN_STATUS_FAILED
		}
		final = &status
	} else {
		next = model.NewStageExecutionEntry(runId, stage+1)
	}
	if err := c.storage.CompleteStage(runId, entry, next, final); err != nil {
		return c.classify(runId, err)
	}
	logger.Info("stage completed",
		zap.String("runId", runId),
		zap.Int("stage", stage),
		zap.String("action", act.Name),
		zap.String("status", string(entry.Status)))

	if final != nil {
		if completed, gerr := c.storage.Runs().Get(runId); gerr == nil {
			c.notifier.NotifyCompletion(completed)
		}
	}
	return nil
}

// failRun records a configuration failure as the run's terminal state and
// acks the message; redelivering a misconfigured run would fail the same way
// forever.
func (c *StageConsumer) failRun(runId string, message string) error {
	logger.Error("failing run on configuration error", zap.String("runId", runId), zap.String("reason", message))
	if err := c.storage.Runs().MarkTerminal(runId, model.RUN_STATUS_FAILED, message, time.Now()); err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			// The run itself is gone; nothing left to fail.
			return nil
		}
		return err
	}
	if run, err := c.storage.Runs().Get(runId); err == nil {
		c.notifier.NotifyCompletion(run)
	}
	return nil
}

// classify turns storage errors into redeliveries and everything else into a
// failed run. A missing run or relay cannot be fixed by retrying.
func (c *StageConsumer) classify(runId string, err error) error {
	var notFound persistence.NotFoundError
	if errors.As(err, &notFound) {
		return c.failRun(runId, err.Error())
	}
	return err
}

func (c *StageConsumer) getRelay(relayId string) (*model.Relay, error) {
	if cached, ok := c.relayCache.Get(relayId); ok {
		return cached.(*model.Relay), nil
	}
	relay, err := c.storage.Relays().Get(relayId)
	if err != nil {
		return nil, err
	}
	c.relayCache.Set(relayId, relay, cache.DefaultExpiration)
	return relay, nil
}
