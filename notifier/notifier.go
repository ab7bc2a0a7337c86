package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/relaypoint/relaypoint/broker"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/util"
	"go.uber.org/zap"
)

// RunNotification announces that a run reached a terminal status.
type RunNotification struct {
	RunId        string          `json:"runId"`
	RelayId      string          `json:"relayId"`
	Status       model.RunStatus `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Duration     int64           `json:"duration"`
}

// Notifier publishes terminal run outcomes to interested collaborators.
// Delivery is best effort; a lost notification never affects the run itself.
type Notifier interface {
	NotifyCompletion(run *model.Run)
}

type noopNotifier struct{}

func NewNoopNotifier() *noopNotifier {
	return &noopNotifier{}
}

func (n *noopNotifier) NotifyCompletion(run *model.Run) {}

// BrokerNotifier pushes notifications through a single worker goroutine so
// the stage consumer never blocks on the notification topic.
type BrokerNotifier struct {
	broker broker.Broker
	worker *util.Worker
	encDec util.EncoderDecoder[RunNotification]
}

func NewBrokerNotifier(br broker.Broker, wg *sync.WaitGroup) *BrokerNotifier {
	n := &BrokerNotifier{
		broker: br,
		encDec: util.NewJsonEncoderDecoder[RunNotification](),
	}
	n.worker = util.NewWorker("notifier", wg, n.publish, 1000)
	return n
}

func (n *BrokerNotifier) Start() {
	n.worker.Start()
}

func (n *BrokerNotifier) Stop() {
	n.worker.Stop()
}

func (n *BrokerNotifier) NotifyCompletion(run *model.Run) {
	notification := RunNotification{
		RunId:        run.Id,
		RelayId:      run.RelayId,
		Status:       run.Status,
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		Duration:     run.TotalDuration(),
	}
	select {
	case n.worker.Sender() <- notification:
	default:
		logger.Warn("notification queue full, dropping", zap.String("runId", run.Id))
	}
}

func (n *BrokerNotifier) publish(task util.Task) error {
	notification, ok := task.(RunNotification)
	if !ok {
		return nil
	}
	data, err := n.encDec.Encode(notification)
	if err != nil {
		return err
	}
	msg := broker.Message{Key: notification.RunId, Value: data}
	return n.broker.Publish(context.Background(), broker.TOPIC_NOTIFICATIONS, []broker.Message{msg})
}
