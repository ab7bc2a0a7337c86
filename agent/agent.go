package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/relaypoint/relaypoint/action"
	"github.com/relaypoint/relaypoint/broker"
	brokerinmem "github.com/relaypoint/relaypoint/broker/inmem"
	brokerredis "github.com/relaypoint/relaypoint/broker/redis"
	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/consumer"
	"github.com/relaypoint/relaypoint/executor"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/metadata"
	"github.com/relaypoint/relaypoint/notifier"
	"github.com/relaypoint/relaypoint/persistence"
	storageinmem "github.com/relaypoint/relaypoint/persistence/inmem"
	storageredis "github.com/relaypoint/relaypoint/persistence/redis"
	storagesqlite "github.com/relaypoint/relaypoint/persistence/sqlite"
	"github.com/relaypoint/relaypoint/publisher"
	"github.com/relaypoint/relaypoint/rest"
	"github.com/relaypoint/relaypoint/service"
)

// Agent assembles and runs one relaypoint node: storage, broker, the outbox
// publisher, the stage consumer and the http surface. Every node runs all
// roles; scaling out adds consumers to the same group.
type Agent struct {
	Config config.Config

	storage          persistence.Storage
	broker           broker.Broker
	registry         *action.Registry
	executor         *executor.ActionExecutor
	notifier         *notifier.BrokerNotifier
	metadataService  metadata.MetadataService
	executionService *service.WorkflowExecutionService
	stageConsumer    *consumer.StageConsumer
	outboxPublisher  *publisher.OutboxPublisher
	httpServer       *rest.Server

	consumerCtx    context.Context
	consumerCancel context.CancelFunc
	shutdown       bool
	shutdownLock   sync.Mutex
	wg             sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	a.consumerCtx, a.consumerCancel = context.WithCancel(context.Background())
	setup := []func() error{
		a.setupStorage,
		a.setupBroker,
		a.setupRegistry,
		a.setupNotifier,
		a.setupServices,
		a.setupPublisher,
		a.setupConsumer,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_SQLITE:
		st, err := storagesqlite.NewSqliteStorage(a.Config.SqliteConfig)
		if err != nil {
			return err
		}
		a.storage = st
	case config.STORAGE_TYPE_INMEM:
		a.storage = storageinmem.NewInMemStorage()
	default:
		a.storage = storageredis.NewRedisStorage(a.Config.RedisConfig)
	}
	return nil
}

func (a *Agent) setupBroker() error {
	switch a.Config.BrokerType {
	case config.BROKER_TYPE_INMEM:
		a.broker = brokerinmem.NewInMemBroker(a.Config.Partitions)
	default:
		a.broker = brokerredis.NewRedisBroker(a.Config.RedisConfig, a.Config.Partitions, uuid.New().String())
	}
	return nil
}

func (a *Agent) setupRegistry() error {
	a.registry = action.NewRegistry()
	a.registry.Register(action.NewWebhookAction())
	a.registry.Register(action.NewDelayAction())
	a.registry.Register(action.NewConditionalAction())
	a.registry.Register(action.NewEmailAction(a.Config.SmtpConfig))
	a.registry.Register(action.NewSolanaAction(a.Config.SolanaConfig))
	a.executor = executor.NewActionExecutor(a.registry)
	return nil
}

func (a *Agent) setupNotifier() error {
	a.notifier = notifier.NewBrokerNotifier(a.broker, &a.wg)
	a.notifier.Start()
	return nil
}

func (a *Agent) setupServices() error {
	a.metadataService = metadata.NewMetadataService(a.storage.Relays(), a.registry)
	a.executionService = service.NewWorkflowExecutionService(a.storage)
	return nil
}

func (a *Agent) setupPublisher() error {
	a.outboxPublisher = publisher.NewOutboxPublisher(a.storage, a.broker, a.Config.PublisherConfig, &a.wg)
	a.outboxPublisher.Start()
	return nil
}

func (a *Agent) setupConsumer() error {
	a.stageConsumer = consumer.NewStageConsumer(a.storage, a.broker, a.executor, a.notifier, a.Config.ConsumerConfig)
	return a.stageConsumer.Start(a.consumerCtx)
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.executionService)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Info("http server stopped")
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down agent")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	a.consumerCancel()

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			a.outboxPublisher.Stop()
			return nil
		},
		func() error {
			a.notifier.Stop()
			return nil
		},
		a.broker.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
