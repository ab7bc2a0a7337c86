package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"go.uber.org/zap"
)

// WorkflowExecutionService starts runs and reads them back. Starting a run
// writes the pending run and its start event to storage in one transaction;
// the outbox publisher takes it from there. Nothing executes inline, so a
// broker outage delays a run but never loses it.
type WorkflowExecutionService struct {
	storage persistence.Storage
}

func NewWorkflowExecutionService(storage persistence.Storage) *WorkflowExecutionService {
	return &WorkflowExecutionService{storage: storage}
}

func (s *WorkflowExecutionService) TriggerRun(relayId string, triggerMetadata map[string]any) (*model.Run, error) {
	relay, err := s.storage.Relays().Get(relayId)
	if err != nil {
		return nil, err
	}
	if !relay.Active {
		return nil, fmt.Errorf("relay %s is not active", relayId)
	}
	runId := uuid.New().String()
	run := model.NewRun(runId, relay.Id, relay.UserId, triggerMetadata)
	entry := model.NewWorkflowStartEntry(runId, map[string]any{"relayId": relay.Id})
	if err := s.storage.CreateRunAndScheduleStart(run, entry); err != nil {
		return nil, err
	}
	if err := s.storage.Relays().RecordTrigger(relay.Id, time.Now()); err != nil {
		logger.Warn("failed to record trigger on relay", zap.String("relayId", relay.Id), zap.Error(err))
	}
	logger.Info("run created", zap.String("runId", runId), zap.String("relayId", relay.Id))
	return run, nil
}

func (s *WorkflowExecutionService) GetRun(id string) (*model.Run, error) {
	return s.storage.Runs().Get(id)
}
