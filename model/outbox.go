package model

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const EVENT_TYPE_WORKFLOW_START EventType = "WORKFLOW_START"
const EVENT_TYPE_STAGE_EXECUTION EventType = "STAGE_EXECUTION"

type OutboxStatus string

const OUTBOX_STATUS_PENDING OutboxStatus = "pending"
const OUTBOX_STATUS_PROCESSING OutboxStatus = "processing"

// OutboxEntry is a durable intent to publish one stage event. It is written
// in the same storage transaction as the run-state change that requires it,
// claimed and deleted by the publisher, and never read by the consumer.
// ClaimedAt is stamped when the publisher moves the entry to processing; an
// entry whose claim outlives the claim timeout is treated as abandoned and
// reverted to pending.
type OutboxEntry struct {
	Id        string         `json:"id"`
	RunId     string         `json:"runId"`
	Stage     int            `json:"stage"`
	EventType EventType      `json:"eventType"`
	Payload   map[string]any `json:"payload,omitempty"`
	Status    OutboxStatus   `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	ClaimedAt *time.Time     `json:"claimedAt,omitempty"`
}

func NewWorkflowStartEntry(runId string, payload map[string]any) *OutboxEntry {
	return newOutboxEntry(runId, 0, EVENT_TYPE_WORKFLOW_START, payload)
}

func NewStageExecutionEntry(runId string, stage int) *OutboxEntry {
	payload := map[string]any{"scheduledAt": time.Now().Format(time.RFC3339)}
	return newOutboxEntry(runId, stage, EVENT_TYPE_STAGE_EXECUTION, payload)
}

func newOutboxEntry(runId string, stage int, eventType EventType, payload map[string]any) *OutboxEntry {
	return &OutboxEntry{
		Id:        uuid.New().String(),
		RunId:     runId,
		Stage:     stage,
		EventType: eventType,
		Payload:   payload,
		Status:    OUTBOX_STATUS_PENDING,
		CreatedAt: time.Now(),
	}
}

// StageEvent is the broker message envelope. MessageId carries the outbox
// entry id for log correlation only, never for dedup.
type StageEvent struct {
	RunId     string         `json:"runId"`
	Stage     int            `json:"stage"`
	EventType EventType      `json:"eventType"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	MessageId string         `json:"messageId"`
}

func (e *OutboxEntry) ToStageEvent() StageEvent {
	return StageEvent{
		RunId:     e.RunId,
		Stage:     e.Stage,
		EventType: e.EventType,
		Payload:   e.Payload,
		Timestamp: e.CreatedAt,
		MessageId: e.Id,
	}
}
