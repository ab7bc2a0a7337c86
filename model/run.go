package model

import "time"

type RunStatus string

const RUN_STATUS_PENDING RunStatus = "pending"
const RUN_STATUS_RUNNING RunStatus = "running"
const RUN_STATUS_SUCCESS RunStatus = "success"
const RUN_STATUS_FAILED RunStatus = "failed"
const RUN_STATUS_CANCELLED RunStatus = "cancelled"

func (s RunStatus) Terminal() bool {
	return s == RUN_STATUS_SUCCESS || s == RUN_STATUS_FAILED || s == RUN_STATUS_CANCELLED
}

type ExecutionStatus string

const EXECUTION_STATUS_PENDING ExecutionStatus = "pending"
const EXECUTION_STATUS_SUCCESS ExecutionStatus = "success"
const EXECUTION_STATUS_FAILED ExecutionStatus = "failed"
const EXECUTION_STATUS_SKIPPED ExecutionStatus = "skipped"

// ExecutionHistoryEntry records the outcome of one stage attempt. Entries are
// appended, never rewritten; under normal operation a run holds at most one
// entry per action order. A duplicate append after broker redelivery is
// tolerated.
type ExecutionHistoryEntry struct {
	ActionOrder int             `json:"actionOrder"`
	ActionName  string          `json:"actionName"`
	Status      ExecutionStatus `json:"status"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	ExecutedAt  time.Time       `json:"executedAt"`
	Duration    int64           `json:"duration"`
}

// Run is one execution instance of a relay. Status moves forward only:
// pending -> running -> success|failed|cancelled. CurrentStage is an
// informational cache; authoritative sequencing comes from the outbox/broker
// path.
type Run struct {
	Id               string                  `json:"id"`
	RelayId          string                  `json:"relayId"`
	UserId           string                  `json:"userId"`
	Status           RunStatus               `json:"status"`
	CurrentStage     int                     `json:"currentStage"`
	TriggerMetadata  map[string]any          `json:"triggerMetadata,omitempty"`
	ExecutionHistory []ExecutionHistoryEntry `json:"executionHistory"`
	ErrorMessage     string                  `json:"errorMessage,omitempty"`
	StartedAt        *time.Time              `json:"startedAt,omitempty"`
	CompletedAt      *time.Time              `json:"completedAt,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// TotalDuration is derived from the started/completed timestamps, in
// milliseconds.
func (r *Run) TotalDuration() int64 {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt).Milliseconds()
}

func NewRun(id string, relayId string, userId string, triggerMetadata map[string]any) *Run {
	return &Run{
		Id:              id,
		RelayId:         relayId,
		UserId:          userId,
		Status:          RUN_STATUS_PENDING,
		TriggerMetadata: triggerMetadata,
		CreatedAt:       time.Now(),
	}
}
