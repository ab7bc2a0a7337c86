package persistence

import (
	"time"

	"github.com/relaypoint/relaypoint/model"
)

// RelayDao stores workflow definitions. The execution engine reads them only;
// RecordTrigger is bookkeeping for trigger collaborators.
type RelayDao interface {
	Save(relay *model.Relay) error
	Get(id string) (*model.Relay, error)
	List(userId string) ([]*model.Relay, error)
	RecordTrigger(id string, at time.Time) error
}

type RunDao interface {
	Get(id string) (*model.Run, error)
	// MarkStarted moves a pending run to running and stamps startedAt. A run
	// already terminal is left untouched; statuses only move forward.
	MarkStarted(id string, at time.Time) error
	// MarkTerminal records a terminal status with completedAt and an optional
	// error message. No-op when the run is already terminal.
	MarkTerminal(id string, status model.RunStatus, errorMessage string, at time.Time) error
}

type OutboxDao interface {
	// PollPending returns up to batchSize pending entries, oldest first.
	PollPending(batchSize int) ([]*model.OutboxEntry, error)
	MarkProcessing(entries []*model.OutboxEntry) error
	Delete(entries []*model.OutboxEntry) error
	// MarkPending reverts claimed entries so the next poll cycle retries them.
	MarkPending(entries []*model.OutboxEntry) error
	// RecoverStale reverts processing entries whose claim is older than
	// olderThan back to pending and reports how many were reverted. A claim
	// goes stale when the publisher crashes between claiming and deleting, or
	// when the delete after a successful publish fails; without recovery such
	// entries would never be polled again.
	RecoverStale(olderThan time.Duration) (int, error)
}

// Storage groups the DAOs with the two cross-entity operations that must be
// transactional. A crash between a run-state write and its paired outbox
// write would strand the run in a non-terminal state forever, so both writes
// go through one atomic commit.
type Storage interface {
	Relays() RelayDao
	Runs() RunDao
	Outbox() OutboxDao

	// CreateRunAndScheduleStart persists a new pending run together with its
	// WORKFLOW_START outbox entry.
	CreateRunAndScheduleStart(run *model.Run, entry *model.OutboxEntry) error

	// CompleteStage appends one history entry and, in the same transaction,
	// either schedules the next stage (next != nil) or records the terminal
	// status (final != nil). Exactly one of next and final is set.
	CompleteStage(runId string, entry model.ExecutionHistoryEntry, next *model.OutboxEntry, final *model.RunStatus) error
}
