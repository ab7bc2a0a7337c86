package inmem

import (
	"errors"
	"testing"
	"time"

	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"github.com/stretchr/testify/require"
)

func TestInMemStorage(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, storage *InMemStorage,
	){
		"test create run schedules start":    testCreateRunSchedulesStart,
		"test complete stage with next":      testCompleteStageNext,
		"test complete stage terminal":       testCompleteStageTerminal,
		"test terminal status is sticky":     testTerminalSticky,
		"test poll pending oldest first":     testPollOrder,
		"test processing entries not polled": testProcessingHidden,
		"test stale claims recovered":        testStaleClaimsRecovered,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewInMemStorage())
		})
	}
}

func testCreateRunSchedulesStart(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	entry := model.NewWorkflowStartEntry("run-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, entry))

	stored, err := storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_PENDING, stored.Status)

	pending, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, model.EVENT_TYPE_WORKFLOW_START, pending[0].EventType)

	// Writes fail together when the storage layer is down.
	storage.FailWrites = true
	err = storage.CreateRunAndScheduleStart(model.NewRun("run-2", "relay-1", "user-1", nil), model.NewWorkflowStartEntry("run-2", nil))
	var layerErr persistence.StorageLayerError
	require.True(t, errors.As(err, &layerErr))
	_, err = storage.Runs().Get("run-2")
	require.Error(t, err)
}

func testCompleteStageNext(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, model.NewWorkflowStartEntry("run-1", nil)))
	require.NoError(t, storage.Runs().MarkStarted("run-1", time.Now()))

	next := model.NewStageExecutionEntry("run-1", 1)
	entry := model.ExecutionHistoryEntry{ActionOrder: 0, ActionName: "first", Status: model.EXECUTION_STATUS_SUCCESS}
	require.NoError(t, storage.CompleteStage("run-1", entry, next, nil))

	stored, err := storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_RUNNING, stored.Status)
	require.Equal(t, 1, stored.CurrentStage)
	require.Len(t, stored.ExecutionHistory, 1)
	require.Nil(t, stored.CompletedAt)
}

func testCompleteStageTerminal(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, model.NewWorkflowStartEntry("run-1", nil)))
	require.NoError(t, storage.Runs().MarkStarted("run-1", time.Now()))

	final := model.RUN_STATUS_FAILED
	entry := model.ExecutionHistoryEntry{ActionOrder: 0, ActionName: "only", Status: model.EXECUTION_STATUS_FAILED, Error: "boom"}
	require.NoError(t, storage.CompleteStage("run-1", entry, nil, &final))

	stored, err := storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_FAILED, stored.Status)
	require.Equal(t, "boom", stored.ErrorMessage)
	require.NotNil(t, stored.CompletedAt)
}

func testTerminalSticky(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, model.NewWorkflowStartEntry("run-1", nil)))
	require.NoError(t, storage.Runs().MarkTerminal("run-1", model.RUN_STATUS_CANCELLED, "", time.Now()))

	require.NoError(t, storage.Runs().MarkStarted("run-1", time.Now()))
	require.NoError(t, storage.Runs().MarkTerminal("run-1", model.RUN_STATUS_SUCCESS, "", time.Now()))

	stored, err := storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_CANCELLED, stored.Status)
}

func testPollOrder(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	old := model.NewWorkflowStartEntry("run-1", nil)
	old.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, old))

	newer := model.NewStageExecutionEntry("run-1", 1)
	require.NoError(t, storage.CompleteStage("run-1", model.ExecutionHistoryEntry{ActionOrder: 0}, newer, nil))

	pending, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, old.Id, pending[0].Id)
	require.Equal(t, newer.Id, pending[1].Id)

	// Batch size caps the poll.
	pending, err = storage.Outbox().PollPending(1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, old.Id, pending[0].Id)
}

func testProcessingHidden(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	entry := model.NewWorkflowStartEntry("run-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, entry))

	claimed, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.NoError(t, storage.Outbox().MarkProcessing(claimed))

	pending, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, storage.Outbox().MarkPending(claimed))
	pending, err = storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, storage.Outbox().Delete(claimed))
	pending, err = storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func testStaleClaimsRecovered(t *testing.T, storage *InMemStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	entry := model.NewWorkflowStartEntry("run-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, entry))

	claimed, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.NoError(t, storage.Outbox().MarkProcessing(claimed))

	// A fresh claim is not touched.
	recovered, err := storage.Outbox().RecoverStale(time.Minute)
	require.NoError(t, err)
	require.Zero(t, recovered)
	pending, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)

	time.Sleep(5 * time.Millisecond)
	recovered, err = storage.Outbox().RecoverStale(time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	pending, err = storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, entry.Id, pending[0].Id)
	require.Nil(t, pending[0].ClaimedAt)
}
