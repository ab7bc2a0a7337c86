package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"github.com/stretchr/testify/require"
)

func TestSqliteStorage(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, storage *sqliteStorage,
	){
		"test relay roundtrip":            testRelayRoundtrip,
		"test run lifecycle":              testRunLifecycle,
		"test outbox claim cycle":         testOutboxClaimCycle,
		"test stale claims recovered":     testStaleClaimsRecovered,
		"test complete stage terminal":    testCompleteStageTerminal,
		"test missing records not found":  testNotFound,
		"test connection pragmas applied": testConnectionPragmas,
	} {
		t.Run(scenario, func(t *testing.T) {
			storage, err := NewSqliteStorage(config.SqliteConfig{
				Path: filepath.Join(t.TempDir(), "test.db"),
			})
			require.NoError(t, err)
			defer storage.Close()
			fn(t, storage)
		})
	}
}

func testRelay() *model.Relay {
	return &model.Relay{
		Id:     "relay-1",
		UserId: "user-1",
		Name:   "welcome mail",
		Active: true,
		Trigger: model.TriggerInstance{
			TriggerType: model.TRIGGER_TYPE_INCOMING_WEBHOOK,
			Name:        "signup hook",
			Config:      map[string]any{"secret": "s3cret"},
		},
		Actions: []model.ActionInstance{
			{ActionType: "DELAY", Name: "wait", Order: 0, Config: map[string]any{"delayMs": 100}},
		},
		CreatedAt: time.Now(),
	}
}

func testRelayRoundtrip(t *testing.T, storage *sqliteStorage) {
	relay := testRelay()
	require.NoError(t, storage.Relays().Save(relay))

	stored, err := storage.Relays().Get("relay-1")
	require.NoError(t, err)
	require.Equal(t, relay.Name, stored.Name)
	require.True(t, stored.Active)
	require.Equal(t, "s3cret", stored.Trigger.Config["secret"])
	require.Len(t, stored.Actions, 1)

	// Save is an upsert.
	relay.Name = "renamed"
	require.NoError(t, storage.Relays().Save(relay))
	stored, err = storage.Relays().Get("relay-1")
	require.NoError(t, err)
	require.Equal(t, "renamed", stored.Name)

	relays, err := storage.Relays().List("user-1")
	require.NoError(t, err)
	require.Len(t, relays, 1)

	require.NoError(t, storage.Relays().RecordTrigger("relay-1", time.Now()))
	stored, err = storage.Relays().Get("relay-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.RunCount)
	require.NotNil(t, stored.LastRunAt)
}

func testRunLifecycle(t *testing.T, storage *sqliteStorage) {
	require.NoError(t, storage.Relays().Save(testRelay()))
	run := model.NewRun("run-1", "relay-1", "user-1", map[string]any{"source": "test"})
	entry := model.NewWorkflowStartEntry("run-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, entry))

	stored, err := storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_PENDING, stored.Status)
	require.Equal(t, "test", stored.TriggerMetadata["source"])

	require.NoError(t, storage.Runs().MarkStarted("run-1", time.Now()))
	stored, err = storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_RUNNING, stored.Status)
	require.NotNil(t, stored.StartedAt)

	next := model.NewStageExecutionEntry("run-1", 1)
	history := model.ExecutionHistoryEntry{
		ActionOrder: 0,
		ActionName:  "wait",
		Status:      model.EXECUTION_STATUS_SUCCESS,
		Output:      `{"delayedMs":100}`,
		ExecutedAt:  time.Now(),
		Duration:    100,
	}
	require.NoError(t, storage.CompleteStage("run-1", history, next, nil))

	stored, err = storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, 1, stored.CurrentStage)
	require.Len(t, stored.ExecutionHistory, 1)
	require.Equal(t, "wait", stored.ExecutionHistory[0].ActionName)

	// Terminal status is guarded against regressions.
	require.NoError(t, storage.Runs().MarkTerminal("run-1", model.RUN_STATUS_SUCCESS, "", time.Now()))
	require.NoError(t, storage.Runs().MarkTerminal("run-1", model.RUN_STATUS_FAILED, "late", time.Now()))
	stored, err = storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_SUCCESS, stored.Status)
}

func testOutboxClaimCycle(t *testing.T, storage *sqliteStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	old := model.NewWorkflowStartEntry("run-1", nil)
	old.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, old))

	newer := model.NewStageExecutionEntry("run-1", 1)
	require.NoError(t, storage.CompleteStage("run-1", model.ExecutionHistoryEntry{ActionOrder: 0, ActionName: "a", Status: model.EXECUTION_STATUS_SUCCESS, ExecutedAt: time.Now()}, newer, nil))

	pending, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, old.Id, pending[0].Id)

	require.NoError(t, storage.Outbox().MarkProcessing(pending))
	empty, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, storage.Outbox().MarkPending(pending))
	back, err := storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Len(t, back, 2)

	require.NoError(t, storage.Outbox().Delete(back))
	empty, err = storage.Outbox().PollPending(10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testStaleClaimsRecovered(t *testing.T, storage *sqliteStorage) {
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
}

func testConnectionPragmas(t *testing.T, storage *sqliteStorage) {
	var journalMode string
	require.NoError(t, storage.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, storage.db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, storage.db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)
}

func testCompleteStageTerminal(t *testing.T, storage *sqliteStorage) {
	run := model.NewRun("run-1", "relay-1", "user-1", nil)
	require.NoError(t, storage.CreateRunAndScheduleStart(run, model.NewWorkflowStartEntry("run-1", nil)))
	require.NoError(t, storage.Runs().MarkStarted("run-1", time.Now()))

	final := model.RUN_STATUS_FAILED
	entry := model.ExecutionHistoryEntry{
		ActionOrder: 0,
		ActionName:  "only",
		Status:      model.EXECUTION_STATUS_FAILED,
		Error:       "boom",
		ExecutedAt:  time.Now(),
	}
	require.NoError(t, storage.CompleteStage("run-1", entry, nil, &final))

	stored, err := storage.Runs().Get("run-1")
	require.NoError(t, err)
	require.Equal(t, model.RUN_STATUS_FAILED, stored.Status)
	require.Equal(t, "boom", stored.ErrorMessage)
	require.NotNil(t, stored.CompletedAt)
}

func testNotFound(t *testing.T, storage *sqliteStorage) {
	_, err := storage.Relays().Get("ghost")
	require.ErrorAs(t, err, &persistence.NotFoundError{})

	_, err = storage.Runs().Get("ghost")
	require.ErrorAs(t, err, &persistence.NotFoundError{})
}
