package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunStatusTerminal(t *testing.T) {
	require.False(t, RUN_STATUS_PENDING.Terminal())
	require.False(t, RUN_STATUS_RUNNING.Terminal())
	require.True(t, RUN_STATUS_SUCCESS.Terminal())
	require.True(t, RUN_STATUS_FAILED.Terminal())
	require.True(t, RUN_STATUS_CANCELLED.Terminal())
}

func TestTotalDuration(t *testing.T) {
	run := NewRun("run-1", "relay-1", "user-1", nil)
	require.Equal(t, int64(0), run.TotalDuration())

	started := time.Now()
	completed := started.Add(1500 * time.Millisecond)
	run.StartedAt = &started
	run.CompletedAt = &completed
	require.Equal(t, int64(1500), run.TotalDuration())
}

func TestActionAt(t *testing.T) {
	relay := &Relay{Actions: []ActionInstance{
		{Name: "second", Order: 1},
		{Name: "first", Order: 0},
	}}
	require.Equal(t, "first", relay.ActionAt(0).Name)
	require.Equal(t, "second", relay.ActionAt(1).Name)
	require.Nil(t, relay.ActionAt(2))
}

func TestOutboxEntryToStageEvent(t *testing.T) {
	entry := NewStageExecutionEntry("run-1", 3)
	require.Equal(t, OUTBOX_STATUS_PENDING, entry.Status)
	require.NotEmpty(t, entry.Id)

	event := entry.ToStageEvent()
	require.Equal(t, "run-1", event.RunId)
	require.Equal(t, 3, event.Stage)
	require.Equal(t, EVENT_TYPE_STAGE_EXECUTION, event.EventType)
	require.Equal(t, entry.Id, event.MessageId)
}
