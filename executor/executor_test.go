package executor

import (
	"fmt"
	"testing"

	"github.com/relaypoint/relaypoint/action"
	"github.com/relaypoint/relaypoint/model"
	"github.com/stretchr/testify/require"
)

type stubAction struct {
	name string
	fn   func(config map[string]any) (map[string]any, error)
}

func (a *stubAction) GetName() string                          { return a.name }
func (a *stubAction) Validate(config map[string]any) error     { return nil }
func (a *stubAction) Execute(config map[string]any) (map[string]any, error) {
	return a.fn(config)
}

func TestActionExecutor(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, registry *action.Registry, ex *ActionExecutor,
	){
		"test success records output":      testSuccessOutput,
		"test handler error records entry": testHandlerError,
		"test panic records entry":         testPanicRecovered,
		"test missing handler errors":      testMissingHandler,
		"test config resolved before run":  testConfigResolved,
	} {
		t.Run(scenario, func(t *testing.T) {
			registry := action.NewRegistry()
			fn(t, registry, NewActionExecutor(registry))
		})
	}
}

func testSuccessOutput(t *testing.T, registry *action.Registry, ex *ActionExecutor) {
	registry.Register(&stubAction{name: "STUB", fn: func(config map[string]any) (map[string]any, error) {
		return map[string]any{"sent": true}, nil
	}})
	act := &model.ActionInstance{ActionType: "STUB", Name: "step", Order: 2, Config: map[string]any{}}

	entry, err := ex.Execute(act, nil)
	require.NoError(t, err)
	require.Equal(t, model.EXECUTION_STATUS_SUCCESS, entry.Status)
	require.Equal(t, 2, entry.ActionOrder)
	require.Equal(t, "step", entry.ActionName)
	require.JSONEq(t, `{"sent":true}`, entry.Output)
	require.Empty(t, entry.Error)
}

func testHandlerError(t *testing.T, registry *action.Registry, ex *ActionExecutor) {
	registry.Register(&stubAction{name: "STUB", fn: func(config map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("timed out")
	}})
	act := &model.ActionInstance{ActionType: "STUB", Name: "step", Order: 0, Config: map[string]any{}}

	entry, err := ex.Execute(act, nil)
	require.NoError(t, err)
	require.Equal(t, model.EXECUTION_STATUS_FAILED, entry.Status)
	require.Equal(t, "timed out", entry.Error)
}

func testPanicRecovered(t *testing.T, registry *action.Registry, ex *ActionExecutor) {
	registry.Register(&stubAction{name: "STUB", fn: func(config map[string]any) (map[string]any, error) {
		panic("nil map write")
	}})
	act := &model.ActionInstance{ActionType: "STUB", Name: "step", Order: 0, Config: map[string]any{}}

	entry, err := ex.Execute(act, nil)
	require.NoError(t, err)
	require.Equal(t, model.EXECUTION_STATUS_FAILED, entry.Status)
	require.Contains(t, entry.Error, "nil map write")
}

func testMissingHandler(t *testing.T, registry *action.Registry, ex *ActionExecutor) {
	act := &model.ActionInstance{ActionType: "NO_SUCH_TYPE", Name: "step", Order: 0, Config: map[string]any{}}
	_, err := ex.Execute(act, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "NO_SUCH_TYPE")
}

func testConfigResolved(t *testing.T, registry *action.Registry, ex *ActionExecutor) {
	var got map[string]any
	registry.Register(&stubAction{name: "STUB", fn: func(config map[string]any) (map[string]any, error) {
		got = config
		return nil, nil
	}})
	act := &model.ActionInstance{ActionType: "STUB", Name: "step", Order: 0, Config: map[string]any{
		"to":      "{user.email}",
		"subject": "hi {user.missing}",
	}}

	_, err := ex.Execute(act, map[string]any{"user": map[string]any{"email": "a@b.com"}})
	require.NoError(t, err)
	require.Equal(t, "a@b.com", got["to"])
	require.Equal(t, "hi {user.missing}", got["subject"])
}
