package executor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaypoint/relaypoint/action"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/util"
	"go.uber.org/zap"
)

// ActionExecutor runs one stage of a relay and converts the outcome into an
// execution history entry. A handler failure is data, not an error; the entry
// records it and the run moves on. The only error Execute returns is a
// missing handler, which the caller treats as a configuration problem.
type ActionExecutor struct {
	registry *action.Registry
}

func NewActionExecutor(registry *action.Registry) *ActionExecutor {
	return &ActionExecutor{registry: registry}
}

func (ex *ActionExecutor) Execute(act *model.ActionInstance, triggerMetadata map[string]any) (model.ExecutionHistoryEntry, error) {
	handler, ok := ex.registry.Get(act.ActionType)
	if !ok {
		return model.ExecutionHistoryEntry{}, fmt.Errorf("no handler registered for action type %s", act.ActionType)
	}

	resolved := util.ResolveActionParams(act.Config, triggerMetadata)

	start := time.Now()
	output, err := ex.runHandler(handler, act, resolved)
	elapsed := time.Since(start).Milliseconds()

	entry := model.ExecutionHistoryEntry{
		ActionOrder: act.Order,
		ActionName:  act.Name,
		ExecutedAt:  start,
		Duration:    elapsed,
	}
	if err != nil {
		logger.Info("action failed", zap.String("action", act.Name), zap.String("type", act.ActionType), zap.Error(err))
		entry.Status = model.EXECUTION_STATUS_FAILED
		entry.Error = err.Error()
		return entry, nil
	}
	entry.Status = model.EXECUTION_STATUS_SUCCESS
	if output != nil {
		data, merr := json.Marshal(output)
		if merr != nil {
			logger.Warn("action output not serializable", zap.String("action", act.Name), zap.Error(merr))
		} else {
			entry.Output = string(data)
		}
	}
	return entry, nil
}

// runHandler isolates handler panics so a misbehaving action fails its stage
// instead of killing the consumer.
func (ex *ActionExecutor) runHandler(handler action.Action, act *model.ActionInstance, config map[string]any) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("action panicked", zap.String("action", act.Name), zap.Any("panic", r))
			output = nil
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return handler.Execute(config)
}
