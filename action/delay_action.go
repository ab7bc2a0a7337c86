package action

import (
	"fmt"
	"time"
)

var _ Action = new(delayAction)

// delayAction blocks the stage for delayMs before continuing. The wait
// happens inside the stage, so the run stays `running` for its duration.
type delayAction struct {
	maxDelay time.Duration
}

func NewDelayAction() *delayAction {
	return &delayAction{maxDelay: 5 * time.Minute}
}

func (a *delayAction) GetName() string {
	return ACTION_TYPE_DELAY
}

func (a *delayAction) Validate(config map[string]any) error {
	return requireParams(config, "delayMs")
}

func (a *delayAction) Execute(config map[string]any) (map[string]any, error) {
	delayMs, ok := numberParam(config, "delayMs")
	if !ok || delayMs < 0 {
		return nil, fmt.Errorf("delay action requires a non-negative \"delayMs\" in config")
	}
	delay := time.Duration(delayMs) * time.Millisecond
	if delay > a.maxDelay {
		return nil, fmt.Errorf("delay %v exceeds maximum %v", delay, a.maxDelay)
	}
	time.Sleep(delay)
	return map[string]any{"delayedMs": int64(delayMs)}, nil
}
