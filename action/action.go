package action

import (
	"fmt"
	"strconv"
	"sync"
)

const ACTION_TYPE_WEBHOOK_POST string = "WEBHOOK_POST"
const ACTION_TYPE_DELAY string = "DELAY"
const ACTION_TYPE_CONDITIONAL string = "CONDITIONAL"
const ACTION_TYPE_SEND_EMAIL_SMTP string = "SEND_EMAIL_SMTP"
const ACTION_TYPE_SEND_SOL string = "SEND_SOL"

// Action executes one configured step of a relay with an already
// template-resolved configuration. Implementations talk to external systems
// and are expected to enforce their own timeouts.
type Action interface {
	GetName() string
	Validate(config map[string]any) error
	Execute(config map[string]any) (map[string]any, error)
}

// Registry maps action type tags to handlers. Built once at startup;
// the executor only reads it.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

func (r *Registry) Register(act Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[act.GetName()] = act
}

func (r *Registry) Get(actionType string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	act, ok := r.actions[actionType]
	return act, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}
	return types
}

func stringParam(config map[string]any, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || len(s) == 0 {
		return "", false
	}
	return s, true
}

// numberParam accepts native JSON numbers as well as numeric strings, since
// template resolution stringifies substituted values.
func numberParam(config map[string]any, key string) (float64, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func requireParams(config map[string]any, keys ...string) error {
	for _, key := range keys {
		if _, ok := config[key]; !ok {
			return fmt.Errorf("missing required config field %q", key)
		}
	}
	return nil
}
