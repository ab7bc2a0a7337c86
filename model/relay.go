package model

import "time"

type TriggerType string

const TRIGGER_TYPE_INCOMING_WEBHOOK TriggerType = "INCOMING_WEBHOOK"
const TRIGGER_TYPE_SCHEDULE TriggerType = "SCHEDULE"
const TRIGGER_TYPE_EMAIL_RECEIVED TriggerType = "EMAIL_RECEIVED"

// TriggerInstance is the trigger configured on a relay. The engine never
// interprets Config; trigger collaborators do.
type TriggerInstance struct {
	TriggerType TriggerType    `json:"triggerType"`
	Name        string         `json:"name"`
	Config      map[string]any `json:"config"`
}

// ActionInstance is one step of a relay pipeline. Order is a dense 0-based
// index, exactly one action per order value.
type ActionInstance struct {
	ActionType string         `json:"actionType"`
	Name       string         `json:"name"`
	Order      int            `json:"order"`
	Config     map[string]any `json:"config"`
}

// Relay is a user-owned workflow definition. Read-only to the execution
// engine; RunCount and LastRunAt are bookkeeping updated by trigger
// collaborators.
type Relay struct {
	Id          string           `json:"id"`
	UserId      string           `json:"userId"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Active      bool             `json:"active"`
	Trigger     TriggerInstance  `json:"trigger"`
	Actions     []ActionInstance `json:"actions"`
	RunCount    int64            `json:"runCount"`
	LastRunAt   *time.Time       `json:"lastRunAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// ActionAt returns the action at the given order, or nil.
func (r *Relay) ActionAt(order int) *ActionInstance {
	for i := range r.Actions {
		if r.Actions[i].Order == order {
			return &r.Actions[i]
		}
	}
	return nil
}
