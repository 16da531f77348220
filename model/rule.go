// Package model holds the shared domain and wire types for the automation
// console: rules, actions, integrations, and the error envelope exchanged
// with the UI and the automation backend.
package model

import "time"

// Reserved action envelope keys. User-supplied parameters may not shadow
// these; a merge drops them and reports the dropped keys.
const (
	ReservedKeyPlatform      = "platform"
	ReservedKeyAction        = "action"
	ReservedKeyIntegrationID = "integration_id"
)

// Rule is a trigger plus an ordered action sequence, the unit persisted by
// the automation backend. ID is empty until the rule has been persisted.
// TriggerData is kept as raw text: JSON well-formedness is checked lazily
// at preview/submit time, never on keystroke.
type Rule struct {
	ID              string    `json:"id,omitempty"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	TriggerPlatform string    `json:"trigger_platform"`
	TriggerEvent    string    `json:"trigger_event"`
	TriggerData     string    `json:"trigger_data"`
	Actions         []Action  `json:"actions"`
	CreatedAt       time.Time `json:"created_at,omitzero"`
}

// Action is one step to execute against an integration platform. The
// envelope fields (Platform, ActionType, IntegrationID) are fixed; all
// user-supplied parameters live in the separate Params map so that a
// free-form merge can never overwrite the envelope.
type Action struct {
	Platform      string         `json:"platform"`
	ActionType    string         `json:"action"`
	IntegrationID string         `json:"integration_id,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
}

// Clone returns a deep copy of the action. Params values are copied one
// level deep, which is sufficient because a committed action is never
// mutated through its parameter map afterwards.
func (a Action) Clone() Action {
	c := a
	if a.Params != nil {
		c.Params = make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			c.Params[k] = v
		}
	}
	return c
}

// Integration is a stored credential/config record bound to a platform.
// It is owned by the automation backend and referenced read-only here.
type Integration struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	IntegrationType string            `json:"integration_type"`
	Config          map[string]string `json:"config,omitempty"`
	CreatedAt       time.Time         `json:"created_at,omitzero"`
	UpdatedAt       time.Time         `json:"updated_at,omitzero"`
}

// Option is one selectable {value,label} entry in a catalog sequence.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// TestConnectionRequest asks the backend to verify a credential config
// without saving it.
type TestConnectionRequest struct {
	IntegrationType string            `json:"integration_type"`
	Config          map[string]string `json:"config"`
}

// TestConnectionResult is the backend's verdict on a credential config.
type TestConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
