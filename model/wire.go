package model

import "encoding/json"

// WireRule is the exact JSON shape exchanged with the automation backend
// for a rule. TriggerData is always a JSON-encoded string; Actions is kept
// raw because the backend has shipped two incompatible conventions for it
// (a JSON-encoded string of the action array, and the structured array
// itself) and the serializer must accept both.
type WireRule struct {
	ID              json.Number     `json:"id,omitempty"`
	UserID          int64           `json:"user_id,omitempty"`
	Name            string          `json:"name,omitempty"`
	Description     string          `json:"description,omitempty"`
	TriggerPlatform string          `json:"trigger_platform"`
	TriggerEvent    string          `json:"trigger_event"`
	TriggerData     string          `json:"trigger_data"`
	Actions         json.RawMessage `json:"actions,omitempty"`
	CreatedAt       string          `json:"created_at,omitempty"`
}

// WireIntegration is the backend's integration record shape.
type WireIntegration struct {
	ID              json.Number       `json:"id"`
	UserID          int64             `json:"user_id,omitempty"`
	Name            string            `json:"name"`
	IntegrationType string            `json:"integration_type"`
	Config          map[string]string `json:"config,omitempty"`
	IsActive        *bool             `json:"is_active,omitempty"`
	CreatedAt       string            `json:"created_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}
