// Package wire maps the in-memory Rule to and from the automation
// backend's JSON shape, including the JSON-in-JSON actions encoding. Two
// incompatible conventions for the actions field have shipped — a
// JSON-encoded string of the action array, and the structured array
// itself — so reads accept both while writes always emit the single
// canonical shape selected by configuration.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsforge/automator/model"
)

// Convention selects the canonical write shape for the actions field.
type Convention string

const (
	// ConventionString encodes actions as a JSON string holding the
	// serialized action array. This matches the deployed backend, which
	// stores the column as text.
	ConventionString Convention = "string"
	// ConventionArray encodes actions as a structured JSON array.
	ConventionArray Convention = "array"
)

// ParseConvention validates a configured convention value. An empty value
// defaults to ConventionString.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case ConventionString, "":
		return ConventionString, nil
	case ConventionArray:
		return ConventionArray, nil
	default:
		return "", fmt.Errorf("wire: unknown actions encoding %q (supported: string, array)", s)
	}
}

// Serializer converts rules between the in-memory and wire forms under a
// fixed convention.
type Serializer struct {
	convention Convention
}

// NewSerializer creates a Serializer emitting the given convention.
func NewSerializer(c Convention) *Serializer {
	if c == "" {
		c = ConventionString
	}
	return &Serializer{convention: c}
}

// Convention returns the canonical write convention.
func (s *Serializer) Convention() Convention { return s.convention }

// ValidateTriggerData checks that text parses as a JSON object and
// returns the parsed map. Arrays and scalars are rejected: trigger data
// is a predicate over the webhook payload and must be an object.
func ValidateTriggerData(text string) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, model.NewJSONParseError("trigger_data", "trigger data is not a valid JSON object")
	}
	// The literal null unmarshals into a nil map without error.
	if parsed == nil {
		return nil, model.NewJSONParseError("trigger_data", "trigger data is not a valid JSON object")
	}
	return parsed, nil
}

// ToWire encodes a rule for submission. The trigger data text is passed
// through verbatim — no whitespace normalization — and the action
// sequence is encoded per the serializer's convention. Callers gate on
// ValidateTriggerData first; ToWire itself does not re-validate.
func (s *Serializer) ToWire(r model.Rule) (model.WireRule, error) {
	actions, err := s.encodeActions(r.Actions)
	if err != nil {
		return model.WireRule{}, err
	}
	return model.WireRule{
		Name:            r.Name,
		Description:     r.Description,
		TriggerPlatform: r.TriggerPlatform,
		TriggerEvent:    r.TriggerEvent,
		TriggerData:     r.TriggerData,
		Actions:         actions,
	}, nil
}

// FromWire decodes a persisted rule. If the actions field is a string it
// is parsed as JSON into an array; if it is already a structured array it
// is used directly. A string that fails to parse yields an empty action
// sequence plus a non-fatal warning — the rule still loads so the user
// can correct it.
func (s *Serializer) FromWire(w model.WireRule) (model.Rule, string) {
	r := model.Rule{
		ID:              w.ID.String(),
		Name:            w.Name,
		Description:     w.Description,
		TriggerPlatform: w.TriggerPlatform,
		TriggerEvent:    w.TriggerEvent,
		TriggerData:     w.TriggerData,
	}
	if w.CreatedAt != "" {
		if t, err := parseBackendTime(w.CreatedAt); err == nil {
			r.CreatedAt = t
		}
	}

	actions, warning := decodeActions(w.Actions)
	r.Actions = actions
	return r, warning
}

// Preview renders the exact wire encoding that submission would send,
// indented for display. It shares the encoding path with ToWire — the
// preview is a true dry run — performs no network call, and mutates no
// rule state. Preview is refused when the trigger data is not valid JSON.
func (s *Serializer) Preview(r model.Rule) (string, error) {
	if _, err := ValidateTriggerData(r.TriggerData); err != nil {
		return "", err
	}
	w, err := s.ToWire(r)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return "", fmt.Errorf("wire: render preview: %w", err)
	}
	return string(out), nil
}

// encodeActions flattens each action to its wire element shape
// ({platform, action, integration_id?, ...params}) and wraps the array
// per the convention. The envelope fields always win over parameter keys;
// reserved keys cannot appear in Params by construction, but the encoder
// enforces the precedence anyway.
func (s *Serializer) encodeActions(actions []model.Action) (json.RawMessage, error) {
	elements := make([]map[string]any, len(actions))
	for i, a := range actions {
		el := make(map[string]any, len(a.Params)+3)
		for k, v := range a.Params {
			el[k] = v
		}
		el[model.ReservedKeyPlatform] = a.Platform
		el[model.ReservedKeyAction] = a.ActionType
		if a.IntegrationID != "" {
			el[model.ReservedKeyIntegrationID] = a.IntegrationID
		} else {
			delete(el, model.ReservedKeyIntegrationID)
		}
		elements[i] = el
	}

	arr, err := json.Marshal(elements)
	if err != nil {
		return nil, fmt.Errorf("wire: encode actions: %w", err)
	}

	switch s.convention {
	case ConventionArray:
		return arr, nil
	default:
		str, err := json.Marshal(string(arr))
		if err != nil {
			return nil, fmt.Errorf("wire: encode actions string: %w", err)
		}
		return str, nil
	}
}

// decodeActions accepts both observed shapes of the actions field. The
// returned warning is non-empty when a string value failed to parse and
// the sequence was defaulted to empty.
func decodeActions(raw json.RawMessage) ([]model.Action, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ""
	}

	var elements []map[string]any

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, "stored actions could not be decoded; loaded with no actions"
		}
		if err := json.Unmarshal([]byte(encoded), &elements); err != nil {
			return nil, "stored actions are not valid JSON; loaded with no actions"
		}
	} else {
		if err := json.Unmarshal(raw, &elements); err != nil {
			return nil, "stored actions are not valid JSON; loaded with no actions"
		}
	}

	actions := make([]model.Action, 0, len(elements))
	for _, el := range elements {
		a := model.Action{}
		for k, v := range el {
			switch k {
			case model.ReservedKeyPlatform:
				a.Platform, _ = v.(string)
			case model.ReservedKeyAction:
				a.ActionType, _ = v.(string)
			case model.ReservedKeyIntegrationID:
				a.IntegrationID = stringifyID(v)
			default:
				if a.Params == nil {
					a.Params = make(map[string]any)
				}
				a.Params[k] = v
			}
		}
		actions = append(actions, a)
	}
	return actions, ""
}

// stringifyID tolerates both numeric and string integration ids on read.
func stringifyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return json.Number(fmt.Sprintf("%.0f", id)).String()
	default:
		return ""
	}
}

// parseBackendTime parses the backend's created_at representations.
func parseBackendTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("wire: unrecognized timestamp %q", s)
}
