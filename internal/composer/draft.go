package composer

import (
	"fmt"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// DefaultRuleName is the backend's default for an unnamed rule.
const DefaultRuleName = "New Rule"

// Draft assembles one rule across an editing session: the trigger
// composer plus the ordered sequence of committed actions. A draft does
// not exist server-side until submission succeeds.
type Draft struct {
	id          string
	name        string
	description string

	Trigger *TriggerComposer
	actions []model.Action
}

// NewDraft starts an empty draft at the catalog defaults.
func NewDraft(cat *catalog.Catalog) *Draft {
	return &Draft{
		name:    DefaultRuleName,
		Trigger: NewTriggerComposer(cat),
	}
}

// ID returns the persisted rule id, or "" for an unsaved draft.
func (d *Draft) ID() string { return d.id }

// SetName sets the rule name.
func (d *Draft) SetName(name string) { d.name = name }

// SetDescription sets the rule description.
func (d *Draft) SetDescription(desc string) { d.description = desc }

// AppendAction adds a committed action to the end of the sequence.
func (d *Draft) AppendAction(a model.Action) {
	d.actions = append(d.actions, a)
}

// RemoveAction deletes the action at index i; the remaining sequence is
// re-indexed with relative order preserved.
func (d *Draft) RemoveAction(i int) error {
	if i < 0 || i >= len(d.actions) {
		return model.NewInvalidSelectionError(
			fmt.Sprintf("action index %d out of range [0,%d)", i, len(d.actions)),
		)
	}
	d.actions = append(d.actions[:i], d.actions[i+1:]...)
	return nil
}

// Actions returns a copy of the committed action sequence.
func (d *Draft) Actions() []model.Action {
	out := make([]model.Action, len(d.actions))
	for i, a := range d.actions {
		out[i] = a.Clone()
	}
	return out
}

// Rule assembles the draft into an in-memory Rule value.
func (d *Draft) Rule() model.Rule {
	return model.Rule{
		ID:              d.id,
		Name:            d.name,
		Description:     d.description,
		TriggerPlatform: d.Trigger.Platform(),
		TriggerEvent:    d.Trigger.Event(),
		TriggerData:     d.Trigger.RawData(),
		Actions:         d.Actions(),
	}
}

// Restore loads a persisted rule into the draft for editing. Stored
// selections are kept as-is even when they no longer match the catalog.
func (d *Draft) Restore(r model.Rule) {
	d.id = r.ID
	d.name = r.Name
	d.description = r.Description
	d.Trigger.Restore(r.TriggerPlatform, r.TriggerEvent, r.TriggerData)
	d.actions = make([]model.Action, len(r.Actions))
	for i, a := range r.Actions {
		d.actions[i] = a.Clone()
	}
}

// ResetToDefaults clears the draft back to a fresh unsaved rule, as after
// a successful create.
func (d *Draft) ResetToDefaults(cat *catalog.Catalog) {
	d.id = ""
	d.name = DefaultRuleName
	d.description = ""
	d.Trigger = NewTriggerComposer(cat)
	d.actions = nil
}
