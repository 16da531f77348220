// Package composer implements the rule composition state machines: the
// trigger composer, the staged-action composer, and the draft rule they
// assemble. Every state transition is a named operation with a documented
// effect set; platform-change cascades are explicit, not incidental side
// effects of a setter.
package composer

import (
	"fmt"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// DefaultTriggerData is the initial trigger data buffer presented when a
// new rule is started.
const DefaultTriggerData = "{\n  \"tag\": \"\"\n}"

// TriggerComposer holds the trigger half of a rule under construction:
// platform, event, and the raw trigger data text. The raw data is stored
// verbatim and unvalidated; JSON well-formedness is checked lazily at
// preview/submit time, so intermediate invalid states are legal.
type TriggerComposer struct {
	catalog  *catalog.Catalog
	platform string
	event    string
	rawData  string
}

// NewTriggerComposer creates a composer at the catalog defaults: first
// trigger platform, its first event, and the default data buffer.
func NewTriggerComposer(cat *catalog.Catalog) *TriggerComposer {
	p := cat.DefaultTriggerPlatform()
	e, _ := cat.DefaultEventFor(p)
	return &TriggerComposer{
		catalog:  cat,
		platform: p,
		event:    e,
		rawData:  DefaultTriggerData,
	}
}

// Platform returns the selected trigger platform.
func (t *TriggerComposer) Platform() string { return t.platform }

// Event returns the selected trigger event.
func (t *TriggerComposer) Event() string { return t.event }

// RawData returns the raw trigger data text, verbatim.
func (t *TriggerComposer) RawData() string { return t.rawData }

// ChangeTriggerPlatform selects a trigger platform and resets the event to
// the first entry of the platform's event list. The event selection is
// deliberately NOT preserved across a platform change. Unknown platforms
// fail with CATALOG_MISS.
func (t *TriggerComposer) ChangeTriggerPlatform(platform string) error {
	event, err := t.catalog.DefaultEventFor(platform)
	if err != nil {
		return err
	}
	t.platform = platform
	t.event = event
	return nil
}

// SetTriggerEvent selects an event; it must belong to the current
// platform's event list.
func (t *TriggerComposer) SetTriggerEvent(event string) error {
	if !t.catalog.HasEvent(t.platform, event) {
		return model.NewInvalidSelectionError(
			fmt.Sprintf("event %q is not valid for platform %q", event, t.platform),
		)
	}
	t.event = event
	return nil
}

// SetTriggerData stores the trigger data text verbatim, without validation.
func (t *TriggerComposer) SetTriggerData(text string) {
	t.rawData = text
}

// Restore sets the trigger state programmatically from a persisted rule.
// Values outside the current catalog are kept and displayed as-is: a
// stored event that no longer matches any catalog entry must not crash
// the form.
func (t *TriggerComposer) Restore(platform, event, rawData string) {
	t.platform = platform
	t.event = event
	t.rawData = rawData
}
