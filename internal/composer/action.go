package composer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/opsforge/automator/internal/binder"
	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// ActionComposer holds the single staged action under construction. The
// staged action's envelope (platform, action type, integration binding) is
// strictly separate from its parameter map: a free-form parameter merge
// can only ever touch the map, never the envelope.
type ActionComposer struct {
	catalog  *catalog.Catalog
	binder   *binder.Binder
	staged   model.Action
	advisory string
}

// NewActionComposer creates a composer with the staged action at the
// catalog default: first action platform, its first action type, no
// params, and the integration binding derived from the binder snapshot.
func NewActionComposer(cat *catalog.Catalog, b *binder.Binder) *ActionComposer {
	ac := &ActionComposer{catalog: cat, binder: b}
	ac.Reset()
	return ac
}

// Staged returns a copy of the staged action.
func (a *ActionComposer) Staged() model.Action {
	return a.staged.Clone()
}

// Advisory returns the current non-fatal advisory for the staged platform
// ("no integration of this type — create one first"), or "".
func (a *ActionComposer) Advisory() string {
	return a.advisory
}

// Reset returns the staged action to its default state.
func (a *ActionComposer) Reset() {
	p := a.catalog.DefaultActionPlatform()
	t, _ := a.catalog.DefaultActionTypeFor(p)
	id, advisory := a.binder.DefaultFor(p)
	a.staged = model.Action{Platform: p, ActionType: t, IntegrationID: id}
	a.advisory = advisory
}

// ChangeActionPlatform selects an action platform. Effects: the action
// type resets to the platform's catalog default, the parameter map is
// cleared, and the integration binding is re-derived — first eligible
// integration for a credential platform, unset plus advisory when none
// exists. Unknown platforms fail with CATALOG_MISS.
func (a *ActionComposer) ChangeActionPlatform(platform string) error {
	actionType, err := a.catalog.DefaultActionTypeFor(platform)
	if err != nil {
		return err
	}
	id, advisory := a.binder.DefaultFor(platform)
	a.staged = model.Action{Platform: platform, ActionType: actionType, IntegrationID: id}
	a.advisory = advisory
	return nil
}

// SetActionType selects an action type; it must belong to the staged
// platform's action type list.
func (a *ActionComposer) SetActionType(actionType string) error {
	if !a.catalog.HasActionType(a.staged.Platform, actionType) {
		return model.NewInvalidSelectionError(
			fmt.Sprintf("action type %q is not valid for platform %q", actionType, a.staged.Platform),
		)
	}
	a.staged.ActionType = actionType
	return nil
}

// SetIntegration binds the staged action to a stored integration. The
// integration must exist in the snapshot and its type must match the
// staged platform.
func (a *ActionComposer) SetIntegration(integrationID string) error {
	if integrationID == "" {
		a.staged.IntegrationID = ""
		return nil
	}
	if !a.binder.IsEligible(a.staged.Platform, integrationID) {
		return model.NewInvalidSelectionError(
			fmt.Sprintf("integration %q is not eligible for platform %q", integrationID, a.staged.Platform),
		)
	}
	a.staged.IntegrationID = integrationID
	return nil
}

// MergeParams parses rawText as a JSON object and shallow-merges its keys
// into the staged action's parameter map. Keys that would shadow the
// reserved envelope fields (platform, action, integration_id) are dropped
// and returned so the caller can surface a non-fatal advisory. On parse
// failure the staged action is untouched and a JSON_PARSE_ERROR is
// returned; the transition is a no-op on state either way.
func (a *ActionComposer) MergeParams(rawText string) (dropped []string, err error) {
	var parsed map[string]any
	if uerr := json.Unmarshal([]byte(rawText), &parsed); uerr != nil {
		return nil, model.NewJSONParseError("params", "action parameters are not a valid JSON object")
	}
	// The literal null unmarshals into a nil map without error.
	if parsed == nil {
		return nil, model.NewJSONParseError("params", "action parameters are not a valid JSON object")
	}

	for k, v := range parsed {
		switch k {
		case model.ReservedKeyPlatform, model.ReservedKeyAction, model.ReservedKeyIntegrationID:
			dropped = append(dropped, k)
			continue
		}
		if a.staged.Params == nil {
			a.staged.Params = make(map[string]any)
		}
		a.staged.Params[k] = v
	}
	sort.Strings(dropped)
	return dropped, nil
}

// Commit returns a deep copy of the staged action and resets the stage to
// its default. The caller appends the returned action to the draft rule's
// ordered sequence.
func (a *ActionComposer) Commit() model.Action {
	committed := a.staged.Clone()
	a.Reset()
	return committed
}
