// Package editor holds per-user rule editing sessions. A session owns a
// draft rule, the staged action being composed, and a snapshot of the
// user's integrations, and mediates every mutation the console exposes.
package editor

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/automator/internal/binder"
	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/internal/composer"
	"github.com/opsforge/automator/internal/wire"
	"github.com/opsforge/automator/model"
)

// Mode says whether the session creates a new rule or edits an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Submitter is the slice of the backend client a session needs to save
// its draft. *client.Client satisfies it.
type Submitter interface {
	CreateRule(ctx context.Context, w model.WireRule) (model.WireRule, error)
	UpdateRule(ctx context.Context, id string, w model.WireRule) (model.WireRule, error)
}

// Session is one user's editing state. All methods are safe for
// concurrent use; mutations while a submit is in flight are refused
// with CONFLICT rather than queued.
type Session struct {
	mu sync.Mutex

	id        string
	mode      Mode
	ruleID    string
	createdAt time.Time
	lastUsed  time.Time

	catalog *catalog.Catalog
	binder  *binder.Binder
	draft   *composer.Draft
	action  *composer.ActionComposer

	// warning carries a non-fatal load problem, such as an actions blob
	// that did not decode, so the view can surface it.
	warning string

	busy bool
}

func newSession(id string, mode Mode, cat *catalog.Catalog, b *binder.Binder) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        id,
		mode:      mode,
		createdAt: now,
		lastUsed:  now,
		catalog:   cat,
		binder:    b,
		draft:     composer.NewDraft(cat),
		action:    composer.NewActionComposer(cat, b),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns whether the session is creating or editing.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// RuleID returns the backend rule ID when editing, empty when creating.
func (s *Session) RuleID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ruleID
}

// touch refreshes the idle clock. Callers hold s.mu.
func (s *Session) touch() {
	s.lastUsed = time.Now().UTC()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// guard refuses mutations while a submit is in flight. Callers hold s.mu.
func (s *Session) guard() error {
	if s.busy {
		return model.NewConflictError("a submit is already in progress for this session")
	}
	return nil
}

// --- draft identity ---

// SetName renames the draft.
func (s *Session) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	s.draft.SetName(name)
	return nil
}

// SetDescription updates the draft description.
func (s *Session) SetDescription(desc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	s.draft.SetDescription(desc)
	return nil
}

// --- trigger transitions ---

// ChangeTriggerPlatform switches the trigger platform and resets the
// event to the platform's first catalog entry. Trigger data is kept.
func (s *Session) ChangeTriggerPlatform(platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	return s.draft.Trigger.ChangeTriggerPlatform(platform)
}

// SetTriggerEvent selects an event within the current trigger platform.
func (s *Session) SetTriggerEvent(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	return s.draft.Trigger.SetTriggerEvent(event)
}

// SetTriggerData stores the trigger match text verbatim. It is not
// validated here; Preview and Submit are the gates.
func (s *Session) SetTriggerData(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	s.draft.Trigger.SetTriggerData(text)
	return nil
}

// --- staged action transitions ---

// ChangeActionPlatform switches the staged action's platform, resetting
// its type, params, and integration binding.
func (s *Session) ChangeActionPlatform(platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	return s.action.ChangeActionPlatform(platform)
}

// SetActionType selects an action type within the staged platform.
func (s *Session) SetActionType(actionType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	return s.action.SetActionType(actionType)
}

// SetIntegration binds the staged action to one of the user's saved
// integrations, or clears the binding with an empty ID.
func (s *Session) SetIntegration(integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	return s.action.SetIntegration(integrationID)
}

// MergeParams merges a pasted JSON object into the staged action's
// params. Reserved envelope keys are dropped and reported; a parse
// failure leaves the staged action untouched.
func (s *Session) MergeParams(rawText string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	s.touch()
	return s.action.MergeParams(rawText)
}

// CommitAction appends the staged action to the draft and resets the
// stage for the next one.
func (s *Session) CommitAction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	s.draft.AppendAction(s.action.Commit())
	return nil
}

// RemoveAction deletes the committed action at the given position,
// preserving the order of the rest.
func (s *Session) RemoveAction(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	return s.draft.RemoveAction(i)
}

// ResetDraft throws the draft away and starts over from catalog defaults.
func (s *Session) ResetDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	s.touch()
	s.draft.ResetToDefaults(s.catalog)
	s.action.Reset()
	s.mode = ModeCreate
	s.ruleID = ""
	s.warning = ""
	return nil
}

// restore loads an existing rule into the draft for editing.
func (s *Session) restore(ruleID string, r model.Rule, warning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeEdit
	s.ruleID = ruleID
	s.warning = warning
	s.draft.Restore(r)
	s.action.Reset()
	s.touch()
}

// --- projection, preview, submit ---

// Preview renders the draft exactly as it would be sent to the backend.
// A draft whose trigger data is not a JSON object is refused and the
// draft is left untouched.
func (s *Session) Preview(ser *wire.Serializer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return ser.Preview(s.draft.Rule())
}

// Submit validates and saves the draft. Create-mode sessions reset to a
// fresh draft on success; edit-mode sessions keep the saved state. A
// second submit while one is in flight gets CONFLICT and changes nothing.
func (s *Session) Submit(ctx context.Context, backend Submitter, ser *wire.Serializer) (model.WireRule, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return model.WireRule{}, model.NewConflictError("a submit is already in progress for this session")
	}
	if _, err := wire.ValidateTriggerData(s.draft.Trigger.RawData()); err != nil {
		s.mu.Unlock()
		return model.WireRule{}, err
	}
	w, err := ser.ToWire(s.draft.Rule())
	if err != nil {
		s.mu.Unlock()
		return model.WireRule{}, err
	}
	s.busy = true
	mode, ruleID := s.mode, s.ruleID
	s.mu.Unlock()

	var saved model.WireRule
	if mode == ModeEdit {
		saved, err = backend.UpdateRule(ctx, ruleID, w)
	} else {
		saved, err = backend.CreateRule(ctx, w)
	}

	s.mu.Lock()
	s.busy = false
	s.touch()
	if err == nil && mode == ModeCreate {
		s.draft.ResetToDefaults(s.catalog)
		s.action.Reset()
		s.warning = ""
	}
	s.mu.Unlock()

	if err != nil {
		return model.WireRule{}, err
	}
	return saved, nil
}

// View is the session state projected for the console UI.
type View struct {
	SessionID   string         `json:"session_id"`
	Mode        Mode           `json:"mode"`
	RuleID      string         `json:"rule_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Warning     string         `json:"warning,omitempty"`
	Trigger     TriggerView    `json:"trigger"`
	Staged      StagedView     `json:"staged_action"`
	Actions     []model.Action `json:"actions"`
}

// TriggerView is the trigger slice of a session view.
type TriggerView struct {
	Platform  string         `json:"platform"`
	Event     string         `json:"event"`
	Data      string         `json:"data"`
	Platforms []model.Option `json:"platforms"`
	Events    []model.Option `json:"events"`
}

// StagedView is the staged action slice of a session view.
type StagedView struct {
	Action       model.Action        `json:"action"`
	Advisory     string              `json:"advisory,omitempty"`
	Platforms    []model.Option      `json:"platforms"`
	ActionTypes  []model.Option      `json:"action_types"`
	Integrations []model.Integration `json:"integrations"`
}

// View snapshots the session for rendering. Option lists for platforms
// the catalog does not know (a restored out-of-catalog rule) come back
// empty rather than failing the whole view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	trig := s.draft.Trigger
	events, _ := s.catalog.EventsFor(trig.Platform())

	staged := s.action.Staged()
	actionTypes, _ := s.catalog.ActionTypesFor(staged.Platform)

	rule := s.draft.Rule()
	return View{
		SessionID:   s.id,
		Mode:        s.mode,
		RuleID:      s.ruleID,
		Name:        rule.Name,
		Description: rule.Description,
		Warning:     s.warning,
		Trigger: TriggerView{
			Platform:  trig.Platform(),
			Event:     trig.Event(),
			Data:      trig.RawData(),
			Platforms: s.catalog.TriggerPlatforms(),
			Events:    events,
		},
		Staged: StagedView{
			Action:       staged,
			Advisory:     s.action.Advisory(),
			Platforms:    s.catalog.ActionPlatforms(),
			ActionTypes:  actionTypes,
			Integrations: s.binder.Eligible(staged.Platform),
		},
		Actions: s.draft.Actions(),
	}
}
