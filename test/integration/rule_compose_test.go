package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

type sessionView struct {
	SessionID   string `json:"session_id"`
	Mode        string `json:"mode"`
	RuleID      string `json:"rule_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Warning     string `json:"warning"`
	Trigger     struct {
		Platform string `json:"platform"`
		Event    string `json:"event"`
		Data     string `json:"data"`
	} `json:"trigger"`
	Staged struct {
		Action struct {
			Platform      string         `json:"platform"`
			ActionType    string         `json:"action"`
			IntegrationID string         `json:"integration_id"`
			Params        map[string]any `json:"params"`
		} `json:"action"`
		Advisory     string           `json:"advisory"`
		Integrations []map[string]any `json:"integrations"`
	} `json:"staged_action"`
	Actions []map[string]any `json:"actions"`
}

func TestComposeAndSubmitRule(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("list_integrations").
		RespondWith(http.StatusOK, []map[string]any{IntegrationFixture(5, "slack")})

	sessionID := h.OpenSession()

	// The default staged action is slack/send_message, so the eligible
	// slack integration binds automatically.
	var view sessionView
	ParseJSON(t, h.GET(SessionPath(sessionID, "/")), &view)
	if view.Staged.Action.Platform != "slack" || view.Staged.Action.ActionType != "send_message" {
		t.Fatalf("default staged action = %s/%s", view.Staged.Action.Platform, view.Staged.Action.ActionType)
	}
	if view.Staged.Action.IntegrationID != "5" {
		t.Errorf("default integration = %q, want %q", view.Staged.Action.IntegrationID, "5")
	}

	AssertStatus(t, h.POST(SessionPath(sessionID, "/name"), map[string]string{"name": "Escalate urgent tickets"}), http.StatusOK)
	AssertStatus(t, h.POST(SessionPath(sessionID, "/description"), map[string]string{"description": "Ping support when a ticket is tagged urgent"}), http.StatusOK)
	AssertStatus(t, h.POST(SessionPath(sessionID, "/trigger/data"), map[string]string{"data": "{\"tag\": \"urgent\"}"}), http.StatusOK)

	// Reserved envelope keys in pasted params are dropped and reported.
	resp := h.POST(SessionPath(sessionID, "/action/params"), map[string]string{
		"params": `{"channel": "#support", "platform": "hijacked"}`,
	})
	AssertStatus(t, resp, http.StatusOK)
	var params struct {
		Dropped []string    `json:"dropped_keys"`
		View    sessionView `json:"view"`
	}
	ParseJSON(t, resp, &params)
	if len(params.Dropped) != 1 || params.Dropped[0] != "platform" {
		t.Errorf("dropped keys = %v, want [platform]", params.Dropped)
	}
	if params.View.Staged.Action.Params["channel"] != "#support" {
		t.Errorf("staged params = %v", params.View.Staged.Action.Params)
	}

	AssertStatus(t, h.POST(SessionPath(sessionID, "/action/commit"), nil), http.StatusOK)

	// Nothing reaches the backend until submit.
	h.Backend.AssertNotCalled(t, "create_rule")

	resp = h.POST(SessionPath(sessionID, "/submit"), nil)
	AssertStatus(t, resp, http.StatusOK)
	var submitted struct {
		Rule map[string]any `json:"rule"`
		View sessionView    `json:"view"`
	}
	ParseJSON(t, resp, &submitted)
	if submitted.Rule["name"] != "Escalate urgent tickets" {
		t.Errorf("submitted rule name = %v", submitted.Rule["name"])
	}
	// Create mode resets the draft for the next rule.
	if submitted.View.Name != "New Rule" {
		t.Errorf("post-submit draft name = %q, want %q", submitted.View.Name, "New Rule")
	}
	if len(submitted.View.Actions) != 0 {
		t.Errorf("post-submit actions = %d, want 0", len(submitted.View.Actions))
	}

	h.Backend.AssertCalled(t, "create_rule", 1)
	req := h.Backend.LastRequest("create_rule")
	if req.Body["name"] != "Escalate urgent tickets" {
		t.Errorf("backend name = %v", req.Body["name"])
	}
	if req.Body["trigger_platform"] != "zendesk" || req.Body["trigger_event"] != "ticket_tag_added" {
		t.Errorf("backend trigger = %v/%v", req.Body["trigger_platform"], req.Body["trigger_event"])
	}
	if req.Body["trigger_data"] != "{\"tag\": \"urgent\"}" {
		t.Errorf("backend trigger_data = %v", req.Body["trigger_data"])
	}

	// Default convention stores the actions column as a JSON string.
	actionsText, ok := req.Body["actions"].(string)
	if !ok {
		t.Fatalf("actions column = %T, want string", req.Body["actions"])
	}
	var actions []map[string]any
	if err := json.Unmarshal([]byte(actionsText), &actions); err != nil {
		t.Fatalf("actions column does not decode: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(actions))
	}
	if actions[0]["platform"] != "slack" || actions[0]["action"] != "send_message" {
		t.Errorf("action envelope = %v", actions[0])
	}
	if actions[0]["integration_id"] != "5" {
		t.Errorf("action integration_id = %v", actions[0]["integration_id"])
	}
	// Params are flattened alongside the envelope keys.
	if actions[0]["channel"] != "#support" {
		t.Errorf("action params = %v", actions[0])
	}
}

func TestComposeWithArrayConvention(t *testing.T) {
	h := NewTestHarness(t, WithActionsEncoding("array"))

	sessionID := h.OpenSession()
	AssertStatus(t, h.POST(SessionPath(sessionID, "/action/commit"), nil), http.StatusOK)
	AssertStatus(t, h.POST(SessionPath(sessionID, "/submit"), nil), http.StatusOK)

	req := h.Backend.LastRequest("create_rule")
	if req == nil {
		t.Fatal("create_rule not called")
	}
	actions, ok := req.Body["actions"].([]any)
	if !ok {
		t.Fatalf("actions column = %T, want array", req.Body["actions"])
	}
	if len(actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(actions))
	}
}

func TestEditExistingRule(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("get_rule").
		RespondWith(http.StatusOK, RuleFixture(50, "Tag watcher"))
	h.Backend.OnOperation("list_integrations").
		RespondWith(http.StatusOK, []map[string]any{IntegrationFixture(5, "slack")})

	resp := h.POST("/ui/editor/sessions", map[string]string{"rule_id": "50"})
	AssertStatus(t, resp, http.StatusCreated)
	var view sessionView
	ParseJSON(t, resp, &view)
	if view.Mode != "edit" || view.RuleID != "50" {
		t.Fatalf("mode = %q rule_id = %q", view.Mode, view.RuleID)
	}
	if view.Name != "Tag watcher" {
		t.Errorf("loaded name = %q", view.Name)
	}
	if len(view.Actions) != 1 {
		t.Fatalf("loaded actions = %d, want 1", len(view.Actions))
	}

	AssertStatus(t, h.POST(SessionPath(view.SessionID, "/name"), map[string]string{"name": "Tag watcher v2"}), http.StatusOK)

	resp = h.POST(SessionPath(view.SessionID, "/submit"), nil)
	AssertStatus(t, resp, http.StatusOK)

	h.Backend.AssertCalled(t, "update_rule", 1)
	h.Backend.AssertNotCalled(t, "create_rule")
	req := h.Backend.LastRequest("update_rule")
	if req.Path != "/rules/50" {
		t.Errorf("update path = %q", req.Path)
	}
	if req.Body["name"] != "Tag watcher v2" {
		t.Errorf("updated name = %v", req.Body["name"])
	}

	// Edit mode keeps the draft after submit.
	ParseJSON(t, h.GET(SessionPath(view.SessionID, "/")), &view)
	if view.Name != "Tag watcher v2" {
		t.Errorf("post-submit name = %q", view.Name)
	}
}

func TestEditRuleWithDanglingIntegration(t *testing.T) {
	h := NewTestHarness(t)
	// The fixture's action carries integration_id "5", but no
	// integrations exist any more (list_integrations defaults to []).
	h.Backend.OnOperation("get_rule").
		RespondWith(http.StatusOK, RuleFixture(50, "Tag watcher"))

	resp := h.POST("/ui/editor/sessions", map[string]string{"rule_id": "50"})
	AssertStatus(t, resp, http.StatusCreated)
	var view sessionView
	ParseJSON(t, resp, &view)

	// The rule still loads with its action sequence intact.
	if len(view.Actions) != 1 {
		t.Fatalf("loaded actions = %d, want 1", len(view.Actions))
	}
	if view.Actions[0]["integration_id"] != "5" {
		t.Errorf("committed action integration_id = %v, want the stored value kept", view.Actions[0]["integration_id"])
	}

	// The selector has nothing to offer: no eligible integrations and
	// no default binding on the stage.
	if len(view.Staged.Integrations) != 0 {
		t.Errorf("eligible integrations = %v, want none", view.Staged.Integrations)
	}
	if view.Staged.Action.IntegrationID != "" {
		t.Errorf("staged integration = %q, want empty selection", view.Staged.Action.IntegrationID)
	}
}

func TestEditUnknownRule(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("get_rule").
		RespondWithDetail(http.StatusNotFound, "Rule not found")

	resp := h.POST("/ui/editor/sessions", map[string]string{"rule_id": "999"})
	AssertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestSubmitInvalidTriggerData(t *testing.T) {
	h := NewTestHarness(t)

	sessionID := h.OpenSession()
	AssertStatus(t, h.POST(SessionPath(sessionID, "/trigger/data"), map[string]string{"data": "{broken"}), http.StatusOK)
	AssertStatus(t, h.POST(SessionPath(sessionID, "/action/commit"), nil), http.StatusOK)

	resp := h.POST(SessionPath(sessionID, "/submit"), nil)
	AssertErrorCode(t, resp, http.StatusUnprocessableEntity, "JSON_PARSE_ERROR")
	h.Backend.AssertNotCalled(t, "create_rule")

	// The draft survives a refused submit.
	var view sessionView
	ParseJSON(t, h.GET(SessionPath(sessionID, "/")), &view)
	if view.Trigger.Data != "{broken" {
		t.Errorf("trigger data = %q", view.Trigger.Data)
	}
}

func TestSessionLimit(t *testing.T) {
	h := NewTestHarness(t, WithSessionLimit(2))

	h.OpenSession()
	h.OpenSession()

	resp := h.POST("/ui/editor/sessions", nil)
	AssertErrorCode(t, resp, http.StatusConflict, "CONFLICT")
}
