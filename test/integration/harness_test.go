package integration

import (
	"encoding/json"
	"testing"

	"github.com/opsforge/automator/model"
)

// The fixtures must decode through the same wire types the client uses,
// or every test that scripts them fails at the decode step instead of
// exercising what it means to.
func TestFixturesMatchWireTypes(t *testing.T) {
	ruleJSON, err := json.Marshal(RuleFixture(50, "Tag watcher"))
	if err != nil {
		t.Fatalf("marshal rule fixture: %v", err)
	}
	var rule model.WireRule
	if err := json.Unmarshal(ruleJSON, &rule); err != nil {
		t.Fatalf("rule fixture does not decode as WireRule: %v", err)
	}
	if rule.ID.String() != "50" {
		t.Errorf("rule id = %q, want %q", rule.ID.String(), "50")
	}
	if rule.UserID != 1 {
		t.Errorf("rule user_id = %d, want 1", rule.UserID)
	}

	integJSON, err := json.Marshal(IntegrationFixture(5, "slack"))
	if err != nil {
		t.Fatalf("marshal integration fixture: %v", err)
	}
	var integ model.WireIntegration
	if err := json.Unmarshal(integJSON, &integ); err != nil {
		t.Fatalf("integration fixture does not decode as WireIntegration: %v", err)
	}
	if integ.ID.String() != "5" {
		t.Errorf("integration id = %q, want %q", integ.ID.String(), "5")
	}
	if integ.IntegrationType != "slack" {
		t.Errorf("integration type = %q", integ.IntegrationType)
	}
}
