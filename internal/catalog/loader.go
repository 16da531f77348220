package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsforge/automator/model"
)

// File is the YAML shape of a catalog file.
type File struct {
	TriggerPlatforms []TriggerPlatformDef `yaml:"trigger_platforms"`
	ActionPlatforms  []ActionPlatformDef  `yaml:"action_platforms"`
	Credentials      []CredentialDef      `yaml:"credentials"`
}

// TriggerPlatformDef declares one trigger platform, its ordered events,
// and the sample webhook payload used by the simulator.
type TriggerPlatformDef struct {
	Platform      string         `yaml:"platform"`
	Label         string         `yaml:"label"`
	Events        []model.Option `yaml:"events"`
	SamplePayload string         `yaml:"sample_payload"`
}

// ActionPlatformDef declares one action platform and its ordered action types.
type ActionPlatformDef struct {
	Platform    string         `yaml:"platform"`
	Label       string         `yaml:"label"`
	ActionTypes []model.Option `yaml:"action_types"`
}

// CredentialDef declares the credential field schema for an
// integration-backed platform.
type CredentialDef struct {
	Platform string            `yaml:"platform"`
	Fields   []CredentialField `yaml:"fields"`
}

// Load reads a catalog YAML file, validates it, and builds an immutable
// Catalog. An empty path yields the compiled-in default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}

	cat, errs := Build(f)
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog: %s is invalid: %v", path, errs)
	}
	return cat, nil
}

// Build validates a catalog file and constructs the Catalog. Validation
// errors are returned all at once so a misauthored file can be fixed in a
// single pass.
func Build(f File) (*Catalog, []error) {
	var errs []error

	if len(f.TriggerPlatforms) == 0 {
		errs = append(errs, fmt.Errorf("at least one trigger platform is required"))
	}
	if len(f.ActionPlatforms) == 0 {
		errs = append(errs, fmt.Errorf("at least one action platform is required"))
	}

	c := &Catalog{
		events:      make(map[string][]model.Option, len(f.TriggerPlatforms)),
		actionTypes: make(map[string][]model.Option, len(f.ActionPlatforms)),
		credential:  make(map[string][]CredentialField, len(f.Credentials)),
		samples:     make(map[string]string, len(f.TriggerPlatforms)),
	}

	for _, tp := range f.TriggerPlatforms {
		if tp.Platform == "" {
			errs = append(errs, fmt.Errorf("trigger platform id is required"))
			continue
		}
		if _, dup := c.events[tp.Platform]; dup {
			errs = append(errs, fmt.Errorf("duplicate trigger platform %q", tp.Platform))
			continue
		}
		if len(tp.Events) == 0 {
			errs = append(errs, fmt.Errorf("trigger platform %q has no events", tp.Platform))
			continue
		}
		c.triggerPlatforms = append(c.triggerPlatforms, model.Option{
			Value: tp.Platform, Label: tp.Label,
		})
		c.events[tp.Platform] = tp.Events
		if tp.SamplePayload != "" {
			c.samples[tp.Platform] = tp.SamplePayload
		}
	}

	for _, ap := range f.ActionPlatforms {
		if ap.Platform == "" {
			errs = append(errs, fmt.Errorf("action platform id is required"))
			continue
		}
		if _, dup := c.actionTypes[ap.Platform]; dup {
			errs = append(errs, fmt.Errorf("duplicate action platform %q", ap.Platform))
			continue
		}
		if len(ap.ActionTypes) == 0 {
			errs = append(errs, fmt.Errorf("action platform %q has no action types", ap.Platform))
			continue
		}
		c.actionPlatforms = append(c.actionPlatforms, model.Option{
			Value: ap.Platform, Label: ap.Label,
		})
		c.actionTypes[ap.Platform] = ap.ActionTypes
	}

	known := func(p string) bool {
		_, t := c.events[p]
		_, a := c.actionTypes[p]
		return t || a
	}
	for _, cd := range f.Credentials {
		if !known(cd.Platform) {
			errs = append(errs, fmt.Errorf("credential platform %q is not declared as a trigger or action platform", cd.Platform))
			continue
		}
		c.credential[cd.Platform] = cd.Fields
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return c, nil
}

// Default returns the compiled-in catalog matching the deployed automation
// backend: Zendesk/Freshdesk helpdesk triggers and the six action
// platforms their modules support.
func Default() *Catalog {
	ticketEvents := []model.Option{
		{Value: "ticket_tag_added", Label: "Ticket Tag Added"},
		{Value: "ticket_created", Label: "Ticket Created"},
		{Value: "ticket_status_changed", Label: "Ticket Status Changed"},
	}

	cat, errs := Build(File{
		TriggerPlatforms: []TriggerPlatformDef{
			{
				Platform:      "zendesk",
				Label:         "Zendesk",
				Events:        ticketEvents,
				SamplePayload: zendeskSample,
			},
			{
				Platform:      "freshdesk",
				Label:         "Freshdesk",
				Events:        ticketEvents,
				SamplePayload: freshdeskSample,
			},
		},
		ActionPlatforms: []ActionPlatformDef{
			{Platform: "slack", Label: "Slack", ActionTypes: []model.Option{
				{Value: "send_message", Label: "Send Message"},
			}},
			{Platform: "trello", Label: "Trello", ActionTypes: []model.Option{
				{Value: "create_card", Label: "Create Card"},
			}},
			{Platform: "google_sheets", Label: "Google Sheets", ActionTypes: []model.Option{
				{Value: "append_row", Label: "Append Row"},
			}},
			{Platform: "notion", Label: "Notion", ActionTypes: []model.Option{
				{Value: "create_database_item", Label: "Create Database Item"},
			}},
			{Platform: "linear", Label: "Linear", ActionTypes: []model.Option{
				{Value: "create_issue", Label: "Create Issue"},
			}},
			{Platform: "discord", Label: "Discord", ActionTypes: []model.Option{
				{Value: "send_message", Label: "Send Message"},
			}},
		},
		Credentials: []CredentialDef{
			{Platform: "zendesk", Fields: []CredentialField{
				{Name: "subdomain", Label: "Subdomain", Type: "text", Placeholder: "your-subdomain"},
				{Name: "email", Label: "Email", Type: "email", Placeholder: "email@example.com"},
				{Name: "api_token", Label: "API Token", Type: "password"},
			}},
			{Platform: "freshdesk", Fields: []CredentialField{
				{Name: "domain", Label: "Domain", Type: "text", Placeholder: "your-domain.freshdesk.com"},
				{Name: "api_key", Label: "API Key", Type: "password"},
			}},
			{Platform: "slack", Fields: []CredentialField{
				{Name: "bot_token", Label: "Bot Token", Type: "password", Placeholder: "xoxb-..."},
			}},
			{Platform: "discord", Fields: []CredentialField{
				{Name: "webhook_url", Label: "Webhook URL", Type: "text", Placeholder: "https://discord.com/api/webhooks/..."},
			}},
		},
	})
	if len(errs) > 0 {
		// The default catalog is compiled in; failing to build it is a
		// programming error.
		panic(fmt.Sprintf("catalog: default catalog invalid: %v", errs))
	}
	return cat
}

const zendeskSample = `{
  "ticket": {
    "id": 12345,
    "subject": "Help needed with integration",
    "description": "I'm having trouble connecting your API",
    "status": "open",
    "priority": "urgent",
    "tags": ["urgent", "integration", "api"]
  },
  "current_user": {
    "id": 67890,
    "name": "Support Agent",
    "email": "agent@example.com"
  }
}`

const freshdeskSample = `{
  "freshdesk_webhook": {
    "ticket_id": 54321,
    "ticket_subject": "Cannot access my account",
    "ticket_description": "I'm getting an error when trying to login",
    "ticket_status": "Open",
    "ticket_priority": 2,
    "ticket_tags": ["urgent", "login", "account"]
  },
  "ticket": {
    "id": 54321,
    "tags": ["urgent", "login", "account"]
  }
}`
