// Package catalog holds the static capability registry: which events each
// trigger platform can emit, which action types each action platform can
// run, which platforms require stored credentials, and the sample webhook
// payloads used by the simulator. The catalog is an immutable value built
// once at process start and injected into the composers explicitly, so
// tests can run against alternate catalogs.
package catalog

import (
	"github.com/opsforge/automator/model"
)

// CredentialField describes one credential input for an integration type.
type CredentialField struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	Type        string `json:"type" yaml:"type"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// Catalog is the static platform capability registry. All lookups on an
// unknown platform key fail with a CATALOG_MISS error: selection controls
// are populated from the catalog itself, so an unknown key can only be
// reached programmatically.
type Catalog struct {
	triggerPlatforms []model.Option
	actionPlatforms  []model.Option
	events           map[string][]model.Option
	actionTypes      map[string][]model.Option
	credential       map[string][]CredentialField
	samples          map[string]string
}

// TriggerPlatforms returns the ordered trigger platform options.
func (c *Catalog) TriggerPlatforms() []model.Option {
	return c.triggerPlatforms
}

// ActionPlatforms returns the ordered action platform options.
func (c *Catalog) ActionPlatforms() []model.Option {
	return c.actionPlatforms
}

// EventsFor returns the ordered, non-empty event options for a trigger
// platform, or CATALOG_MISS for an unknown platform.
func (c *Catalog) EventsFor(platform string) ([]model.Option, error) {
	evts, ok := c.events[platform]
	if !ok {
		return nil, model.NewCatalogMissError(platform)
	}
	return evts, nil
}

// ActionTypesFor returns the ordered, non-empty action type options for an
// action platform, or CATALOG_MISS for an unknown platform.
func (c *Catalog) ActionTypesFor(platform string) ([]model.Option, error) {
	types, ok := c.actionTypes[platform]
	if !ok {
		return nil, model.NewCatalogMissError(platform)
	}
	return types, nil
}

// IsTriggerPlatform reports whether the platform can fire triggers.
func (c *Catalog) IsTriggerPlatform(platform string) bool {
	_, ok := c.events[platform]
	return ok
}

// DefaultTriggerPlatform returns the first trigger platform value.
func (c *Catalog) DefaultTriggerPlatform() string {
	return c.triggerPlatforms[0].Value
}

// DefaultActionPlatform returns the first action platform value.
func (c *Catalog) DefaultActionPlatform() string {
	return c.actionPlatforms[0].Value
}

// DefaultEventFor returns the first event for a trigger platform.
func (c *Catalog) DefaultEventFor(platform string) (string, error) {
	evts, err := c.EventsFor(platform)
	if err != nil {
		return "", err
	}
	return evts[0].Value, nil
}

// DefaultActionTypeFor returns the first action type for an action platform.
func (c *Catalog) DefaultActionTypeFor(platform string) (string, error) {
	types, err := c.ActionTypesFor(platform)
	if err != nil {
		return "", err
	}
	return types[0].Value, nil
}

// HasEvent reports whether event is legal for the given trigger platform.
func (c *Catalog) HasEvent(platform, event string) bool {
	for _, e := range c.events[platform] {
		if e.Value == event {
			return true
		}
	}
	return false
}

// HasActionType reports whether actionType is legal for the given action
// platform.
func (c *Catalog) HasActionType(platform, actionType string) bool {
	for _, t := range c.actionTypes[platform] {
		if t.Value == actionType {
			return true
		}
	}
	return false
}

// IsCredentialPlatform reports whether the platform requires a stored
// integration record (helpdesk and chat platforms), as opposed to the
// record-manipulation platforms that take inline parameters only.
func (c *Catalog) IsCredentialPlatform(platform string) bool {
	_, ok := c.credential[platform]
	return ok
}

// CredentialFieldsFor returns the credential field schema for an
// integration-backed platform, or CATALOG_MISS for a platform that does
// not take stored credentials.
func (c *Catalog) CredentialFieldsFor(platform string) ([]CredentialField, error) {
	fields, ok := c.credential[platform]
	if !ok {
		return nil, model.NewCatalogMissError(platform)
	}
	return fields, nil
}

// CredentialPlatforms returns the credential-requiring platform ids in
// trigger-then-action catalog order.
func (c *Catalog) CredentialPlatforms() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range c.triggerPlatforms {
		if _, ok := c.credential[p.Value]; ok && !seen[p.Value] {
			out = append(out, p.Value)
			seen[p.Value] = true
		}
	}
	for _, p := range c.actionPlatforms {
		if _, ok := c.credential[p.Value]; ok && !seen[p.Value] {
			out = append(out, p.Value)
			seen[p.Value] = true
		}
	}
	return out
}

// SamplePayload returns the sample webhook payload for a trigger platform,
// or CATALOG_MISS if none is registered.
func (c *Catalog) SamplePayload(platform string) (string, error) {
	s, ok := c.samples[platform]
	if !ok {
		return "", model.NewCatalogMissError(platform)
	}
	return s, nil
}
