// Package binder resolves which stored integration records are eligible
// for an action platform. A Binder wraps the point-in-time snapshot of
// integrations fetched once when the editor opens; it never mutates the
// records and holds no live subscription to changes made elsewhere.
package binder

import (
	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// NoIntegrationAdvisory is the non-fatal warning surfaced when a
// credential-requiring platform has no stored integration of its type.
// The user may still commit the action; execution would fail downstream,
// which is the execution engine's concern.
const NoIntegrationAdvisory = "no integration of this type — create one first"

// Binder answers integration eligibility questions over a fixed snapshot.
type Binder struct {
	catalog      *catalog.Catalog
	integrations []model.Integration
}

// New creates a Binder over the given snapshot. The slice is kept in fetch
// order; callers must not mutate it afterwards.
func New(cat *catalog.Catalog, integrations []model.Integration) *Binder {
	return &Binder{catalog: cat, integrations: integrations}
}

// Snapshot returns the integrations as fetched, in order.
func (b *Binder) Snapshot() []model.Integration {
	return b.integrations
}

// Eligible returns the integrations whose IntegrationType matches the
// platform, in fetch order.
func (b *Binder) Eligible(platform string) []model.Integration {
	var out []model.Integration
	for _, in := range b.integrations {
		if in.IntegrationType == platform {
			out = append(out, in)
		}
	}
	return out
}

// DefaultFor returns the default integration binding for a platform: the
// first eligible integration, if the platform requires credentials and one
// exists. The second return is an advisory message when a credential
// platform has no eligible integration; it is empty otherwise.
func (b *Binder) DefaultFor(platform string) (integrationID, advisory string) {
	if !b.catalog.IsCredentialPlatform(platform) {
		return "", ""
	}
	eligible := b.Eligible(platform)
	if len(eligible) == 0 {
		return "", NoIntegrationAdvisory
	}
	return eligible[0].ID, ""
}

// IsEligible reports whether the integration id references a snapshot
// record whose type matches the platform.
func (b *Binder) IsEligible(platform, integrationID string) bool {
	for _, in := range b.Eligible(platform) {
		if in.ID == integrationID {
			return true
		}
	}
	return false
}

// Lookup returns the snapshot record with the given id.
func (b *Binder) Lookup(integrationID string) (model.Integration, bool) {
	for _, in := range b.integrations {
		if in.ID == integrationID {
			return in, true
		}
	}
	return model.Integration{}, false
}
