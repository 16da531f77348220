package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsforge/automator/internal/binder"
	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/internal/config"
	"github.com/opsforge/automator/internal/wire"
	"github.com/opsforge/automator/model"
)

// Backend is the slice of the backend client the service needs to open
// sessions. *client.Client satisfies it.
type Backend interface {
	Submitter
	GetRule(ctx context.Context, id string) (model.WireRule, error)
	ListIntegrations(ctx context.Context) ([]model.Integration, error)
}

// Gauge reports the live session count. Satisfied by
// observability.Metrics; nil disables reporting.
type Gauge interface {
	SetEditorSessions(n int)
}

// Service owns all live editing sessions. Sessions expire after the
// configured idle TTL and are purged by a background sweeper.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	catalog *catalog.Catalog
	backend Backend
	wire    *wire.Serializer
	logger  *zap.Logger
	gauge   Gauge

	ttl         time.Duration
	sweepEvery  time.Duration
	maxSessions int
}

// NewService creates the session service.
func NewService(cfg config.EditorConfig, cat *catalog.Catalog, backend Backend, ser *wire.Serializer, logger *zap.Logger, gauge Gauge) *Service {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = time.Minute
	}
	maxSessions := cfg.MaxSessions
	if maxSessions < 1 {
		maxSessions = 1000
	}
	return &Service{
		sessions:    make(map[string]*Session),
		catalog:     cat,
		backend:     backend,
		wire:        ser,
		logger:      logger,
		gauge:       gauge,
		ttl:         ttl,
		sweepEvery:  sweep,
		maxSessions: maxSessions,
	}
}

// Serializer exposes the wire serializer for handlers that preview or
// submit through a session.
func (svc *Service) Serializer() *wire.Serializer { return svc.wire }

// Backend exposes the backend client sessions submit through.
func (svc *Service) Backend() Backend { return svc.backend }

// Open starts a fresh create-mode session seeded with catalog defaults
// and a snapshot of the user's integrations. A backend that cannot list
// integrations does not block editing; the session starts with an empty
// snapshot and a warning.
func (svc *Service) Open(ctx context.Context) (*Session, error) {
	integrations, warning := svc.loadIntegrations(ctx)

	s := newSession(uuid.NewString(), ModeCreate, svc.catalog, binder.New(svc.catalog, integrations))
	s.warning = warning

	if err := svc.admit(s); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenForEdit starts a session pre-loaded with an existing rule. An
// actions blob that does not decode yields an empty action list and a
// warning rather than a failure, so the rest of the rule stays editable.
func (svc *Service) OpenForEdit(ctx context.Context, ruleID string) (*Session, error) {
	w, err := svc.backend.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	integrations, warning := svc.loadIntegrations(ctx)

	rule, decodeWarning := svc.wire.FromWire(w)
	if decodeWarning != "" {
		if warning != "" {
			warning += "; "
		}
		warning += decodeWarning
	}

	s := newSession(uuid.NewString(), ModeEdit, svc.catalog, binder.New(svc.catalog, integrations))
	s.restore(ruleID, rule, warning)

	if err := svc.admit(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a live session by ID.
func (svc *Service) Get(id string) (*Session, error) {
	svc.mu.RLock()
	s, ok := svc.sessions[id]
	svc.mu.RUnlock()
	if !ok {
		return nil, model.NewSessionNotFoundError(id)
	}
	return s, nil
}

// Close discards a session.
func (svc *Service) Close(id string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if _, ok := svc.sessions[id]; !ok {
		return model.NewSessionNotFoundError(id)
	}
	delete(svc.sessions, id)
	svc.report()
	return nil
}

// Len returns the live session count. For testing.
func (svc *Service) Len() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.sessions)
}

// StartSweeper purges idle sessions until ctx is cancelled.
func (svc *Service) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(svc.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.sweep()
			}
		}
	}()
}

func (svc *Service) sweep() {
	cutoff := time.Now().UTC().Add(-svc.ttl)

	svc.mu.Lock()
	var expired []string
	for id, s := range svc.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(svc.sessions, id)
	}
	svc.report()
	svc.mu.Unlock()

	if len(expired) > 0 && svc.logger != nil {
		svc.logger.Info("expired idle editing sessions",
			zap.Int("count", len(expired)),
		)
	}
}

func (svc *Service) admit(s *Session) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.sessions) >= svc.maxSessions {
		return model.NewConflictError(
			fmt.Sprintf("session limit reached (%d); retry shortly", svc.maxSessions),
		)
	}
	svc.sessions[s.ID()] = s
	svc.report()
	return nil
}

// report updates the session gauge. Callers hold svc.mu.
func (svc *Service) report() {
	if svc.gauge != nil {
		svc.gauge.SetEditorSessions(len(svc.sessions))
	}
}

func (svc *Service) loadIntegrations(ctx context.Context) ([]model.Integration, string) {
	integrations, err := svc.backend.ListIntegrations(ctx)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Warn("listing integrations failed; session starts without bindings",
				zap.Error(err),
			)
		}
		return nil, "integrations could not be loaded; action bindings are unavailable"
	}
	return integrations, ""
}
