package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/internal/client"
	"github.com/opsforge/automator/internal/config"
	"github.com/opsforge/automator/internal/editor"
	"github.com/opsforge/automator/internal/observability"
	"github.com/opsforge/automator/internal/simulator"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Catalog   *catalog.Catalog
	Editor    *editor.Service
	Simulator *simulator.Simulator
	Backend   *client.Client
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// request pipeline; the webhook log stream bypasses the handler timeout.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Unmatched routes get the JSON error envelope, not chi's plain text.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "no route for "+r.URL.Path)
	})

	// Operational endpoints.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(observability.ReadinessChecks{
		CatalogLoaded: func() bool { return deps.Catalog != nil },
		Backend:       deps.Backend,
	}))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Streaming endpoint — long-lived, so no handler timeout.
	r.Group(func(r chi.Router) {
		r.Use(RequestLogging)
		r.Get("/ui/webhook/stream", handleWebhookStream(deps.Simulator, deps.Logger))
	})

	// API routes — full pipeline.
	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		// Platform catalog.
		r.Get("/ui/catalog", handleCatalog(deps.Catalog))
		r.Get("/ui/catalog/events/{platform}", handleCatalogEvents(deps.Catalog))
		r.Get("/ui/catalog/actions/{platform}", handleCatalogActionTypes(deps.Catalog))

		// Editing sessions.
		r.Route("/ui/editor/sessions", func(r chi.Router) {
			r.Post("/", handleSessionOpen(deps.Editor))
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", handleSessionView(deps.Editor))
				r.Delete("/", handleSessionClose(deps.Editor))
				r.Post("/name", handleSessionName(deps.Editor))
				r.Post("/description", handleSessionDescription(deps.Editor))
				r.Post("/trigger/platform", handleTriggerPlatform(deps.Editor))
				r.Post("/trigger/event", handleTriggerEvent(deps.Editor))
				r.Post("/trigger/data", handleTriggerData(deps.Editor))
				r.Post("/action/platform", handleActionPlatform(deps.Editor))
				r.Post("/action/type", handleActionType(deps.Editor))
				r.Post("/action/integration", handleActionIntegration(deps.Editor))
				r.Post("/action/params", handleActionParams(deps.Editor, deps.Metrics))
				r.Post("/action/commit", handleActionCommit(deps.Editor))
				r.Delete("/actions/{index}", handleActionRemove(deps.Editor))
				r.Post("/reset", handleSessionReset(deps.Editor))
				r.Get("/preview", handleSessionPreview(deps.Editor))
				r.Post("/submit", handleSessionSubmit(deps.Editor, deps.Metrics))
			})
		})

		// Saved rules.
		r.Get("/ui/rules", handleRuleList(deps.Backend, deps.Editor))
		r.Get("/ui/rules/{ruleId}", handleRuleGet(deps.Backend, deps.Editor))
		r.Delete("/ui/rules/{ruleId}", handleRuleDelete(deps.Backend))

		// Integrations.
		r.Get("/ui/integrations", handleIntegrationList(deps.Backend))
		r.Post("/ui/integrations", handleIntegrationCreate(deps.Backend, deps.Catalog))
		r.Get("/ui/integrations/platforms", handleIntegrationPlatforms(deps.Catalog))
		r.Post("/ui/integrations/test", handleIntegrationTest(deps.Backend, deps.Catalog))
		r.Get("/ui/integrations/{integrationId}", handleIntegrationGet(deps.Backend))
		r.Put("/ui/integrations/{integrationId}", handleIntegrationUpdate(deps.Backend, deps.Catalog))
		r.Delete("/ui/integrations/{integrationId}", handleIntegrationDelete(deps.Backend))

		// Webhook simulator.
		r.Get("/ui/webhook/platforms", handleWebhookPlatforms(deps.Catalog))
		r.Get("/ui/webhook/sample/{platform}", handleWebhookSample(deps.Simulator))
		r.Post("/ui/webhook/send", handleWebhookSend(deps.Simulator, deps.Metrics))
		r.Get("/ui/webhook/log", handleWebhookLog(deps.Simulator))
		r.Delete("/ui/webhook/log", handleWebhookLogClear(deps.Simulator))
	})

	return r
}
