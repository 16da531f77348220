package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/model"
)

// catalogResponse is the top-level catalog listing: everything the
// console needs to render the two platform selectors.
type catalogResponse struct {
	TriggerPlatforms []model.Option `json:"trigger_platforms"`
	ActionPlatforms  []model.Option `json:"action_platforms"`
}

func handleCatalog(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, catalogResponse{
			TriggerPlatforms: cat.TriggerPlatforms(),
			ActionPlatforms:  cat.ActionPlatforms(),
		})
	}
}

func handleCatalogEvents(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := chi.URLParam(r, "platform")
		events, err := cat.EventsFor(platform)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"platform": platform,
			"events":   events,
		})
	}
}

func handleCatalogActionTypes(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := chi.URLParam(r, "platform")
		types, err := cat.ActionTypesFor(platform)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"platform":     platform,
			"action_types": types,
		})
	}
}
