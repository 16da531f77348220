package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/internal/client"
	"github.com/opsforge/automator/model"
)

func handleIntegrationList(backend *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrations, err := backend.ListIntegrations(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"integrations": integrations})
	}
}

func handleIntegrationGet(backend *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := backend.GetIntegration(r.Context(), chi.URLParam(r, "integrationId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, in)
	}
}

// integrationPlatform describes a connectable platform and the
// credential fields its setup form needs.
type integrationPlatform struct {
	Platform string                   `json:"platform"`
	Fields   []catalog.CredentialField `json:"fields"`
}

func handleIntegrationPlatforms(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		platforms := cat.CredentialPlatforms()
		out := make([]integrationPlatform, 0, len(platforms))
		for _, p := range platforms {
			fields, err := cat.CredentialFieldsFor(p)
			if err != nil {
				WriteError(w, err)
				return
			}
			out = append(out, integrationPlatform{Platform: p, Fields: fields})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"platforms": out})
	}
}

// validateIntegration checks the integration type against the catalog's
// credential platforms and requires every schema field to be present.
func validateIntegration(cat *catalog.Catalog, in model.Integration) error {
	var details []model.FieldError

	if in.Name == "" {
		details = append(details, model.FieldError{
			Field:   "name",
			Code:    model.ErrValidationError,
			Message: "name is required",
		})
	}

	if !cat.IsCredentialPlatform(in.IntegrationType) {
		details = append(details, model.FieldError{
			Field:   "integration_type",
			Code:    model.ErrInvalidSelection,
			Message: "unknown integration type " + in.IntegrationType,
		})
		return model.NewValidationError(details)
	}

	fields, err := cat.CredentialFieldsFor(in.IntegrationType)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if in.Config[f.Name] == "" {
			details = append(details, model.FieldError{
				Field:   "config." + f.Name,
				Code:    model.ErrValidationError,
				Message: f.Label + " is required",
			})
		}
	}

	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

func handleIntegrationCreate(backend *client.Client, cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.Integration
		if err := decodeBody(r, &in); err != nil {
			WriteError(w, err)
			return
		}
		if err := validateIntegration(cat, in); err != nil {
			WriteError(w, err)
			return
		}
		saved, err := backend.CreateIntegration(r.Context(), in)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, saved)
	}
}

func handleIntegrationUpdate(backend *client.Client, cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.Integration
		if err := decodeBody(r, &in); err != nil {
			WriteError(w, err)
			return
		}
		if err := validateIntegration(cat, in); err != nil {
			WriteError(w, err)
			return
		}
		saved, err := backend.UpdateIntegration(r.Context(), chi.URLParam(r, "integrationId"), in)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, saved)
	}
}

func handleIntegrationDelete(backend *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := backend.DeleteIntegration(r.Context(), chi.URLParam(r, "integrationId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

func handleIntegrationTest(backend *client.Client, cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.TestConnectionRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		if !cat.IsCredentialPlatform(req.IntegrationType) {
			WriteError(w, model.NewInvalidSelectionError(
				"unknown integration type "+req.IntegrationType,
			))
			return
		}
		result, err := backend.TestConnection(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
