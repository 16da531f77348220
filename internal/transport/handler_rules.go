package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/automator/internal/client"
	"github.com/opsforge/automator/internal/editor"
	"github.com/opsforge/automator/model"
)

// ruleItem is a decoded rule plus any non-fatal decode warning, such as
// a persisted actions blob that did not parse.
type ruleItem struct {
	model.Rule
	Warning string `json:"warning,omitempty"`
}

func handleRuleList(backend *client.Client, ed *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wires, err := backend.ListRules(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}

		ser := ed.Serializer()
		rules := make([]ruleItem, 0, len(wires))
		for _, wr := range wires {
			rule, warning := ser.FromWire(wr)
			rules = append(rules, ruleItem{Rule: rule, Warning: warning})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
	}
}

func handleRuleGet(backend *client.Client, ed *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wr, err := backend.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		rule, warning := ed.Serializer().FromWire(wr)
		WriteJSON(w, http.StatusOK, ruleItem{Rule: rule, Warning: warning})
	}
}

func handleRuleDelete(backend *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := backend.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}
