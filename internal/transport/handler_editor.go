package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/automator/internal/editor"
	"github.com/opsforge/automator/internal/observability"
	"github.com/opsforge/automator/model"
)

// sessionFromRequest resolves the {sessionId} route param to a live session.
func sessionFromRequest(svc *editor.Service, r *http.Request) (*editor.Session, error) {
	return svc.Get(chi.URLParam(r, "sessionId"))
}

// decodeBody decodes a small JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}

func handleSessionOpen(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RuleID string `json:"rule_id"`
		}
		// An empty body opens a fresh create session.
		if r.ContentLength > 0 {
			if err := decodeBody(r, &req); err != nil {
				WriteError(w, err)
				return
			}
		}

		var (
			s   *editor.Session
			err error
		)
		if req.RuleID != "" {
			s, err = svc.OpenForEdit(r.Context(), req.RuleID)
		} else {
			s, err = svc.Open(r.Context())
		}
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, s.View())
	}
}

func handleSessionView(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionFromRequest(svc, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.View())
	}
}

func handleSessionClose(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Close(chi.URLParam(r, "sessionId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

// mutate runs a session mutation and responds with the updated view.
func mutate(svc *editor.Service, w http.ResponseWriter, r *http.Request, fn func(s *editor.Session) error) {
	s, err := sessionFromRequest(svc, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := fn(s); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.View())
}

func handleSessionName(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.SetName(req.Name)
		})
	}
}

func handleSessionDescription(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string `json:"description"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.SetDescription(req.Description)
		})
	}
}

func handleTriggerPlatform(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Platform string `json:"platform"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.ChangeTriggerPlatform(req.Platform)
		})
	}
}

func handleTriggerEvent(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Event string `json:"event"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.SetTriggerEvent(req.Event)
		})
	}
}

func handleTriggerData(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data string `json:"data"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.SetTriggerData(req.Data)
		})
	}
}

func handleActionPlatform(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Platform string `json:"platform"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.ChangeActionPlatform(req.Platform)
		})
	}
}

func handleActionType(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ActionType string `json:"action_type"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.SetActionType(req.ActionType)
		})
	}
}

func handleActionIntegration(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IntegrationID string `json:"integration_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.SetIntegration(req.IntegrationID)
		})
	}
}

// paramsResponse reports a merge outcome alongside the refreshed view.
type paramsResponse struct {
	Dropped []string    `json:"dropped_keys,omitempty"`
	View    editor.View `json:"view"`
}

func handleActionParams(svc *editor.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params string `json:"params"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}
		s, err := sessionFromRequest(svc, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		dropped, err := s.MergeParams(req.Params)
		if err != nil {
			if metrics != nil {
				metrics.RecordParamsMerge("error")
			}
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordParamsMerge("ok")
		}
		WriteJSON(w, http.StatusOK, paramsResponse{Dropped: dropped, View: s.View()})
	}
}

func handleActionCommit(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.CommitAction()
		})
	}
}

func handleActionRemove(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			WriteError(w, model.NewBadRequestError("action index must be an integer"))
			return
		}
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.RemoveAction(idx)
		})
	}
}

func handleSessionReset(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mutate(svc, w, r, func(s *editor.Session) error {
			return s.ResetDraft()
		})
	}
}

func handleSessionPreview(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionFromRequest(svc, r)
		if err != nil {
			WriteError(w, err)
			return
		}
		preview, err := s.Preview(svc.Serializer())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"preview": preview})
	}
}

func handleSessionSubmit(svc *editor.Service, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionFromRequest(svc, r)
		if err != nil {
			WriteError(w, err)
			return
		}

		mode := string(s.Mode())
		ctx, span := observability.StartSpan(r.Context(), "editor.submit",
			observability.AttrSessionID.String(s.ID()),
		)
		saved, err := s.Submit(ctx, svc.Backend(), svc.Serializer())
		observability.EndSpanWithError(span, err)

		if err != nil {
			if metrics != nil {
				metrics.RecordRuleSubmit(mode, "error")
			}
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordRuleSubmit(mode, "ok")
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"rule": saved,
			"view": s.View(),
		})
	}
}
