package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opsforge/automator/internal/catalog"
	"github.com/opsforge/automator/internal/observability"
	"github.com/opsforge/automator/internal/simulator"
)

func handleWebhookPlatforms(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"platforms": cat.TriggerPlatforms(),
		})
	}
}

func handleWebhookSample(sim *simulator.Simulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := chi.URLParam(r, "platform")
		payload, err := sim.SamplePayload(platform)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"platform": platform,
			"payload":  payload,
		})
	}
}

func handleWebhookSend(sim *simulator.Simulator, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Platform string `json:"platform"`
			Payload  string `json:"payload"`
		}
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "simulator.send",
			observability.AttrPlatform.String(req.Platform),
		)
		result, err := sim.Send(ctx, req.Platform, req.Payload)
		observability.EndSpanWithError(span, err)

		if err != nil {
			if metrics != nil {
				metrics.RecordWebhookSend(req.Platform, "error")
			}
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordWebhookSend(req.Platform, strconv.Itoa(result.Status))
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleWebhookLog(sim *simulator.Simulator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"entries": sim.Entries(),
		})
	}
}

func handleWebhookLogClear(sim *simulator.Simulator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sim.Clear()
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin enforcement happens in the CORS middleware for the REST
	// surface; the stream carries no credentials and is read-only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebhookStream upgrades to a websocket and pushes the existing
// log followed by every new entry until the client disconnects.
func handleWebhookStream(sim *simulator.Simulator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := streamUpgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			return
		}
		defer conn.Close()

		ch, cancel := sim.Subscribe()
		defer cancel()

		for _, e := range sim.Entries() {
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}

		// Reader goroutine: surfaces client disconnects.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(e); err != nil {
					if logger != nil {
						logger.Debug("webhook stream write failed", zap.Error(err))
					}
					return
				}
			}
		}
	}
}
