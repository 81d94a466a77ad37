package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ghostarb/internal/domain"
	"ghostarb/internal/service"
)

// EngineHandler serves the operator control surface for the running engine.
type EngineHandler struct {
	svc    *service.EngineService
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(svc *service.EngineService, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{svc: svc, logger: logger}
}

// Status returns the engine snapshot.
// GET /api/engine/status
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Pause suspends signal evaluation.
// POST /api/engine/pause
func (h *EngineHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.svc.Pause()
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Resume re-enables signal evaluation.
// POST /api/engine/resume
func (h *EngineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.svc.Resume()
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Config returns the current runtime tunables.
// GET /api/engine/config
func (h *EngineHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Config())
}

// UpdateConfig applies and persists new runtime tunables.
// PUT /api/engine/config
func (h *EngineHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.EngineConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.UpdateConfig(r.Context(), cfg); err != nil {
		logHandler(h.logger, "engine_config").Error("config update failed", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Config())
}
