package handler

import (
	"log/slog"
	"net/http"

	"ghostarb/internal/service"
)

// LedgerHandler serves aggregate views over the settlement ledgers.
type LedgerHandler struct {
	ledger *service.LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledger *service.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Efficiency returns the alpha-efficiency ratio between the executed and
// observed paths.
// GET /api/efficiency
func (h *LedgerHandler) Efficiency(w http.ResponseWriter, r *http.Request) {
	eff, err := h.ledger.Efficiency(r.Context())
	if err != nil {
		logHandler(h.logger, "efficiency").Error("efficiency failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "efficiency lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, eff)
}
