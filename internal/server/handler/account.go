package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/service"
)

// AccountHandler serves account enrollment, settings, and trade history.
type AccountHandler struct {
	accounts *service.AccountService
	ledger   *service.LedgerService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *service.AccountService, ledger *service.LedgerService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger, logger: logger}
}

type accountView struct {
	ID          int64     `json:"id"`
	Balance     float64   `json:"balance"`
	PeakBalance float64   `json:"peak_balance"`
	Active      bool      `json:"active"`
	Strategy    string    `json:"strategy"`
	JoinedAt    time.Time `json:"joined_at"`
}

func toAccountView(a domain.Account) accountView {
	return accountView{
		ID:          a.ID,
		Balance:     a.Balance,
		PeakBalance: a.PeakBalance,
		Active:      a.Active,
		Strategy:    string(a.Strategy),
		JoinedAt:    a.JoinedAt,
	}
}

// Enroll creates a paper-trading account for the given ID.
// POST /api/accounts/{id}
func (h *AccountHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var body struct {
		Strategy string `json:"strategy"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	acct, err := h.accounts.Enroll(r.Context(), id, domain.StrategyMode(body.Strategy))
	if err != nil {
		logHandler(h.logger, "enroll").Error("enroll failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "enrollment failed")
		return
	}
	writeJSON(w, http.StatusCreated, toAccountView(acct))
}

// Get returns one account.
// GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	acct, err := h.accounts.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(acct))
}

// Update changes account settings: strategy, active flag, or a peak reset.
// PUT /api/accounts/{id}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var body struct {
		Strategy  *string  `json:"strategy"`
		Active    *bool    `json:"active"`
		Balance   *float64 `json:"balance"`
		ResetPeak bool     `json:"reset_peak"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if body.Strategy != nil {
		if err := h.accounts.SetStrategy(ctx, id, domain.StrategyMode(*body.Strategy)); err != nil {
			h.writeUpdateError(w, err)
			return
		}
	}
	if body.Active != nil {
		if err := h.accounts.SetActive(ctx, id, *body.Active); err != nil {
			h.writeUpdateError(w, err)
			return
		}
	}
	if body.Balance != nil {
		if err := h.accounts.SetBalance(ctx, id, *body.Balance); err != nil {
			h.writeUpdateError(w, err)
			return
		}
	}
	if body.ResetPeak {
		if err := h.accounts.ResetPeak(ctx, id); err != nil {
			h.writeUpdateError(w, err)
			return
		}
	}

	acct, err := h.accounts.Get(ctx, id)
	if err != nil {
		h.writeUpdateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(acct))
}

func (h *AccountHandler) writeUpdateError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// Trades returns an account's recent settled trades, decrypted.
// GET /api/accounts/{id}/trades
func (h *AccountHandler) Trades(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	views, err := h.ledger.TradeHistory(r.Context(), id, parseListOpts(r))
	if err != nil {
		logHandler(h.logger, "trades").Error("history failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if views == nil {
		views = []domain.TradeView{}
	}
	writeJSON(w, http.StatusOK, views)
}
