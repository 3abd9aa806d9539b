package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/response"
	"github.com/yuzvak/checkout-service/internal/pkg/generator"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const maxListLimit = 200

type TransitionHistory interface {
	History(ctx context.Context, sessionID string) ([]ports.Transition, error)
}

// SupportHandler exposes payments that were captured without an order and
// the recorded path of a checkout session.
type SupportHandler struct {
	repo    ports.ReconciliationRepository
	history TransitionHistory
	log     *logger.Logger
}

func NewSupportHandler(repo ports.ReconciliationRepository, history TransitionHistory, log *logger.Logger) *SupportHandler {
	return &SupportHandler{
		repo:    repo,
		history: history,
		log:     log,
	}
}

type ReconciliationResponse struct {
	ID          string               `json:"id"`
	SessionID   string               `json:"sessionId"`
	PaymentID   string               `json:"paymentId"`
	CartKey     string               `json:"cartKey"`
	Items       []checkout.OrderItem `json:"items"`
	AmountMinor int64                `json:"amountMinor"`
	Currency    string               `json:"currency"`
	Detail      string               `json:"detail"`
	CreatedAt   time.Time            `json:"createdAt"`
}

func (h *SupportHandler) HandleListReconciliations(w http.ResponseWriter, r *http.Request) {
	limit, offset, errors := pagination(r)
	if len(errors) > 0 {
		response.WriteValidationError(w, "Validation failed", errors)
		return
	}

	records, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("Failed to list reconciliations", "error", err)
		response.WriteDomainError(w, err)
		return
	}

	items := make([]ReconciliationResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, ReconciliationResponse{
			ID:          rec.ID,
			SessionID:   rec.SessionID,
			PaymentID:   rec.Submission.PaymentID,
			CartKey:     rec.CartKey,
			Items:       rec.Submission.Items,
			AmountMinor: rec.AmountMinor,
			Currency:    rec.Currency,
			Detail:      rec.Detail,
			CreatedAt:   rec.CreatedAt,
		})
	}
	response.WriteSuccess(w, response.List(items, limit, offset))
}

type TransitionResponse struct {
	State   checkout.Kind   `json:"state"`
	Reason  checkout.Reason `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
	At      time.Time       `json:"at"`
}

// HandleSessionHistory lists the recorded transitions of one session, which
// outlive the session itself.
func (h *SupportHandler) HandleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !generator.IsSessionID(id) {
		response.WriteValidationError(w, "Validation failed", map[string]string{
			"sessionId": "sessionId is not a valid checkout session id",
		})
		return
	}

	transitions, err := h.history.History(r.Context(), id)
	if err != nil {
		h.log.Error("Failed to load checkout history", "error", err, "checkout_session", id)
		response.WriteDomainError(w, err)
		return
	}
	if len(transitions) == 0 {
		response.WriteError(w, http.StatusNotFound, response.StatusNotFound, "No history for checkout session")
		return
	}

	items := make([]TransitionResponse, 0, len(transitions))
	for _, t := range transitions {
		items = append(items, TransitionResponse{
			State:   t.State.Kind,
			Reason:  t.State.Reason,
			Message: t.State.Message,
			At:      t.At,
		})
	}
	response.WriteSuccess(w, response.List(items, 0, 0))
}

func pagination(r *http.Request) (int, int, map[string]string) {
	errors := make(map[string]string)
	limit, offset := 50, 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			errors["limit"] = "limit must be between 1 and 200"
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errors["offset"] = "offset must not be negative"
		}
		offset = n
	}
	return limit, offset, errors
}
