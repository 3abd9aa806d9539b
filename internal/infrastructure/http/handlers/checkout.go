package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuzvak/checkout-service/internal/application/commands"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/middleware"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/response"
	"github.com/yuzvak/checkout-service/internal/pkg/generator"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const maxBodyBytes = 64 << 10

type CheckoutHandler struct {
	start    *commands.StartCheckoutHandler
	confirm  *commands.ConfirmPaymentHandler
	resolve  *commands.ResolvePaymentHandler
	sessions *commands.CheckoutSessionHandler
	log      *logger.Logger
}

func NewCheckoutHandler(
	start *commands.StartCheckoutHandler,
	confirm *commands.ConfirmPaymentHandler,
	resolve *commands.ResolvePaymentHandler,
	sessions *commands.CheckoutSessionHandler,
	log *logger.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		start:    start,
		confirm:  confirm,
		resolve:  resolve,
		sessions: sessions,
		log:      log,
	}
}

type ConfirmPaymentRequest struct {
	ClientSecret  string `json:"clientSecret"`
	PaymentMethod string `json:"paymentMethod"`
}

// ResolvePaymentRequest names the payment to settle. Its status always comes
// from the provider.
type ResolvePaymentRequest struct {
	PaymentID string `json:"paymentId"`
}

func (h *CheckoutHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	resp, err := h.start.Handle(r.Context(), commands.StartCheckoutCommand{
		Session: middleware.SessionFrom(r.Context()),
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteCreated(w, resp)
}

// HandleGet returns the current view. With ?after=<version>&wait=<duration>
// it long-polls for the next one.
func (h *CheckoutHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.sessionCommand(w, r)
	if !ok {
		return
	}

	errors := make(map[string]string)
	if after := r.URL.Query().Get("after"); after != "" {
		v, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			errors["after"] = "after must be a view version"
		}
		cmd.AfterVersion = v
	}
	if wait := r.URL.Query().Get("wait"); wait != "" {
		d, err := time.ParseDuration(wait)
		if err != nil || d < 0 {
			errors["wait"] = "wait must be a duration such as 10s"
		}
		cmd.Wait = d
	}
	if len(errors) > 0 {
		response.WriteValidationError(w, "Validation failed", errors)
		return
	}

	resp, err := h.sessions.Get(r.Context(), cmd)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, resp)
}

func (h *CheckoutHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.sessionCommand(w, r)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	errors := make(map[string]string)
	if req.ClientSecret == "" {
		errors["clientSecret"] = "clientSecret is required"
	}
	if req.PaymentMethod == "" {
		errors["paymentMethod"] = "paymentMethod is required"
	}
	if len(errors) > 0 {
		h.log.Warn("Confirm validation failed", "errors", errors, "checkout_session", cmd.SessionID)
		response.WriteValidationError(w, "Validation failed", errors)
		return
	}

	resp, err := h.confirm.Handle(r.Context(), commands.ConfirmPaymentCommand{
		SessionID:     cmd.SessionID,
		Session:       cmd.Session,
		ClientSecret:  req.ClientSecret,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteAccepted(w, resp)
}

func (h *CheckoutHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.sessionCommand(w, r)
	if !ok {
		return
	}

	resp, err := h.sessions.Refresh(r.Context(), cmd)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, resp)
}

func (h *CheckoutHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.sessionCommand(w, r)
	if !ok {
		return
	}

	var req ResolvePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	errors := make(map[string]string)
	if req.PaymentID == "" {
		errors["paymentId"] = "paymentId is required"
	}
	if len(errors) > 0 {
		response.WriteValidationError(w, "Validation failed", errors)
		return
	}

	resp, err := h.resolve.Handle(r.Context(), commands.ResolvePaymentCommand{
		SessionID: cmd.SessionID,
		Session:   cmd.Session,
		PaymentID: req.PaymentID,
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteAccepted(w, resp)
}

func (h *CheckoutHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.sessionCommand(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Close(r.Context(), cmd); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandler) sessionCommand(w http.ResponseWriter, r *http.Request) (commands.CheckoutSessionCommand, bool) {
	id := chi.URLParam(r, "sessionID")
	if !generator.IsSessionID(id) {
		response.WriteValidationError(w, "Validation failed", map[string]string{
			"sessionId": "sessionId is not a valid checkout session id",
		})
		return commands.CheckoutSessionCommand{}, false
	}
	return commands.CheckoutSessionCommand{
		SessionID: id,
		Session:   middleware.SessionFrom(r.Context()),
	}, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.WriteValidationError(w, "Invalid request body", map[string]string{
			"body": err.Error(),
		})
		return false
	}
	return true
}
