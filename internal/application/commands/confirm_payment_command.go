package commands

import (
	"context"

	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type ConfirmPaymentCommand struct {
	SessionID     string
	Session       user.Session
	ClientSecret  string
	PaymentMethod string
}

type ConfirmPaymentHandler struct {
	registry *use_cases.SessionRegistry
	log      *logger.Logger
}

func NewConfirmPaymentHandler(registry *use_cases.SessionRegistry, log *logger.Logger) *ConfirmPaymentHandler {
	return &ConfirmPaymentHandler{
		registry: registry,
		log:      log,
	}
}

func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*CheckoutResponse, error) {
	o, err := h.registry.Lookup(cmd.SessionID, cmd.Session)
	if err != nil {
		return nil, err
	}

	if err := o.Submit(ctx, cmd.ClientSecret, cmd.PaymentMethod); err != nil {
		h.log.Warn("Payment form rejected", "error", err, "checkout_session", cmd.SessionID)
		return nil, err
	}

	h.log.Info("Payment form submitted", "checkout_session", cmd.SessionID)
	return NewCheckoutResponse(o.View()), nil
}
