package commands

import (
	"context"

	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

// ResolvePaymentCommand asks for a payment that confirmation left in an
// intermediate status to be looked up with the provider again.
type ResolvePaymentCommand struct {
	SessionID string
	Session   user.Session
	PaymentID string
}

type ResolvePaymentHandler struct {
	registry *use_cases.SessionRegistry
	log      *logger.Logger
}

func NewResolvePaymentHandler(registry *use_cases.SessionRegistry, log *logger.Logger) *ResolvePaymentHandler {
	return &ResolvePaymentHandler{
		registry: registry,
		log:      log,
	}
}

func (h *ResolvePaymentHandler) Handle(ctx context.Context, cmd ResolvePaymentCommand) (*CheckoutResponse, error) {
	o, err := h.registry.Lookup(cmd.SessionID, cmd.Session)
	if err != nil {
		return nil, err
	}

	if err := o.Resolve(ctx, cmd.PaymentID); err != nil {
		h.log.Warn("Payment resolution rejected",
			"error", err,
			"checkout_session", cmd.SessionID,
			"payment_id", cmd.PaymentID)
		return nil, err
	}

	return NewCheckoutResponse(o.View()), nil
}
