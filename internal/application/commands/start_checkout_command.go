package commands

import (
	"context"

	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type StartCheckoutCommand struct {
	Session user.Session
}

type StartCheckoutHandler struct {
	registry *use_cases.SessionRegistry
	log      *logger.Logger
}

func NewStartCheckoutHandler(registry *use_cases.SessionRegistry, log *logger.Logger) *StartCheckoutHandler {
	return &StartCheckoutHandler{
		registry: registry,
		log:      log,
	}
}

func (h *StartCheckoutHandler) Handle(ctx context.Context, cmd StartCheckoutCommand) (*CheckoutResponse, error) {
	o, err := h.registry.Start(ctx, cmd.Session)
	if err != nil {
		h.log.Error("Failed to start checkout", "error", err, "authenticated", cmd.Session.Authenticated())
		return nil, err
	}

	return NewCheckoutResponse(o.View()), nil
}
