package commands

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const maxPollWait = 25 * time.Second

type CheckoutSessionCommand struct {
	SessionID string
	Session   user.Session
	// AfterVersion makes Get wait, up to Wait, for a view newer than it.
	AfterVersion uint64
	Wait         time.Duration
}

// CheckoutSessionHandler serves the session-level operations: reading the
// current view, refreshing the cart and closing the session.
type CheckoutSessionHandler struct {
	registry *use_cases.SessionRegistry
	log      *logger.Logger
}

func NewCheckoutSessionHandler(registry *use_cases.SessionRegistry, log *logger.Logger) *CheckoutSessionHandler {
	return &CheckoutSessionHandler{
		registry: registry,
		log:      log,
	}
}

func (h *CheckoutSessionHandler) Get(ctx context.Context, cmd CheckoutSessionCommand) (*CheckoutResponse, error) {
	o, err := h.registry.Lookup(cmd.SessionID, cmd.Session)
	if err != nil {
		return nil, err
	}
	if cmd.AfterVersion == 0 || cmd.Wait <= 0 {
		return NewCheckoutResponse(o.View()), nil
	}

	wait := cmd.Wait
	if wait > maxPollWait {
		wait = maxPollWait
	}
	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	view, err := o.Await(pollCtx, func(v use_cases.View) bool { return v.Version > cmd.AfterVersion })
	if err != nil && !stderrors.Is(err, context.DeadlineExceeded) && !stderrors.Is(err, errors.ErrSessionClosed) {
		return nil, err
	}
	return NewCheckoutResponse(view), nil
}

func (h *CheckoutSessionHandler) Refresh(ctx context.Context, cmd CheckoutSessionCommand) (*CheckoutResponse, error) {
	o, err := h.registry.Refresh(ctx, cmd.SessionID, cmd.Session)
	if err != nil {
		h.log.Warn("Failed to refresh checkout cart", "error", err, "checkout_session", cmd.SessionID)
		return nil, err
	}
	return NewCheckoutResponse(o.View()), nil
}

func (h *CheckoutSessionHandler) Close(ctx context.Context, cmd CheckoutSessionCommand) error {
	if err := h.registry.Close(cmd.SessionID, cmd.Session); err != nil {
		return err
	}
	h.log.Info("Checkout session closed by client", "checkout_session", cmd.SessionID)
	return nil
}
