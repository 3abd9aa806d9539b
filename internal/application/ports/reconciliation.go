package ports

import (
	"context"
	"time"

	"github.com/yuzvak/checkout-service/internal/domain/checkout"
)

// Reconciliation describes a payment that was captured without an order.
type Reconciliation struct {
	ID          string
	SessionID   string
	CartKey     string
	Submission  checkout.OrderSubmission
	AmountMinor int64
	Currency    string
	Detail      string
	CreatedAt   time.Time
}

type ReconciliationRepository interface {
	Record(ctx context.Context, rec *Reconciliation) error
	List(ctx context.Context, limit, offset int) ([]*Reconciliation, error)
}

type Transition struct {
	SessionID string
	State     checkout.State
	At        time.Time
}

// TransitionRecorder receives every published checkout state. Record must not
// block.
type TransitionRecorder interface {
	Record(t Transition)
}

type Navigator interface {
	Navigate(ctx context.Context, sessionID string, redirect checkout.Redirect)
}
