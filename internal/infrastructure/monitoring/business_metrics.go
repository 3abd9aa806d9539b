package monitoring

import (
	"sync"
	"time"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
)

type stepStart struct {
	state checkout.Kind
	at    time.Time
}

// CheckoutMetricsRecorder turns checkout transitions into metrics and then
// hands them to the next recorder, if any.
type CheckoutMetricsRecorder struct {
	next ports.TransitionRecorder

	mu    sync.Mutex
	steps map[string]stepStart
}

func NewCheckoutMetricsRecorder(next ports.TransitionRecorder) *CheckoutMetricsRecorder {
	return &CheckoutMetricsRecorder{
		next:  next,
		steps: make(map[string]stepStart),
	}
}

func (r *CheckoutMetricsRecorder) Record(t ports.Transition) {
	kind := t.State.Kind
	CheckoutTransitionsTotal.WithLabelValues(kind.String()).Inc()

	if kind == checkout.KindFailed {
		CheckoutFailuresTotal.WithLabelValues(string(t.State.Reason)).Inc()
		if t.State.Reason == checkout.ReasonOrderCreationFailedAfterPayment {
			OrdersFailedAfterPaymentTotal.Inc()
		}
	}

	r.mu.Lock()
	if prev, ok := r.steps[t.SessionID]; ok && prev.state != kind {
		CheckoutStepDuration.WithLabelValues(prev.state.String()).Observe(t.At.Sub(prev.at).Seconds())
	}
	if kind.IsTerminal() {
		delete(r.steps, t.SessionID)
	} else if prev, ok := r.steps[t.SessionID]; !ok || prev.state != kind {
		r.steps[t.SessionID] = stepStart{state: kind, at: t.At}
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.Record(t)
	}
}

// Prune drops timing state of sessions that have not moved since before,
// which covers sessions closed without reaching a terminal state.
func (r *CheckoutMetricsRecorder) Prune(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, step := range r.steps {
		if step.at.Before(before) {
			delete(r.steps, id)
			pruned++
		}
	}
	return pruned
}

func (r *CheckoutMetricsRecorder) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}
