package use_cases

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/domain/user"
	"github.com/yuzvak/checkout-service/internal/pkg/clock"
	"github.com/yuzvak/checkout-service/internal/pkg/generator"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

type RegistryLimits struct {
	SessionTTL        time.Duration
	TerminalRetention time.Duration
}

// SessionRegistry owns the live checkout sessions of this process.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*CheckoutOrchestrator

	carts    ports.CartReader
	deps     CheckoutDependencies
	settings CheckoutSettings
	limits   RegistryLimits
	ids      *generator.IDGenerator
	clock    clock.Clock
	log      *logger.Logger
}

func NewSessionRegistry(
	carts ports.CartReader,
	deps CheckoutDependencies,
	settings CheckoutSettings,
	limits RegistryLimits,
	clk clock.Clock,
	log *logger.Logger,
) *SessionRegistry {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &SessionRegistry{
		sessions: make(map[string]*CheckoutOrchestrator),
		carts:    carts,
		deps:     deps,
		settings: settings,
		limits:   limits,
		ids:      generator.NewIDGenerator(),
		clock:    clk,
		log:      log,
	}
}

// Start reads the shopper's cart and begins a new checkout attempt for it.
func (r *SessionRegistry) Start(ctx context.Context, session user.Session) (*CheckoutOrchestrator, error) {
	identity := user.ResolveCartIdentity(session)
	snapshot, err := r.carts.Snapshot(ctx, identity)
	if err != nil {
		r.log.Error("Failed to read cart", "error", err, "cart_key", identity.Key())
		return nil, fmt.Errorf("%w: %v", errors.ErrCartUnavailable, err)
	}

	o := NewCheckoutOrchestrator(r.ids.GenerateSessionID(), session, r.deps, r.settings, r.log, r.clock)

	r.mu.Lock()
	r.sessions[o.ID()] = o
	r.mu.Unlock()

	o.Start(snapshot)
	r.log.Info("Checkout session started", "checkout_session", o.ID(), "items", snapshot.ItemCount())
	return o, nil
}

// Lookup returns the session if it exists and belongs to the caller's cart.
func (r *SessionRegistry) Lookup(id string, session user.Session) (*CheckoutOrchestrator, error) {
	r.mu.RLock()
	o, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok || o.Identity() != user.ResolveCartIdentity(session) {
		return nil, errors.ErrSessionNotFound
	}
	o.Touch()
	return o, nil
}

// Refresh re-reads the cart and feeds the snapshot into the session.
func (r *SessionRegistry) Refresh(ctx context.Context, id string, session user.Session) (*CheckoutOrchestrator, error) {
	o, err := r.Lookup(id, session)
	if err != nil {
		return nil, err
	}

	snapshot, err := r.carts.Snapshot(ctx, o.Identity())
	if err != nil {
		r.log.Error("Failed to read cart", "error", err, "checkout_session", id)
		return nil, fmt.Errorf("%w: %v", errors.ErrCartUnavailable, err)
	}

	if err := o.CartChanged(ctx, snapshot); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *SessionRegistry) Close(id string, session user.Session) error {
	o, err := r.Lookup(id, session)
	if err != nil {
		return err
	}
	r.remove(id)
	o.Close()
	return nil
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Reap closes sessions nobody has touched for SessionTTL and terminal
// sessions older than TerminalRetention. Sessions creating an order are
// never reaped.
func (r *SessionRegistry) Reap() int {
	now := r.clock.Now()

	r.mu.RLock()
	var expired []*CheckoutOrchestrator
	for _, o := range r.sessions {
		view := o.View()
		switch {
		case view.State.Is(checkout.KindCreatingOrder):
		case view.State.Kind.IsTerminal():
			if r.limits.TerminalRetention > 0 && now.Sub(view.UpdatedAt) > r.limits.TerminalRetention {
				expired = append(expired, o)
			}
		case r.limits.SessionTTL > 0 && now.Sub(o.LastSeen()) > r.limits.SessionTTL:
			expired = append(expired, o)
		}
	}
	r.mu.RUnlock()

	for _, o := range expired {
		r.remove(o.ID())
		o.Close()
		r.log.Info("Checkout session reaped", "checkout_session", o.ID(), "state", o.View().State.Kind)
	}
	return len(expired)
}

// Drain waits until no session is confirming a payment or creating an order,
// or until ctx is done. Sessions parked until the shopper asks for resolution
// have no provider call outstanding and are not waited for. New sessions may
// still be started meanwhile.
func (r *SessionRegistry) Drain(ctx context.Context) error {
	r.mu.RLock()
	sessions := make([]*CheckoutOrchestrator, 0, len(r.sessions))
	for _, o := range r.sessions {
		sessions = append(sessions, o)
	}
	r.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, o := range sessions {
		wg.Add(1)
		go func(o *CheckoutOrchestrator) {
			defer wg.Done()
			_, err := o.Await(ctx, func(v View) bool {
				return !v.State.Kind.InFlight() || v.AwaitingResolution
			})
			if err != nil && !stderrors.Is(err, errors.ErrSessionClosed) {
				errOnce.Do(func() { firstErr = err })
			}
		}(o)
	}
	wg.Wait()
	return firstErr
}

func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*CheckoutOrchestrator)
	r.mu.Unlock()

	for _, o := range sessions {
		o.Close()
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
