package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/yuzvak/checkout-service/internal/infrastructure/http/response"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const pingTimeout = 2 * time.Second

const (
	statusUp       = "UP"
	statusDown     = "DOWN"
	statusDegraded = "DEGRADED"
	statusDisabled = "DISABLED"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type SessionCounter interface {
	Len() int
}

// BreakerReporter exposes the order service breaker so an open breaker shows
// up before shoppers start failing at LOADING_CONFIG.
type BreakerReporter interface {
	BreakerState() string
}

type HealthHandler struct {
	db        Pinger
	redis     Pinger
	sessions  SessionCounter
	orders    BreakerReporter
	log       *logger.Logger
	startedAt time.Time
}

func NewHealthHandler(db, redis Pinger, sessions SessionCounter, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		sessions:  sessions,
		log:       log,
		startedAt: time.Now(),
	}
}

func (h *HealthHandler) WithOrderBreaker(orders BreakerReporter) *HealthHandler {
	h.orders = orders
	return h
}

type ServicesStatus struct {
	App       string `json:"app"`
	Database  string `json:"database"`
	Redis     string `json:"redis"`
	OrdersAPI string `json:"orders_api"`
}

type HealthData struct {
	ServicesStatus ServicesStatus `json:"services_status"`
	Uptime         string         `json:"uptime"`
	Sessions       int            `json:"checkout_sessions"`
}

// HandleHealth answers 503 only when the cart store is down: without carts no
// checkout can start, while the database only backs support records.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	var (
		wg          sync.WaitGroup
		db, carts   string
		ordersState = statusDisabled
	)
	wg.Add(2)
	go func() { defer wg.Done(); db = h.ping(ctx, "database", h.db) }()
	go func() { defer wg.Done(); carts = h.ping(ctx, "redis", h.redis) }()
	wg.Wait()

	if h.orders != nil {
		ordersState = statusUp
		if h.orders.BreakerState() == "open" {
			ordersState = statusDegraded
		}
	}

	data := HealthData{
		ServicesStatus: ServicesStatus{App: statusUp, Database: db, Redis: carts, OrdersAPI: ordersState},
		Uptime:         time.Since(h.startedAt).Truncate(time.Second).String(),
	}
	if h.sessions != nil {
		data.Sessions = h.sessions.Len()
	}

	code := http.StatusOK
	if carts == statusDown {
		code = http.StatusServiceUnavailable
	}
	response.WriteJSON(w, code, data)
}

func (h *HealthHandler) ping(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		return statusDisabled
	}
	if err := p.Ping(ctx); err != nil {
		h.log.Warn("Health check failed", "dependency", name, "error", err)
		return statusDown
	}
	return statusUp
}
