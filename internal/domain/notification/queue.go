package notification

import (
	"sync"
	"time"

	"github.com/yuzvak/checkout-service/internal/pkg/clock"
)

const DefaultTTL = 3 * time.Second

type Notification struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CartKey   string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Queue holds notifications until they expire. Expiry is read from the
// clock on access, so nothing runs in the background.
type Queue struct {
	mu      sync.Mutex
	entries []Notification
	nextID  int64
	ttl     time.Duration
	clock   clock.Clock
}

func NewQueue(ttl time.Duration, clk clock.Clock) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Queue{ttl: ttl, clock: clk}
}

func (q *Queue) Push(event CartReplaced) Notification {
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(now)
	q.nextID++
	n := Notification{
		ID:        q.nextID,
		Kind:      KindCartReplaced,
		Message:   event.Message(),
		CartKey:   event.CartKey,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}
	q.entries = append(q.entries, n)
	return n
}

// Active returns the unexpired notifications visible to cartKey, oldest
// first. Broadcast notifications are visible to everyone.
func (q *Queue) Active(cartKey string) []Notification {
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(now)
	out := make([]Notification, 0, len(q.entries))
	for _, n := range q.entries {
		if n.CartKey == "" || n.CartKey == cartKey {
			out = append(out, n)
		}
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(q.clock.Now())
	return len(q.entries)
}

func (q *Queue) pruneLocked(now time.Time) {
	kept := q.entries[:0]
	for _, n := range q.entries {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	q.entries = kept
}
