package postgres

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/yuzvak/checkout-service/internal/application/ports"
	"github.com/yuzvak/checkout-service/internal/domain/checkout"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const writeTimeout = 3 * time.Second

// TransitionLog appends checkout transitions to checkout_transitions from a
// single writer goroutine. Record never blocks; when the buffer is full the
// transition is dropped and counted.
type TransitionLog struct {
	db     *sql.DB
	logger *logger.Logger

	mu      sync.RWMutex
	closed  bool
	entries chan ports.Transition
	done    chan struct{}
}

func NewTransitionLog(conn *Connection, buffer int, log *logger.Logger) *TransitionLog {
	if buffer <= 0 {
		buffer = 1024
	}
	return &TransitionLog{
		db:      conn.GetDB(),
		logger:  log,
		entries: make(chan ports.Transition, buffer),
		done:    make(chan struct{}),
	}
}

func (l *TransitionLog) Start() {
	go l.run()
}

func (l *TransitionLog) Record(t ports.Transition) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.entries <- t:
	default:
		monitoring.RecordTransitionDropped()
		l.logger.Warn("Transition log buffer full, dropping entry", "checkout_session", t.SessionID, "state", t.State.Kind)
	}
}

// Stop flushes what is buffered and waits for the writer to finish.
func (l *TransitionLog) Stop() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.entries)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *TransitionLog) run() {
	defer close(l.done)
	for t := range l.entries {
		if err := l.write(t); err != nil {
			l.logger.Error("Failed to write transition", "error", err, "checkout_session", t.SessionID, "state", t.State.Kind)
		}
	}
}

func (l *TransitionLog) write(t ports.Transition) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	query := `
		INSERT INTO checkout_transitions (session_id, state, reason, message, at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := monitoring.InstrumentExec(ctx, l.db, "INSERT", "checkout_transitions", query,
		t.SessionID, string(t.State.Kind), string(t.State.Reason), t.State.Message, t.At)
	return err
}

// History returns the recorded states of one session, oldest first.
func (l *TransitionLog) History(ctx context.Context, sessionID string) ([]ports.Transition, error) {
	query := `
		SELECT state, reason, message, at
		FROM checkout_transitions
		WHERE session_id = $1
		ORDER BY at, id
	`
	rows, err := monitoring.InstrumentQuery(ctx, l.db, "SELECT", "checkout_transitions", query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ports.Transition
	for rows.Next() {
		t := ports.Transition{SessionID: sessionID}
		var kind, reason string
		if err := rows.Scan(&kind, &reason, &t.State.Message, &t.At); err != nil {
			return nil, err
		}
		t.State.Kind = checkout.Kind(kind)
		t.State.Reason = checkout.Reason(reason)
		history = append(history, t)
	}
	return history, rows.Err()
}
