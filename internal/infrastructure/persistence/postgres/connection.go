package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/yuzvak/checkout-service/internal/config"
)

const startupPingTimeout = 5 * time.Second

// Connection owns the pool behind reconciliation records and the transition
// log. Both write rarely, so the pool stays small.
type Connection struct {
	db *sql.DB
}

func NewConnection(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("pgx", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open checkout database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reach checkout database at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Connection{db: db}, nil
}

// NewConnectionFromDB wraps a pool opened elsewhere, e.g. by a test container.
func NewConnectionFromDB(db *sql.DB) *Connection {
	return &Connection{db: db}
}

func (c *Connection) GetDB() *sql.DB { return c.db }

func (c *Connection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Connection) Close() error { return c.db.Close() }
