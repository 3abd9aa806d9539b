package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuzvak/checkout-service/internal/config"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
)

const startupPingTimeout = 5 * time.Second

// Connection is the client for the shared cart keyspace and the
// cart-event delivery filter.
type Connection struct {
	client *redis.Client
}

func NewConnection(ctx context.Context, cfg config.RedisConfig) (*Connection, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("reach cart store at %s: %w", cfg.Addr(), err)
	}

	return NewConnectionFromClient(client), nil
}

// NewConnectionFromClient instruments client and wraps it.
func NewConnectionFromClient(client *redis.Client) *Connection {
	return &Connection{client: monitoring.InstrumentRedisClient(client)}
}

func (c *Connection) GetClient() *redis.Client { return c.client }

func (c *Connection) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Connection) Close() error { return c.client.Close() }
