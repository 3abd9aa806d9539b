package redis

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/checkout-service/internal/config"
)

func redisConfig(t *testing.T, addr string) config.RedisConfig {
	t.Helper()
	host, port, ok := strings.Cut(addr, ":")
	require.True(t, ok)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: p, PoolSize: 2}
}

func TestNewConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	conn, err := NewConnection(context.Background(), redisConfig(t, mr.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, conn.Ping(context.Background()))
}

func TestNewConnection_UnreachableStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(t, mr.Addr())
	mr.Close()

	_, err := NewConnection(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reach cart store")
}
