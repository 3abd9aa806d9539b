package monitoring

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHook times every command sent to the cart keyspace. A miss (redis.Nil)
// is a normal outcome for a shopper without a cart and is not an error.
type RedisHook struct{}

func (RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observeRedis(cmd.Name(), start, err)
		return err
	}
}

func (RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observeRedis("pipeline", start, err)
		return err
	}
}

func (RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		observeRedis("dial", start, err)
		return conn, err
	}
}

func observeRedis(command string, start time.Time, err error) {
	RedisCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		RedisCommandErrorsTotal.WithLabelValues(command).Inc()
	}
}

func InstrumentRedisClient(client *redis.Client) *redis.Client {
	client.AddHook(RedisHook{})
	return client
}
