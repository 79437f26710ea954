package redis

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/iho/tradebook/internal/infrastructure/metrics"
)

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Instrument counts every command and every failed command on client.
// A missing key is not a failure.
func Instrument(client *redis.Client, m *metrics.Metrics) {
	client.AddHook(metricsHook{m: m})
}

type metricsHook struct {
	m *metrics.Metrics
}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		h.observe(cmd.Name(), err)
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		h.observe("pipeline", err)
		return err
	}
}

func (h metricsHook) observe(operation string, err error) {
	h.m.RedisOperations.WithLabelValues(operation).Inc()
	if err != nil && !errors.Is(err, redis.Nil) {
		h.m.RedisErrors.WithLabelValues(operation).Inc()
	}
}
