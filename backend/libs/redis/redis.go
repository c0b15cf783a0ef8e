package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyAddr is returned when no address is configured.
var ErrEmptyAddr = errors.New("redis: empty addr")

// Options describe the presence store connection. Zero timeouts fall back to defaults.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) clientOptions() *redis.Options {
	out := &redis.Options{
		Addr:         strings.TrimSpace(o.Addr),
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 3 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 3 * time.Second
	}
	return out
}

// Connect returns a go-redis client once PING succeeds within the dial timeout.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	clientOpts := opts.clientOptions()
	if clientOpts.Addr == "" {
		return nil, ErrEmptyAddr
	}

	client := redis.NewClient(clientOpts)
	pingCtx, cancel := context.WithTimeout(ctx, clientOpts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", clientOpts.Addr, err)
	}
	return client, nil
}
