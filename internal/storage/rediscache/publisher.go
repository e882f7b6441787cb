// Package rediscache shares the latest snapshot with other processes through Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"liquidityOracle/internal/model"
)

// DefaultKey holds the latest snapshot.
const DefaultKey = "liquidity-oracle:snapshot:latest"

// Client is the subset of the go-redis API the publisher uses.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Publisher stores each snapshot under one key that expires after ttl.
type Publisher struct {
	client Client
	key    string
	ttl    time.Duration
}

// New wraps an existing client. An empty key uses DefaultKey.
func New(client Client, key string, ttl time.Duration) *Publisher {
	if key == "" {
		key = DefaultKey
	}
	return &Publisher{client: client, key: key, ttl: ttl}
}

// Dial connects to addr and checks the server answers PING.
func Dial(ctx context.Context, addr, password string, db int, key string, ttl time.Duration) (*Publisher, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client, key, ttl), client, nil
}

// Publish overwrites the stored snapshot.
func (p *Publisher) Publish(ctx context.Context, snapshot *model.PriceSnapshot) error {
	if snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot in redis: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot. ok is false when the key is missing or expired.
func (p *Publisher) Latest(ctx context.Context) (*model.PriceSnapshot, bool, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get snapshot from redis: %w", err)
	}

	var snapshot model.PriceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snapshot, true, nil
}
