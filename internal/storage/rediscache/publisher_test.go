package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityOracle/internal/model"
)

type memoryClient struct {
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newMemoryClient() *memoryClient {
	return &memoryClient{values: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memoryClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	data, ok := value.([]byte)
	if !ok {
		return redis.NewStatusResult("", errors.New("unexpected value type"))
	}
	m.values[key] = data
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryClient) Get(_ context.Context, key string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	data, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(data), nil)
}

func TestPublisherStoresLatestSnapshot(t *testing.T) {
	client := newMemoryClient()
	publisher := New(client, "", 10*time.Minute)

	_, ok, err := publisher.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	snapshot := &model.PriceSnapshot{
		Prices:           map[model.ChainID]float64{model.ChainOsmosis: 2.5},
		WeightedPriceUSD: 2.5,
		FetchedAt:        time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, publisher.Publish(context.Background(), snapshot))
	assert.Equal(t, 10*time.Minute, client.ttls[DefaultKey])

	loaded, ok, err := publisher.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.5, loaded.WeightedPriceUSD)
	assert.True(t, loaded.FetchedAt.Equal(snapshot.FetchedAt))
}

func TestPublisherPropagatesErrors(t *testing.T) {
	client := newMemoryClient()
	client.err = errors.New("connection refused")
	publisher := New(client, "custom", time.Minute)

	err := publisher.Publish(context.Background(), &model.PriceSnapshot{})
	assert.ErrorContains(t, err, "connection refused")

	_, _, err = publisher.Latest(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}
