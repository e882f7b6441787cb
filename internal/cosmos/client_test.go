package cosmos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityOracle/internal/model"
)

const poolBody = `{
  "pool": {
    "@type": "/osmosis.gamm.v1beta1.Pool",
    "id": "1344",
    "pool_assets": [
      {"token": {"denom": "ibc/23A62409E4AD8133116C249B1FA38EED30E500A115D7B153109462CD82C1CD99", "amount": "10000000000"}, "weight": "536870912000000"},
      {"token": {"denom": "uosmo", "amount": "50000000000"}, "weight": "536870912000000"}
    ]
  }
}`

func TestClientPool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/osmosis/gamm/v1beta1/pools/1344", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(poolBody))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	state, err := client.Pool(context.Background(), "1344")
	require.NoError(t, err)

	assert.Equal(t, "1344", state.PoolID)
	require.Len(t, state.Assets, 2)

	osmo, ok := state.Asset("uosmo")
	require.True(t, ok)
	assert.Equal(t, "50000000000", osmo.Amount.String())
	assert.Equal(t, "536870912000000", osmo.Weight.String())
}

func TestClientPoolNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": 5, "message": "pool with ID 99999 does not exist", "details": []}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Pool(context.Background(), "99999")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPoolNotFound)

	var readErr *model.PoolReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "99999", readErr.Pool)
	assert.False(t, errors.Is(err, model.ErrTransport))
}

func TestClientPoolServerErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Pool(context.Background(), "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
}

func TestClientPoolMalformed(t *testing.T) {
	cases := map[string]string{
		"missing assets": `{"pool": {"id": "1"}}`,
		"bad amount":     `{"pool": {"id": "1", "pool_assets": [{"token": {"denom": "uosmo", "amount": "abc"}, "weight": "1"}]}}`,
		"no denom":       `{"pool": {"id": "1", "pool_assets": [{"token": {"denom": "", "amount": "1"}, "weight": "1"}]}}`,
		"not json":       `<html>`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Pool(context.Background(), "1")
			require.Error(t, err)
			var readErr *model.PoolReadError
			assert.True(t, errors.As(err, &readErr))
		})
	}
}

func TestDialChecksNodeInfo(t *testing.T) {
	var nodeInfoCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == nodeInfoPath {
			nodeInfoCalled = true
			_, _ = w.Write([]byte(`{"default_node_info": {"network": "osmosis-1"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := Dial(context.Background(), server.URL, true)
	require.NoError(t, err)
	assert.True(t, nodeInfoCalled)
	assert.NotNil(t, client)

	server.Close()
	_, err = Dial(context.Background(), server.URL, true)
	assert.Error(t, err)

	_, err = Dial(context.Background(), server.URL, false)
	assert.NoError(t, err)
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(poolBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRateLimit(0.001, 1))
	_, err := client.Pool(context.Background(), "1344")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Pool(ctx, "1344")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
}
