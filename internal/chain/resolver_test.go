package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidityOracle/internal/model"
)

type fakeHandle struct {
	url    string
	closed atomic.Bool
}

func (h *fakeHandle) Close() { h.closed.Store(true) }

type fakeDialer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	delay time.Duration
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (*fakeHandle, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	fail := d.fail[url]
	d.mu.Unlock()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("connection refused")
	}
	return &fakeHandle{url: url}, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func TestResolverFallsBackToBackup(t *testing.T) {
	dialer := &fakeDialer{fail: map[string]bool{"https://primary.example": true}}
	resolver := NewResolver[*fakeHandle](map[model.ChainID][]string{
		model.ChainEthereum: {"https://primary.example", "https://backup.example"},
	}, dialer, zap.NewNop())

	handle, err := resolver.Resolve(context.Background(), model.ChainEthereum)
	require.NoError(t, err)
	assert.Equal(t, "https://backup.example", handle.url)

	_, err = resolver.Resolve(context.Background(), model.ChainEthereum)
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.callCount(), "second resolve should reuse the memoized handle")
}

func TestResolverAllEndpointsFail(t *testing.T) {
	dialer := &fakeDialer{fail: map[string]bool{
		"https://a.example": true,
		"https://b.example": true,
	}}
	resolver := NewResolver[*fakeHandle](map[model.ChainID][]string{
		model.ChainBase: {"https://a.example", "https://b.example"},
	}, dialer, nil)

	_, err := resolver.Resolve(context.Background(), model.ChainBase)
	require.ErrorIs(t, err, ErrNoAvailableEndpoint)

	var typed *NoAvailableEndpointError
	require.ErrorAs(t, err, &typed)
	assert.Len(t, typed.Failures, 2)
	assert.Equal(t, model.ChainBase, typed.Chain)
}

func TestResolverNoEndpointsConfigured(t *testing.T) {
	resolver := NewResolver[*fakeHandle](nil, &fakeDialer{}, nil)
	_, err := resolver.Resolve(context.Background(), model.ChainOptimism)
	assert.ErrorIs(t, err, ErrNoAvailableEndpoint)
}

func TestResolverConcurrentCallersShareDial(t *testing.T) {
	dialer := &fakeDialer{delay: 20 * time.Millisecond}
	resolver := NewResolver[*fakeHandle](map[model.ChainID][]string{
		model.ChainOptimism: {"https://op.example"},
	}, dialer, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.Resolve(context.Background(), model.ChainOptimism)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dialer.callCount())
}

func TestResolverSharedDialOutlivesFirstCaller(t *testing.T) {
	dialer := &fakeDialer{gate: make(chan struct{})}
	resolver := NewResolver[*fakeHandle](map[model.ChainID][]string{
		model.ChainEthereum: {"https://eth.example"},
	}, dialer, nil, WithDialTimeout(5*time.Second))

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(shortCtx, model.ChainEthereum)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return dialer.callCount() == 1 }, time.Second, time.Millisecond)

	second := make(chan *fakeHandle, 1)
	go func() {
		handle, err := resolver.Resolve(context.Background(), model.ChainEthereum)
		assert.NoError(t, err)
		second <- handle
	}()

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("first caller did not give up")
	}

	close(dialer.gate)
	select {
	case handle := <-second:
		require.NotNil(t, handle)
		assert.Equal(t, "https://eth.example", handle.url)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not get the shared handle")
	}
	assert.Equal(t, 1, dialer.callCount())
}

func TestResolverInvalidateClosesHandle(t *testing.T) {
	dialer := &fakeDialer{}
	resolver := NewResolver[*fakeHandle](map[model.ChainID][]string{
		model.ChainEthereum: {"https://eth.example"},
	}, dialer, nil)

	first, err := resolver.Resolve(context.Background(), model.ChainEthereum)
	require.NoError(t, err)
	resolver.Invalidate(model.ChainEthereum)
	assert.True(t, first.closed.Load(), "invalidated handle should be closed")

	second, err := resolver.Resolve(context.Background(), model.ChainEthereum)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestResolverStopsOnCancelledContext(t *testing.T) {
	dialer := &fakeDialer{}
	resolver := NewResolver[*fakeHandle](map[model.ChainID][]string{
		model.ChainEthereum: {"https://eth.example", "https://eth2.example"},
	}, dialer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, model.ChainEthereum)
	assert.ErrorIs(t, err, ErrNoAvailableEndpoint)
	assert.Equal(t, 0, dialer.callCount())
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://eth.llamarpc.com":                    "https://eth.llamarpc.com",
		"https://eth-mainnet.g.alchemy.com/v2/secret": "https://eth-mainnet.g.alchemy.com/***",
		"https://rpc.example/?key=secret":             "https://rpc.example/***",
		"not a url":                                   "***",
	}
	for input, want := range cases {
		assert.Equal(t, want, RedactURL(input), input)
	}
}
