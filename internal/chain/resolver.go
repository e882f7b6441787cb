package chain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"liquidityOracle/internal/metrics"
	"liquidityOracle/internal/model"
)

// ErrNoAvailableEndpoint is matched by every NoAvailableEndpointError.
var ErrNoAvailableEndpoint = errors.New("no available endpoint")

// EndpointFailure records why one candidate endpoint was rejected.
type EndpointFailure struct {
	URL string
	Err error
}

// NoAvailableEndpointError is returned when every candidate endpoint of a chain failed.
type NoAvailableEndpointError struct {
	Chain    model.ChainID
	Failures []EndpointFailure
}

func (e *NoAvailableEndpointError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %v", failure.URL, failure.Err))
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("%s: no endpoints configured", e.Chain)
	}
	return fmt.Sprintf("%s: all endpoints failed: %s", e.Chain, strings.Join(reasons, "; "))
}

func (e *NoAvailableEndpointError) Is(target error) bool {
	return target == ErrNoAvailableEndpoint
}

// Dialer opens a verified connection handle for one endpoint URL.
type Dialer[T any] interface {
	Dial(ctx context.Context, url string) (T, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc[T any] func(ctx context.Context, url string) (T, error)

func (f DialerFunc[T]) Dial(ctx context.Context, url string) (T, error) {
	return f(ctx, url)
}

// DefaultDialTimeout bounds one shared resolution when no WithDialTimeout option is given.
const DefaultDialTimeout = 20 * time.Second

// Resolver turns an ordered endpoint list per chain into one live handle per chain.
// The first endpoint that answers is kept until Invalidate is called.
type Resolver[T any] struct {
	endpoints   map[model.ChainID][]string
	dialer      Dialer[T]
	dialTimeout time.Duration
	handles     *cache.Cache
	group       singleflight.Group
	logger      *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	dialTimeout time.Duration
}

// WithDialTimeout bounds a shared resolution independently of any single caller.
func WithDialTimeout(d time.Duration) ResolverOption {
	return func(o *resolverOptions) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// NewResolver builds a resolver. Endpoint lists are copied.
func NewResolver[T any](endpoints map[model.ChainID][]string, dialer Dialer[T], logger *zap.Logger, opts ...ResolverOption) *Resolver[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := resolverOptions{dialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(&options)
	}
	copied := make(map[model.ChainID][]string, len(endpoints))
	for chainID, urls := range endpoints {
		copied[chainID] = append([]string(nil), urls...)
	}
	return &Resolver[T]{
		endpoints:   copied,
		dialer:      dialer,
		dialTimeout: options.dialTimeout,
		handles:     cache.New(cache.NoExpiration, 0),
		logger:      logger,
	}
}

// Resolve returns the live handle for a chain, dialing candidates in order on first use.
// Concurrent callers for the same chain share a single resolution. The shared dial runs
// under the dial timeout rather than the first caller's context, so one caller giving up
// does not fail the others.
func (r *Resolver[T]) Resolve(ctx context.Context, chainID model.ChainID) (T, error) {
	var zero T
	if handle, ok := r.cached(chainID); ok {
		return handle, nil
	}
	if ctx.Err() != nil {
		return r.resolve(ctx, chainID)
	}

	ch := r.group.DoChan(string(chainID), func() (interface{}, error) {
		if handle, ok := r.cached(chainID); ok {
			return handle, nil
		}
		dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.dialTimeout)
		defer cancel()
		handle, err := r.resolve(dialCtx, chainID)
		if err != nil {
			return nil, err
		}
		r.handles.Set(string(chainID), handle, cache.NoExpiration)
		return handle, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, fmt.Errorf("resolve %s: %w", chainID, ctx.Err())
	}
}

// Invalidate forgets the memoized handle so the next Resolve dials again.
func (r *Resolver[T]) Invalidate(chainID model.ChainID) {
	value, ok := r.handles.Get(string(chainID))
	if !ok {
		return
	}
	r.handles.Delete(string(chainID))
	if closer, ok := value.(interface{ Close() }); ok {
		closer.Close()
	}
	r.logger.Info("endpoint invalidated", zap.String("chain", chainID.String()))
}

// Close releases every memoized handle.
func (r *Resolver[T]) Close() {
	for key := range r.handles.Items() {
		r.Invalidate(model.ChainID(key))
	}
}

func (r *Resolver[T]) cached(chainID model.ChainID) (T, bool) {
	value, ok := r.handles.Get(string(chainID))
	if !ok {
		var zero T
		return zero, false
	}
	return value.(T), true
}

func (r *Resolver[T]) resolve(ctx context.Context, chainID model.ChainID) (T, error) {
	var zero T
	urls := r.endpoints[chainID]
	failures := make([]EndpointFailure, 0, len(urls))

	for i, endpoint := range urls {
		if err := ctx.Err(); err != nil {
			failures = append(failures, EndpointFailure{URL: RedactURL(endpoint), Err: err})
			break
		}

		handle, err := r.dialer.Dial(ctx, endpoint)
		if err == nil {
			r.logger.Info("endpoint resolved",
				zap.String("chain", chainID.String()),
				zap.String("endpoint", RedactURL(endpoint)),
				zap.Int("position", i),
			)
			return handle, nil
		}

		metrics.EndpointFailuresTotal.WithLabelValues(chainID.String()).Inc()
		r.logger.Warn("endpoint failed",
			zap.String("chain", chainID.String()),
			zap.String("endpoint", RedactURL(endpoint)),
			zap.Error(err),
		)
		failures = append(failures, EndpointFailure{URL: RedactURL(endpoint), Err: err})
	}

	return zero, &NoAvailableEndpointError{Chain: chainID, Failures: failures}
}

// RedactURL keeps scheme and host so API keys in paths or queries are not logged.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "***"
	}
	if parsed.Path == "" || parsed.Path == "/" {
		if parsed.RawQuery == "" {
			return parsed.Scheme + "://" + parsed.Host
		}
	}
	return parsed.Scheme + "://" + parsed.Host + "/***"
}
