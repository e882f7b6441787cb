// Package cosmos reads AMM pool state from a Cosmos SDK chain through its LCD REST endpoint.
package cosmos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"liquidityOracle/internal/model"
)

const (
	nodeInfoPath = "/cosmos/base/tendermint/v1beta1/node_info"
	poolPath     = "/osmosis/gamm/v1beta1/pools/"

	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 4 << 20
)

// Client queries a single LCD endpoint.
type Client struct {
	lcd        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a client for the LCD base URL.
func NewClient(lcd string, opts ...Option) *Client {
	c := &Client{
		lcd:        strings.TrimRight(lcd, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NodeInfo performs a cheap request used as a liveness check.
func (c *Client) NodeInfo(ctx context.Context) error {
	_, err := c.get(ctx, nodeInfoPath)
	return err
}

type poolResponse struct {
	Pool struct {
		ID         string `json:"id"`
		PoolAssets []struct {
			Token struct {
				Denom  string `json:"denom"`
				Amount string `json:"amount"`
			} `json:"token"`
			Weight string `json:"weight"`
		} `json:"pool_assets"`
	} `json:"pool"`
}

// Pool fetches the pooled assets of a gamm pool by id.
func (c *Client) Pool(ctx context.Context, poolID string) (model.CosmosState, error) {
	poolID = strings.TrimSpace(poolID)
	if poolID == "" {
		return model.CosmosState{}, &model.PoolReadError{Pool: poolID, Op: "pool", Err: fmt.Errorf("empty pool id")}
	}

	body, err := c.get(ctx, poolPath+poolID)
	if err != nil {
		return model.CosmosState{}, &model.PoolReadError{Pool: poolID, Op: "pool", Err: err}
	}

	var resp poolResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.CosmosState{}, &model.PoolReadError{Pool: poolID, Op: "decode", Err: err}
	}

	state, err := parsePoolAssets(poolID, resp)
	if err != nil {
		return model.CosmosState{}, &model.PoolReadError{Pool: poolID, Op: "decode", Err: err}
	}
	return state, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &model.TransportError{Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.lcd+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.TransportError{Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound || isNotFoundBody(body):
		return nil, fmt.Errorf("%w: status %d", model.ErrPoolNotFound, resp.StatusCode)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &model.TransportError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}
}

// isNotFoundBody recognises the gRPC-gateway error body for codes.NotFound.
func isNotFoundBody(body []byte) bool {
	var errBody struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		return false
	}
	return errBody.Code == 5 || strings.Contains(strings.ToLower(errBody.Message), "not found")
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}

// Dial builds a client for the LCD URL and optionally checks node_info.
func Dial(ctx context.Context, lcd string, checkLiveness bool, opts ...Option) (*Client, error) {
	client := NewClient(lcd, opts...)
	if !checkLiveness {
		return client, nil
	}
	if err := client.NodeInfo(ctx); err != nil {
		return nil, fmt.Errorf("liveness: %w", err)
	}
	return client, nil
}
