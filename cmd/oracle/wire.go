package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liquidityOracle/internal/chain"
	"liquidityOracle/internal/config"
	"liquidityOracle/internal/cosmos"
	"liquidityOracle/internal/dex"
	"liquidityOracle/internal/model"
	"liquidityOracle/internal/oracle"
	"liquidityOracle/internal/pricing"
	"liquidityOracle/internal/storage"
	"liquidityOracle/internal/storage/postgres"
	"liquidityOracle/internal/storage/rediscache"
)

// app holds the oracle and every resource that must be released on exit.
type app struct {
	oracle  *oracle.Oracle
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	evmEndpoints := make(map[model.ChainID][]string)
	cosmosEndpoints := make(map[model.ChainID][]string)
	for chainID, urls := range cfg.Endpoints {
		switch chainID.Kind() {
		case model.KindEVM:
			evmEndpoints[chainID] = urls
		case model.KindCosmos:
			cosmosEndpoints[chainID] = urls
		}
	}

	evmResolver := chain.NewResolver[dex.ContractCaller](evmEndpoints,
		chain.DialerFunc[dex.ContractCaller](func(ctx context.Context, url string) (dex.ContractCaller, error) {
			client, err := chain.DialEVM(ctx, url)
			if err != nil {
				return nil, err
			}
			return client, nil
		}),
		logger.Named("evm"),
		chain.WithDialTimeout(cfg.FetchTimeout),
	)
	a.closers = append(a.closers, evmResolver.Close)

	cosmosOpts := []cosmos.Option{cosmos.WithRateLimit(cfg.CosmosRateLimit, cfg.CosmosRateBurst)}
	cosmosResolver := chain.NewResolver[pricing.CosmosPoolReader](cosmosEndpoints,
		chain.DialerFunc[pricing.CosmosPoolReader](func(ctx context.Context, url string) (pricing.CosmosPoolReader, error) {
			client, err := cosmos.Dial(ctx, url, cfg.CosmosLiveness, cosmosOpts...)
			if err != nil {
				return nil, err
			}
			return client, nil
		}),
		logger.Named("cosmos"),
		chain.WithDialTimeout(cfg.FetchTimeout),
	)

	fetchers := make([]pricing.Fetcher, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		switch token.Chain.Kind() {
		case model.KindEVM:
			fetcher, err := pricing.NewEVMFetcher(token, evmResolver, logger)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("%s: %w", token.Chain, err)
			}
			fetchers = append(fetchers, fetcher)
		case model.KindCosmos:
			if cfg.CosmosReference == nil {
				a.Close()
				return nil, fmt.Errorf("%s: cosmos-reference is required", token.Chain)
			}
			fetcher, err := pricing.NewCosmosFetcher(token, *cfg.CosmosReference, cosmosResolver, logger)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("%s: %w", token.Chain, err)
			}
			fetchers = append(fetchers, fetcher)
		default:
			a.Close()
			return nil, fmt.Errorf("%s: unsupported chain", token.Chain)
		}
	}

	var reference oracle.ReferenceSource
	if cfg.Reference != nil {
		bootstrapper, err := pricing.NewReferenceBootstrapper(*cfg.Reference, evmResolver, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("reference: %w", err)
		}
		reference = bootstrapper
	}

	publishers, err := a.publishers(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.oracle = oracle.New(oracle.Config{
		TTL:          cfg.CacheTTL,
		FetchTimeout: cfg.FetchTimeout,
	}, reference, fetchers, logger, oracle.WithPublishers(publishers...))
	warmStart(ctx, a.oracle, publishers, logger)

	logger.Info("oracle ready",
		zap.Int("chains", len(fetchers)),
		zap.Bool("reference", reference != nil),
		zap.Int("publishers", len(publishers)),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
	)
	return a, nil
}

func (a *app) publishers(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]storage.Publisher, error) {
	var publishers []storage.Publisher

	if cfg.SnapshotFile != "" {
		publishers = append(publishers, &storage.FilePublisher{Path: cfg.SnapshotFile})
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		publishers = append(publishers, store)
	}

	if cfg.RedisAddr != "" {
		publisher, client, err := rediscache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		})
		publishers = append(publishers, publisher)
	}

	return publishers, nil
}

// warmStart primes the oracle cache from the first sink that still holds a fresh snapshot.
func warmStart(ctx context.Context, o *oracle.Oracle, publishers []storage.Publisher, logger *zap.Logger) bool {
	for _, publisher := range publishers {
		loader, ok := publisher.(storage.Loader)
		if !ok {
			continue
		}
		snapshot, found, err := loader.Latest(ctx)
		if err != nil {
			logger.Warn("load previous snapshot", zap.String("source", fmt.Sprintf("%T", publisher)), zap.Error(err))
			continue
		}
		if found && o.Prime(snapshot) {
			return true
		}
	}
	return false
}
