package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityOracle/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS latest_token_prices (
	chain               TEXT PRIMARY KEY,
	price_usd           DOUBLE PRECISION,
	tvl_usd             DOUBLE PRECISION,
	weighted_price_usd  DOUBLE PRECISION NOT NULL,
	reference_price_usd DOUBLE PRECISION,
	failure             TEXT,
	fetched_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps the latest price of every chain in Postgres. Each publish overwrites
// the previous row of a chain.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the latest_token_prices table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// Row is the stored state of one chain.
type Row struct {
	Chain             model.ChainID
	PriceUSD          *float64
	TVLUSD            *float64
	WeightedPriceUSD  float64
	ReferencePriceUSD *float64
	Failure           *string
	FetchedAt         time.Time
}

// Rows flattens a snapshot into one row per chain, priced or failed.
func Rows(snapshot *model.PriceSnapshot) []Row {
	if snapshot == nil {
		return nil
	}
	rows := make([]Row, 0, len(snapshot.Prices)+len(snapshot.Failures))
	for _, chain := range snapshot.Chains() {
		price := snapshot.Prices[chain]
		row := Row{
			Chain:             chain,
			PriceUSD:          &price,
			WeightedPriceUSD:  snapshot.WeightedPriceUSD,
			ReferencePriceUSD: snapshot.ReferencePriceUSD,
			FetchedAt:         snapshot.FetchedAt,
		}
		if tvl, ok := snapshot.ChainTVL(chain); ok {
			row.TVLUSD = &tvl
		}
		rows = append(rows, row)
	}
	for _, chain := range model.AllChains() {
		reason, ok := snapshot.Failures[chain]
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Chain:             chain,
			WeightedPriceUSD:  snapshot.WeightedPriceUSD,
			ReferencePriceUSD: snapshot.ReferencePriceUSD,
			Failure:           &reason,
			FetchedAt:         snapshot.FetchedAt,
		})
	}
	return rows
}

// Publish upserts one row per chain in a single batch.
func (s *Store) Publish(ctx context.Context, snapshot *model.PriceSnapshot) error {
	rows := Rows(snapshot)
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO latest_token_prices (
				chain, price_usd, tvl_usd, weighted_price_usd, reference_price_usd, failure, fetched_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (chain)
			DO UPDATE SET
				price_usd = EXCLUDED.price_usd,
				tvl_usd = EXCLUDED.tvl_usd,
				weighted_price_usd = EXCLUDED.weighted_price_usd,
				reference_price_usd = EXCLUDED.reference_price_usd,
				failure = EXCLUDED.failure,
				fetched_at = EXCLUDED.fetched_at,
				updated_at = now()
			WHERE latest_token_prices.fetched_at <= EXCLUDED.fetched_at
		`,
			string(row.Chain),
			row.PriceUSD,
			row.TVLUSD,
			row.WeightedPriceUSD,
			row.ReferencePriceUSD,
			row.Failure,
			row.FetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
