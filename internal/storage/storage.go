package storage

import (
	"context"

	"liquidityOracle/internal/model"
)

// Publisher receives every snapshot the oracle builds. Implementations keep the
// latest value only.
type Publisher interface {
	Publish(ctx context.Context, snapshot *model.PriceSnapshot) error
}

// Loader returns the most recently published snapshot, if any.
type Loader interface {
	Latest(ctx context.Context) (*model.PriceSnapshot, bool, error)
}
