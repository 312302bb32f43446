package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ancile/internal/domain"
	"ancile/internal/ports"
)

// Adapter is a single upstream provider (RSS, news API, portal scrape)
// yielding normalized raw items.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, lookback time.Duration) ([]domain.RawItem, error)
}

// Multi fans in every configured adapter. An unavailable adapter
// contributes zero items and is never fatal to the run.
type Multi struct {
	adapters []Adapter
	logger   *slog.Logger
}

var _ ports.ItemSource = (*Multi)(nil)

// NewMulti aggregates the given adapters in order.
func NewMulti(logger *slog.Logger, adapters ...Adapter) *Multi {
	return &Multi{adapters: adapters, logger: logger}
}

// Fetch collects items from all adapters within the lookback window.
func (m *Multi) Fetch(ctx context.Context, lookback time.Duration) ([]domain.RawItem, error) {
	var aggregated []domain.RawItem

	for _, adapter := range m.adapters {
		items, err := adapter.Fetch(ctx, lookback)
		if err != nil {
			var unavailable *domain.SourceUnavailableError
			if errors.As(err, &unavailable) {
				m.log("source unavailable, skipping", "source", adapter.Name(), "error", err)
				continue
			}
			return nil, err
		}
		m.log("source fetched", "source", adapter.Name(), "items", len(items))
		aggregated = append(aggregated, items...)
	}

	return aggregated, nil
}

func (m *Multi) log(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
