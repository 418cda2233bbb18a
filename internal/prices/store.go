package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

var (
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrUpstreamFetch    = errors.New("upstream price fetch failed")
)

// Quote is one upstream observation.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Change24h decimal.Decimal
}

type Fetcher interface {
	Fetch(ctx context.Context) ([]Quote, error)
}

type Publisher interface {
	Publish(p models.Price)
}

// Store serves the last known price per symbol. There is no fallback value:
// a symbol that was never priced is unavailable.
type Store struct {
	db        db.Store
	fetcher   Fetcher
	publisher Publisher
	now       func() time.Time

	logger logger.Logger
}

// NewStore wires the price service. publisher may be nil.
func NewStore(store db.Store, fetcher Fetcher, publisher Publisher, logger logger.Logger) *Store {
	return &Store{
		db:        store,
		fetcher:   fetcher,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *Store) Get(ctx context.Context, symbol string) (models.Price, error) {
	symbol = normalize(symbol)
	p, err := s.db.GetPrice(ctx, symbol)
	if errors.Is(err, db.ErrNotFound) {
		return p, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	if err != nil {
		return p, fmt.Errorf("%w: can't get price", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]models.Price, error) {
	prices, err := s.db.ListPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: can't list prices", err)
	}
	return prices, nil
}

// Set stores a quote stamped with the current time and notifies subscribers.
func (s *Store) Set(ctx context.Context, symbol string, price, change24h decimal.Decimal) (models.Price, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return models.Price{}, fmt.Errorf("%w: empty symbol", models.ErrValidation)
	}
	if !price.IsPositive() {
		return models.Price{}, fmt.Errorf("%w: price for %s must be positive, got %s", models.ErrValidation, symbol, price)
	}

	saved, err := s.db.UpsertPrice(ctx, models.Price{
		Symbol:      symbol,
		Price:       price,
		Change24h:   change24h,
		LastUpdated: s.now().UTC(),
	})
	if err != nil {
		return saved, fmt.Errorf("%w: can't set price", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(saved)
	}
	return saved, nil
}

// Refresh pulls every configured coin from upstream. On failure nothing is written
// and the previously stored prices stay servable.
func (s *Store) Refresh(ctx context.Context) ([]models.Price, error) {
	quotes, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.logger.Warnf("price refresh failed: %s", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}

	for _, q := range quotes {
		if _, err := s.Set(ctx, q.Symbol, q.Price, q.Change24h); err != nil {
			return nil, err
		}
	}
	s.logger.Infof("refreshed %d prices", len(quotes))

	return s.List(ctx)
}
