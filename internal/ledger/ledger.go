package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

var (
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidAmount        = errors.New("invalid amount")
)

// Matches the NUMERIC scale of the portfolios table.
const _places = 8

// Ledger owns every change to a position. Nothing else writes the portfolios table.
type Ledger struct {
	store db.Store
}

func New(store db.Store) *Ledger {
	return &Ledger{store: store}
}

// Buy adds delta units bought at price and recomputes the weighted average cost.
func Buy(pos models.Position, delta, price decimal.Decimal) (models.Position, error) {
	if !delta.IsPositive() {
		return pos, fmt.Errorf("%w: buy amount %s", ErrInvalidAmount, delta)
	}
	if !price.IsPositive() {
		return pos, fmt.Errorf("%w: buy price %s", ErrInvalidAmount, price)
	}

	total := pos.Amount.Add(delta)
	cost := pos.Amount.Mul(pos.AveragePrice).Add(delta.Mul(price))

	pos.Amount = total
	pos.AveragePrice = cost.DivRound(total, _places)
	return pos, nil
}

// Sell removes delta units. The average cost of what remains does not change.
func Sell(pos models.Position, delta decimal.Decimal) (models.Position, error) {
	if !delta.IsPositive() {
		return pos, fmt.Errorf("%w: sell amount %s", ErrInvalidAmount, delta)
	}
	if delta.GreaterThan(pos.Amount) {
		return pos, fmt.Errorf("%w: holding %s %s, selling %s", ErrInsufficientHoldings, pos.Amount, pos.Symbol, delta)
	}

	pos.Amount = pos.Amount.Sub(delta)
	if pos.Amount.IsZero() {
		pos.AveragePrice = decimal.Zero
	}
	return pos, nil
}

// Position returns the locked position row, or a flat position when the symbol was never held.
func (l *Ledger) Position(ctx context.Context, tx db.Tx, userID int64, symbol string) (models.Position, error) {
	pos, err := tx.GetPosition(ctx, userID, symbol)
	if errors.Is(err, db.ErrNotFound) {
		return models.Position{UserID: userID, Symbol: symbol}, nil
	}
	if err != nil {
		return pos, fmt.Errorf("%w: can't read position", err)
	}
	return pos, nil
}

// Apply is the single write path for trades. On error the stored row is left untouched.
func (l *Ledger) Apply(
	ctx context.Context,
	tx db.Tx,
	userID int64,
	symbol string,
	side models.Side,
	delta, price decimal.Decimal,
) (models.Position, error) {
	pos, err := l.Position(ctx, tx, userID, symbol)
	if err != nil {
		return pos, err
	}

	var next models.Position
	switch side {
	case models.Buy:
		next, err = Buy(pos, delta, price)
	case models.Sell:
		next, err = Sell(pos, delta)
	default:
		err = fmt.Errorf("%w: unknown side %q", models.ErrValidation, side)
	}
	if err != nil {
		return pos, err
	}

	saved, err := tx.UpsertPosition(ctx, next)
	if err != nil {
		return pos, fmt.Errorf("%w: can't save position", err)
	}
	return saved, nil
}

// Upsert overwrites a position. Used for seeding and corrections.
func (l *Ledger) Upsert(
	ctx context.Context,
	tx db.Tx,
	userID int64,
	symbol string,
	amount, averagePrice decimal.Decimal,
) (models.Position, error) {
	if amount.IsNegative() || averagePrice.IsNegative() {
		return models.Position{}, fmt.Errorf("%w: amount %s average %s", ErrInvalidAmount, amount, averagePrice)
	}
	if amount.IsZero() {
		averagePrice = decimal.Zero
	}

	saved, err := tx.UpsertPosition(ctx, models.Position{
		UserID:       userID,
		Symbol:       symbol,
		Amount:       amount,
		AveragePrice: averagePrice,
	})
	if err != nil {
		return saved, fmt.Errorf("%w: can't save position", err)
	}
	return saved, nil
}

// Positions lists a user's positions ordered by symbol. Closed ones are skipped unless asked for.
func (l *Ledger) Positions(ctx context.Context, userID int64, includeClosed bool) ([]models.Position, error) {
	all, err := l.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: can't list positions", err)
	}
	if includeClosed {
		return all, nil
	}

	open := make([]models.Position, 0, len(all))
	for _, p := range all {
		if !p.Closed() {
			open = append(open, p)
		}
	}
	return open, nil
}
