package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/ledger"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
	"github.com/atharvakonge/crypto-academy/internal/prices"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

const (
	_places          = 8
	_maxHistoryLimit = 500
)

type PriceSource interface {
	Get(ctx context.Context, symbol string) (models.Price, error)
}

// Executor runs one trade as a single transaction: price lookup, ledger update,
// cash movement and trade record either all happen or none do.
type Executor struct {
	store        db.Store
	ledger       *ledger.Ledger
	prices       PriceSource
	locks        *UserLocks
	historyLimit int

	logger logger.Logger
}

func NewExecutor(store db.Store, l *ledger.Ledger, prices PriceSource, historyLimit int, logger logger.Logger) *Executor {
	return &Executor{
		store:        store,
		ledger:       l,
		prices:       prices,
		locks:        NewUserLocks(),
		historyLimit: historyLimit,
		logger:       logger,
	}
}

func validate(req models.TradeRequest) error {
	if req.UserID <= 0 {
		return fmt.Errorf("%w: userId must be positive", models.ErrValidation)
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", models.ErrValidation)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: type must be buy or sell, got %q", models.ErrValidation, req.Type)
	}
	if (req.Amount == nil) == (req.Notional == nil) {
		return fmt.Errorf("%w: exactly one of amount or notional is required", models.ErrValidation)
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if req.Notional != nil && !req.Notional.IsPositive() {
		return fmt.Errorf("%w: notional must be positive", models.ErrValidation)
	}
	return nil
}

// units converts the request to asset units at price, rounded to 8 places.
func units(req models.TradeRequest, price decimal.Decimal) decimal.Decimal {
	if req.Amount != nil {
		return req.Amount.Round(_places)
	}
	return req.Notional.DivRound(price, _places)
}

func (e *Executor) Execute(ctx context.Context, req models.TradeRequest) (models.TradeResult, error) {
	var result models.TradeResult

	if err := validate(req); err != nil {
		return result, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	quote, err := e.prices.Get(ctx, symbol)
	if err != nil {
		return result, err
	}

	amount := units(req, quote.Price)
	if !amount.IsPositive() {
		return result, fmt.Errorf("%w: trade rounds to zero units at %s", models.ErrValidation, quote.Price)
	}
	total := amount.Mul(quote.Price).Round(_places)

	// Lock portfolio for THIS USER ONLY (not global!)
	e.locks.Lock(req.UserID)
	defer e.locks.Unlock(req.UserID)

	err = e.store.InTx(ctx, func(tx db.Tx) error {
		user, err := tx.LockUser(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("user %d: %w", req.UserID, err)
		}

		switch req.Type {
		case models.Buy:
			if user.CashBalance.LessThan(total) {
				return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, total, user.CashBalance)
			}
			user.CashBalance = user.CashBalance.Sub(total)
		case models.Sell:
			user.CashBalance = user.CashBalance.Add(total)
		}

		pos, err := e.ledger.Apply(ctx, tx, req.UserID, symbol, req.Type, amount, quote.Price)
		if err != nil {
			return err
		}

		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}

		trade, err := tx.InsertTrade(ctx, models.Trade{
			UserID:     req.UserID,
			Symbol:     symbol,
			Type:       req.Type,
			Amount:     amount,
			Price:      quote.Price,
			TotalValue: total,
		})
		if err != nil {
			return err
		}

		result = models.TradeResult{Trade: trade, Position: pos, Cash: user.CashBalance}
		return nil
	})
	if err != nil {
		return models.TradeResult{}, err
	}

	e.logger.Infof("trade %d: user %d %s %s %s @ %s", result.Trade.ID, req.UserID, req.Type, amount, symbol, quote.Price)
	return result, nil
}

// History returns the user's trades, most recent first. A non-positive limit uses the default.
func (e *Executor) History(ctx context.Context, userID int64, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = e.historyLimit
	}
	limit = min(limit, _maxHistoryLimit)

	trades, err := e.store.ListTrades(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: can't get trade history", err)
	}
	return trades, nil
}

// Summary marks the open positions to market. Positions without a stored price are
// valued at cost and flagged stale.
func (e *Executor) Summary(ctx context.Context, userID int64) (models.PortfolioSummary, error) {
	summary := models.PortfolioSummary{UserID: userID}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return summary, fmt.Errorf("user %d: %w", userID, err)
	}
	positions, err := e.ledger.Positions(ctx, userID, false)
	if err != nil {
		return summary, err
	}

	summary.Positions = make([]models.PositionValue, 0, len(positions))
	holdings := decimal.Zero
	for _, p := range positions {
		pv := models.PositionValue{Position: p, CurrentPrice: p.AveragePrice}

		quote, err := e.prices.Get(ctx, p.Symbol)
		switch {
		case err == nil:
			pv.CurrentPrice = quote.Price
		case errors.Is(err, prices.ErrPriceUnavailable):
			pv.Stale = true
		default:
			return summary, err
		}

		pv.MarketValue = p.Amount.Mul(pv.CurrentPrice).Round(_places)
		pv.UnrealizedPnL = pv.CurrentPrice.Sub(p.AveragePrice).Mul(p.Amount).Round(_places)
		holdings = holdings.Add(pv.MarketValue)
		summary.Positions = append(summary.Positions, pv)
	}

	summary.CashBalance = user.CashBalance
	summary.HoldingsValue = holdings
	summary.TotalValue = user.CashBalance.Add(holdings)
	return summary, nil
}
