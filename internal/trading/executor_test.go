package trading

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/ledger"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
	"github.com/atharvakonge/crypto-academy/internal/prices"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(v decimal.Decimal) *decimal.Decimal {
	return &v
}

type fixture struct {
	store    db.Store
	prices   *prices.Store
	executor *Executor
}

func newFixture(t *testing.T, store db.Store) *fixture {
	t.Helper()
	ps := prices.NewStore(store, nil, nil, logger.NewNop())
	return &fixture{
		store:    store,
		prices:   ps,
		executor: NewExecutor(store, ledger.New(store), ps, 50, logger.NewNop()),
	}
}

func (f *fixture) setPrice(t *testing.T, symbol, price string) {
	t.Helper()
	if _, err := f.prices.Set(context.Background(), symbol, d(price), decimal.Zero); err != nil {
		t.Fatalf("Failed to set price: %v", err)
	}
}

func (f *fixture) cash(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to query balance: %v", err)
	}
	return u.CashBalance
}

func (f *fixture) position(t *testing.T, userID int64, symbol string) models.Position {
	t.Helper()
	positions, err := f.store.ListPositions(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to query portfolio: %v", err)
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p
		}
	}
	return models.Position{}
}

func TestExecute_Scenarios(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	ctx := context.Background()
	user := db.CreateTestUser(t, f.store, "scenario", d("100000"))

	// A
	f.setPrice(t, "BTC", "50000")
	res, err := f.executor.Execute(ctx, models.TradeRequest{UserID: user.ID, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("0.1"))})
	if err != nil {
		t.Fatalf("Expected trade to succeed, got error: %v", err)
	}
	if !res.Trade.TotalValue.Equal(d("5000")) {
		t.Errorf("Expected total value 5000, got %s", res.Trade.TotalValue)
	}
	if !res.Position.Amount.Equal(d("0.1")) || !res.Position.AveragePrice.Equal(d("50000")) {
		t.Errorf("Expected {0.1, 50000}, got {%s, %s}", res.Position.Amount, res.Position.AveragePrice)
	}

	// B
	f.setPrice(t, "BTC", "60000")
	res, err = f.executor.Execute(ctx, models.TradeRequest{UserID: user.ID, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("0.1"))})
	if err != nil {
		t.Fatalf("Expected trade to succeed, got error: %v", err)
	}
	if !res.Position.Amount.Equal(d("0.2")) || !res.Position.AveragePrice.Equal(d("55000")) {
		t.Errorf("Expected {0.2, 55000}, got {%s, %s}", res.Position.Amount, res.Position.AveragePrice)
	}

	// C
	f.setPrice(t, "BTC", "70000")
	res, err = f.executor.Execute(ctx, models.TradeRequest{UserID: user.ID, Symbol: "btc", Type: models.Sell, Amount: ptr(d("0.15"))})
	if err != nil {
		t.Fatalf("Expected trade to succeed, got error: %v", err)
	}
	if !res.Trade.TotalValue.Equal(d("10500")) {
		t.Errorf("Expected total value 10500, got %s", res.Trade.TotalValue)
	}
	if !res.Position.Amount.Equal(d("0.05")) || !res.Position.AveragePrice.Equal(d("55000")) {
		t.Errorf("Expected {0.05, 55000}, got {%s, %s}", res.Position.Amount, res.Position.AveragePrice)
	}

	expectedBalance := d("100000").Sub(d("5000")).Sub(d("6000")).Add(d("10500"))
	if balance := f.cash(t, user.ID); !balance.Equal(expectedBalance) {
		t.Errorf("Expected balance %s, got %s", expectedBalance, balance)
	}

	// D
	_, err = f.executor.Execute(ctx, models.TradeRequest{UserID: user.ID, Symbol: "BTC", Type: models.Sell, Amount: ptr(d("1.0"))})
	if !errors.Is(err, ledger.ErrInsufficientHoldings) {
		t.Fatalf("Expected ErrInsufficientHoldings, got %v", err)
	}
	pos := f.position(t, user.ID, "BTC")
	if !pos.Amount.Equal(d("0.05")) || !pos.AveragePrice.Equal(d("55000")) {
		t.Errorf("Expected position unchanged at {0.05, 55000}, got {%s, %s}", pos.Amount, pos.AveragePrice)
	}
	if balance := f.cash(t, user.ID); !balance.Equal(expectedBalance) {
		t.Errorf("Expected balance unchanged at %s, got %s", expectedBalance, balance)
	}

	trades, err := f.executor.History(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("Expected 3 recorded trades, got %d", len(trades))
	}
	if trades[0].Type != models.Sell {
		t.Errorf("Expected most recent trade first, got %s", trades[0].Type)
	}
}

func TestExecute_InsufficientFunds(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	user := db.CreateTestUser(t, f.store, "pooruser", d("100"))
	f.setPrice(t, "BTC", "50000")

	// Costs $5000, but only has $100
	_, err := f.executor.Execute(context.Background(), models.TradeRequest{
		UserID: user.ID, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("0.1")),
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	if balance := f.cash(t, user.ID); !balance.Equal(d("100")) {
		t.Errorf("Expected balance unchanged at 100, got %s", balance)
	}
	if pos := f.position(t, user.ID, "BTC"); !pos.Amount.IsZero() {
		t.Errorf("Expected no position, got %s", pos.Amount)
	}
}

func TestExecute_PriceUnavailable(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	user := db.CreateTestUser(t, f.store, "noprice", d("1000"))

	_, err := f.executor.Execute(context.Background(), models.TradeRequest{
		UserID: user.ID, Symbol: "DOGE", Type: models.Buy, Amount: ptr(d("1")),
	})
	if !errors.Is(err, prices.ErrPriceUnavailable) {
		t.Errorf("Expected ErrPriceUnavailable, got %v", err)
	}
}

func TestExecute_InvalidUser(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	f.setPrice(t, "BTC", "50000")

	// Doesn't exist
	_, err := f.executor.Execute(context.Background(), models.TradeRequest{
		UserID: 99999, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("0.1")),
	})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected db.ErrNotFound, got %v", err)
	}
}

func TestExecute_Validation(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	f.setPrice(t, "BTC", "50000")

	tests := []struct {
		name string
		req  models.TradeRequest
	}{
		{"missing user", models.TradeRequest{Symbol: "BTC", Type: models.Buy, Amount: ptr(d("1"))}},
		{"missing symbol", models.TradeRequest{UserID: 1, Type: models.Buy, Amount: ptr(d("1"))}},
		{"bad side", models.TradeRequest{UserID: 1, Symbol: "BTC", Type: "hold", Amount: ptr(d("1"))}},
		{"neither amount nor notional", models.TradeRequest{UserID: 1, Symbol: "BTC", Type: models.Buy}},
		{"both amount and notional", models.TradeRequest{UserID: 1, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("1")), Notional: ptr(d("10"))}},
		{"zero amount", models.TradeRequest{UserID: 1, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("0"))}},
		{"negative notional", models.TradeRequest{UserID: 1, Symbol: "BTC", Type: models.Sell, Notional: ptr(d("-5"))}},
		{"rounds to zero", models.TradeRequest{UserID: 1, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("0.000000001"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.executor.Execute(context.Background(), tt.req)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestExecute_Notional(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	ctx := context.Background()
	user := db.CreateTestUser(t, f.store, "notional", d("1000"))
	f.setPrice(t, "BTC", "30000")

	res, err := f.executor.Execute(ctx, models.TradeRequest{
		UserID: user.ID, Symbol: "BTC", Type: models.Buy, Notional: ptr(d("100")),
		Price: ptr(d("1")), TotalValue: ptr(d("1")), // ignored
	})
	if err != nil {
		t.Fatalf("Expected trade to succeed, got error: %v", err)
	}
	if !res.Trade.Amount.Equal(d("0.00333333")) {
		t.Errorf("Expected amount 0.00333333, got %s", res.Trade.Amount)
	}
	if !res.Trade.Price.Equal(d("30000")) {
		t.Errorf("Expected stored price 30000, got %s", res.Trade.Price)
	}
	if !res.Trade.TotalValue.Equal(d("99.9999")) {
		t.Errorf("Expected total value 99.9999, got %s", res.Trade.TotalValue)
	}
	if !res.Cash.Equal(d("900.0001")) {
		t.Errorf("Expected cash 900.0001, got %s", res.Cash)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	ctx := context.Background()
	user := db.CreateTestUser(t, f.store, "summary", d("10000"))
	l := ledger.New(f.store)

	err := f.store.InTx(ctx, func(tx db.Tx) error {
		if _, err := l.Upsert(ctx, tx, user.ID, "BTC", d("0.1"), d("50000")); err != nil {
			return err
		}
		_, err := l.Upsert(ctx, tx, user.ID, "SOL", d("10"), d("20"))
		return err
	})
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	f.setPrice(t, "BTC", "60000")

	s, err := f.executor.Summary(ctx, user.ID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(s.Positions) != 2 {
		t.Fatalf("Expected 2 positions, got %d", len(s.Positions))
	}

	btc, sol := s.Positions[0], s.Positions[1]
	if !btc.MarketValue.Equal(d("6000")) || !btc.UnrealizedPnL.Equal(d("1000")) || btc.Stale {
		t.Errorf("Unexpected BTC valuation %+v", btc)
	}
	if !sol.Stale || !sol.MarketValue.Equal(d("200")) || !sol.UnrealizedPnL.IsZero() {
		t.Errorf("Expected SOL valued at cost and flagged stale, got %+v", sol)
	}
	if !s.HoldingsValue.Equal(d("6200")) || !s.TotalValue.Equal(d("16200")) {
		t.Errorf("Expected holdings 6200 and total 16200, got %s and %s", s.HoldingsValue, s.TotalValue)
	}

	if _, err := f.executor.Summary(ctx, 424242); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected db.ErrNotFound for unknown user, got %v", err)
	}
}

func TestConcurrentBuying_SameUser(t *testing.T) {
	runConcurrentBuying(t, newFixture(t, db.NewMemory()))
}

func TestConcurrentBuying_SameUser_Postgres(t *testing.T) {
	runConcurrentBuying(t, newFixture(t, db.SetupTestDB(t)))
}

func runConcurrentBuying(t *testing.T, f *fixture) {
	user := db.CreateTestUser(t, f.store, "concurrent_user", d("10000"))
	f.setPrice(t, "BTC", "100")

	tp := NewTradeProcessor(f.executor, 5, 100, logger.NewNop()) // 5 workers
	tp.Start()
	defer tp.Stop()

	// Execute 10 concurrent trades for same user
	numTrades := 10
	errs := make(chan error, numTrades)

	for i := 0; i < numTrades; i++ {
		go func() {
			_, err := tp.Submit(context.Background(), models.TradeRequest{
				UserID: user.ID, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("1")),
			})
			errs <- err
		}()
	}

	successCount := 0
	for i := 0; i < numTrades; i++ {
		if err := <-errs; err == nil {
			successCount++
		}
	}

	// All should succeed
	if successCount != numTrades {
		t.Errorf("Expected %d successful trades, got %d", numTrades, successCount)
	}

	if balance := f.cash(t, user.ID); !balance.Equal(d("9000")) {
		t.Errorf("Race condition detected! Expected balance 9000, got %s", balance)
	}
	if pos := f.position(t, user.ID, "BTC"); !pos.Amount.Equal(d("10")) {
		t.Errorf("Race condition detected! Expected quantity 10, got %s", pos.Amount)
	}
}

func TestConcurrentSelling_NeverOverdraws(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	ctx := context.Background()
	user := db.CreateTestUser(t, f.store, "seller", d("0"))
	f.setPrice(t, "ETH", "3000")

	l := ledger.New(f.store)
	if err := f.store.InTx(ctx, func(tx db.Tx) error {
		_, err := l.Upsert(ctx, tx, user.ID, "ETH", d("1"), d("2500"))
		return err
	}); err != nil {
		t.Fatalf("Failed to setup portfolio: %v", err)
	}

	tp := NewTradeProcessor(f.executor, 8, 100, logger.NewNop())
	tp.Start()
	defer tp.Stop()

	numTrades := 20
	errs := make(chan error, numTrades)
	for i := 0; i < numTrades; i++ {
		go func() {
			_, err := tp.Submit(ctx, models.TradeRequest{
				UserID: user.ID, Symbol: "ETH", Type: models.Sell, Amount: ptr(d("0.1")),
			})
			errs <- err
		}()
	}

	successCount, rejected := 0, 0
	for i := 0; i < numTrades; i++ {
		err := <-errs
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ledger.ErrInsufficientHoldings):
			rejected++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 10 || rejected != 10 {
		t.Errorf("Expected 10 fills and 10 rejections, got %d and %d", successCount, rejected)
	}
	if pos := f.position(t, user.ID, "ETH"); !pos.Amount.IsZero() {
		t.Errorf("Expected position fully sold, got %s", pos.Amount)
	}
	if balance := f.cash(t, user.ID); !balance.Equal(d("3000")) {
		t.Errorf("Expected proceeds 3000, got %s", balance)
	}
}

func TestConcurrentBuying_DifferentUsers(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	f.setPrice(t, "BTC", "100")

	// Create 5 users
	userIDs := make([]int64, 5)
	for i := 0; i < 5; i++ {
		userIDs[i] = db.CreateTestUser(t, f.store, fmt.Sprintf("user%d", i), d("10000")).ID
	}

	tp := NewTradeProcessor(f.executor, 5, 100, logger.NewNop())
	tp.Start()
	defer tp.Stop()

	// Each user makes 10 trades concurrently
	totalTrades := 50
	errs := make(chan error, totalTrades)
	for _, userID := range userIDs {
		for i := 0; i < 10; i++ {
			go func(uid int64) {
				_, err := tp.Submit(context.Background(), models.TradeRequest{
					UserID: uid, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("1")),
				})
				errs <- err
			}(userID)
		}
	}

	for i := 0; i < totalTrades; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Expected trade to succeed, got %v", err)
		}
	}

	for _, userID := range userIDs {
		if balance := f.cash(t, userID); !balance.Equal(d("9000")) {
			t.Errorf("User %d: Expected balance 9000, got %s", userID, balance)
		}
	}
}

func TestSubmit_StoppedOrCanceled(t *testing.T) {
	f := newFixture(t, db.NewMemory())
	req := models.TradeRequest{UserID: 1, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("1"))}

	tp := NewTradeProcessor(f.executor, 1, 0, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tp.Submit(ctx, req); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	tp.Start()
	tp.Stop()
	if _, err := tp.Submit(context.Background(), req); !errors.Is(err, ErrProcessorStopped) {
		t.Errorf("Expected ErrProcessorStopped, got %v", err)
	}
}

func BenchmarkTradeProcessing(b *testing.B) {
	store := db.NewMemory()
	ps := prices.NewStore(store, nil, nil, logger.NewNop())
	executor := NewExecutor(store, ledger.New(store), ps, 50, logger.NewNop())
	ps.Set(context.Background(), "BTC", d("100"), decimal.Zero)

	user, _ := store.CreateUser(context.Background(), models.User{Username: "benchmark_user", Tier: models.TierFree, CashBalance: d("1000000000")})

	tp := NewTradeProcessor(executor, 5, 100, logger.NewNop())
	tp.Start()
	defer tp.Stop()

	b.ResetTimer() // Start timing now
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tp.Submit(context.Background(), models.TradeRequest{
				UserID: user.ID, Symbol: "BTC", Type: models.Buy, Amount: ptr(d("1")),
			})
		}
	})
}
