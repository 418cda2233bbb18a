package models

import "github.com/shopspring/decimal"

// TradeRequest - what client sends to trade.
// Exactly one of Amount (asset units) or Notional (USD) is set. Price and TotalValue are
// accepted for compatibility with older clients and ignored: execution always uses the stored price.
type TradeRequest struct {
	UserID     int64            `json:"userId" binding:"required,min=1"`
	Symbol     string           `json:"symbol" binding:"required"`
	Type       Side             `json:"type" binding:"required"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Notional   *decimal.Decimal `json:"notional,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	TotalValue *decimal.Decimal `json:"totalValue,omitempty"`
}

// TradeResult is the outcome of one execution.
type TradeResult struct {
	Trade    Trade           `json:"trade"`
	Position Position        `json:"position"`
	Cash     decimal.Decimal `json:"cashBalance"`
}

// ProgressRequest - body of PUT /api/progress/:userId/:lessonId
type ProgressRequest struct {
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
	QuizScore *int `json:"quizScore,omitempty"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Tier     Tier   `json:"tier"`
}

type AddXPRequest struct {
	Amount int64 `json:"amount"`
}

// PositionValue is a position marked to market.
type PositionValue struct {
	Position
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	Stale         bool            `json:"stale"` // no stored price, valued at cost
}

// PortfolioSummary - what we send back for a portfolio valuation
type PortfolioSummary struct {
	UserID        int64           `json:"userId"`
	Positions     []PositionValue `json:"positions"`
	CashBalance   decimal.Decimal `json:"cashBalance"`
	HoldingsValue decimal.Decimal `json:"holdingsValue"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}
