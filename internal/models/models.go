package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation marks malformed client input. Wrap it with the concrete reason.
var ErrValidation = errors.New("validation failed")

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Tier is the subscription level gating lessons.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

var tierRank = map[Tier]int{
	TierFree:  0,
	TierBasic: 1,
	TierPro:   2,
	TierElite: 3,
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Covers reports whether a user on tier t may access content requiring tier required.
func (t Tier) Covers(required Tier) bool {
	return tierRank[t] >= tierRank[required]
}

// User represents a user in the system
type User struct {
	ID             int64           `json:"id" db:"id"`
	Username       string          `json:"username" db:"username"`
	Tier           Tier            `json:"tier" db:"tier"`
	CashBalance    decimal.Decimal `json:"cashBalance" db:"cash_balance"`
	TotalXP        int64           `json:"totalXp" db:"total_xp"`
	Level          int             `json:"level" db:"level"`
	Streak         int             `json:"streak" db:"streak"`
	LastActivityAt *time.Time      `json:"lastActivityAt,omitempty" db:"last_activity_at"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// Position represents a user's holdings of one symbol
type Position struct {
	ID           int64           `json:"id" db:"id"`
	UserID       int64           `json:"userId" db:"user_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	AveragePrice decimal.Decimal `json:"averagePrice" db:"average_price"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

// Closed reports whether the position is flat.
func (p Position) Closed() bool {
	return p.Amount.IsZero()
}

// Trade represents an executed buy or sell
type Trade struct {
	ID         int64           `json:"id" db:"id"`
	UserID     int64           `json:"userId" db:"user_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Type       Side            `json:"type" db:"trade_type"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Price      decimal.Decimal `json:"price" db:"price"`
	TotalValue decimal.Decimal `json:"totalValue" db:"total_value"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// Price is the last known quote of a symbol
type Price struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Change24h   decimal.Decimal `json:"change24h" db:"change_24h"`
	LastUpdated time.Time       `json:"lastUpdated" db:"last_updated"`
}

// Lesson is static course content
type Lesson struct {
	ID             int64  `json:"id" db:"id"`
	Title          string `json:"title" db:"title"`
	RequiredTier   Tier   `json:"requiredTier" db:"required_tier"`
	XPReward       int64  `json:"xpReward" db:"xp_reward"`
	Position       int    `json:"position" db:"position"`
	PrerequisiteID *int64 `json:"prerequisiteId,omitempty" db:"prerequisite_id"`
}

// UserProgress tracks one user's progress through one lesson
type UserProgress struct {
	UserID      int64      `json:"userId" db:"user_id"`
	LessonID    int64      `json:"lessonId" db:"lesson_id"`
	Progress    int        `json:"progress" db:"progress"` // percent, 0-100
	Completed   bool       `json:"completed" db:"completed"`
	QuizScore   *int       `json:"quizScore,omitempty" db:"quiz_score"`
	XPAwarded   bool       `json:"xpAwarded" db:"xp_awarded"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}
