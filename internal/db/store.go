package db

import (
	"context"
	"errors"

	"github.com/atharvakonge/crypto-academy/internal/models"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence layer shared by every component.
// Reads outside a transaction see committed state only.
type Store interface {
	GetPrice(ctx context.Context, symbol string) (models.Price, error)
	ListPrices(ctx context.Context) ([]models.Price, error)
	UpsertPrice(ctx context.Context, p models.Price) (models.Price, error)

	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)

	ListPositions(ctx context.Context, userID int64) ([]models.Position, error)
	ListTrades(ctx context.Context, userID int64, limit int) ([]models.Trade, error)

	ListLessons(ctx context.Context) ([]models.Lesson, error)
	UpsertLesson(ctx context.Context, l models.Lesson) (models.Lesson, error)
	ListProgress(ctx context.Context, userID int64) ([]models.UserProgress, error)

	// InTx runs fn in one transaction. The transaction commits when fn returns nil
	// and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of row-locking reads and writes a trade or progress update needs.
// Getters lock the row they return until the transaction ends.
type Tx interface {
	LockUser(ctx context.Context, id int64) (models.User, error)
	UpdateUser(ctx context.Context, u models.User) error

	// GetPosition returns ErrNotFound when the user never held the symbol.
	GetPosition(ctx context.Context, userID int64, symbol string) (models.Position, error)
	UpsertPosition(ctx context.Context, p models.Position) (models.Position, error)
	InsertTrade(ctx context.Context, t models.Trade) (models.Trade, error)

	GetLesson(ctx context.Context, id int64) (models.Lesson, error)
	GetProgress(ctx context.Context, userID, lessonID int64) (models.UserProgress, error)
	UpsertProgress(ctx context.Context, p models.UserProgress) (models.UserProgress, error)
}
