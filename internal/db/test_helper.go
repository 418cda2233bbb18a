package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

// SetupTestDB connects to the integration database named by TEST_DATABASE_DSN and applies
// the schema. The test is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *Postgres {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			"localhost",
			"5433",
			"trader",
			"trading123",
			"trading_db",
		)
	}

	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = conn.PingContext(ctx); err != nil {
		conn.Close()
		t.Skipf("test database unavailable: %v", err)
	}

	store := NewPostgresFromDB(conn, logger.NewNop())
	if err := store.Migrate(context.Background()); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	purge(t, store)
	t.Cleanup(func() { CleanupTestDB(t, store) })
	return store
}

// CleanupTestDB removes rows written by tests and closes the pool.
func CleanupTestDB(t *testing.T, store *Postgres) {
	purge(t, store)
	store.Close()
}

func purge(t *testing.T, store *Postgres) {
	tables := []string{"user_progress", "trades", "portfolios", "lessons", "prices", "users"}
	for _, table := range tables {
		if _, err := store.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: Failed to cleanup table %s: %v", table, err)
		}
	}
}

// CreateTestUser creates a free-tier user with the given cash and returns it.
func CreateTestUser(t *testing.T, store Store, username string, cash decimal.Decimal) models.User {
	t.Helper()

	// Make username unique by adding timestamp
	uniqueUsername := fmt.Sprintf("%s_%d", username, time.Now().UnixNano())

	u, err := store.CreateUser(context.Background(), models.User{
		Username:    uniqueUsername,
		Tier:        models.TierFree,
		CashBalance: cash,
		Level:       1,
	})
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}
