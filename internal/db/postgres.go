package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver

	"github.com/atharvakonge/crypto-academy/internal/config"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrConflict is returned when a unique key is already taken.
var ErrConflict = errors.New("already exists")

const _uniqueViolation = "23505"

// Postgres is the production Store.
type Postgres struct {
	db     *sqlx.DB
	logger logger.Logger
}

// NewPostgres opens and verifies a connection pool.
func NewPostgres(cfg config.DatabaseConfig, logger logger.Logger) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: can't connect to database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Infof("database connected: %s:%s/%s", cfg.Host, cfg.Port, cfg.Name)
	return &Postgres{db: db, logger: logger}, nil
}

// NewPostgresFromDB wraps an existing handle. Used by integration tests.
func NewPostgresFromDB(db *sqlx.DB, logger logger.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// Migrate creates missing tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: can't apply schema", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	p.logger.Infof("database connection closed")
	return p.db.Close()
}

const (
	_priceColumns = "symbol, price, change_24h, last_updated"

	_queryPrice  = "SELECT " + _priceColumns + " FROM prices WHERE symbol = $1"
	_queryPrices = "SELECT " + _priceColumns + " FROM prices ORDER BY symbol"
	_upsertPrice = `INSERT INTO prices (symbol, price, change_24h, last_updated)
						VALUES ($1, $2, $3, $4)
						ON CONFLICT (symbol)
						DO UPDATE SET
							price = EXCLUDED.price,
							change_24h = EXCLUDED.change_24h,
							last_updated = EXCLUDED.last_updated
						RETURNING ` + _priceColumns
)

func (p *Postgres) GetPrice(ctx context.Context, symbol string) (models.Price, error) {
	var price models.Price
	if err := p.db.GetContext(ctx, &price, _queryPrice, symbol); err != nil {
		return price, notFound(err, "can't query price")
	}
	return price, nil
}

func (p *Postgres) ListPrices(ctx context.Context) ([]models.Price, error) {
	prices := make([]models.Price, 0)
	if err := p.db.SelectContext(ctx, &prices, _queryPrices); err != nil {
		return nil, fmt.Errorf("%w: can't query prices", err)
	}
	return prices, nil
}

func (p *Postgres) UpsertPrice(ctx context.Context, price models.Price) (models.Price, error) {
	var out models.Price
	if err := p.db.GetContext(ctx, &out, _upsertPrice,
		price.Symbol, price.Price, price.Change24h, price.LastUpdated,
	); err != nil {
		return out, fmt.Errorf("%w: can't upsert price", err)
	}
	return out, nil
}

const (
	_userColumns = "id, username, tier, cash_balance, total_xp, level, streak, last_activity_at, created_at"

	_insertUser = `INSERT INTO users (username, tier, cash_balance, total_xp, level, streak)
					VALUES ($1, $2, $3, $4, $5, $6)
					RETURNING ` + _userColumns
	_queryUser  = "SELECT " + _userColumns + " FROM users WHERE id = $1"
	_lockUser   = "SELECT " + _userColumns + " FROM users WHERE id = $1 FOR UPDATE"
	_updateUser = `UPDATE users SET
						tier = $2,
						cash_balance = $3,
						total_xp = $4,
						level = $5,
						streak = $6,
						last_activity_at = $7
					WHERE id = $1`
)

func (p *Postgres) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	var out models.User
	if err := p.db.GetContext(ctx, &out, _insertUser,
		u.Username, u.Tier, u.CashBalance, u.TotalXP, u.Level, u.Streak,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == _uniqueViolation {
			return out, fmt.Errorf("username %q: %w", u.Username, ErrConflict)
		}
		return out, fmt.Errorf("%w: can't insert user", err)
	}
	return out, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	if err := p.db.GetContext(ctx, &u, _queryUser, id); err != nil {
		return u, notFound(err, "can't query user")
	}
	return u, nil
}

const (
	_positionColumns = "id, user_id, symbol, amount, average_price, updated_at"

	_queryPositions = "SELECT " + _positionColumns + " FROM portfolios WHERE user_id = $1 ORDER BY symbol"
	_lockPosition   = "SELECT " + _positionColumns + " FROM portfolios WHERE user_id = $1 AND symbol = $2 FOR UPDATE"
	_upsertPosition = `INSERT INTO portfolios (user_id, symbol, amount, average_price)
						VALUES ($1, $2, $3, $4)
						ON CONFLICT (user_id, symbol)
						DO UPDATE SET
							amount = EXCLUDED.amount,
							average_price = EXCLUDED.average_price,
							updated_at = NOW()
						RETURNING ` + _positionColumns

	_tradeColumns = "id, user_id, symbol, trade_type, amount, price, total_value, created_at"

	_queryTrades = "SELECT " + _tradeColumns + ` FROM trades
						WHERE user_id = $1
						ORDER BY created_at DESC, id DESC
						LIMIT $2`
	_insertTrade = `INSERT INTO trades (user_id, symbol, trade_type, amount, price, total_value)
						VALUES ($1, $2, $3, $4, $5, $6)
						RETURNING ` + _tradeColumns
)

func (p *Postgres) ListPositions(ctx context.Context, userID int64) ([]models.Position, error) {
	positions := make([]models.Position, 0)
	if err := p.db.SelectContext(ctx, &positions, _queryPositions, userID); err != nil {
		return nil, fmt.Errorf("%w: can't query positions", err)
	}
	return positions, nil
}

func (p *Postgres) ListTrades(ctx context.Context, userID int64, limit int) ([]models.Trade, error) {
	trades := make([]models.Trade, 0)
	if err := p.db.SelectContext(ctx, &trades, _queryTrades, userID, limit); err != nil {
		return nil, fmt.Errorf("%w: can't query trades", err)
	}
	return trades, nil
}

const (
	_lessonColumns = "id, title, required_tier, xp_reward, position, prerequisite_id"

	_queryLessons = "SELECT " + _lessonColumns + " FROM lessons ORDER BY position, id"
	_queryLesson  = "SELECT " + _lessonColumns + " FROM lessons WHERE id = $1"
	_insertLesson = `INSERT INTO lessons (title, required_tier, xp_reward, position, prerequisite_id)
						VALUES ($1, $2, $3, $4, $5)
						RETURNING ` + _lessonColumns
	_updateLesson = `UPDATE lessons SET
						title = $2, required_tier = $3, xp_reward = $4, position = $5, prerequisite_id = $6
					WHERE id = $1
					RETURNING ` + _lessonColumns

	_progressColumns = "user_id, lesson_id, progress, completed, quiz_score, xp_awarded, updated_at, completed_at"

	_queryProgress  = "SELECT " + _progressColumns + " FROM user_progress WHERE user_id = $1 ORDER BY lesson_id"
	_lockProgress   = "SELECT " + _progressColumns + " FROM user_progress WHERE user_id = $1 AND lesson_id = $2 FOR UPDATE"
	_upsertProgress = `INSERT INTO user_progress (user_id, lesson_id, progress, completed, quiz_score, xp_awarded, updated_at, completed_at)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
						ON CONFLICT (user_id, lesson_id)
						DO UPDATE SET
							progress = EXCLUDED.progress,
							completed = EXCLUDED.completed,
							quiz_score = EXCLUDED.quiz_score,
							xp_awarded = EXCLUDED.xp_awarded,
							updated_at = EXCLUDED.updated_at,
							completed_at = EXCLUDED.completed_at
						RETURNING ` + _progressColumns
)

func (p *Postgres) ListLessons(ctx context.Context) ([]models.Lesson, error) {
	lessons := make([]models.Lesson, 0)
	if err := p.db.SelectContext(ctx, &lessons, _queryLessons); err != nil {
		return nil, fmt.Errorf("%w: can't query lessons", err)
	}
	return lessons, nil
}

// UpsertLesson inserts l when l.ID is zero and updates it otherwise.
func (p *Postgres) UpsertLesson(ctx context.Context, l models.Lesson) (models.Lesson, error) {
	var out models.Lesson
	var err error
	if l.ID == 0 {
		err = p.db.GetContext(ctx, &out, _insertLesson, l.Title, l.RequiredTier, l.XPReward, l.Position, l.PrerequisiteID)
	} else {
		err = p.db.GetContext(ctx, &out, _updateLesson, l.ID, l.Title, l.RequiredTier, l.XPReward, l.Position, l.PrerequisiteID)
	}
	if err != nil {
		return out, notFound(err, "can't upsert lesson")
	}
	return out, nil
}

func (p *Postgres) ListProgress(ctx context.Context, userID int64) ([]models.UserProgress, error) {
	progress := make([]models.UserProgress, 0)
	if err := p.db.SelectContext(ctx, &progress, _queryProgress, userID); err != nil {
		return nil, fmt.Errorf("%w: can't query progress", err)
	}
	return progress, nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: can't begin transaction", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: can't commit transaction", err)
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	if err := t.tx.GetContext(ctx, &u, _lockUser, id); err != nil {
		return u, notFound(err, "can't lock user")
	}
	return u, nil
}

func (t *pgTx) UpdateUser(ctx context.Context, u models.User) error {
	if _, err := t.tx.ExecContext(ctx, _updateUser,
		u.ID, u.Tier, u.CashBalance, u.TotalXP, u.Level, u.Streak, u.LastActivityAt,
	); err != nil {
		return fmt.Errorf("%w: can't update user", err)
	}
	return nil
}

func (t *pgTx) GetPosition(ctx context.Context, userID int64, symbol string) (models.Position, error) {
	var pos models.Position
	if err := t.tx.GetContext(ctx, &pos, _lockPosition, userID, symbol); err != nil {
		return pos, notFound(err, "can't lock position")
	}
	return pos, nil
}

func (t *pgTx) UpsertPosition(ctx context.Context, pos models.Position) (models.Position, error) {
	var out models.Position
	if err := t.tx.GetContext(ctx, &out, _upsertPosition,
		pos.UserID, pos.Symbol, pos.Amount, pos.AveragePrice,
	); err != nil {
		return out, fmt.Errorf("%w: can't upsert position", err)
	}
	return out, nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr models.Trade) (models.Trade, error) {
	var out models.Trade
	if err := t.tx.GetContext(ctx, &out, _insertTrade,
		tr.UserID, tr.Symbol, tr.Type, tr.Amount, tr.Price, tr.TotalValue,
	); err != nil {
		return out, fmt.Errorf("%w: can't record trade", err)
	}
	return out, nil
}

func (t *pgTx) GetLesson(ctx context.Context, id int64) (models.Lesson, error) {
	var l models.Lesson
	if err := t.tx.GetContext(ctx, &l, _queryLesson, id); err != nil {
		return l, notFound(err, "can't query lesson")
	}
	return l, nil
}

func (t *pgTx) GetProgress(ctx context.Context, userID, lessonID int64) (models.UserProgress, error) {
	var up models.UserProgress
	if err := t.tx.GetContext(ctx, &up, _lockProgress, userID, lessonID); err != nil {
		return up, notFound(err, "can't lock progress")
	}
	return up, nil
}

func (t *pgTx) UpsertProgress(ctx context.Context, up models.UserProgress) (models.UserProgress, error) {
	var out models.UserProgress
	if err := t.tx.GetContext(ctx, &out, _upsertProgress,
		up.UserID, up.LessonID, up.Progress, up.Completed, up.QuizScore, up.XPAwarded, up.UpdatedAt, up.CompletedAt,
	); err != nil {
		return out, fmt.Errorf("%w: can't upsert progress", err)
	}
	return out, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s", err, msg)
}
