package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atharvakonge/crypto-academy/internal/models"
)

type positionKey struct {
	userID int64
	symbol string
}

type progressKey struct {
	userID   int64
	lessonID int64
}

// Memory is a single-process, non-durable Store. Transactions are serialized by one
// mutex and their writes are staged until commit, so a failed transaction leaves no trace.
type Memory struct {
	mu sync.Mutex

	userSeq, positionSeq, tradeSeq, lessonSeq int64

	users     map[int64]models.User
	usernames map[string]int64
	prices    map[string]models.Price
	positions map[positionKey]models.Position
	trades    []models.Trade
	lessons   map[int64]models.Lesson
	progress  map[progressKey]models.UserProgress

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[int64]models.User),
		usernames: make(map[string]int64),
		prices:    make(map[string]models.Price),
		positions: make(map[positionKey]models.Position),
		lessons:   make(map[int64]models.Lesson),
		progress:  make(map[progressKey]models.UserProgress),
		now:       time.Now,
	}
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
func (m *Memory) Close() error                   { return nil }

func (m *Memory) GetPrice(_ context.Context, symbol string) (models.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prices[symbol]
	if !ok {
		return p, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPrices(_ context.Context) ([]models.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prices := make([]models.Price, 0, len(m.prices))
	for _, p := range m.prices {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Symbol < prices[j].Symbol })
	return prices, nil
}

func (m *Memory) UpsertPrice(_ context.Context, p models.Price) (models.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prices[p.Symbol] = p
	return p, nil
}

func (m *Memory) CreateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usernames[u.Username]; ok {
		return models.User{}, fmt.Errorf("username %q: %w", u.Username, ErrConflict)
	}
	m.userSeq++
	u.ID = m.userSeq
	u.CreatedAt = m.now()
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return u, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return u, ErrNotFound
	}
	return u, nil
}

func (m *Memory) ListPositions(_ context.Context, userID int64) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := make([]models.Position, 0)
	for k, p := range m.positions {
		if k.userID == userID {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func (m *Memory) ListTrades(_ context.Context, userID int64, limit int) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trades := make([]models.Trade, 0)
	for i := len(m.trades) - 1; i >= 0 && len(trades) < limit; i-- {
		if m.trades[i].UserID == userID {
			trades = append(trades, m.trades[i])
		}
	}
	return trades, nil
}

func (m *Memory) ListLessons(_ context.Context) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lessons := make([]models.Lesson, 0, len(m.lessons))
	for _, l := range m.lessons {
		lessons = append(lessons, l)
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Position != lessons[j].Position {
			return lessons[i].Position < lessons[j].Position
		}
		return lessons[i].ID < lessons[j].ID
	})
	return lessons, nil
}

func (m *Memory) UpsertLesson(_ context.Context, l models.Lesson) (models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l.ID == 0 {
		m.lessonSeq++
		l.ID = m.lessonSeq
	} else if _, ok := m.lessons[l.ID]; !ok {
		return l, ErrNotFound
	}
	m.lessons[l.ID] = l
	return l, nil
}

func (m *Memory) ListProgress(_ context.Context, userID int64) ([]models.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress := make([]models.UserProgress, 0)
	for k, p := range m.progress {
		if k.userID == userID {
			progress = append(progress, p)
		}
	}
	sort.Slice(progress, func(i, j int) bool { return progress[i].LessonID < progress[j].LessonID })
	return progress, nil
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:         m,
		users:     make(map[int64]models.User),
		positions: make(map[positionKey]models.Position),
		progress:  make(map[progressKey]models.UserProgress),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes; reads see staged rows first. The parent mutex is held throughout.
type memTx struct {
	m *Memory

	users     map[int64]models.User
	positions map[positionKey]models.Position
	trades    []models.Trade
	progress  map[progressKey]models.UserProgress
}

func (t *memTx) commit() {
	for id, u := range t.users {
		t.m.users[id] = u
	}
	for k, p := range t.positions {
		t.m.positions[k] = p
	}
	t.m.trades = append(t.m.trades, t.trades...)
	for k, p := range t.progress {
		t.m.progress[k] = p
	}
}

func (t *memTx) LockUser(_ context.Context, id int64) (models.User, error) {
	if u, ok := t.users[id]; ok {
		return u, nil
	}
	u, ok := t.m.users[id]
	if !ok {
		return u, ErrNotFound
	}
	return u, nil
}

func (t *memTx) UpdateUser(ctx context.Context, u models.User) error {
	cur, err := t.LockUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if u.CashBalance.IsNegative() || u.TotalXP < 0 {
		return fmt.Errorf("user %d: negative cash or xp rejected", u.ID)
	}
	u.Username = cur.Username
	u.CreatedAt = cur.CreatedAt
	t.users[u.ID] = u
	return nil
}

func (t *memTx) GetPosition(_ context.Context, userID int64, symbol string) (models.Position, error) {
	k := positionKey{userID: userID, symbol: symbol}
	if p, ok := t.positions[k]; ok {
		return p, nil
	}
	p, ok := t.m.positions[k]
	if !ok {
		return p, ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpsertPosition(ctx context.Context, p models.Position) (models.Position, error) {
	if p.Amount.IsNegative() {
		return p, fmt.Errorf("position %d/%s: negative amount rejected", p.UserID, p.Symbol)
	}
	if _, ok := t.m.users[p.UserID]; !ok {
		return p, fmt.Errorf("position for unknown user %d", p.UserID)
	}
	cur, err := t.GetPosition(ctx, p.UserID, p.Symbol)
	switch {
	case err == nil:
		p.ID = cur.ID
	case err == ErrNotFound:
		t.m.positionSeq++
		p.ID = t.m.positionSeq
	default:
		return p, err
	}
	p.UpdatedAt = t.m.now()
	t.positions[positionKey{userID: p.UserID, symbol: p.Symbol}] = p
	return p, nil
}

func (t *memTx) InsertTrade(_ context.Context, tr models.Trade) (models.Trade, error) {
	if !tr.Amount.IsPositive() {
		return tr, fmt.Errorf("trade amount must be positive")
	}
	t.m.tradeSeq++
	tr.ID = t.m.tradeSeq
	tr.CreatedAt = t.m.now()
	t.trades = append(t.trades, tr)
	return tr, nil
}

func (t *memTx) GetLesson(_ context.Context, id int64) (models.Lesson, error) {
	l, ok := t.m.lessons[id]
	if !ok {
		return l, ErrNotFound
	}
	return l, nil
}

func (t *memTx) GetProgress(_ context.Context, userID, lessonID int64) (models.UserProgress, error) {
	k := progressKey{userID: userID, lessonID: lessonID}
	if p, ok := t.progress[k]; ok {
		return p, nil
	}
	p, ok := t.m.progress[k]
	if !ok {
		return p, ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpsertProgress(_ context.Context, p models.UserProgress) (models.UserProgress, error) {
	if p.Progress < 0 || p.Progress > 100 {
		return p, fmt.Errorf("progress %d out of range", p.Progress)
	}
	t.progress[progressKey{userID: p.UserID, lessonID: p.LessonID}] = p
	return p, nil
}
