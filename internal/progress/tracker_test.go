package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

func intPtr(v int) *int { return &v }

func setup(t *testing.T) (*Tracker, *db.Memory, models.User, models.Lesson) {
	t.Helper()
	store := db.NewMemory()
	tr := NewTracker(store, logger.NewNop())
	user := db.CreateTestUser(t, store, "learner", decimal.Zero)
	lesson, err := store.UpsertLesson(context.Background(), models.Lesson{
		Title: "What is a blockchain", RequiredTier: models.TierFree, XPReward: 100,
	})
	if err != nil {
		t.Fatalf("Failed to create lesson: %v", err)
	}
	return tr, store, user, lesson
}

func TestLevel(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{499, 1},
		{500, 2},
		{550, 2},
		{999, 2},
		{1000, 3},
		{-10, 1},
	}
	for _, tt := range tests {
		if got := Level(tt.xp); got != tt.want {
			t.Errorf("Level(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestAddXP_ScenarioE(t *testing.T) {
	tr, _, user, _ := setup(t)
	ctx := context.Background()

	if _, err := tr.AddXP(ctx, user.ID, 400); err != nil {
		t.Fatalf("AddXP failed: %v", err)
	}
	u, err := tr.AddXP(ctx, user.ID, 150)
	if err != nil {
		t.Fatalf("AddXP failed: %v", err)
	}
	if u.TotalXP != 550 || u.Level != 2 {
		t.Errorf("Expected totalXp 550 level 2, got %d level %d", u.TotalXP, u.Level)
	}
}

func TestAddXP_Monotonic(t *testing.T) {
	tr, store, user, _ := setup(t)
	ctx := context.Background()

	if _, err := tr.AddXP(ctx, user.ID, 300); err != nil {
		t.Fatalf("AddXP failed: %v", err)
	}
	if _, err := tr.AddXP(ctx, user.ID, -50); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected ErrValidation for negative delta, got %v", err)
	}

	prev := int64(300)
	for _, delta := range []int64{0, 1, 199, 1000} {
		u, err := tr.AddXP(ctx, user.ID, delta)
		if err != nil {
			t.Fatalf("AddXP failed: %v", err)
		}
		if u.TotalXP < prev {
			t.Fatalf("XP decreased from %d to %d", prev, u.TotalXP)
		}
		if u.Level != Level(u.TotalXP) {
			t.Errorf("Level %d inconsistent with xp %d", u.Level, u.TotalXP)
		}
		prev = u.TotalXP
	}

	got, _ := store.GetUser(ctx, user.ID)
	if got.TotalXP != 1500 {
		t.Errorf("Expected 1500 xp stored, got %d", got.TotalXP)
	}

	if _, err := tr.AddXP(ctx, 9999, 10); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected db.ErrNotFound, got %v", err)
	}
}

func TestRecordCompletion_AwardsXPOnce(t *testing.T) {
	tr, store, user, lesson := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		up, err := tr.RecordCompletion(ctx, user.ID, lesson.ID, 100, true, intPtr(80))
		if err != nil {
			t.Fatalf("RecordCompletion failed: %v", err)
		}
		if !up.Completed || !up.XPAwarded {
			t.Errorf("Expected completed and awarded, got %+v", up)
		}
	}

	u, _ := store.GetUser(ctx, user.ID)
	if u.TotalXP != lesson.XPReward {
		t.Errorf("Expected %d xp after repeated completion, got %d", lesson.XPReward, u.TotalXP)
	}
}

func TestRecordCompletion_OneRowPerLesson(t *testing.T) {
	tr, _, user, lesson := setup(t)
	ctx := context.Background()

	for _, pct := range []int{10, 50, 30, 90} {
		if _, err := tr.RecordCompletion(ctx, user.ID, lesson.ID, pct, false, nil); err != nil {
			t.Fatalf("RecordCompletion failed: %v", err)
		}
	}

	rows, err := tr.Progress(ctx, user.ID)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected one row, got %d", len(rows))
	}
	if rows[0].Progress != 90 {
		t.Errorf("Expected progress to keep the highest value 90, got %d", rows[0].Progress)
	}
	if rows[0].Completed || rows[0].XPAwarded {
		t.Errorf("Expected incomplete lesson without xp, got %+v", rows[0])
	}
}

func TestRecordCompletion_StickyAndBestScore(t *testing.T) {
	tr, _, user, lesson := setup(t)
	ctx := context.Background()

	if _, err := tr.RecordCompletion(ctx, user.ID, lesson.ID, 100, true, intPtr(90)); err != nil {
		t.Fatalf("RecordCompletion failed: %v", err)
	}
	up, err := tr.RecordCompletion(ctx, user.ID, lesson.ID, 20, false, intPtr(60))
	if err != nil {
		t.Fatalf("RecordCompletion failed: %v", err)
	}
	if !up.Completed || up.Progress != 100 {
		t.Errorf("Expected completion to stick at 100, got completed=%v progress=%d", up.Completed, up.Progress)
	}
	if up.QuizScore == nil || *up.QuizScore != 90 {
		t.Errorf("Expected best score 90, got %v", up.QuizScore)
	}
	if up.CompletedAt == nil {
		t.Error("Expected completedAt to be set")
	}
}

func TestRecordCompletion_Errors(t *testing.T) {
	tr, store, user, lesson := setup(t)
	ctx := context.Background()

	pro, err := store.UpsertLesson(ctx, models.Lesson{Title: "Derivatives", RequiredTier: models.TierPro, XPReward: 300})
	if err != nil {
		t.Fatalf("Failed to create lesson: %v", err)
	}

	tests := []struct {
		name     string
		userID   int64
		lessonID int64
		progress int
		score    *int
		want     error
	}{
		{"progress too high", user.ID, lesson.ID, 101, nil, models.ErrValidation},
		{"negative progress", user.ID, lesson.ID, -1, nil, models.ErrValidation},
		{"bad score", user.ID, lesson.ID, 50, intPtr(120), models.ErrValidation},
		{"unknown lesson", user.ID, 4242, 50, nil, ErrLessonNotFound},
		{"unknown user", 4242, lesson.ID, 50, nil, db.ErrNotFound},
		{"tier gated", user.ID, pro.ID, 50, nil, ErrTierRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.RecordCompletion(ctx, tt.userID, tt.lessonID, tt.progress, false, tt.score)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	rows, _ := tr.Progress(ctx, user.ID)
	if len(rows) != 0 {
		t.Errorf("Expected failed calls to write nothing, got %d rows", len(rows))
	}
}

func TestStreak(t *testing.T) {
	tr, store, user, lesson := setup(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	steps := []struct {
		at   time.Time
		want int
	}{
		{base, 1},
		{base.Add(10 * time.Minute), 1},   // same day
		{base.Add(1 * time.Hour), 2},      // next UTC day
		{base.Add(25 * time.Hour), 3},     // day after
		{base.Add(4 * 24 * time.Hour), 1}, // gap
	}

	for i, s := range steps {
		tr.now = func() time.Time { return s.at }
		if _, err := tr.RecordCompletion(ctx, user.ID, lesson.ID, 10*(i+1), false, nil); err != nil {
			t.Fatalf("RecordCompletion failed: %v", err)
		}
		u, _ := store.GetUser(ctx, user.ID)
		if u.Streak != s.want {
			t.Errorf("Step %d at %s: expected streak %d, got %d", i, s.at, s.want, u.Streak)
		}
	}
}
