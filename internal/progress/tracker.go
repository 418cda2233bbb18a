package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

var (
	ErrLessonNotFound = errors.New("lesson not found")
	ErrTierRequired   = errors.New("lesson requires a higher tier")
)

const XPPerLevel = 500

// Level is derived from cumulative XP only.
func Level(totalXP int64) int {
	if totalXP < 0 {
		totalXP = 0
	}
	return int(totalXP/XPPerLevel) + 1
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextStreak counts consecutive UTC days with activity.
func nextStreak(streak int, last *time.Time, now time.Time) int {
	if last == nil || streak <= 0 {
		return 1
	}
	switch days := int(day(now).Sub(day(*last)).Hours() / 24); {
	case days <= 0:
		return streak
	case days == 1:
		return streak + 1
	default:
		return 1
	}
}

// Tracker records lesson progress and owns the user's XP, level and streak.
type Tracker struct {
	store db.Store
	now   func() time.Time

	logger logger.Logger
}

func NewTracker(store db.Store, logger logger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

func validPercent(v int) bool {
	return v >= 0 && v <= 100
}

// RecordCompletion upserts the user's progress on a lesson. Progress never goes down,
// completion is sticky, the best quiz score is kept, and the lesson's XP is awarded
// only the first time it is completed.
func (t *Tracker) RecordCompletion(
	ctx context.Context,
	userID, lessonID int64,
	progress int,
	completed bool,
	quizScore *int,
) (models.UserProgress, error) {
	var out models.UserProgress

	if !validPercent(progress) {
		return out, fmt.Errorf("%w: progress must be between 0 and 100, got %d", models.ErrValidation, progress)
	}
	if quizScore != nil && !validPercent(*quizScore) {
		return out, fmt.Errorf("%w: quiz score must be between 0 and 100, got %d", models.ErrValidation, *quizScore)
	}

	now := t.now().UTC()
	var awarded int64

	err := t.store.InTx(ctx, func(tx db.Tx) error {
		lesson, err := tx.GetLesson(ctx, lessonID)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrLessonNotFound, lessonID)
		}
		if err != nil {
			return err
		}

		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		if !user.Tier.Covers(lesson.RequiredTier) {
			return fmt.Errorf("%w: %q needs %s, user is %s", ErrTierRequired, lesson.Title, lesson.RequiredTier, user.Tier)
		}

		up, err := tx.GetProgress(ctx, userID, lessonID)
		if errors.Is(err, db.ErrNotFound) {
			up = models.UserProgress{UserID: userID, LessonID: lessonID}
		} else if err != nil {
			return err
		}

		up.Progress = max(up.Progress, progress)
		if completed && !up.Completed {
			up.Completed = true
			up.CompletedAt = &now
		}
		if up.Completed {
			up.Progress = 100
		}
		if quizScore != nil && (up.QuizScore == nil || *quizScore > *up.QuizScore) {
			score := *quizScore
			up.QuizScore = &score
		}
		up.UpdatedAt = now

		if up.Completed && !up.XPAwarded {
			up.XPAwarded = true
			awarded = lesson.XPReward
			user.TotalXP += lesson.XPReward
			user.Level = Level(user.TotalXP)
		}

		user.Streak = nextStreak(user.Streak, user.LastActivityAt, now)
		user.LastActivityAt = &now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}

		out, err = tx.UpsertProgress(ctx, up)
		return err
	})
	if err != nil {
		return models.UserProgress{}, err
	}

	if awarded > 0 {
		t.logger.Infof("user %d completed lesson %d: +%d xp", userID, lessonID, awarded)
	}
	return out, nil
}

// AddXP credits delta XP and recomputes the level. XP can never be taken away.
func (t *Tracker) AddXP(ctx context.Context, userID, delta int64) (models.User, error) {
	var user models.User
	if delta < 0 {
		return user, fmt.Errorf("%w: xp delta must not be negative, got %d", models.ErrValidation, delta)
	}

	err := t.store.InTx(ctx, func(tx db.Tx) error {
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		u.TotalXP += delta
		u.Level = Level(u.TotalXP)
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Progress lists one row per lesson the user has touched.
func (t *Tracker) Progress(ctx context.Context, userID int64) ([]models.UserProgress, error) {
	rows, err := t.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: can't list progress", err)
	}
	return rows, nil
}

func (t *Tracker) Lessons(ctx context.Context) ([]models.Lesson, error) {
	lessons, err := t.store.ListLessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: can't list lessons", err)
	}
	return lessons, nil
}
