package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
)

// Service opens paper-trading accounts. Authentication lives elsewhere.
type Service struct {
	store        db.Store
	startingCash decimal.Decimal

	logger logger.Logger
}

func NewService(store db.Store, startingCash decimal.Decimal, logger logger.Logger) *Service {
	return &Service{
		store:        store,
		startingCash: startingCash,
		logger:       logger,
	}
}

func (s *Service) Create(ctx context.Context, req models.CreateUserRequest) (models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username is required", models.ErrValidation)
	}

	tier := req.Tier
	if tier == "" {
		tier = models.TierFree
	}
	if !tier.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown tier %q", models.ErrValidation, tier)
	}

	u, err := s.store.CreateUser(ctx, models.User{
		Username:    username,
		Tier:        tier,
		CashBalance: s.startingCash,
		Level:       1,
	})
	if err != nil {
		return u, err
	}

	s.logger.Infof("user %d created: %s (%s)", u.ID, u.Username, u.Tier)
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return u, fmt.Errorf("user %d: %w", id, err)
	}
	return u, nil
}
