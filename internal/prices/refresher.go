package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atharvakonge/crypto-academy/internal/logger"
)

// Refresher polls upstream on a cron schedule.
type Refresher struct {
	cron    *cron.Cron
	store   *Store
	timeout time.Duration

	logger logger.Logger
}

// NewRefresher validates schedule (standard five-field cron or a descriptor like "@every 1m").
func NewRefresher(store *Store, schedule string, timeout time.Duration, logger logger.Logger) (*Refresher, error) {
	r := &Refresher{
		cron:    cron.New(),
		store:   store,
		timeout: timeout,
		logger:  logger,
	}

	if _, err := r.cron.AddFunc(schedule, r.refresh); err != nil {
		return nil, fmt.Errorf("%w: invalid refresh schedule %q", err, schedule)
	}
	return r, nil
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.store.Refresh(ctx); err != nil {
		r.logger.Errorf("%s: scheduled price refresh failed", err)
	}
}

func (r *Refresher) Start() {
	r.cron.Start()
	r.logger.Infof("price refresher started")
}

// Stop waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Infof("price refresher stopped")
}
