// Package sweeper is the periodic expiry sweep: a standalone ticker
// task that asks the Store to drop past-expiry records.
package sweeper

import (
	"context"
	"time"

	"github.com/nwws-alert/ingest/internal/store"
	"github.com/rs/zerolog"
)

// Sweeper periodically calls Store.SweepExpired.
type Sweeper struct {
	store  *store.Store
	period time.Duration
	log    zerolog.Logger
}

// New builds a Sweeper. period should be 30-60s; callers pass 0 to
// get the default of 45s.
func New(st *store.Store, period time.Duration, log zerolog.Logger) *Sweeper {
	if period <= 0 {
		period = 45 * time.Second
	}
	return &Sweeper{store: st, period: period, log: log}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			before := len(s.store.Snapshot())
			s.store.SweepExpired(time.Now().UTC())
			after := len(s.store.Snapshot())
			if after != before {
				s.log.Info().Int("removed", before-after).Msg("expiry sweep removed records")
			}
		}
	}
}
