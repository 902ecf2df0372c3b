// sweeper.go - Periodic garbage collection of expired invites and stale requests

package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store is the part of the Access Ledger the sweeper deletes from.
type Store interface {
	DeleteExpiredInvites(ctx context.Context, now time.Time) (int64, error)
	DeleteStalePendingGrants(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result counts the rows removed by one pass.
type Result struct {
	ExpiredInvites int64
	StaleRequests  int64
}

type Sweeper struct {
	store      Store
	interval   time.Duration
	pendingTTL time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func New(store Store, interval, pendingTTL time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		interval:   interval,
		pendingTTL: pendingTTL,
		now:        time.Now,
		log:        slog.With("component", "sweeper"),
	}
}

// SweepOnce runs both deletions. They are independent: a failure in one
// does not skip the other.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	var res Result
	var errs []error

	n, err := s.store.DeleteExpiredInvites(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired invites: %w", err))
	}
	res.ExpiredInvites = n

	n, err = s.store.DeleteStalePendingGrants(ctx, now.Add(-s.pendingTTL))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete stale requests: %w", err))
	}
	res.StaleRequests = n

	if res.ExpiredInvites > 0 || res.StaleRequests > 0 {
		s.log.Info("Sweep removed rows", "expired_invites", res.ExpiredInvites, "stale_requests", res.StaleRequests)
	}
	return res, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Debug("Sweeper started", "interval", s.interval, "pending_ttl", s.pendingTTL)
	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("Sweep failed", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
