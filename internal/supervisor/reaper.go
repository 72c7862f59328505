package supervisor

import (
	"context"
	"time"

	"uchat/internal/logging"
	"uchat/internal/metrics"
	"uchat/internal/query"
)

// SessionReaper periodically deletes expired sessions.
type SessionReaper struct {
	db       query.DB
	interval time.Duration
	// reap is query.DeleteExpiredSessions outside of tests.
	reap func(ctx context.Context, db query.DB) (int64, error)
}

func NewSessionReaper(db query.DB, interval time.Duration) *SessionReaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionReaper{db: db, interval: interval, reap: query.DeleteExpiredSessions}
}

// Serve reaps once at startup and then on every tick. A failed pass is
// logged and retried on the next tick.
func (s *SessionReaper) Serve(ctx context.Context) error {
	log := logging.WithComponent("session-reaper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := s.reap(ctx, s.db)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn().Err(err).Msg("delete expired sessions")
		case n > 0:
			metrics.SessionsReapedTotal.Add(float64(n))
			log.Info().Int64("deleted", n).Msg("expired sessions deleted")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *SessionReaper) String() string { return "session-reaper" }
