package engine

import (
	"time"

	"confessd/pkg/logger"
	"confessd/pkg/store"
)

// Guard races fn against the wall-clock budget. If fn finishes first its
// result is absorbed (unexpected errors logged); if the budget elapses
// first the in-flight work is abandoned without a cancellation signal,
// so its side effects may still land after the caller has acknowledged.
// Either way the caller acknowledges success.
func Guard(budget time.Duration, updateID int64, fn func() error) {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("update_failed", "update_id", updateID, "error", err)
			return
		}
		store.UpdatesProcessed.Inc()
	case <-time.After(budget):
		store.DeadlineExpired.Inc()
		logger.Warn("update_deadline_expired", "update_id", updateID, "budget", budget.String())
	}
}
