package cleanup

import (
	"context"
	"time"

	"shopfront/internal/data"
	"shopfront/internal/logger"
)

const (
	cleanupHour       = 2    // 2 AM
	maxDeletionPerRun = 5000 // Maximum records to delete per batch
	maxBatchesPerRun  = 20
)

// StartCleanupRoutine prunes render events older than retention once a day
// until ctx is cancelled.
func StartCleanupRoutine(ctx context.Context, retention time.Duration) {
	go func() {
		logger.LogInfo("Cleanup routine started - will run daily at %d:00 AM, retention %v", cleanupHour, retention)

		for {
			next := nextRun(time.Now())
			logger.LogInfo("Next cleanup scheduled for %v (in %v)", next.Format("2006-01-02 15:04:05"), time.Until(next))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.LogInfo("Cleanup routine stopped")
				return
			case <-timer.C:
			}

			cutoff := time.Now().Add(-retention)
			RunCleanup(ctx, cutoff)
			LogDecisionDigest(ctx, cutoff)
		}
	}()
}

// nextRun returns the next cleanupHour strictly after now.
func nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunCleanup deletes render events rendered before cutoff in bounded batches
// and returns how many were removed.
func RunCleanup(ctx context.Context, cutoff time.Time) int {
	logger.LogInfo("Starting cleanup of render events before %v", cutoff.Format("2006-01-02 15:04:05"))

	total := 0
	for batch := 0; batch < maxBatchesPerRun; batch++ {
		if ctx.Err() != nil {
			break
		}
		n, err := data.DeleteRenderEventsBefore(ctx, cutoff, maxDeletionPerRun)
		if err != nil {
			logger.LogError("Failed to cleanup render events: %v", err)
			break
		}
		total += n
		if n < maxDeletionPerRun {
			break
		}
	}

	if total == 0 {
		logger.LogInfo("Cleanup completed - no expired render events found")
	} else {
		logger.LogInfo("Cleanup completed - total %d render events removed", total)
	}
	return total
}

// LogDecisionDigest logs how renders since the given time were decided and
// how many events the audit store still holds.
func LogDecisionDigest(ctx context.Context, since time.Time) {
	summary, err := data.DecisionSummary(ctx, since)
	if err != nil {
		logger.LogWarn("Could not summarize render decisions: %v", err)
		return
	}
	for _, rc := range summary {
		reason := rc.Reason
		if reason == "" {
			reason = "inventory_unavailable"
		}
		logger.LogInfo("Renders since %s: reason=%s shown=%t count=%d",
			since.Format("2006-01-02 15:04"), reason, rc.Shown, rc.Count)
	}

	if total, err := data.CountRenderEvents(ctx); err == nil {
		logger.LogInfo("Audit store holds %d render events", total)
	}
}
