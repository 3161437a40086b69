// Package payment provides retention and expiry maintenance jobs.
package payment

import (
	"log/slog"
	"time"

	"github.com/sokoni-collective/sokoni/internal/jobs"
)

// CleanupWebhookEvents removes processed webhook events older than the
// retention window. Purely janitorial: dedup correctness does not depend on
// it, it only bounds table growth. Returns the number of rows deleted.
func CleanupWebhookEvents(repo WebhookRepository, retention time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(retention)
	if err != nil {
		slog.Error("failed to cleanup webhook events", "error", err)
		return 0, err
	}

	if deleted > 0 {
		slog.Info("cleaned up webhook events", "deleted", deleted, "older_than", retention)
	}

	return deleted, nil
}

// ExpireStalePending cancels pending intents older than maxAge. A pending
// intent whose confirmation never arrives would otherwise persist forever;
// whether to expire them at all is a product decision, so the job only runs
// when explicitly enabled (maxAge > 0). Returns the number of intents
// cancelled.
func ExpireStalePending(repo Repository, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	stale, err := repo.ListPendingOlderThan(time.Now().Add(-maxAge))
	if err != nil {
		slog.Error("failed to list stale pending intents", "error", err)
		return 0, err
	}

	expired := int64(0)
	for _, intent := range stale {
		// Guarded transition: a confirmation landing between the list and
		// this write keeps its success, the sweep simply skips the row.
		_, won, err := repo.UpdateStatusFromPending(intent.ID, StatusCancelled, nil)
		if err != nil {
			slog.Error("failed to expire pending intent",
				"payment_id", intent.ID, "tx_ref", intent.TxRef, "error", err)
			continue
		}
		if !won {
			continue
		}
		expired++
	}

	if expired > 0 {
		slog.Info("expired stale pending intents", "expired", expired, "older_than", maxAge)
	}

	return expired, nil
}

// RunPeriodicCleanup runs both maintenance jobs at the given interval until
// stopChan is closed. Typically run in a goroutine from main. jobMetrics may
// be nil.
func RunPeriodicCleanup(
	webhooks WebhookRepository,
	payments Repository,
	interval time.Duration,
	retention time.Duration,
	pendingMaxAge time.Duration,
	jobMetrics *jobs.Metrics,
	stopChan <-chan struct{},
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		err := jobMetrics.Track(jobs.JobTypeWebhookGC, func() error {
			_, err := CleanupWebhookEvents(webhooks, retention)
			return err
		})
		if err != nil {
			slog.Error("webhook cleanup failed", "error", err)
		}

		err = jobMetrics.Track(jobs.JobTypePendingExpiry, func() error {
			_, err := ExpireStalePending(payments, pendingMaxAge)
			return err
		})
		if err != nil {
			slog.Error("pending intent expiry failed", "error", err)
		}
	}

	// Run immediately on start
	run()

	for {
		select {
		case <-ticker.C:
			run()
		case <-stopChan:
			return
		}
	}
}
