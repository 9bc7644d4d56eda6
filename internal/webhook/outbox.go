package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/techmehedi/Autopay-Agent/internal/ledger"
)

type Poster interface {
	Post(ctx context.Context, rec ledger.OutboxRecord) error
}

// OutboxStore is the part of the ledger the worker needs.
type OutboxStore interface {
	ListOutboxDue(now string, limit int) ([]ledger.OutboxRecord, error)
	PutOutbox(rec ledger.OutboxRecord) error
}

// ProcessDue posts due pending events and records the outcome of each.
// Failed posts are rescheduled with exponential backoff.
func ProcessDue(ctx context.Context, store OutboxStore, poster Poster, now time.Time, limit int) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("missing store")
	}
	if poster == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	stamp := now.UTC().Format(time.RFC3339)
	due, err := store.ListOutboxDue(stamp, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if rec.Status != ledger.OutboxStatusPending {
			continue
		}

		rec.UpdatedAt = stamp
		if err := poster.Post(ctx, rec); err != nil {
			next := nextAttempt(rec.AttemptCount)
			rec.AttemptCount++
			rec.NextAttemptAt = now.UTC().Add(next).Format(time.RFC3339)
			msg := err.Error()
			rec.LastError = &msg
		} else {
			rec.Status = ledger.OutboxStatusSent
			rec.SentAt = &stamp
			rec.LastError = nil
		}
		if err := store.PutOutbox(rec); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, 80s, 160s, then 5m.
	base := 5 * time.Second
	if attemptCount <= 0 {
		return base
	}
	if attemptCount > 6 {
		return 5 * time.Minute
	}
	return min(base<<attemptCount, 5*time.Minute)
}

// RunWorker polls for due events until ctx is cancelled.
func RunWorker(ctx context.Context, store OutboxStore, poster Poster, pollInterval time.Duration, logger *slog.Logger) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "webhook")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := ProcessDue(ctx, store, poster, now, 25)
			if err != nil && ctx.Err() == nil {
				logger.Warn("process webhook outbox", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("processed webhook outbox", "events", n)
			}
		}
	}
}
