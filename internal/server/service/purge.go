package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docport/internal/server/storage"
)

// PurgeService periodically removes documents that have been expired for
// longer than a grace period. Recently expired documents are kept so the
// admin list still shows them; only records past expiry + grace go.
type PurgeService struct {
	repo     RecordStore
	store    storage.Store
	grace    time.Duration
	interval time.Duration
	done     chan struct{}
}

// NewPurgeService creates a new purge sweeper.
func NewPurgeService(repo RecordStore, store storage.Store, grace, interval time.Duration) *PurgeService {
	return &PurgeService{
		repo:     repo,
		store:    store,
		grace:    grace,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the purge loop in a background goroutine.
func (ps *PurgeService) Start(ctx context.Context) {
	slog.Info("purge service started", "grace", ps.grace, "interval", ps.interval)

	go func() {
		ticker := time.NewTicker(ps.interval)
		defer ticker.Stop()

		ps.runPurge(ctx)

		for {
			select {
			case <-ticker.C:
				ps.runPurge(ctx)
			case <-ctx.Done():
				slog.Info("purge service stopping")
				close(ps.done)
				return
			}
		}
	}()
}

// Wait blocks until the purge service has fully stopped.
func (ps *PurgeService) Wait() {
	<-ps.done
}

func (ps *PurgeService) runPurge(ctx context.Context) {
	now := time.Now().UTC()

	docs, err := ps.repo.List(ctx)
	if err != nil {
		slog.Error("purge: failed to list documents", "error", err)
		return
	}

	var purged, failed int
	for _, doc := range docs {
		// Same published/expired boundary as the catalog, shifted back
		// by the grace period.
		if IsPublished(now.Add(-ps.grace), doc) {
			continue
		}

		if err := ps.repo.Delete(ctx, doc.ID); err != nil {
			slog.Error("purge: failed to delete record", "id", doc.ID, "error", err)
			failed++
			continue
		}

		if err := ps.store.Delete(ctx, doc.Path); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			slog.Error("purge: failed to delete blob", "id", doc.ID, "key", doc.Path, "error", err)
			failed++
			continue
		}

		purged++
		slog.Info("purged expired document",
			"id", doc.ID,
			"title", doc.Title,
			"expired_at", doc.ExpiresAt,
		)
	}

	if purged > 0 || failed > 0 {
		slog.Info("purge cycle complete", "purged", purged, "failed", failed)
	}
}
