package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"docport/internal/server/config"
	"docport/internal/server/database"
	"docport/internal/server/storage"

	"github.com/google/uuid"
)

// RecordStore is the subset of the document repository the services need.
type RecordStore interface {
	Create(ctx context.Context, doc *database.Document) error
	GetByID(ctx context.Context, id string) (*database.Document, error)
	List(ctx context.Context) ([]*database.Document, error)
	Delete(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// DocumentView is the wire representation of a document record.
// Path carries the resolved URL, not the raw blob key.
type DocumentView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	PostedAt  time.Time `json:"postedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Published bool      `json:"published"`
}

// LifecycleService orchestrates admin mutations: upload, list, delete.
// Authorization is enforced by the session middleware before any call
// reaches this service.
type LifecycleService struct {
	repo  RecordStore
	store storage.Store
	cfg   *config.Config
	now   func() time.Time
}

// NewLifecycleService creates a new lifecycle service.
func NewLifecycleService(repo RecordStore, store storage.Store, cfg *config.Config) *LifecycleService {
	return &LifecycleService{
		repo:  repo,
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Upload validates the submission and performs the two-phase write:
// the blob is persisted first, then the metadata record is committed.
// A record commit failure triggers a compensating blob delete so no
// record ever points at a missing blob and no blob is left orphaned.
func (s *LifecycleService) Upload(ctx context.Context, title, expiresAt string, data io.Reader, size int64) (*DocumentView, error) {
	now := s.now().UTC()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Cause: "must not be empty"}
	}
	if len(title) > 255 {
		return nil, &ValidationError{Field: "title", Cause: "must be at most 255 characters"}
	}

	expiry, err := parseExpiry(expiresAt)
	if err != nil {
		return nil, &ValidationError{Field: "expiresAt", Cause: "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"}
	}
	if expiry.Before(now) {
		return nil, &ValidationError{Field: "expiresAt", Cause: "must not be before the current date"}
	}

	if size > s.cfg.MaxFileSize {
		return nil, &ValidationError{Field: "file", Cause: "exceeds maximum allowed size"}
	}

	var buf bytes.Buffer
	read, err := io.Copy(&buf, io.LimitReader(data, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, &StorageError{Op: "read upload", Err: err}
	}
	if read > s.cfg.MaxFileSize {
		return nil, &ValidationError{Field: "file", Cause: "exceeds maximum allowed size"}
	}
	if !isPDF(buf.Bytes()) {
		return nil, &ValidationError{Field: "file", Cause: "must be a PDF document"}
	}

	id := uuid.NewString()
	key := id + ".pdf"

	// Phase one: persist the blob, bounded so upload can't hang.
	putCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	stored, err := s.store.Put(putCtx, key, bytes.NewReader(buf.Bytes()), read)
	if err != nil {
		return nil, &StorageError{Op: "store blob", Err: err}
	}

	// Phase two: commit the metadata record.
	doc := &database.Document{
		ID:        id,
		Title:     title,
		Path:      key,
		SizeBytes: stored,
		PostedAt:  now,
		ExpiresAt: expiry,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		// Compensating action: remove the orphaned blob.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Error("failed to delete orphaned blob after commit failure",
				"id", id, "key", key, "error", delErr)
		}
		return nil, &StorageError{Op: "commit record", Err: err}
	}

	slog.Info("document uploaded",
		"id", id,
		"title", title,
		"size", stored,
		"expires_at", expiry,
	)

	return s.view(ctx, doc, now), nil
}

// List returns all documents regardless of expiry, in insertion order,
// each annotated with whether it is currently published at now.
func (s *LifecycleService) List(ctx context.Context, now time.Time) ([]*DocumentView, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}

	views := make([]*DocumentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, s.view(ctx, doc, now))
	}
	return views, nil
}

// Delete removes a document from both stores. The record delete runs
// first: it is atomic, so of two concurrent deletes only the caller
// that removes the row goes on to delete the blob. A blob failure after
// the record is gone surfaces as PartialFailure so the caller can
// retry just that half.
func (s *LifecycleService) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrDocumentNotFound) {
			return ErrNotFound
		}
		return &StorageError{Op: "fetch record", Err: err}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrDocumentNotFound) {
			// Lost the race to a concurrent delete.
			return ErrNotFound
		}
		return &StorageError{Op: "delete record", Err: err}
	}

	if err := s.store.Delete(ctx, doc.Path); err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			// The blob was already gone: the desired end state holds,
			// but the record pointed at a missing blob.
			slog.Warn("blob missing during delete", "id", id, "key", doc.Path)
			return nil
		}
		return &PartialFailure{ID: id, Step: "blob", Err: err}
	}

	slog.Info("document deleted", "id", id, "title", doc.Title)
	return nil
}

// GetStats returns aggregate portal statistics.
func (s *LifecycleService) GetStats(ctx context.Context) (*database.Stats, error) {
	return s.repo.GetStats(ctx)
}

func (s *LifecycleService) view(ctx context.Context, doc *database.Document, now time.Time) *DocumentView {
	return &DocumentView{
		ID:        doc.ID,
		Title:     doc.Title,
		Path:      resolveURL(ctx, s.store, doc),
		Size:      doc.SizeBytes,
		PostedAt:  doc.PostedAt,
		ExpiresAt: doc.ExpiresAt,
		Published: IsPublished(now, doc),
	}
}

// resolveURL maps a record's blob key to a fetchable URL. A record whose
// blob cannot be resolved is logged and served with an empty path rather
// than dropped from the listing.
func resolveURL(ctx context.Context, store storage.Store, doc *database.Document) string {
	url, err := store.ResolveURL(ctx, doc.Path)
	if err != nil {
		slog.Warn("failed to resolve blob URL", "id", doc.ID, "key", doc.Path, "error", err)
		return ""
	}
	return url
}

// parseExpiry accepts a bare date or an RFC 3339 timestamp. A bare date
// means the document stays published through that day, so it maps to
// 23:59:59 UTC.
func parseExpiry(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable expiry %q: %w", raw, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC), nil
}

// isPDF checks the PDF magic bytes (%PDF-).
func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
