package service

import (
	"context"
	"errors"
	"time"

	"docport/internal/server/database"
	"docport/internal/server/storage"
)

// CatalogService is the public, read-only projection over the document
// records. It exposes no mutation and never returns expired documents.
type CatalogService struct {
	repo  RecordStore
	store storage.Store
}

// NewCatalogService creates a new public catalog service.
func NewCatalogService(repo RecordStore, store storage.Store) *CatalogService {
	return &CatalogService{repo: repo, store: store}
}

// ListPublished returns the documents published at now, in insertion order.
func (s *CatalogService) ListPublished(ctx context.Context, now time.Time) ([]*DocumentView, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}

	published := Published(now, docs)
	views := make([]*DocumentView, 0, len(published))
	for _, doc := range published {
		views = append(views, &DocumentView{
			ID:        doc.ID,
			Title:     doc.Title,
			Path:      resolveURL(ctx, s.store, doc),
			Size:      doc.SizeBytes,
			PostedAt:  doc.PostedAt,
			ExpiresAt: doc.ExpiresAt,
			Published: true,
		})
	}
	return views, nil
}

// ViewURL resolves the blob URL for a single document. Expired documents
// report ErrExpired rather than leaking a fetchable URL.
func (s *CatalogService) ViewURL(ctx context.Context, id string, now time.Time) (string, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrDocumentNotFound) {
			return "", ErrNotFound
		}
		return "", &StorageError{Op: "fetch record", Err: err}
	}

	if !IsPublished(now, doc) {
		return "", ErrExpired
	}

	url, err := s.store.ResolveURL(ctx, doc.Path)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return "", ErrNotFound
		}
		return "", &StorageError{Op: "resolve blob", Err: err}
	}
	return url, nil
}
