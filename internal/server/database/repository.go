package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
)

// Repository provides CRUD operations for document records.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new document record.
func (r *Repository) Create(ctx context.Context, doc *Document) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO documents (
			id, title, path, size_bytes, posted_at, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		doc.ID,
		doc.Title,
		doc.Path,
		doc.SizeBytes,
		doc.PostedAt,
		doc.ExpiresAt,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, title, path, size_bytes, posted_at, expires_at, created_at
		FROM documents WHERE id = $1
	`, id).Scan(
		&doc.ID,
		&doc.Title,
		&doc.Path,
		&doc.SizeBytes,
		&doc.PostedAt,
		&doc.ExpiresAt,
		&doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns all document records in insertion order, regardless of expiry.
func (r *Repository) List(ctx context.Context) ([]*Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, path, size_bytes, posted_at, expires_at, created_at
		FROM documents ORDER BY posted_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// Delete removes a document record by ID. Postgres DELETE is atomic, so
// of two concurrent calls only one observes an affected row; the other
// gets ErrDocumentNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// GetStats returns aggregate portal statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expires_at >= NOW()),
			COALESCE(SUM(size_bytes), 0)
		FROM documents
	`).Scan(
		&stats.TotalDocuments,
		&stats.PublishedDocuments,
		&stats.StorageUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(
			&doc.ID,
			&doc.Title,
			&doc.Path,
			&doc.SizeBytes,
			&doc.PostedAt,
			&doc.ExpiresAt,
			&doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
