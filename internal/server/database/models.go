package database

import "time"

// Document represents one published file's metadata record.
// Path is the blob store key; it never changes after creation.
type Document struct {
	ID        string
	Title     string
	Path      string
	SizeBytes int64
	PostedAt  time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Stats holds aggregate portal statistics.
type Stats struct {
	TotalDocuments     int64
	PublishedDocuments int64
	StorageUsed        int64
}
