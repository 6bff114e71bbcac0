package service

import (
	"time"

	"docport/internal/server/database"
)

// IsPublished reports whether a document is currently published.
// This is the single definition of "published": the public catalog,
// the admin list annotation, and the purge sweeper all go through it.
func IsPublished(now time.Time, doc *database.Document) bool {
	return !doc.ExpiresAt.Before(now)
}

// Published returns the subset of docs that are published at now,
// preserving order. Pure; no I/O.
func Published(now time.Time, docs []*database.Document) []*database.Document {
	var out []*database.Document
	for _, doc := range docs {
		if IsPublished(now, doc) {
			out = append(out, doc)
		}
	}
	return out
}
