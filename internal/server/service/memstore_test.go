package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"docport/internal/server/database"
	"docport/internal/server/storage"
)

// memRecords is an in-memory RecordStore with the same delete-if-exists
// atomicity as the Postgres repository.
type memRecords struct {
	mu        sync.Mutex
	docs      map[string]*database.Document
	order     []string
	createErr error
}

func newMemRecords() *memRecords {
	return &memRecords{docs: make(map[string]*database.Document)}
}

func (m *memRecords) Create(ctx context.Context, doc *database.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	m.order = append(m.order, doc.ID)
	return nil
}

func (m *memRecords) GetByID(ctx context.Context, id string) (*database.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, database.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memRecords) List(ctx context.Context) ([]*database.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.Document
	for _, id := range m.order {
		if doc, ok := m.docs[id]; ok {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRecords) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return database.ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memRecords) GetStats(ctx context.Context) (*database.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &database.Stats{}
	now := time.Now().UTC()
	for _, doc := range m.docs {
		stats.TotalDocuments++
		stats.StorageUsed += doc.SizeBytes
		if IsPublished(now, doc) {
			stats.PublishedDocuments++
		}
	}
	return stats, nil
}

// memBlobs is an in-memory blob Store that counts calls so tests can
// assert no writes happened or that a blob was deleted exactly once.
type memBlobs struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	putCalls    int
	deleteCalls int
	putErr      error
	deleteErr   error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (m *memBlobs) Put(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return 0, m.putErr
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, data)
	if err != nil {
		return 0, err
	}
	m.blobs[key] = buf.Bytes()
	return n, nil
}

func (m *memBlobs) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.blobs[key]; !ok {
		return storage.ErrBlobNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *memBlobs) ResolveURL(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return "", storage.ErrBlobNotFound
	}
	return "http://blobs.test/" + key, nil
}

func (m *memBlobs) Ping(ctx context.Context) error {
	return nil
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
