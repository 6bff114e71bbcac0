package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"docport/internal/server/auth"
	"docport/internal/server/config"
	"docport/internal/server/database"
	"docport/internal/server/service"
	"docport/internal/server/storage"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

var validPDF = []byte("%PDF-1.7\nminimal\n%%EOF\n")

// fakeRecords is a minimal in-memory RecordStore.
type fakeRecords struct {
	mu    sync.Mutex
	docs  map[string]*database.Document
	order []string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{docs: make(map[string]*database.Document)}
}

func (f *fakeRecords) Create(ctx context.Context, doc *database.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.docs[doc.ID] = &cp
	f.order = append(f.order, doc.ID)
	return nil
}

func (f *fakeRecords) GetByID(ctx context.Context, id string) (*database.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, database.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeRecords) List(ctx context.Context) ([]*database.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.Document
	for _, id := range f.order {
		if doc, ok := f.docs[id]; ok {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRecords) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return database.ErrDocumentNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeRecords) GetStats(ctx context.Context) (*database.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &database.Stats{TotalDocuments: int64(len(f.docs))}, nil
}

func (f *fakeRecords) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// fakeBlobs is a minimal in-memory blob store.
type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	n, err := io.Copy(&buf, data)
	if err != nil {
		return 0, err
	}
	f.blobs[key] = buf.Bytes()
	return n, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; !ok {
		return storage.ErrBlobNotFound
	}
	delete(f.blobs, key)
	return nil
}

func (f *fakeBlobs) ResolveURL(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; !ok {
		return "", storage.ErrBlobNotFound
	}
	return "http://blobs.test/" + key, nil
}

func (f *fakeBlobs) Ping(ctx context.Context) error { return nil }

type fakeDB struct{ err error }

func (f *fakeDB) HealthCheck(ctx context.Context) error { return f.err }

// testServer wires a router on top of in-memory stores.
type testServer struct {
	e     *echo.Echo
	repo  *fakeRecords
	blobs *fakeBlobs
	guard *auth.Guard
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test password: %v", err)
	}

	cfg := &config.Config{
		MaxFileSize:    1 << 20,
		StorageTimeout: 5 * time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}

	repo := newFakeRecords()
	blobs := newFakeBlobs()
	guard := auth.NewGuard("admin", string(hash), 0)
	lifecycle := service.NewLifecycleService(repo, blobs, cfg)
	catalog := service.NewCatalogService(repo, blobs)

	handler := NewHandler(lifecycle, catalog, guard, &fakeDB{}, blobs, nil)
	e := SetupRouter(handler, guard, cfg)

	return &testServer{e: e, repo: repo, blobs: blobs, guard: guard}
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	session, err := ts.guard.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return session.Token
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, title, expiresAt string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "document.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	writer.WriteField("title", title)
	writer.WriteField("expiresAt", expiresAt)
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("valid credentials return a token", func(t *testing.T) {
		ts := newTestServer(t)

		body := strings.NewReader(`{"username":"admin","password":"s3cret"}`)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

		rec := ts.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Success  bool   `json:"success"`
			Token    string `json:"token"`
			Username string `json:"username"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !resp.Success || resp.Token == "" || resp.Username != "admin" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("bad credentials get a generic 401", func(t *testing.T) {
		ts := newTestServer(t)

		for _, body := range []string{
			`{"username":"admin","password":"wrong"}`,
			`{"username":"intruder","password":"s3cret"}`,
		} {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

			rec := ts.do(req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if strings.Contains(rec.Body.String(), "token") && !strings.Contains(rec.Body.String(), `"token":""`) {
				t.Errorf("401 body must not carry a token: %s", rec.Body.String())
			}
		}
	})
}

func TestUnauthorizedAccess(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, "Doc", "2099-01-01", validPDF)

	requests := []struct {
		name string
		req  *http.Request
	}{
		{"upload without token", httptest.NewRequest(http.MethodPost, "/api/upload", body)},
		{"admin list without token", httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)},
		{"delete without token", httptest.NewRequest(http.MethodDelete, "/api/delete/some-id", nil)},
		{"stats without token", httptest.NewRequest(http.MethodGet, "/api/stats", nil)},
	}
	requests[0].req.Header.Set(echo.HeaderContentType, contentType)

	for _, tt := range requests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}

	t.Run("garbage bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
		req.Header.Set("Authorization", "Bearer not-a-real-token")
		rec := ts.do(req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	if ts.repo.size() != 0 {
		t.Error("unauthorized requests must not touch the store")
	}
}

func TestUploadEndpoint(t *testing.T) {
	t.Run("authorized upload creates a document", func(t *testing.T) {
		ts := newTestServer(t)
		token := ts.login(t)

		body, contentType := multipartUpload(t, "Policy Doc", "2099-01-01", validPDF)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		req.Header.Set("Authorization", "Bearer "+token)

		rec := ts.do(req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var doc service.DocumentView
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if doc.ID == "" || doc.Title != "Policy Doc" || !doc.Published {
			t.Errorf("unexpected document: %+v", doc)
		}
		if ts.repo.size() != 1 {
			t.Error("expected one record committed")
		}
	})

	t.Run("non-PDF upload is 400 with field detail", func(t *testing.T) {
		ts := newTestServer(t)
		token := ts.login(t)

		body, contentType := multipartUpload(t, "Doc", "2099-01-01", []byte("just text"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		req.Header.Set("Authorization", "Bearer "+token)

		rec := ts.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"field":"file"`) {
			t.Errorf("expected field detail in body: %s", rec.Body.String())
		}
		if ts.repo.size() != 0 {
			t.Error("rejected upload must not commit a record")
		}
	})

	t.Run("missing file part is 400", func(t *testing.T) {
		ts := newTestServer(t)
		token := ts.login(t)

		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		writer.WriteField("title", "Doc")
		writer.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
		req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)

		rec := ts.do(req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestListAndDeleteFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	// Upload one document.
	body, contentType := multipartUpload(t, "Policy Doc", "2099-01-01", validPDF)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := ts.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}
	var doc service.DocumentView
	json.Unmarshal(rec.Body.Bytes(), &doc)

	t.Run("public list shows the published document", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var docs []service.DocumentView
		json.Unmarshal(rec.Body.Bytes(), &docs)
		if len(docs) != 1 || docs[0].ID != doc.ID {
			t.Errorf("expected uploaded doc in public list, got %+v", docs)
		}
	})

	t.Run("admin list shows the document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := ts.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var docs []service.DocumentView
		json.Unmarshal(rec.Body.Bytes(), &docs)
		if len(docs) != 1 {
			t.Fatalf("expected 1 doc, got %d", len(docs))
		}
	})

	t.Run("view redirects to the blob URL", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/d/"+doc.ID, nil))
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "http://blobs.test/") {
			t.Errorf("unexpected redirect target %q", loc)
		}
	})

	t.Run("delete removes the document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/delete/"+doc.ID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := ts.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ts.repo.size() != 0 {
			t.Error("expected record removed")
		}
	})

	t.Run("repeat delete is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/delete/"+doc.ID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := ts.do(req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("view of deleted document is 404", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/d/"+doc.ID, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestExpiredDocumentVisibility(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	// Seed a record whose expiry already passed.
	past := time.Now().UTC().Add(-time.Hour)
	ts.blobs.Put(context.Background(), "old.pdf", bytes.NewReader(validPDF), int64(len(validPDF)))
	ts.repo.Create(context.Background(), &database.Document{
		ID:        "old",
		Title:     "Old Doc",
		Path:      "old.pdf",
		PostedAt:  past.Add(-24 * time.Hour),
		ExpiresAt: past,
		CreatedAt: past.Add(-24 * time.Hour),
	})

	t.Run("public list excludes it", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
		var docs []service.DocumentView
		json.Unmarshal(rec.Body.Bytes(), &docs)
		if len(docs) != 0 {
			t.Errorf("expired doc leaked into public list: %+v", docs)
		}
	})

	t.Run("admin list includes it unpublished", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := ts.do(req)
		var docs []service.DocumentView
		json.Unmarshal(rec.Body.Bytes(), &docs)
		if len(docs) != 1 {
			t.Fatalf("expected 1 doc in admin list, got %d", len(docs))
		}
		if docs[0].Published {
			t.Error("expected published=false annotation")
		}
	})

	t.Run("view is 410", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/d/old", nil))
		if rec.Code != http.StatusGone {
			t.Errorf("expected 410, got %d", rec.Code)
		}
	})
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// The token is now revoked.
	req = httptest.NewRequest(http.MethodGet, "/api/admin/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = ts.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}
