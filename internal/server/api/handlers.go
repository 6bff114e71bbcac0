package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"docport/internal/server/auth"
	"docport/internal/server/service"
	"docport/internal/server/storage"

	"github.com/labstack/echo/v4"
)

// HealthChecker reports backend connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the docport API.
type Handler struct {
	lifecycle *service.LifecycleService
	catalog   *service.CatalogService
	guard     *auth.Guard
	db        HealthChecker
	store     storage.Store

	// fsStore is set only for the filesystem backend, which serves
	// blob bytes from the /files/:key route itself.
	fsStore *storage.FileSystemStore
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(lifecycle *service.LifecycleService, catalog *service.CatalogService, guard *auth.Guard, db HealthChecker, store storage.Store, fsStore *storage.FileSystemStore) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		catalog:   catalog,
		guard:     guard,
		db:        db,
		store:     store,
		fsStore:   fsStore,
	}
}

// loginRequest is the POST /auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles POST /auth/login.
// Both a bad username and a bad password get the same response.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"message": "malformed login request",
		})
	}

	session, err := h.guard.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false,
				"message": "invalid username or password",
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"message": "login failed, try again",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"message":  "login successful",
		"token":    session.Token,
		"username": session.Subject,
	})
}

// HandleLogout handles POST /auth/logout. Requires a valid session;
// revokes the presented token.
func (h *Handler) HandleLogout(c echo.Context) error {
	token, _ := c.Get(ContextKeyToken).(string)
	h.guard.Logout(token)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "logged out",
	})
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with "file" (PDF), "title" and "expiresAt" fields.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
			"field": "file",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	title := c.FormValue("title")
	expiresAt := c.FormValue("expiresAt")

	doc, err := h.lifecycle.Upload(
		c.Request().Context(),
		title,
		expiresAt,
		src,
		fileHeader.Size,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, doc)
}

// HandleAdminList handles GET /api/admin/files.
// Returns all documents including expired ones, each annotated with
// its published state.
func (h *Handler) HandleAdminList(c echo.Context) error {
	docs, err := h.lifecycle.List(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, docs)
}

// HandlePublicList handles GET /api/files.
// Returns only currently published documents.
func (h *Handler) HandlePublicList(c echo.Context) error {
	docs, err := h.catalog.ListPublished(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, docs)
}

// HandleDelete handles DELETE /api/delete/:id.
// A partial failure (record gone, blob still present) is 207 so the
// caller knows which half to retry.
func (h *Handler) HandleDelete(c echo.Context) error {
	id := c.Param("id")

	if err := h.lifecycle.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "document deleted successfully",
	})
}

// HandleView handles GET /d/:id.
// Redirects to the blob URL for a published document.
func (h *Handler) HandleView(c echo.Context) error {
	id := c.Param("id")

	url, err := h.catalog.ViewURL(c.Request().Context(), id, time.Now().UTC())
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Redirect(http.StatusFound, url)
}

// HandleServeFile handles GET /files/:key for the filesystem backend.
func (h *Handler) HandleServeFile(c echo.Context) error {
	if h.fsStore == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	path, err := h.fsStore.LocalPath(c.Param("key"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	return c.File(path)
}

// HandleHealth handles GET /health.
// Reports database and blob store connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	status := "healthy"
	dbStatus := "connected"
	storeStatus := "connected"

	if err := h.db.HealthCheck(ctx); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
		"storage":  storeStatus,
	})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.lifecycle.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_documents":     stats.TotalDocuments,
		"published_documents": stats.PublishedDocuments,
		"storage_used_bytes":  stats.StorageUsed,
		"storage_used_human":  humanizeBytes(stats.StorageUsed),
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	var validationErr *service.ValidationError
	var partialErr *service.PartialFailure
	var storageErr *service.StorageError

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	case errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "document has expired"})
	case errors.As(err, &partialErr):
		return c.JSON(http.StatusMultiStatus, echo.Map{
			"error":       "delete partially failed",
			"failed_step": partialErr.Step,
			"id":          partialErr.ID,
		})
	case errors.As(err, &storageErr):
		// Full detail goes to the server log; the client gets a retry hint.
		slog.Error("storage failure", "op", storageErr.Op, "error", storageErr.Err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "storage failure, try again",
		})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
