package api

import (
	"docport/internal/server/auth"
	"docport/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, guard *auth.Guard, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	requireSession := RequireSession(guard)
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Auth
	e.POST("/auth/login", handler.HandleLogin)
	e.POST("/auth/logout", handler.HandleLogout, requireSession)

	// Public catalog
	e.GET("/api/files", handler.HandlePublicList)
	e.GET("/d/:id", handler.HandleView)
	e.GET("/files/:key", handler.HandleServeFile)

	// Admin lifecycle (session-gated)
	e.POST("/api/upload", handler.HandleUpload, requireSession, uploadLimiter.Middleware())
	e.GET("/api/admin/files", handler.HandleAdminList, requireSession)
	e.DELETE("/api/delete/:id", handler.HandleDelete, requireSession)
	e.GET("/api/stats", handler.HandleStats, requireSession)

	// Health
	e.GET("/health", handler.HandleHealth)

	return e
}
