package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docport/internal/server/api"
	"docport/internal/server/auth"
	"docport/internal/server/config"
	"docport/internal/server/database"
	"docport/internal/server/service"
	"docport/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"max_file_size", cfg.MaxFileSize,
		"purge_after", cfg.PurgeAfter,
	)

	if cfg.AdminPasswordHash == "" {
		slog.Warn("ADMIN_PASSWORD_HASH is not set; all admin logins will be rejected")
	}

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize blob storage
	var store storage.Store
	var fsStore *storage.FileSystemStore
	switch cfg.StorageBackend {
	case "minio":
		store, err = storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			URLExpiry: cfg.MinIOURLExpiry,
		})
		if err != nil {
			slog.Error("failed to initialize minio storage", "error", err)
			os.Exit(1)
		}
		slog.Info("minio storage initialized", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
	case "filesystem":
		fsStore = storage.NewFileSystemStore(cfg.StoragePath, cfg.BaseURL)
		if err := fsStore.EnsureDir(); err != nil {
			slog.Error("failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store = fsStore
		slog.Info("file storage initialized", "path", cfg.StoragePath)
	default:
		slog.Error("unknown storage backend", "backend", cfg.StorageBackend)
		os.Exit(1)
	}

	// Initialize repository, services, and session guard
	repo := database.NewRepository(db)
	lifecycle := service.NewLifecycleService(repo, store, cfg)
	catalog := service.NewCatalogService(repo, store)
	guard := auth.NewGuard(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.SessionTTL)

	// Start purge sweeper if enabled
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	var purge *service.PurgeService
	if cfg.PurgeAfter > 0 {
		purge = service.NewPurgeService(repo, store, cfg.PurgeAfter, cfg.PurgeInterval)
		purge.Start(purgeCtx)
	}

	// Setup HTTP router
	handler := api.NewHandler(lifecycle, catalog, guard, db, store, fsStore)
	e := api.SetupRouter(handler, guard, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop purge sweeper
	purgeCancel()
	if purge != nil {
		purge.Wait()
	}

	slog.Info("server exited cleanly")
}
