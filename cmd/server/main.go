package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudcompute/webclient/internal/api"
	"github.com/cloudcompute/webclient/internal/backend"
	"github.com/cloudcompute/webclient/internal/config"
	"github.com/cloudcompute/webclient/internal/logging"
	"github.com/cloudcompute/webclient/internal/page"
	"github.com/cloudcompute/webclient/internal/session"
	"github.com/cloudcompute/webclient/internal/storage"
	"github.com/cloudcompute/webclient/internal/web"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	configPath, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Advanced.LogLevel)

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	// Check if running in embedded mode (page built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetStagingDir())
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	client := backend.New(backend.Options{
		ProcessURL:  cfg.GetProcessURL(),
		RegisterURL: cfg.GetRegisterURL(),
		Timeout:     cfg.GetRequestTimeout(),
	}, logger)

	// Initialize session manager
	sessionMgr := session.NewManager(func(id string) *page.Controller {
		return page.New(page.Options{
			ID:          id,
			Store:       fileStore,
			Backend:     client,
			PreviewBase: api.PreviewPath,
			Logger:      logger,
		})
	}, cfg.Session.MaxSessions, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Session.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessionMgr.CleanupOldSessions(cfg.GetIdleTimeout()); n > 0 {
					logger.Info("idle sessions closed", "count", n, "active", sessionMgr.Count())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, cfg, logger.With("component", "http"), embeddedMode)

	handlers := api.NewHandlers(&api.Dependencies{
		Store:            fileStore,
		Sessions:         sessionMgr,
		Version:          Version,
		Logger:           logger,
		WSMaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
	})
	api.RegisterRoutes(e, handlers)

	// Register embedded page if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", "error", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg, embeddedMode)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	sessionMgr.CloseAll()
}

// resolveConfigPath returns WEBCLIENT_CONFIG or the config file next to the executable
func resolveConfigPath() (string, error) {
	if p := os.Getenv("WEBCLIENT_CONFIG"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), "webclient.config"), nil
}

func printBanner(configPath string, cfg *config.AppConfig, embeddedMode bool) {
	mode := "API only"
	if embeddedMode {
		mode = "Embedded page"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Cloud Compute Web Client                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Staging:   %-46s║\n", cfg.GetStagingDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
