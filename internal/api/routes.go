// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudcompute/webclient/internal/config"
	"github.com/cloudcompute/webclient/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store            storage.Store
	Sessions         SessionManager
	Version          string
	Logger           *slog.Logger
	WSMaxMessageSize int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Session SessionHandler
	Page    PageHandler
	Preview PreviewHandler
	Events  EventHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Sessions),
		Session: NewSessionHandler(deps.Sessions),
		Page:    NewPageHandler(deps.Sessions),
		Preview: NewPreviewHandler(deps.Store),
		Events:  NewEventHandler(deps.Sessions, deps.WSMaxMessageSize, deps.Logger),
	}
}

// PreviewPath is the prefix of preview download links
const PreviewPath = "/api/preview/"

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Session lifetime and state
	apiGroup.POST("/session", handlers.Session.HandleOpenSession)
	apiGroup.DELETE("/session", handlers.Session.HandleCloseSession)
	apiGroup.POST("/session/keepalive", handlers.Session.HandleSessionKeepAlive)
	apiGroup.GET("/state", handlers.Session.HandleGetState)
	apiGroup.GET("/state/msgpack", handlers.Session.HandleGetStateMsgpack)

	// API key field
	apiGroup.PUT("/apikey", handlers.Page.HandleSetAPIKey)
	apiGroup.POST("/apikey/toggle", handlers.Page.HandleToggleAPIKey)

	// File selection and preview
	apiGroup.POST("/file", handlers.Page.HandleChangeFile)
	apiGroup.DELETE("/file", handlers.Page.HandleDeleteFile)
	apiGroup.GET("/preview/:token", handlers.Preview.HandlePreview)

	// Submission
	apiGroup.POST("/submit", handlers.Page.HandleSubmit)
	apiGroup.DELETE("/submit", handlers.Page.HandleCancelSubmit)

	// Registration dialog
	apiGroup.POST("/register/open", handlers.Page.HandleOpenRegistration)
	apiGroup.POST("/register/close", handlers.Page.HandleCloseRegistration)
	apiGroup.POST("/register", handlers.Page.HandleRegister)
	apiGroup.POST("/alerts/ack", handlers.Page.HandleAckAlert)

	// WebSocket event feed
	apiGroup.GET("/ws", handlers.Events.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, logger *slog.Logger, embeddedMode bool) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
	ShowErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasSuffix(path, "/keepalive")
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.Round(time.Microsecond)}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	if cfg.Server.ReadTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
			Skipper: func(c echo.Context) bool {
				// submissions last as long as the backend takes
				path := c.Request().URL.Path
				return path == "/api/submit" ||
					path == "/api/ws" ||
					strings.HasPrefix(path, PreviewPath)
			},
			ErrorMessage: "Request timeout",
		}))
	}

	// Compression middleware
	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == "/api/ws"
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := []string{"*"}
		if embeddedMode {
			origins = splitOrigins(cfg.Server.AllowOrigins)
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, SessionHeader},
			AllowCredentials: !(len(origins) == 1 && origins[0] == "*"),
		}))
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
