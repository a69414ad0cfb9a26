// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/cloudcompute/webclient/internal/page"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles page session lifetime and state snapshots
type SessionHandler interface {
	HandleOpenSession(c echo.Context) error
	HandleCloseSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleGetState(c echo.Context) error
	HandleGetStateMsgpack(c echo.Context) error
}

// PageHandler handles the user actions of a page
type PageHandler interface {
	HandleSetAPIKey(c echo.Context) error
	HandleToggleAPIKey(c echo.Context) error
	HandleChangeFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleCancelSubmit(c echo.Context) error
	HandleOpenRegistration(c echo.Context) error
	HandleCloseRegistration(c echo.Context) error
	HandleRegister(c echo.Context) error
	HandleAckAlert(c echo.Context) error
}

// PreviewHandler serves staged files behind preview tokens
type PreviewHandler interface {
	HandlePreview(c echo.Context) error
}

// EventHandler streams page state over a websocket
type EventHandler interface {
	HandleWebSocket(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Open() (*page.Controller, error)
	Get(id string) (*page.Controller, bool)
	TouchSession(id string) bool
	Close(id string) error
	Count() int
}
