// handlers_session.go - Page session lifetime and state snapshot handlers
package api

import (
	"errors"
	"net/http"

	"github.com/cloudcompute/webclient/internal/page"
	"github.com/cloudcompute/webclient/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// SessionHeader carries the page session id for API clients
	SessionHeader = "X-Session-ID"
	// SessionCookie carries the page session id for the browser
	SessionCookie = "session_id"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionManager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// sessionID reads the session id from the header, falling back to the cookie
func sessionID(c echo.Context) string {
	if id := c.Request().Header.Get(SessionHeader); id != "" {
		return id
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// pageFor resolves the page controller of the calling session
func pageFor(c echo.Context, sessions SessionManager) (*page.Controller, error) {
	id := sessionID(c)
	if id == "" {
		return nil, NewValidationError(SessionHeader)
	}
	p, ok := sessions.Get(id)
	if !ok {
		return nil, NewSessionNotFoundError(id)
	}
	return p, nil
}

// pageError maps controller errors to API errors
func pageError(c echo.Context, err error) error {
	if errors.Is(err, page.ErrClosed) {
		return NewSessionNotFoundError(sessionID(c))
	}
	return NewInternalError("page operation failed", err)
}

// HandleOpenSession creates a page session and returns its initial state
func (h *SessionHandlerImpl) HandleOpenSession(c echo.Context) error {
	p, err := h.sessions.Open()
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			return NewServiceUnavailableError("too many open sessions, try again later")
		}
		return NewInternalError("failed to open session", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    p.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return c.JSON(http.StatusCreated, p.State())
}

// HandleCloseSession tears down the calling session
func (h *SessionHandlerImpl) HandleCloseSession(c echo.Context) error {
	id := sessionID(c)
	if id == "" {
		return NewValidationError(SessionHeader)
	}
	if err := h.sessions.Close(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return NewSessionNotFoundError(id)
		}
		return NewInternalError("failed to close session", err)
	}

	c.SetCookie(&http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive extends session lifetime for an open page
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := sessionID(c)
	if id == "" {
		return NewValidationError(SessionHeader)
	}

	if ok := h.sessions.TouchSession(id); !ok {
		return NewSessionNotFoundError(id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleGetState returns the page state as JSON
func (h *SessionHandlerImpl) HandleGetState(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p.State())
}

// HandleGetStateMsgpack returns the page state as msgpack
func (h *SessionHandlerImpl) HandleGetStateMsgpack(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(p.State())
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}
