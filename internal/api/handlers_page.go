// handlers_page.go - Handlers for the user actions of a page
package api

import (
	"errors"
	"net/http"

	"github.com/cloudcompute/webclient/internal/submission"
	"github.com/labstack/echo/v4"
)

// PageHandlerImpl implements the PageHandler interface
type PageHandlerImpl struct {
	sessions SessionManager
}

// NewPageHandler creates a new page handler
func NewPageHandler(sessions SessionManager) PageHandler {
	return &PageHandlerImpl{sessions: sessions}
}

type setAPIKeyRequest struct {
	Value string `json:"value"`
}

// submitRequest optionally carries the API key field as it was at click
// time, so a key write still in flight cannot race the submission.
type submitRequest struct {
	APIKey *string `json:"apiKey"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type registerResponse struct {
	APIKey    string `json:"apiKey,omitempty"`
	Generated bool   `json:"generated"`
}

// HandleSetAPIKey stores the API key field value
func (h *PageHandlerImpl) HandleSetAPIKey(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	var req setAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := p.SetAPIKey(req.Value); err != nil {
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, p.State().APIKey)
}

// HandleToggleAPIKey flips the API key field between masked and plain text
func (h *PageHandlerImpl) HandleToggleAPIKey(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	field, err := p.ToggleAPIKeyVisibility()
	if err != nil {
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, field)
}

// HandleChangeFile stages the uploaded "file" part; a request without one clears the selection
func (h *PageHandlerImpl) HandleChangeFile(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			return NewBadRequestError("invalid multipart body", err)
		}
		if err := p.ChangeFile("", nil); err != nil {
			return pageError(c, err)
		}
		return c.JSON(http.StatusOK, p.State().FileInfo)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	if err := p.ChangeFile(file.Filename, src); err != nil {
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, p.State().FileInfo)
}

// HandleDeleteFile clears the selected file and its preview
func (h *PageHandlerImpl) HandleDeleteFile(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}
	if err := p.DeleteFile(); err != nil {
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, p.State().FileInfo)
}

// HandleSubmit runs the submission flow and returns the result area
func (h *PageHandlerImpl) HandleSubmit(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.APIKey != nil {
		if err := p.SetAPIKey(*req.APIKey); err != nil {
			return pageError(c, err)
		}
	}

	view, err := p.Submit()
	if err != nil {
		if errors.Is(err, submission.ErrInFlight) {
			return NewConflictError(submission.MsgInFlight)
		}
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandleCancelSubmit aborts the outstanding submission
func (h *PageHandlerImpl) HandleCancelSubmit(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}
	if !p.CancelSubmission() {
		return NewConflictError("no submission in flight")
	}
	return c.JSON(http.StatusOK, p.State().Result)
}

// HandleOpenRegistration shows the registration dialog
func (h *PageHandlerImpl) HandleOpenRegistration(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}
	if err := p.OpenRegistration(); err != nil {
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, p.State().Registration)
}

// HandleCloseRegistration hides and resets the registration dialog
func (h *PageHandlerImpl) HandleCloseRegistration(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}
	if err := p.CloseRegistration(); err != nil {
		return pageError(c, err)
	}
	return c.JSON(http.StatusOK, p.State().Registration)
}

// HandleRegister submits the registration form. The backend call runs in the
// background; its outcome reaches the page as an alert or a replaced key.
func (h *PageHandlerImpl) HandleRegister(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	key, ok, err := p.SubmitRegistration(req.Username, req.Email)
	if err != nil {
		return pageError(c, err)
	}
	status := http.StatusOK
	if ok {
		status = http.StatusAccepted
	}
	return c.JSON(status, registerResponse{APIKey: key, Generated: ok})
}

// HandleAckAlert dismisses the oldest pending alert
func (h *PageHandlerImpl) HandleAckAlert(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}
	if !p.AckAlert() {
		return NewNotFoundError("alert", "pending")
	}
	return c.NoContent(http.StatusNoContent)
}
