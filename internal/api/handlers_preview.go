// handlers_preview.go - Download of staged files behind preview tokens
package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/cloudcompute/webclient/internal/storage"
	"github.com/labstack/echo/v4"
)

// PreviewHandlerImpl implements the PreviewHandler interface
type PreviewHandlerImpl struct {
	store storage.Store
}

// NewPreviewHandler creates a new preview handler
func NewPreviewHandler(store storage.Store) PreviewHandler {
	return &PreviewHandlerImpl{store: store}
}

// HandlePreview streams the staged file of a live preview token
func (h *PreviewHandlerImpl) HandlePreview(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return NewValidationError("token")
	}

	p, err := h.store.ResolvePreview(token)
	if err != nil {
		if errors.Is(err, storage.ErrPreviewRevoked) {
			return NewNotFoundError("preview", token)
		}
		return NewInternalError("failed to resolve preview", err)
	}

	rc, err := h.store.Open(p.FileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("file", p.FileID)
		}
		return NewInternalError("failed to open staged file", err)
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": p.Name})
	if disposition == "" {
		disposition = fmt.Sprintf("attachment; filename=%q", "download")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}
