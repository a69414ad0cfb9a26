// Package stage tracks the single file chosen on a page and its preview link.
package stage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/cloudcompute/webclient/internal/storage"
)

// ErrNoFile is returned by Open when nothing is staged.
var ErrNoFile = errors.New("no file staged")

// Stage holds at most one staged file and at most one live preview bound to it.
// It is not safe for concurrent use; the owning page controller serializes calls.
type Stage struct {
	store       storage.Store
	previewBase string
	logger      *slog.Logger

	file    *models.StagedFile
	preview *models.Preview
}

// New creates an empty stage. previewBase is prefixed to preview tokens to build links.
func New(store storage.Store, previewBase string, logger *slog.Logger) *Stage {
	return &Stage{
		store:       store,
		previewBase: previewBase,
		logger:      logger.With("component", "stage"),
	}
}

// Change handles the file-input change event. A nil reader means the input was emptied.
func (s *Stage) Change(name string, r io.Reader) error {
	if r == nil {
		return s.Clear()
	}
	return s.Select(name, r)
}

// Select releases the current file and preview, then stages the new file.
func (s *Stage) Select(name string, r io.Reader) error {
	if err := s.Clear(); err != nil {
		return err
	}

	info, err := s.store.Save(name, r)
	if err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}

	preview, err := s.store.CreatePreview(info.ID)
	if err != nil {
		s.store.Delete(info.ID)
		return fmt.Errorf("creating preview for %s: %w", name, err)
	}

	s.file = info
	s.preview = preview
	s.logger.Debug("file staged", "file", info.ID, "name", info.Name, "size", info.Size)
	return nil
}

// Clear revokes the preview and drops the staged file. Calling it with nothing staged is a no-op.
func (s *Stage) Clear() error {
	var errs []error

	if s.preview != nil {
		if err := s.store.RevokePreview(s.preview.Token); err != nil {
			errs = append(errs, fmt.Errorf("revoking preview: %w", err))
		}
		s.preview = nil
	}

	if s.file != nil {
		if err := s.store.Delete(s.file.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting staged file: %w", err))
		}
		s.logger.Debug("file cleared", "file", s.file.ID)
		s.file = nil
	}

	return errors.Join(errs...)
}

// Current returns the staged file or nil.
func (s *Stage) Current() *models.StagedFile {
	return s.file
}

// Open returns the staged bytes together with the uploaded file name.
func (s *Stage) Open() (io.ReadCloser, string, error) {
	if s.file == nil {
		return nil, "", ErrNoFile
	}
	rc, err := s.store.Open(s.file.ID)
	if err != nil {
		return nil, "", err
	}
	return rc, s.file.Name, nil
}

// Panel renders the file-info block.
func (s *Stage) Panel() models.FileInfoPanel {
	if s.file == nil || s.preview == nil {
		return models.FileInfoPanel{Href: "#"}
	}
	return models.FileInfoPanel{
		Visible:  true,
		FileName: s.file.Name,
		Href:     s.previewBase + s.preview.Token,
		Download: s.file.Name,
	}
}
