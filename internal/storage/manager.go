package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown file ids.
	ErrNotFound = errors.New("file not found")
	// ErrPreviewRevoked is returned for unknown or already revoked preview tokens.
	ErrPreviewRevoked = errors.New("preview revoked")
)

// Store defines the interface for staged file storage.
type Store interface {
	Save(name string, r io.Reader) (*models.StagedFile, error)
	Get(id string) (*models.StagedFile, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
	CreatePreview(fileID string) (*models.Preview, error)
	ResolvePreview(token string) (*models.Preview, error)
	RevokePreview(token string) error
	LivePreviews() int
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu         sync.RWMutex
	stagingDir string
	files      map[string]*models.StagedFile
	previews   map[string]*models.Preview
	live       mapset.Set[string]
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(stagingDir string) (*LocalStore, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &LocalStore{
		stagingDir: stagingDir,
		files:      make(map[string]*models.StagedFile),
		previews:   make(map[string]*models.Preview),
		live:       mapset.NewSet[string](),
	}, nil
}

// Save writes a file to the staging directory.
func (s *LocalStore) Save(name string, r io.Reader) (*models.StagedFile, error) {
	id := uuid.New().String()
	path := filepath.Join(s.stagingDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.StagedFile{
		ID:       id,
		Name:     name,
		Size:     size,
		StagedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.StagedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return info, nil
}

// Open returns a reader over the staged bytes.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := os.Open(filepath.Join(s.stagingDir, id))
	if err != nil {
		return nil, fmt.Errorf("opening staged file: %w", err)
	}
	return f, nil
}

// Delete removes a staged file. Previews of the file must be revoked first.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.stagingDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// CreatePreview issues a new download token for a staged file.
func (s *LocalStore) CreatePreview(fileID string) (*models.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	p := &models.Preview{
		Token:  uuid.New().String(),
		FileID: fileID,
		Name:   info.Name,
	}
	s.previews[p.Token] = p
	s.live.Add(p.Token)

	return p, nil
}

// ResolvePreview returns the preview for a live token.
func (s *LocalStore) ResolvePreview(token string) (*models.Preview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live.Contains(token) {
		return nil, ErrPreviewRevoked
	}
	return s.previews[token], nil
}

// RevokePreview invalidates a token. Revoking twice is an error.
func (s *LocalStore) RevokePreview(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live.Contains(token) {
		return ErrPreviewRevoked
	}
	s.live.Remove(token)
	delete(s.previews, token)
	return nil
}

// LivePreviews returns the number of unrevoked tokens.
func (s *LocalStore) LivePreviews() int {
	return s.live.Cardinality()
}
