// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/cloudcompute/webclient/internal/storage"
)

// MockStorage implements storage.Store in memory and records preview revocations
type MockStorage struct {
	files    map[string]*models.StagedFile
	fileData map[string][]byte
	previews map[string]*models.Preview
	revoked  map[string]int // token -> number of successful revocations
	mu       sync.RWMutex
}

// NewMockStorage creates a new empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.StagedFile),
		fileData: make(map[string][]byte),
		previews: make(map[string]*models.Preview),
		revoked:  make(map[string]int),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.StagedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, data)
}

func (m *MockStorage) SaveBytes(name string, data []byte) (*models.StagedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := generateTestID()
	file := &models.StagedFile{
		ID:       id,
		Name:     name,
		Size:     int64(len(data)),
		StagedAt: time.Now(),
	}

	m.files[id] = file
	m.fileData[id] = data
	return file, nil
}

func (m *MockStorage) Get(id string) (*models.StagedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return file, nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return storage.ErrNotFound
	}

	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

func (m *MockStorage) CreatePreview(fileID string) (*models.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[fileID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	p := &models.Preview{
		Token:  "preview-" + generateTestID(),
		FileID: fileID,
		Name:   file.Name,
	}
	m.previews[p.Token] = p
	return p, nil
}

func (m *MockStorage) ResolvePreview(token string) (*models.Preview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.previews[token]
	if !ok {
		return nil, storage.ErrPreviewRevoked
	}
	return p, nil
}

func (m *MockStorage) RevokePreview(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.previews[token]; !ok {
		return storage.ErrPreviewRevoked
	}
	delete(m.previews, token)
	m.revoked[token]++
	return nil
}

func (m *MockStorage) LivePreviews() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.previews)
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// RevocationCount returns how many times a token was successfully revoked
func (m *MockStorage) RevocationCount(token string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revoked[token]
}

// RevokedTokens returns every token revoked so far
func (m *MockStorage) RevokedTokens() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := make([]string, 0, len(m.revoked))
	for token := range m.revoked {
		tokens = append(tokens, token)
	}
	return tokens
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// FailingStorage wraps MockStorage and fails Save with the given error
type FailingStorage struct {
	*MockStorage
	SaveErr error
}

// NewFailingStorage creates a storage whose Save always fails
func NewFailingStorage() *FailingStorage {
	return &FailingStorage{
		MockStorage: NewMockStorage(),
		SaveErr:     errors.New("disk full"),
	}
}

func (f *FailingStorage) Save(name string, r io.Reader) (*models.StagedFile, error) {
	return nil, f.SaveErr
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
