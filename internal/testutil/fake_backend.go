// fake_backend.go - In-memory execution backend for page and handler tests
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/cloudcompute/webclient/internal/backend"
	"github.com/cloudcompute/webclient/internal/models"
)

// ProcessCall records one ProcessCode invocation
type ProcessCall struct {
	APIKey   string
	FileName string
	Code     string
}

// FakeBackend implements page.Backend without a network
type FakeBackend struct {
	mu            sync.Mutex
	processCalls  []ProcessCall
	registrations []models.RegistrationRequest

	result      *models.ExecutionResult
	processErr  error
	registerRes *models.RegistrationResponse
	registerErr error

	processGate  chan struct{}
	registerGate chan struct{}
	started      chan struct{}
}

// NewFakeBackend returns a backend that answers every submission with output "ok"
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		result:      &models.ExecutionResult{Output: "ok"},
		registerRes: &models.RegistrationResponse{Message: "User registered successfully"},
		started:     make(chan struct{}, 16),
	}
}

// RespondWith sets the submission outcome
func (f *FakeBackend) RespondWith(res *models.ExecutionResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.processErr = res, err
}

// RespondWithStatus makes submissions fail with the given HTTP status
func (f *FakeBackend) RespondWithStatus(code int, text string) {
	f.RespondWith(nil, &backend.StatusError{Code: code, StatusText: text})
}

// RegisterWith sets the registration outcome
func (f *FakeBackend) RegisterWith(res *models.RegistrationResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerRes, f.registerErr = res, err
}

// HoldSubmissions makes ProcessCode wait until the returned release func is called
func (f *FakeBackend) HoldSubmissions() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.processGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HoldRegistrations makes Register wait until the returned release func is called
func (f *FakeBackend) HoldRegistrations() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.registerGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Started receives a value each time ProcessCode is entered
func (f *FakeBackend) Started() <-chan struct{} {
	return f.started
}

func (f *FakeBackend) ProcessCode(ctx context.Context, apiKey, fileName string, code io.Reader) (*models.ExecutionResult, error) {
	data, err := io.ReadAll(code)
	if err != nil {
		return nil, &backend.TransportError{Err: err}
	}

	f.mu.Lock()
	f.processCalls = append(f.processCalls, ProcessCall{APIKey: apiKey, FileName: fileName, Code: string(data)})
	gate, res, resErr := f.processGate, f.result, f.processErr
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &backend.TransportError{Err: ctx.Err()}
		}
	}
	return res, resErr
}

func (f *FakeBackend) Register(ctx context.Context, req models.RegistrationRequest) (*models.RegistrationResponse, error) {
	f.mu.Lock()
	f.registrations = append(f.registrations, req)
	gate, res, err := f.registerGate, f.registerRes, f.registerErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &backend.TransportError{Err: ctx.Err()}
		}
	}
	return res, err
}

// ProcessCalls returns a copy of the recorded submissions
func (f *FakeBackend) ProcessCalls() []ProcessCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProcessCall(nil), f.processCalls...)
}

// Registrations returns a copy of the recorded registrations
func (f *FakeBackend) Registrations() []models.RegistrationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RegistrationRequest(nil), f.registrations...)
}
