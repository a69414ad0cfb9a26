// Package registration implements the registration dialog and its best-effort backend call.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/cloudcompute/webclient/internal/backend"
	"github.com/cloudcompute/webclient/internal/models"
)

// KeyPrefix starts every locally generated key.
const KeyPrefix = "api_"

// Registrar posts a registration to the backend.
type Registrar interface {
	Register(ctx context.Context, req models.RegistrationRequest) (*models.RegistrationResponse, error)
}

// GenerateKey returns a placeholder key of the form api_<base36>. It is not a secret.
func GenerateKey() string {
	return KeyPrefix + strconv.FormatUint(rand.Uint64(), 36)
}

// Modal is the state of the registration dialog. It is not safe for concurrent use.
type Modal struct {
	open         bool
	username     string
	email        string
	generatedKey string
}

// Open shows the dialog.
func (m *Modal) Open() {
	m.open = true
}

// Close hides the dialog and resets its form and the generated key display.
func (m *Modal) Close() {
	*m = Modal{}
}

// Submit records the form values. With both fields non-empty after trimming it
// generates and displays a new key and returns the request to send; otherwise it
// does nothing and ok is false.
func (m *Modal) Submit(username, email string) (req models.RegistrationRequest, ok bool) {
	m.username = username
	m.email = email

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return models.RegistrationRequest{}, false
	}

	m.generatedKey = GenerateKey()
	return models.RegistrationRequest{
		Username: username,
		Email:    email,
		APIKey:   m.generatedKey,
	}, true
}

// ReplaceKey swaps the displayed key if it still shows old.
func (m *Modal) ReplaceKey(old, issued string) bool {
	if m.generatedKey != old {
		return false
	}
	m.generatedKey = issued
	return true
}

// State renders the dialog.
func (m *Modal) State() models.RegistrationModal {
	return models.RegistrationModal{
		Open:         m.open,
		Username:     m.username,
		Email:        m.email,
		GeneratedKey: m.generatedKey,
	}
}

// Outcome is what the page does once the registration call settles.
type Outcome struct {
	// Alert is shown as a blocking alert when non-empty.
	Alert string
	// IssuedKey is a backend-issued key that supersedes the placeholder.
	IssuedKey string
}

// Send performs the best-effort registration call. Only an error field in the
// response reaches the user; every other failure is logged.
func Send(ctx context.Context, r Registrar, req models.RegistrationRequest, logger *slog.Logger) Outcome {
	resp, err := r.Register(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Outcome{}
		}
		var statusErr *backend.StatusError
		if errors.As(err, &statusErr) {
			logger.Warn("registration rejected", "username", req.Username, "status", statusErr.Code)
		} else {
			logger.Warn("registration request failed", "username", req.Username, "error", err)
		}
		return Outcome{}
	}

	if resp.Error != "" {
		return Outcome{Alert: resp.Error}
	}

	logger.Info("registration acknowledged", "username", req.Username, "message", resp.Message)
	return Outcome{IssuedKey: strings.TrimSpace(resp.APIKey)}
}
