// Package page holds the per-session page controller: file stage, API key field,
// submission flow, registration dialog and the subscribers that mirror its state.
package page

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/cloudcompute/webclient/internal/registration"
	"github.com/cloudcompute/webclient/internal/stage"
	"github.com/cloudcompute/webclient/internal/storage"
	"github.com/cloudcompute/webclient/internal/submission"
)

// ErrClosed is returned by operations on a torn-down controller.
var ErrClosed = errors.New("page controller closed")

// Icons of the API key visibility toggle.
const (
	IconMasked = "fa-eye"
	IconShown  = "fa-eye-slash"
)

// Backend is what a page needs from the execution service.
type Backend interface {
	submission.Submitter
	registration.Registrar
}

// Options configures a Controller.
type Options struct {
	ID          string
	Store       storage.Store
	Backend     Backend
	PreviewBase string
	Logger      *slog.Logger
}

// Controller owns the state of one page. All handlers run under mu, which
// stands in for the browser's single event loop; the mutex is released only
// while an outbound request is in progress.
type Controller struct {
	id      string
	backend Backend
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	stage     *stage.Stage
	flow      *submission.Flow
	apiKey    string
	masked    bool
	result    models.ResultView
	modal     registration.Modal
	alerts    []models.Alert
	lastAlert int64
	subs      map[int]chan models.PageState
	nextSub   int
}

// New creates a controller with an empty page.
func New(opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger.With("component", "page", "session", shortID(opts.ID))
	return &Controller{
		id:      opts.ID,
		backend: opts.Backend,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		stage:   stage.New(opts.Store, opts.PreviewBase, logger),
		flow:    submission.NewFlow(opts.Backend),
		masked:  true,
		result:  submission.IdleView(),
		subs:    make(map[int]chan models.PageState),
	}
}

// ID returns the session id the controller is registered under.
func (c *Controller) ID() string {
	return c.id
}

// State returns a snapshot of the page.
func (c *Controller) State() models.PageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() models.PageState {
	st := models.PageState{
		SessionID:    c.id,
		FileInfo:     c.stage.Panel(),
		APIKey:       c.apiKeyFieldLocked(),
		Loading:      c.flow.InFlight(),
		Result:       c.result,
		Registration: c.modal.State(),
	}
	if len(c.alerts) > 0 {
		st.Alerts = append([]models.Alert(nil), c.alerts...)
	}
	return st
}

func (c *Controller) apiKeyFieldLocked() models.APIKeyField {
	if c.masked {
		return models.APIKeyField{Value: c.apiKey, InputType: models.InputTypePassword, Icon: IconMasked}
	}
	return models.APIKeyField{Value: c.apiKey, InputType: models.InputTypeText, Icon: IconShown}
}

// SetAPIKey stores what the user typed into the API key field.
func (c *Controller) SetAPIKey(value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.apiKey = value
	c.broadcastLocked()
	return nil
}

// ToggleAPIKeyVisibility flips the masking mode of the API key field.
func (c *Controller) ToggleAPIKeyVisibility() (models.APIKeyField, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.APIKeyField{}, ErrClosed
	}
	c.masked = !c.masked
	c.broadcastLocked()
	return c.apiKeyFieldLocked(), nil
}

// ChangeFile handles the file-input change event; a nil reader clears the selection.
func (c *Controller) ChangeFile(name string, r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	err := c.stage.Change(name, r)
	c.broadcastLocked()
	return err
}

// DeleteFile handles the delete button.
func (c *Controller) DeleteFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	err := c.stage.Clear()
	c.broadcastLocked()
	return err
}

// Submit runs the submission flow and returns the resulting view. Local
// validation failures are reported in the view, not as errors. A trigger while
// a submission is outstanding is rejected with submission.ErrInFlight.
func (c *Controller) Submit() (models.ResultView, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.ResultView{}, ErrClosed
	}
	if c.flow.InFlight() {
		view := c.result
		c.mu.Unlock()
		return view, submission.ErrInFlight
	}

	apiKey := strings.TrimSpace(c.apiKey)
	if err := submission.Validate(apiKey, c.stage.Current() != nil); err != nil {
		c.result = submission.ViewForError(err)
		c.broadcastLocked()
		view := c.result
		c.mu.Unlock()
		return view, nil
	}

	code, fileName, err := c.stage.Open()
	if err != nil {
		c.mu.Unlock()
		return models.ResultView{}, err
	}

	ticket, err := c.flow.Start(c.ctx)
	if err != nil {
		code.Close()
		c.mu.Unlock()
		return models.ResultView{}, err
	}
	c.result = submission.LoadingView()
	c.broadcastLocked()
	c.mu.Unlock()

	c.logger.Info("submitting code", "file", fileName)
	res, sendErr := c.flow.Send(ticket, apiKey, fileName, code)
	code.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	view, current := c.flow.Finish(ticket, res, sendErr)
	if !current {
		return c.result, nil
	}
	if sendErr != nil {
		c.logger.Info("submission failed", "file", fileName, "state", view.State, "error", sendErr)
	}
	if c.closed {
		return view, nil
	}
	c.result = view
	c.broadcastLocked()
	return view, nil
}

// CancelSubmission aborts the outstanding submission and returns the result area to idle.
func (c *Controller) CancelSubmission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.flow.Cancel() {
		return false
	}
	c.result = submission.ViewForError(context.Canceled)
	c.broadcastLocked()
	return true
}

// OpenRegistration shows the registration dialog.
func (c *Controller) OpenRegistration() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.modal.Open()
	c.broadcastLocked()
	return nil
}

// CloseRegistration hides the dialog and resets its form and generated key.
func (c *Controller) CloseRegistration() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.modal.Close()
	c.broadcastLocked()
	return nil
}

// SubmitRegistration handles the registration form. With both fields filled it
// generates a key, mirrors it into the API key field and starts the
// best-effort backend call; ok is false when nothing was generated.
func (c *Controller) SubmitRegistration(username, email string) (key string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false, ErrClosed
	}

	req, ok := c.modal.Submit(username, email)
	if !ok {
		c.broadcastLocked()
		return "", false, nil
	}
	c.apiKey = req.APIKey
	c.broadcastLocked()

	c.wg.Add(1)
	go c.register(req)

	return req.APIKey, true, nil
}

func (c *Controller) register(req models.RegistrationRequest) {
	defer c.wg.Done()

	out := registration.Send(c.ctx, c.backend, req, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	changed := false
	if out.Alert != "" {
		c.lastAlert++
		c.alerts = append(c.alerts, models.Alert{ID: c.lastAlert, Message: out.Alert})
		changed = true
	}
	if out.IssuedKey != "" && c.apiKey == req.APIKey {
		c.apiKey = out.IssuedKey
		c.modal.ReplaceKey(req.APIKey, out.IssuedKey)
		changed = true
	}
	if changed {
		c.broadcastLocked()
	}
}

// AckAlert dismisses the oldest pending alert.
func (c *Controller) AckAlert() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.alerts) == 0 {
		return false
	}
	c.alerts = c.alerts[1:]
	c.broadcastLocked()
	return true
}

// Wait blocks until background registration calls have settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close tears the page down: cancels outstanding requests, revokes the preview,
// drops the staged file and closes every subscription. It is safe to call twice.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.flow.Cancel()
	c.cancel()
	err := c.stage.Clear()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Debug("page closed")
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
