// Package submission implements the validate / submit / render cycle of the page.
package submission

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudcompute/webclient/internal/backend"
	"github.com/cloudcompute/webclient/internal/models"
)

var (
	ErrMissingFile   = errors.New("no code file selected")
	ErrMissingAPIKey = errors.New("api key is empty")
	// ErrInFlight is returned when a submission is triggered while another one is outstanding.
	ErrInFlight = errors.New("submission already in flight")
)

// Submitter sends a code file to the execution backend.
type Submitter interface {
	ProcessCode(ctx context.Context, apiKey, fileName string, code io.Reader) (*models.ExecutionResult, error)
}

// Validate checks the local preconditions in page order: file first, then key.
func Validate(apiKey string, hasFile bool) error {
	if !hasFile {
		return ErrMissingFile
	}
	if strings.TrimSpace(apiKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ViewForError maps any submission failure to the result area.
func ViewForError(err error) models.ResultView {
	var (
		statusErr *backend.StatusError
		parseErr  *backend.ParseError
	)
	switch {
	case errors.Is(err, ErrMissingFile):
		return MessageView(models.ResultStateValidationError, MsgMissingFile)
	case errors.Is(err, ErrMissingAPIKey):
		return MessageView(models.ResultStateValidationError, MsgMissingAPIKey)
	case errors.Is(err, context.Canceled):
		return MessageView(models.ResultStateCancelled, MsgCancelled)
	case errors.As(err, &statusErr):
		return MessageView(models.ResultStateHTTPError, StatusMessage(statusErr.Code, statusErr.StatusText))
	case errors.As(err, &parseErr):
		return MessageView(models.ResultStateParseError, MsgParseFailure)
	default:
		return MessageView(models.ResultStateNetworkError, MsgNetworkError)
	}
}

// Flow tracks the single outstanding submission of a page.
// Like the stage, it relies on the page controller to serialize calls.
type Flow struct {
	client Submitter
	cancel context.CancelFunc
	seq    uint64
}

// NewFlow creates an idle flow.
func NewFlow(client Submitter) *Flow {
	return &Flow{client: client}
}

// Ticket identifies one started submission.
type Ticket struct {
	ctx context.Context
	seq uint64
}

// InFlight reports whether a submission is outstanding.
func (f *Flow) InFlight() bool {
	return f.cancel != nil
}

// Start marks a submission as outstanding. It fails with ErrInFlight if one already is.
func (f *Flow) Start(parent context.Context) (Ticket, error) {
	if f.InFlight() {
		return Ticket{}, ErrInFlight
	}
	ctx, cancel := context.WithCancel(parent)
	f.cancel = cancel
	f.seq++
	return Ticket{ctx: ctx, seq: f.seq}, nil
}

// Send performs the network call for a started ticket. It must be called without holding the page lock.
func (f *Flow) Send(t Ticket, apiKey, fileName string, code io.Reader) (*models.ExecutionResult, error) {
	return f.client.ProcessCode(t.ctx, strings.TrimSpace(apiKey), fileName, code)
}

// Finish releases the ticket and returns the view for its outcome.
// A stale ticket (cancelled and superseded) yields ok=false and must not touch the page.
func (f *Flow) Finish(t Ticket, res *models.ExecutionResult, err error) (view models.ResultView, ok bool) {
	if t.seq != f.seq {
		return models.ResultView{}, false
	}
	cancelled := errors.Is(t.ctx.Err(), context.Canceled)
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if cancelled {
		return ViewForError(context.Canceled), true
	}
	if err != nil {
		return ViewForError(err), true
	}
	return RenderResult(res), true
}

// Cancel aborts the outstanding submission, if any.
func (f *Flow) Cancel() bool {
	if f.cancel == nil {
		return false
	}
	f.cancel()
	f.cancel = nil
	return true
}
