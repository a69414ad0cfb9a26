package submission

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/cloudcompute/webclient/internal/models"
)

// Backend strings are untrusted and always escaped; html/template does that per context.
var resultTemplate = template.Must(template.New("result").Parse(
	`<h3>Console Output:</h3><pre>{{.Output}}</pre>` +
		`{{if .ShowErrors}}<h3>Errors:</h3><pre style="color: red;">{{.Error}}</pre>{{end}}`))

// HasErrors reports whether the Errors section should be shown.
func HasErrors(res *models.ExecutionResult) bool {
	return strings.TrimSpace(res.Error) != ""
}

// RenderResult builds the success view of a backend result.
func RenderResult(res *models.ExecutionResult) models.ResultView {
	data := struct {
		Output     string
		Error      string
		ShowErrors bool
	}{
		Output:     res.Output,
		Error:      res.Error,
		ShowErrors: HasErrors(res),
	}

	var buf bytes.Buffer
	// Execute only fails on writer errors, which bytes.Buffer never returns.
	_ = resultTemplate.Execute(&buf, data)

	view := models.ResultView{
		State:  models.ResultStateSuccess,
		Color:  models.ColorSuccess,
		HTML:   buf.String(),
		Output: res.Output,
	}
	if data.ShowErrors {
		view.Errors = res.Error
	}
	return view
}

// MessageView builds a plain-text view.
func MessageView(state models.ResultState, msg string) models.ResultView {
	color := models.ColorError
	if state == models.ResultStateIdle || state == models.ResultStateCancelled {
		color = models.ColorNeutral
	}
	return models.ResultView{
		State:   state,
		Message: msg,
		Color:   color,
		HTML:    template.HTMLEscapeString(msg),
	}
}

// LoadingView is shown while a submission is outstanding.
func LoadingView() models.ResultView {
	return models.ResultView{State: models.ResultStateLoading, Color: models.ColorNeutral}
}

// IdleView is the initial, empty result area.
func IdleView() models.ResultView {
	return models.ResultView{State: models.ResultStateIdle, Color: models.ColorNeutral}
}
