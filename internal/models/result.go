package models

// ExecutionResult is the success payload returned by the execution backend.
type ExecutionResult struct {
	Output string `json:"output" yaml:"output"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ResultState is the state of the result area.
type ResultState string

const (
	ResultStateIdle            ResultState = "idle"
	ResultStateLoading         ResultState = "loading"
	ResultStateSuccess         ResultState = "success"
	ResultStateValidationError ResultState = "validation_error"
	ResultStateHTTPError       ResultState = "http_error"
	ResultStateParseError      ResultState = "parse_error"
	ResultStateNetworkError    ResultState = "network_error"
	ResultStateCancelled       ResultState = "cancelled"
)

// Result area colors, matching the page styles.
const (
	ColorNeutral = "#5a5c69"
	ColorSuccess = "green"
	ColorError   = "red"
)

// ResultView is what the result area shows.
type ResultView struct {
	State   ResultState `json:"state" msgpack:"state"`
	Message string      `json:"message,omitempty" msgpack:"message,omitempty"`
	Color   string      `json:"color" msgpack:"color"`
	HTML    string      `json:"html,omitempty" msgpack:"html,omitempty"`

	// Plain copies of the backend strings for non-HTML consumers.
	Output string `json:"output,omitempty" msgpack:"output,omitempty"`
	Errors string `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

// IsError reports whether the view shows a failure.
func (v ResultView) IsError() bool {
	switch v.State {
	case ResultStateValidationError, ResultStateHTTPError, ResultStateParseError, ResultStateNetworkError:
		return true
	}
	return false
}
