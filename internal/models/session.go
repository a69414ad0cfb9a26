package models

// Masking modes of the API key input.
const (
	InputTypePassword = "password"
	InputTypeText     = "text"
)

// APIKeyField mirrors the API key input and its visibility toggle.
type APIKeyField struct {
	Value     string `json:"value" msgpack:"value"`
	InputType string `json:"inputType" msgpack:"inputType"`
	Icon      string `json:"icon" msgpack:"icon"`
}

// RegistrationModal mirrors the registration dialog.
type RegistrationModal struct {
	Open         bool   `json:"open" msgpack:"open"`
	Username     string `json:"username" msgpack:"username"`
	Email        string `json:"email" msgpack:"email"`
	GeneratedKey string `json:"generatedKey,omitempty" msgpack:"generatedKey,omitempty"`
}

// PageState is a full snapshot of what one page renders.
type PageState struct {
	SessionID    string            `json:"sessionId" msgpack:"sessionId"`
	FileInfo     FileInfoPanel     `json:"fileInfo" msgpack:"fileInfo"`
	APIKey       APIKeyField       `json:"apiKey" msgpack:"apiKey"`
	Loading      bool              `json:"loading" msgpack:"loading"`
	Result       ResultView        `json:"result" msgpack:"result"`
	Registration RegistrationModal `json:"registration" msgpack:"registration"`
	Alerts       []Alert           `json:"alerts,omitempty" msgpack:"alerts,omitempty"`
}

// Alert is a blocking message waiting for the user to dismiss it. IDs grow
// monotonically within a page.
type Alert struct {
	ID      int64  `json:"id" msgpack:"id"`
	Message string `json:"message" msgpack:"message"`
}
