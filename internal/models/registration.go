package models

// RegistrationRequest is the body sent to the backend /register endpoint.
type RegistrationRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	APIKey   string `json:"api_key"`
}

// RegistrationResponse is the body returned by /register.
type RegistrationResponse struct {
	Message string `json:"message,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Error   string `json:"error,omitempty"`
}
