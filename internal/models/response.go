package models

// ErrorResponse is the wire shape for every failed handler response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
