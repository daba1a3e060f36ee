package spotify

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Web API
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	// Body holds the raw response when it was not Spotify's error envelope
	Body string `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("spotify api: status %d: %s", e.Status, msg)
}

// Unauthorized reports whether the token was rejected
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

func newAPIError(status int, body string) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Error != nil {
		if envelope.Error.Status == 0 {
			envelope.Error.Status = status
		}
		return envelope.Error
	}
	return &APIError{Status: status, Body: body}
}
