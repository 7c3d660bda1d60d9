package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RemoteError is returned for every call the remote API rejects.
// Message is the server supplied text, unwrapped from its {error} envelope.
type RemoteError struct {
	StatusCode int
	Route      string
	Message    string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// IsUnauthorized reports whether the server refused the bearer credential.
func (e *RemoteError) IsUnauthorized() bool {
	return e != nil && e.StatusCode == http.StatusUnauthorized
}

// AsRemoteError unwraps err into a *RemoteError when possible.
func AsRemoteError(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// errorMessage extracts the server message from a failed response body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
		Msg   string          `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := rawMessageText(payload.Error); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Msg); msg != "" {
			return msg
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 && !strings.HasPrefix(text, "{") {
		return text
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// rawMessageText accepts {"error": "text"} and {"error": {"message": "text"}}.
func rawMessageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
