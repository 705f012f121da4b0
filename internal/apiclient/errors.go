package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// unknownErrorMessage is used when a failed response has no parsable body.
const unknownErrorMessage = "Unknown error"

const maxErrorBodySize = 64 << 10

// ErrNotAuthenticated is returned by token-gated operations when no access
// token is available.
var ErrNotAuthenticated = errors.New("not authenticated: no access token")

// APIError is returned for every response with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// TransportError is returned when no HTTP response was obtained at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: backend not reachable (%v)", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func errorFromResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: unknownErrorMessage}
	}
	return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
}

// errorMessage extracts the human-readable "detail" of an error body.
// Unparsable bodies give the generic message; a parsed body without a
// usable detail gives "HTTP <status>".
func errorMessage(status int, body []byte) string {
	if !json.Valid(body) {
		return unknownErrorMessage
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Sprintf("HTTP %d", status)
	}
	if msg := detailMessage(payload["detail"]); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d", status)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	// Validation failures carry a list of {loc, msg, type} items.
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			var v struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(item, &v); err == nil && v.Msg != "" {
				parts = append(parts, v.Msg)
				continue
			}
			var text string
			if err := json.Unmarshal(item, &text); err == nil && text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, ", ")
	}

	return string(raw)
}
