package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNoToken is returned before any network call when the caller has no token.
	ErrNoToken = errors.New("No auth token")
	// ErrUnauthorized maps a 401 from the backend.
	ErrUnauthorized = errors.New("Unauthorized")
	// ErrNotFound maps a 404 from the backend.
	ErrNotFound = errors.New("not found")
)

// APIError is any other non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
	// Code is the machine-readable "error_code", when the backend sends one.
	Code string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return e.Message
}

// Is lets errors.Is match ErrNotFound for 404 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ErrorFromResponse builds the error for a non-2xx status. The message is
// taken from "error", then "detail", then "message", else the raw body.
func ErrorFromResponse(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return &APIError{Status: status, Message: extractMessage(body), Code: extractCode(body)}
}

func extractCode(body []byte) string {
	var payload struct {
		Code string `json:"error_code"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return ""
	}
	return payload.Code
}

// ErrorCode returns the backend error code carried by err, if any.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func extractMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "detail", "message"} {
			if msg := stringify(payload[key]); msg != "" {
				return msg
			}
		}
		// DRF field errors: {"amount": ["..."]}; the first field by name wins.
		fields := make([]string, 0, len(payload))
		for field := range payload {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			if msg := stringify(payload[field]); msg != "" {
				return field + ": " + msg
			}
		}
	}
	return string(body)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

// Message returns the user-facing text of a gateway error.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsAuthError reports whether err means the session is no longer valid.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoToken)
}
