package issuer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetwork            = errors.New("issuing service unreachable")
	ErrMalformedResponse  = errors.New("malformed response from issuing service")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the issuing service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("issuing service returned %d", e.Status)
	}
	return fmt.Sprintf("issuing service returned %d: %s", e.Status, e.Detail)
}

// Unauthorized reports whether the service rejected the caller's credentials.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// ReadAPIError builds an APIError from resp, extracting the human readable message the
// service put in the body. The body is consumed but not closed.
func ReadAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	if resp.Body == nil {
		return apiErr
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	apiErr.Detail = detailFromBody(raw)
	return apiErr
}

// detailFromBody accepts the shapes the service emits: {"detail": "..."},
// {"detail": ["..."]}, {"error": "..."} and field error maps like {"password": ["..."]}.
func detailFromBody(raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, key := range []string{"detail", "error", "non_field_errors", "message"} {
		if msg := messageOf(body[key]); msg != "" {
			return msg
		}
	}
	for field, v := range body {
		if msg := messageOf(v); msg != "" {
			return field + ": " + msg
		}
	}
	return ""
}

func messageOf(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}
