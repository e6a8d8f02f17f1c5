package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

// Error kinds. Every failure returned by a Client is an *APIError whose Is
// method matches exactly one of these.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limited")
	ErrAPI         = errors.New("provider API error")
	ErrStream      = errors.New("stream error")
)

// maxErrorBodyBytes bounds how much of an error response is read for
// diagnostics.
const maxErrorBodyBytes = 64 * 1024

// APIError is a typed provider failure.
//
// StatusCode is zero when no response was received. Message is the
// provider's own error text when it could be extracted from the body.
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the error's kind sentinel.
func (e *APIError) Is(target error) bool {
	return target == e.Kind
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrAPI
	}
}

// errorFromResponse builds an APIError from a non-2xx response, extracting
// the provider's message best-effort from a bounded read of the body.
func errorFromResponse(resp *http.Response) error {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	}
	return &APIError{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    extractErrorMessage(body),
	}
}

// extractErrorMessage understands {"error":{"message":...}},
// {"error":"..."} and {"message":...} bodies, falling back to the raw text.
func extractErrorMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if err := json.Unmarshal(payload.Error, &flat); err == nil && flat != "" {
				return flat
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	if len(text) > 500 {
		text = text[:500] + "..."
	}
	return text
}

// transportError wraps a failure that produced no response at all.
func transportError(err error) error {
	return &APIError{Kind: ErrAPI, Err: err}
}

// streamError wraps a failure while reading a streaming body.
func streamError(msg string, err error) error {
	return &APIError{Kind: ErrStream, Message: msg, Err: err}
}

// fromSDKError maps an error returned by the openai-go SDK onto the same
// taxonomy as the hand-rolled chat client.
func fromSDKError(err error) error {
	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		return &APIError{
			Kind:       kindForStatus(sdkErr.StatusCode),
			StatusCode: sdkErr.StatusCode,
			Message:    sdkErr.Message,
		}
	}
	return transportError(err)
}
