package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/restkit/internal/constants"
	"github.com/fivetwenty-io/restkit/pkg/category"
)

// Static errors for err113 compliance.
var (
	ErrMissingPathField     = errors.New("missing path field")
	ErrInvalidPathField     = errors.New("path field is not a scalar")
	ErrInvalidPathTemplate  = errors.New("invalid path template")
	ErrDuplicateErrorCode   = errors.New("duplicate error code")
	ErrUndeclaredPathField  = errors.New("path field not declared")
	ErrMissingToken         = errors.New("access token is required")
	ErrInvalidBaseURL       = errors.New("base URL must be an absolute URL with scheme and host")
	ErrMissingBaseURL       = errors.New("API endpoint is required")
	ErrNoCredentialSource   = errors.New("no credential source configured")
	ErrNoTransport          = errors.New("no transport configured")
	ErrUnknownOperation     = errors.New("unknown operation")
	ErrUnknownCategory      = errors.New("unknown error category")
	ErrOperationNameMissing = errors.New("operation name is required")
	ErrDuplicateOperation   = errors.New("duplicate operation")
)

// APIError is an error response whose code matched none of the operation's
// declared error variants, or whose body carried no code at all.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Body       []byte
	// RetryAfterDelay is the delay advertised by a Retry-After header, if any.
	RetryAfterDelay time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder

	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}

	fmt.Fprintf(&b, "API error (status: %d", e.StatusCode)

	if e.Code != "" {
		fmt.Fprintf(&b, ", code: %s", e.Code)
	}

	b.WriteString(")")

	switch {
	case e.Message != "":
		b.WriteString(": " + e.Message)
	case len(e.Body) > 0:
		b.WriteString(": " + preview(e.Body))
	}

	return b.String()
}

// Categories implements category.Categorized.
func (e *APIError) Categories() []category.Category {
	return []category.Category{category.Server}
}

// RetryAfter returns the server-advertised wait before retrying.
func (e *APIError) RetryAfter() time.Duration {
	return e.RetryAfterDelay
}

// ParseError reports a successful response whose body does not match the
// operation's output shape.
type ParseError struct {
	Operation  string
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parsing response (status: %d): %v", e.Operation, e.StatusCode, e.Err)
}

// Unwrap returns the underlying decode failure.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Categories implements category.Categorized.
func (e *ParseError) Categories() []category.Category {
	return []category.Category{category.Parse}
}

// NetworkError reports a failure to obtain any response from the transport.
type NetworkError struct {
	Operation string
	Method    string
	URL       string
	Err       error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Operation, e.Method, e.URL, e.Err)
}

// Unwrap returns the transport failure.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Categories implements category.Categorized.
func (e *NetworkError) Categories() []category.Category {
	return []category.Category{category.Network}
}

// ConfigurationError reports missing or invalid credentials or settings,
// detected before any network call.
type ConfigurationError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Err.Error()
	}

	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Categories implements category.Categorized.
func (e *ConfigurationError) Categories() []category.Category {
	return []category.Category{category.Configuration}
}

// errorBody is the minimal shape of an error response.
type errorBody struct {
	Code    string
	Message string
	HasCode bool
}

// parseErrorBody extracts the discriminant code and message. A body that is
// not a JSON object, or whose code is missing or not a string, has no code.
func parseErrorBody(data []byte) errorBody {
	var raw map[string]json.RawMessage

	if json.Unmarshal(data, &raw) != nil {
		return errorBody{}
	}

	var body errorBody

	if code, ok := raw["code"]; ok && json.Unmarshal(code, &body.Code) == nil && body.Code != "" {
		body.HasCode = true
	}

	if message, ok := raw["message"]; ok {
		_ = json.Unmarshal(message, &body.Message)
	}

	return body
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func parseRetryAfter(headers http.Header, now time.Time) time.Duration {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0
	}

	seconds, err := strconv.Atoi(value)
	if err == nil {
		if seconds < 0 {
			return 0
		}

		return time.Duration(seconds) * time.Second
	}

	when, err := http.ParseTime(value)
	if err != nil || !when.After(now) {
		return 0
	}

	return when.Sub(now)
}

func preview(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > constants.ErrorBodyPreviewLimit {
		return string(trimmed[:constants.ErrorBodyPreviewLimit]) + "..."
	}

	return string(trimmed)
}

// IsNotFound reports whether err carries the NotFound category.
func IsNotFound(err error) bool {
	return category.Has(err, category.NotFound)
}

// IsUnauthorized reports whether err carries the Auth category.
func IsUnauthorized(err error) bool {
	return category.Has(err, category.Auth)
}

// IsThrottled reports whether err carries the Throttling category.
func IsThrottled(err error) bool {
	return category.Has(err, category.Throttling)
}
