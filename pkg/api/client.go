package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fivetwenty-io/restkit/pkg/sensitive"
)

// Request is one outgoing HTTP call as seen by transports and interceptors.
type Request struct {
	Operation string
	Method    string
	URL       string
	Headers   http.Header
	Body      []byte
	Metadata  map[string]any
}

// Response is the transport's answer: a status, headers and the full body.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Transport executes a single HTTP request. It returns an error only when no
// response was obtained; any status code is a successful transport result.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do implements Transport.
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Credentials identify the caller to the remote API.
type Credentials struct {
	Token        sensitive.String
	Organization string
	BaseURL      string
}

// CredentialSource supplies credentials. It is consulted once per call.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// CredentialsFunc adapts a function to CredentialSource.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// Credentials implements CredentialSource.
func (f CredentialsFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) Debug(msg string, fields map[string]any) {
	l.log(slog.LevelDebug, msg, fields)
}

func (l SlogLogger) Info(msg string, fields map[string]any) {
	l.log(slog.LevelInfo, msg, fields)
}

func (l SlogLogger) Warn(msg string, fields map[string]any) {
	l.log(slog.LevelWarn, msg, fields)
}

func (l SlogLogger) Error(msg string, fields map[string]any) {
	l.log(slog.LevelError, msg, fields)
}

func (l SlogLogger) log(level slog.Level, msg string, fields map[string]any) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := make([]slog.Attr, 0, len(fields))
	for key, value := range fields {
		attrs = append(attrs, slog.Any(key, value))
	}

	logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Config represents client configuration for building a Client.
//
// APIEndpoint and AccessToken are required; apiclient.New reports a
// ConfigurationError when either is missing. Organization is used to fill the
// "organization" path placeholder whenever an input leaves it empty.
//
// Per-request timeouts should generally be controlled via the context passed
// to each call. Retries are never performed by the client itself; wrap calls
// with Operation.CallWithRetry or retry.Do.
type Config struct {
	// APIEndpoint: base URL of the API (e.g., "https://api.example.com/v1").
	// apiclient.New trims a trailing slash and adds "https://" if no scheme
	// is present.
	APIEndpoint string
	// AccessToken: sent as a Bearer token on every request.
	AccessToken sensitive.String
	// Organization: default value for the organization path placeholder.
	Organization string

	// HTTPTimeout: overall timeout of a single HTTP exchange. Zero uses the default.
	HTTPTimeout time.Duration
	// Debug: enables request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by the HTTP layer and retries.
	Logger Logger
	// UserAgent: overrides the default User-Agent header.
	UserAgent string
	// Interceptors: optional hooks run by the transport around each request.
	Interceptors *InterceptorChain
}

// Client dispatches operations. It holds no per-call state and is safe for
// concurrent use as long as its transport and credential source are.
type Client struct {
	transport   Transport
	credentials CredentialSource
	logger      Logger
	userAgent   string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a dispatcher over the given transport and credential source.
func NewClient(transport Transport, credentials CredentialSource, opts ...Option) *Client {
	client := &Client{
		transport:   transport,
		credentials: credentials,
		logger:      NopLogger{},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Logger returns the client's logger.
func (c *Client) Logger() Logger {
	return c.logger
}
