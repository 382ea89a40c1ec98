package constants

import "time"

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second
)

// Retry schedule defaults.
const (
	// DefaultRetryMax is the default maximum number of retries after the initial attempt.
	DefaultRetryMax = 5

	// DefaultRetryBase is the first exponential backoff delay.
	DefaultRetryBase = 100 * time.Millisecond

	// DefaultRetryWaitMax caps a single backoff delay.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax caps delays of the unbounded convenience policies.
	ExtendedRetryWaitMax = 30 * time.Second

	// ThrottlingRetryFloor is the minimum wait after a throttling failure.
	ThrottlingRetryFloor = 500 * time.Millisecond

	// DefaultJitterFactor perturbs each delay by up to ±20%.
	DefaultJitterFactor = 0.2

	// ExponentialBackoffBase is the backoff growth factor.
	ExponentialBackoffBase = 2
)

// Pagination defaults.
const (
	// DefaultStartPage is the first page of the default pagination convention.
	DefaultStartPage = 1
)

// Wire protocol.
const (
	// ContentTypeJSON is sent on every request.
	ContentTypeJSON = "application/json"

	// DefaultUserAgent identifies the client.
	DefaultUserAgent = "restkit-go"

	// ErrorBodyPreviewLimit bounds how much of a raw body is echoed in error messages.
	ErrorBodyPreviewLimit = 256
)

// Environment.
const (
	// EnvPrefix prefixes configuration environment variables (RESTKIT_ACCESS_TOKEN, ...).
	EnvPrefix = "RESTKIT"

	// OrganizationField is the path placeholder defaulted from credentials.
	OrganizationField = "organization"
)
