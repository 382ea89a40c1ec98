package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fivetwenty-io/restkit/pkg/api"
	"github.com/fivetwenty-io/restkit/pkg/category"
	"github.com/fivetwenty-io/restkit/pkg/retry"
	"github.com/fivetwenty-io/restkit/pkg/sensitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getDatabaseInput struct {
	Organization string `json:"organization"`
	Database     string `json:"database"`
}

type createDatabaseInput struct {
	Organization string  `json:"organization"`
	Name         string  `json:"name"`
	Region       *string `json:"region"`
	ClusterSize  string  `json:"cluster_size,omitempty"`
}

type listDatabasesInput struct {
	Organization string `json:"organization"`
	api.PageParams
}

type database struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

type databaseNotFound struct {
	Database string
	Message  string
}

func (e *databaseNotFound) Error() string { return "database " + e.Database + " not found: " + e.Message }

func (*databaseNotFound) Categories() []category.Category {
	return []category.Category{category.NotFound}
}

type rateLimited struct{ Message string }

func (e *rateLimited) Error() string { return "rate limited: " + e.Message }

func (*rateLimited) Categories() []category.Category {
	return []category.Category{category.Throttling}
}

var (
	getDatabase = api.NewOperation[getDatabaseInput, database](
		"GetDatabase", http.MethodGet, "/organizations/{organization}/databases/{database}",
		api.ErrorVariant[getDatabaseInput]{Code: "not_found", New: func(in getDatabaseInput, message string) error {
			return &databaseNotFound{Database: in.Database, Message: message}
		}},
		api.ErrorVariant[getDatabaseInput]{Code: "rate_limited", New: func(_ getDatabaseInput, message string) error {
			return &rateLimited{Message: message}
		}},
	)

	createDatabase = api.NewOperation[createDatabaseInput, database](
		"CreateDatabase", http.MethodPost, "/organizations/{organization}/databases")

	listDatabases = api.NewOperation[listDatabasesInput, api.List[database]](
		"ListDatabases", http.MethodGet, "/organizations/{organization}/databases")
)

// captured is what the fake server saw.
type captured struct {
	method  string
	path    string
	query   string
	headers http.Header
	body    []byte
}

func newServer(t *testing.T, status int, body string, headers map[string]string) (*httptest.Server, *captured) {
	t.Helper()

	seen := &captured{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)

		seen.method = r.Method
		seen.path = r.URL.EscapedPath()
		seen.query = r.URL.RawQuery
		seen.headers = r.Header.Clone()
		seen.body = data

		for key, value := range headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, seen
}

// httpTransport is a minimal transport over net/http for dispatcher tests.
func httpTransport() api.Transport {
	return api.TransportFunc(func(ctx context.Context, req *api.Request) (*api.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
		if err != nil {
			return nil, err
		}

		httpReq.Header = req.Headers

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		return &api.Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
	})
}

func staticCredentials(baseURL string) api.CredentialSource {
	return api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
		return api.Credentials{Token: sensitive.Raw("secret-token"), Organization: "acme", BaseURL: baseURL}, nil
	})
}

func newClient(baseURL string) *api.Client {
	return api.NewClient(httpTransport(), staticCredentials(baseURL), api.WithUserAgent("restkit-test"))
}

func TestCall_GetSubstitutesPath(t *testing.T) {
	t.Parallel()

	server, seen := newServer(t, http.StatusOK, `{"id":"db-1","name":"main","unknown":true}`, nil)
	client := newClient(server.URL)

	out, err := getDatabase.Call(context.Background(), client, getDatabaseInput{Organization: "my org", Database: "main"})

	require.NoError(t, err)
	assert.Equal(t, database{ID: "db-1", Name: "main"}, out)
	assert.Equal(t, http.MethodGet, seen.method)
	assert.Equal(t, "/organizations/my%20org/databases/main", seen.path)
	assert.Empty(t, seen.query, "path fields are not repeated in the query")
	assert.Empty(t, seen.body)
	assert.Equal(t, "Bearer secret-token", seen.headers.Get("Authorization"))
	assert.Equal(t, "application/json", seen.headers.Get("Accept"))
	assert.Equal(t, "restkit-test", seen.headers.Get("User-Agent"))
}

func TestCall_PostSendsBody(t *testing.T) {
	t.Parallel()

	server, seen := newServer(t, http.StatusCreated, `{"id":"db-2","name":"analytics"}`, nil)
	client := newClient(server.URL)

	out, err := createDatabase.Call(context.Background(), client, createDatabaseInput{Organization: "acme", Name: "analytics"})

	require.NoError(t, err)
	assert.Equal(t, "db-2", out.ID)
	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/organizations/acme/databases", seen.path)
	assert.Equal(t, "application/json", seen.headers.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(seen.body, &body))
	assert.Equal(t, map[string]any{"name": "analytics"}, body, "null and omitted fields are not sent")
}

func TestCall_GetSendsQuery(t *testing.T) {
	t.Parallel()

	server, seen := newServer(t, http.StatusOK, `{"current_page":2,"next_page":null,"data":[]}`, nil)
	client := newClient(server.URL)

	out, err := listDatabases.Call(context.Background(), client, listDatabasesInput{
		Organization: "acme",
		PageParams:   api.PageParams{Page: 2, PerPage: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, out.CurrentPage)
	assert.False(t, out.HasNext())
	assert.Equal(t, "page=2&per_page=50", seen.query)
}

func TestCall_OrganizationDefaultsFromCredentials(t *testing.T) {
	t.Parallel()

	server, seen := newServer(t, http.StatusOK, `{"id":"db-1","name":"main"}`, nil)
	client := newClient(server.URL)

	_, err := getDatabase.Call(context.Background(), client, getDatabaseInput{Database: "main"})

	require.NoError(t, err)
	assert.Equal(t, "/organizations/acme/databases/main", seen.path)
}

func TestCall_MissingPathField(t *testing.T) {
	t.Parallel()

	called := false
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		called = true

		return &api.Response{StatusCode: http.StatusOK}, nil
	})
	client := api.NewClient(transport, staticCredentials("https://api.example.com"))

	_, err := getDatabase.Call(context.Background(), client, getDatabaseInput{Organization: "acme"})

	require.ErrorIs(t, err, api.ErrMissingPathField)
	assert.Contains(t, err.Error(), "database")
	assert.False(t, called)
}

func TestCall_DeclaredVariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		body            string
		expectedMessage string
	}{
		{name: "with message", body: `{"code":"not_found","message":"no such database"}`, expectedMessage: "no such database"},
		{name: "without message", body: `{"code":"not_found"}`, expectedMessage: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newServer(t, http.StatusNotFound, tt.body, nil)
			client := newClient(server.URL)

			_, err := getDatabase.Call(context.Background(), client, getDatabaseInput{Database: "missing"})

			var notFound *databaseNotFound
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, "missing", notFound.Database)
			assert.Equal(t, tt.expectedMessage, notFound.Message)
			assert.True(t, api.IsNotFound(err))
			assert.False(t, api.IsUnauthorized(err))
			assert.False(t, category.Has(err, category.Server))
		})
	}
}

func TestCall_FirstVariantWins(t *testing.T) {
	t.Parallel()

	errFirst := errors.New("first")
	errSecond := errors.New("second")

	op := api.NewOperation[getDatabaseInput, database]("GetDatabase", http.MethodGet, "/databases/{database}",
		api.ErrorVariant[getDatabaseInput]{Code: "conflict", New: func(getDatabaseInput, string) error { return errFirst }},
		api.ErrorVariant[getDatabaseInput]{Code: "conflict", New: func(getDatabaseInput, string) error { return errSecond }},
	)

	server, _ := newServer(t, http.StatusConflict, `{"code":"conflict"}`, nil)

	_, err := op.Call(context.Background(), newClient(server.URL), getDatabaseInput{Database: "main"})

	require.ErrorIs(t, err, errFirst)
	require.ErrorIs(t, op.Validate(), api.ErrDuplicateErrorCode)
}

func TestCall_UnmatchedErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		body         string
		expectedCode string
	}{
		{name: "unknown code", status: http.StatusBadRequest, body: `{"code":"weird","message":"?"}`, expectedCode: "weird"},
		{name: "not json", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
		{name: "code not a string", status: http.StatusInternalServerError, body: `{"code":42}`},
		{name: "empty body", status: http.StatusServiceUnavailable, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newServer(t, tt.status, tt.body, nil)

			_, err := getDatabase.Call(context.Background(), newClient(server.URL), getDatabaseInput{Database: "main"})

			var apiErr *api.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.expectedCode, apiErr.Code)
			assert.Equal(t, tt.body, string(apiErr.Body))
			assert.True(t, category.Has(err, category.Server))
		})
	}
}

func TestCall_RetryAfter(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, http.StatusTooManyRequests, `{"code":"slow_down"}`, map[string]string{"Retry-After": "3"})

	_, err := getDatabase.Call(context.Background(), newClient(server.URL), getDatabaseInput{Database: "main"})

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter())
}

func TestCall_ParseError(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, http.StatusOK, `{"id": 12`, nil)

	out, err := getDatabase.Call(context.Background(), newClient(server.URL), getDatabaseInput{Database: "main"})

	var parseErr *api.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, `{"id": 12`, string(parseErr.Body))
	require.Error(t, parseErr.Err)
	assert.Equal(t, database{}, out)
	assert.True(t, category.Has(err, category.Parse))
	assert.False(t, category.Has(err, category.Server))
}

type checkedDatabase struct {
	ID string `json:"id"`
}

var errMissingID = errors.New("missing id")

func (d checkedDatabase) Validate() error {
	if d.ID == "" {
		return errMissingID
	}

	return nil
}

func TestCall_ValidatorRejectsShape(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, http.StatusOK, `{"name":"main"}`, nil)
	op := api.NewOperation[getDatabaseInput, checkedDatabase]("GetDatabase", http.MethodGet, "/databases/{database}")

	_, err := op.Call(context.Background(), newClient(server.URL), getDatabaseInput{Database: "main"})

	var parseErr *api.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.ErrorIs(t, err, errMissingID)
}

func TestCall_NetworkError(t *testing.T) {
	t.Parallel()

	errReset := errors.New("connection reset by peer")
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		return nil, errReset
	})
	client := api.NewClient(transport, staticCredentials("https://api.example.com"))

	_, err := getDatabase.Call(context.Background(), client, getDatabaseInput{Database: "main"})

	var netErr *api.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.ErrorIs(t, err, errReset)
	assert.True(t, category.Has(err, category.Network))
	assert.True(t, category.IsTransient(err))
}

func TestCall_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	errVault := errors.New("vault sealed")

	tests := []struct {
		name     string
		source   api.CredentialSource
		expected error
	}{
		{name: "no source", source: nil, expected: api.ErrNoCredentialSource},
		{name: "source fails", source: api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
			return api.Credentials{}, errVault
		}), expected: errVault},
		{name: "missing base url", source: api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
			return api.Credentials{Token: sensitive.Raw("t")}, nil
		}), expected: api.ErrMissingBaseURL},
		{name: "missing token", source: api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
			return api.Credentials{BaseURL: "https://api.example.com"}, nil
		}), expected: api.ErrMissingToken},
		{name: "unparsable base url", source: api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
			return api.Credentials{Token: sensitive.Raw("t"), BaseURL: "http://exa mple.com"}, nil
		}), expected: api.ErrInvalidBaseURL},
		{name: "base url without scheme", source: api.CredentialsFunc(func(context.Context) (api.Credentials, error) {
			return api.Credentials{Token: sensitive.Raw("t"), BaseURL: "api.example.com"}, nil
		}), expected: api.ErrInvalidBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
				called = true

				return &api.Response{StatusCode: http.StatusOK}, nil
			})

			_, err := getDatabase.Call(context.Background(), api.NewClient(transport, tt.source), getDatabaseInput{Database: "main"})

			var configErr *api.ConfigurationError
			require.ErrorAs(t, err, &configErr)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, category.Has(err, category.Configuration))
			assert.False(t, called, "no I/O before configuration is valid")
		})
	}
}

func TestOperation_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		op       *api.Operation[getDatabaseInput, database]
		expected error
	}{
		{name: "valid", op: getDatabase},
		{name: "unclosed placeholder", op: &api.Operation[getDatabaseInput, database]{Name: "x", Path: "/databases/{database"}, expected: api.ErrInvalidPathTemplate},
		{name: "undeclared field", op: &api.Operation[getDatabaseInput, database]{Name: "x", Path: "/databases/{database}"}, expected: api.ErrUndeclaredPathField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.op.Validate()
			if tt.expected == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestNewOperation_PathFields(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"organization", "database"}, getDatabase.PathFields)
	assert.Empty(t, api.NewOperation[struct{}, api.Empty]("Ping", http.MethodGet, "/ping").PathFields)
}

func TestCallWithRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		attempts++
		if attempts < 3 {
			return &api.Response{StatusCode: http.StatusTooManyRequests, Body: []byte(`{"code":"rate_limited"}`)}, nil
		}

		return &api.Response{StatusCode: http.StatusOK, Body: []byte(`{"id":"db-1","name":"main"}`)}, nil
	})
	client := api.NewClient(transport, staticCredentials("https://api.example.com"))
	policy := retry.New(category.IsTransient, retry.WithMaxRetries(5, retry.Constant(0)))

	out, err := getDatabase.CallWithRetry(context.Background(), client, getDatabaseInput{Database: "main"}, policy)

	require.NoError(t, err)
	assert.Equal(t, "db-1", out.ID)
	assert.Equal(t, 3, attempts)

	_, err = getDatabase.Call(context.Background(), api.NewClient(api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		return &api.Response{StatusCode: http.StatusTooManyRequests, Body: []byte(`{"code":"rate_limited"}`)}, nil
	}), staticCredentials("https://api.example.com")), getDatabaseInput{Database: "main"})
	assert.True(t, api.IsThrottled(err))
}

func TestCallWithRetry_InvalidBaseURLNotRetried(t *testing.T) {
	t.Parallel()

	attempts := 0
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		attempts++

		return &api.Response{StatusCode: http.StatusOK}, nil
	})
	client := api.NewClient(transport, staticCredentials("http://exa mple.com"))

	_, err := getDatabase.CallWithRetry(context.Background(), client, getDatabaseInput{Database: "main"}, nil)

	require.ErrorIs(t, err, api.ErrInvalidBaseURL)
	assert.True(t, category.Has(err, category.Configuration))
	assert.False(t, category.Has(err, category.Network))
	assert.Zero(t, attempts)
}

func TestCallWithRetry_TransportRejectionNotRetried(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("denied by interceptor")
	attempts := 0
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		attempts++

		return nil, &api.ConfigurationError{Field: "request", Err: errDenied}
	})
	client := api.NewClient(transport, staticCredentials("https://api.example.com"))

	_, err := getDatabase.CallWithRetry(context.Background(), client, getDatabaseInput{Database: "main"}, retry.Default())

	require.ErrorIs(t, err, errDenied)

	var netErr *api.NetworkError
	assert.False(t, errors.As(err, &netErr))
	assert.True(t, category.Has(err, category.Configuration))
	assert.Equal(t, 1, attempts)
}

func TestCallWithRetry_NotFoundNotRetried(t *testing.T) {
	t.Parallel()

	attempts := 0
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		attempts++

		return &api.Response{StatusCode: http.StatusNotFound, Body: []byte(`{"code":"not_found"}`)}, nil
	})
	client := api.NewClient(transport, staticCredentials("https://api.example.com"))

	_, err := getDatabase.BindWithRetry(client, retry.Default())(context.Background(), getDatabaseInput{Database: "main"})

	var notFound *databaseNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 1, attempts)
}

func TestCall_UnmatchedErrorLogged(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	transport := api.TransportFunc(func(context.Context, *api.Request) (*api.Response, error) {
		return &api.Response{StatusCode: http.StatusInternalServerError}, nil
	})
	client := api.NewClient(transport, staticCredentials("https://api.example.com"), api.WithLogger(logger))

	_, err := getDatabase.Call(context.Background(), client, getDatabaseInput{Database: "main"})

	require.Error(t, err)
	assert.Equal(t, []string{"Unmatched API error"}, logger.debug)
}
