package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/restkit/internal/constants"
	"github.com/fivetwenty-io/restkit/internal/fieldpath"
)

// Call performs op with input in: exactly one HTTP request, no retries.
//
// It returns the decoded output, the error built by the first declared
// variant whose code matches an error response, or one of *APIError,
// *ParseError, *NetworkError or *ConfigurationError. A missing path field is
// reported as ErrMissingPathField before any network call.
func Call[In, Out any](ctx context.Context, client *Client, op *Operation[In, Out], in In) (Out, error) {
	var zero Out

	req, organization, err := buildRequest(ctx, client, op, in)
	if err != nil {
		return zero, err
	}

	resp, err := client.transport.Do(ctx, req)
	if err != nil {
		var configErr *ConfigurationError
		if errors.As(err, &configErr) {
			return zero, err
		}

		return zero, &NetworkError{Operation: op.label(), Method: req.Method, URL: req.URL, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if organization != "" {
			in = withOrganization(in, organization)
		}

		return zero, classify(client, op, in, resp)
	}

	return decode(op, resp)
}

// buildRequest resolves credentials, substitutes path fields and places the
// remaining fields in the query string or body. It also returns the
// organization taken from the credentials when the input left it empty.
func buildRequest[In, Out any](ctx context.Context, client *Client, op *Operation[In, Out], in In) (*Request, string, error) {
	if client.transport == nil {
		return nil, "", &ConfigurationError{Field: "transport", Err: ErrNoTransport}
	}

	creds, err := resolveCredentials(ctx, client.credentials)
	if err != nil {
		return nil, "", err
	}

	fields, err := fieldpath.Encode(in)
	if err != nil {
		return nil, "", fmt.Errorf("%s: encoding input: %w", op.label(), err)
	}

	dropNulls(fields)

	path, defaulted, err := expandPath(op, fields, creds.Organization)
	if err != nil {
		return nil, "", err
	}

	organization := ""
	if defaulted {
		organization = creds.Organization
	}

	target := strings.TrimSuffix(creds.BaseURL, "/") + path

	req := &Request{
		Operation: op.label(),
		Method:    strings.ToUpper(op.Method),
		URL:       target,
		Headers:   make(http.Header),
	}

	req.Headers.Set("Authorization", "Bearer "+creds.Token.Unwrap())
	req.Headers.Set("Content-Type", constants.ContentTypeJSON)
	req.Headers.Set("Accept", constants.ContentTypeJSON)

	if client.userAgent != "" {
		req.Headers.Set("User-Agent", client.userAgent)
	}

	if len(fields) == 0 {
		return req, organization, nil
	}

	if !op.sendsBody() {
		req.URL = target + "?" + encodeQuery(fields).Encode()

		return req, organization, nil
	}

	req.Body, err = json.Marshal(fields)
	if err != nil {
		return nil, "", fmt.Errorf("%s: encoding body: %w", op.label(), err)
	}

	return req, organization, nil
}

func resolveCredentials(ctx context.Context, source CredentialSource) (Credentials, error) {
	if source == nil {
		return Credentials{}, &ConfigurationError{Field: "credentials", Err: ErrNoCredentialSource}
	}

	creds, err := source.Credentials(ctx)
	if err != nil {
		var configErr *ConfigurationError
		if errors.As(err, &configErr) {
			return Credentials{}, err
		}

		return Credentials{}, &ConfigurationError{Field: "credentials", Err: err}
	}

	if creds.BaseURL == "" {
		return Credentials{}, &ConfigurationError{Field: "base_url", Err: ErrMissingBaseURL}
	}

	base, err := url.Parse(creds.BaseURL)
	if err != nil {
		return Credentials{}, &ConfigurationError{Field: "base_url", Err: fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)}
	}

	if base.Scheme == "" || base.Host == "" {
		return Credentials{}, &ConfigurationError{Field: "base_url", Err: fmt.Errorf("%w: %q", ErrInvalidBaseURL, creds.BaseURL)}
	}

	if creds.Token.Unwrap() == "" {
		return Credentials{}, &ConfigurationError{Field: "token", Err: ErrMissingToken}
	}

	return creds, nil
}

// expandPath substitutes every placeholder and removes the path fields from
// fields. An empty organization placeholder falls back to the credentials'
// organization, and the second result reports that it did.
func expandPath[In, Out any](op *Operation[In, Out], fields fieldpath.Object, organization string) (string, bool, error) {
	names, err := placeholders(op.Path)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op.label(), err)
	}

	path := op.Path
	defaulted := false

	for _, name := range names {
		segment, err := pathSegment(fields[name])
		if err != nil {
			return "", false, fmt.Errorf("%s: %w: %s", op.label(), err, name)
		}

		if segment == "" && name == constants.OrganizationField {
			segment = organization
			defaulted = true
		}

		if segment == "" {
			return "", false, fmt.Errorf("%s: %w: %s", op.label(), ErrMissingPathField, name)
		}

		path = strings.ReplaceAll(path, "{"+name+"}", escapePathSegment(segment))
	}

	for _, name := range names {
		delete(fields, name)
	}

	for _, name := range op.PathFields {
		delete(fields, name)
	}

	return path, defaulted, nil
}

// withOrganization returns a copy of in whose organization field holds the
// value used in the request path. in is returned unchanged when it cannot
// carry the field.
func withOrganization[In any](in In, organization string) In {
	if fields, ok := any(in).(Fields); ok {
		clone := make(Fields, len(fields)+1)
		for key, value := range fields {
			clone[key] = value
		}

		clone[constants.OrganizationField] = organization

		out, _ := any(clone).(In)

		return out
	}

	wire, err := fieldpath.Encode(in)
	if err != nil {
		return in
	}

	err = wire.Set(constants.OrganizationField, organization)
	if err != nil {
		return in
	}

	var out In

	err = wire.DecodeInto(&out)
	if err != nil {
		return in
	}

	return out
}

func classify[In, Out any](client *Client, op *Operation[In, Out], in In, resp *Response) error {
	body := parseErrorBody(resp.Body)

	if body.HasCode {
		for _, variant := range op.Errors {
			if variant.Code == body.Code && variant.New != nil {
				return variant.New(in, body.Message)
			}
		}
	}

	client.logger.Debug("Unmatched API error", map[string]any{
		"operation":   op.label(),
		"status_code": resp.StatusCode,
		"code":        body.Code,
	})

	return &APIError{
		Operation:       op.label(),
		StatusCode:      resp.StatusCode,
		Code:            body.Code,
		Message:         body.Message,
		Body:            resp.Body,
		RetryAfterDelay: parseRetryAfter(resp.Headers, time.Now()),
	}
}

func decode[In, Out any](op *Operation[In, Out], resp *Response) (Out, error) {
	var out Out

	if len(bytes.TrimSpace(resp.Body)) > 0 {
		err := json.Unmarshal(resp.Body, &out)
		if err != nil {
			var zero Out

			return zero, &ParseError{Operation: op.label(), StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
		}
	}

	err := validate(&out)
	if err != nil {
		var zero Out

		return zero, &ParseError{Operation: op.label(), StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}

	return out, nil
}

func validate[Out any](out *Out) error {
	if v, ok := any(out).(Validator); ok {
		return v.Validate()
	}

	if v, ok := any(*out).(Validator); ok {
		return v.Validate()
	}

	return nil
}

// dropNulls removes top-level null fields; absent and null are both "not sent".
func dropNulls(fields fieldpath.Object) {
	for key, value := range fields {
		if value == nil {
			delete(fields, key)
		}
	}
}
