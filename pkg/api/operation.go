package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/fivetwenty-io/restkit/pkg/retry"
)

// ErrorVariant maps a wire-level error code to a typed error. New receives the
// original input and the error body's message (empty when absent).
type ErrorVariant[In any] struct {
	Code string
	New  func(in In, message string) error
}

// Operation describes one remote endpoint. Descriptors are built once and
// shared by every call; they are never mutated.
//
// Input fields named in PathFields are substituted into Path. The remaining
// fields become the JSON body for mutating methods and the query string for
// GET and HEAD. Errors is scanned in order and the first matching code wins.
type Operation[In, Out any] struct {
	Name       string
	Method     string
	Path       string
	PathFields []string
	Errors     []ErrorVariant[In]
}

// NewOperation builds a descriptor whose PathFields are the placeholders of
// path, in order of appearance.
func NewOperation[In, Out any](name, method, path string, variants ...ErrorVariant[In]) *Operation[In, Out] {
	fields, _ := placeholders(path)

	return &Operation[In, Out]{
		Name:       name,
		Method:     method,
		Path:       path,
		PathFields: fields,
		Errors:     variants,
	}
}

// Validate checks the descriptor: a well-formed template whose placeholders
// are all declared path fields, and unique error codes.
func (op *Operation[In, Out]) Validate() error {
	fields, err := placeholders(op.Path)
	if err != nil {
		return fmt.Errorf("%s: %w", op.Name, err)
	}

	for _, field := range fields {
		if !slices.Contains(op.PathFields, field) {
			return fmt.Errorf("%s: %w: %s", op.Name, ErrUndeclaredPathField, field)
		}
	}

	seen := make(map[string]struct{}, len(op.Errors))

	for _, variant := range op.Errors {
		if _, ok := seen[variant.Code]; ok {
			return fmt.Errorf("%s: %w: %s", op.Name, ErrDuplicateErrorCode, variant.Code)
		}

		seen[variant.Code] = struct{}{}
	}

	return nil
}

// Call performs the operation once.
func (op *Operation[In, Out]) Call(ctx context.Context, client *Client, in In) (Out, error) {
	return Call(ctx, client, op, in)
}

// CallWithRetry performs the operation under policy. A nil policy uses
// retry.Default().
func (op *Operation[In, Out]) CallWithRetry(ctx context.Context, client *Client, in In, policy *retry.Policy) (Out, error) {
	return retry.Do(ctx, policy, func(ctx context.Context) (Out, error) {
		return Call(ctx, client, op, in)
	})
}

// Bind returns the operation as a plain function of its input, the shape the
// pagination and retry engines consume.
func (op *Operation[In, Out]) Bind(client *Client) func(ctx context.Context, in In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		return Call(ctx, client, op, in)
	}
}

// BindWithRetry is Bind with every page or call wrapped in policy.
func (op *Operation[In, Out]) BindWithRetry(client *Client, policy *retry.Policy) func(ctx context.Context, in In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		return op.CallWithRetry(ctx, client, in, policy)
	}
}

func (op *Operation[In, Out]) label() string {
	if op.Name != "" {
		return op.Name
	}

	return op.Method + " " + op.Path
}

// sendsBody reports whether non-path fields travel in the body.
func (op *Operation[In, Out]) sendsBody() bool {
	switch strings.ToUpper(op.Method) {
	case http.MethodGet, http.MethodHead:
		return false
	default:
		return true
	}
}

// placeholders lists the {name} placeholders of a path template.
func placeholders(path string) ([]string, error) {
	var fields []string

	rest := path

	for {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')

		if open < 0 {
			if closing >= 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPathTemplate, path)
			}

			return fields, nil
		}

		if closing < open {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPathTemplate, path)
		}

		name := rest[open+1 : closing]
		if name == "" || strings.ContainsAny(name, "{/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPathTemplate, path)
		}

		if !slices.Contains(fields, name) {
			fields = append(fields, name)
		}

		rest = rest[closing+1:]
	}
}

// List is the default paginated response shape.
type List[T any] struct {
	CurrentPage int  `json:"current_page"`
	NextPage    *int `json:"next_page"`
	PrevPage    *int `json:"prev_page"`
	Data        []T  `json:"data"`
}

// HasNext reports whether another page follows.
func (l List[T]) HasNext() bool {
	return l.NextPage != nil
}

// PageParams carries the default pagination input fields. Embed it in list inputs.
type PageParams struct {
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
}

// Empty is the output of operations that return no body of interest.
type Empty struct{}

// Validator is implemented by outputs that check their own shape after decoding.
type Validator interface {
	Validate() error
}
