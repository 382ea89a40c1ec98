// Package category classifies errors by semantic tags so callers can decide how
// to react to a failure without knowing every concrete error type.
//
// An error type attaches categories once, when the type is defined, by
// implementing Categorized:
//
//	type DatabaseNotFound struct{ Database, Message string }
//
//	func (e *DatabaseNotFound) Error() string { return e.Message }
//
//	func (*DatabaseNotFound) Categories() []category.Category {
//	  return []category.Category{category.NotFound}
//	}
//
// Errors whose type the caller does not own can be tagged with Tag. Wrapping
// with fmt.Errorf("...: %w", err) keeps the categories visible to Has.
package category

import "slices"

// Category is an opaque classification tag attached to an error type.
type Category string

// Built-in categories.
const (
	Auth          Category = "AuthError"
	NotFound      Category = "NotFoundError"
	Conflict      Category = "ConflictError"
	Throttling    Category = "ThrottlingError"
	Network       Category = "NetworkError"
	Server        Category = "ServerError"
	Configuration Category = "ConfigurationError"
	Parse         Category = "ParseError"
)

// transient lists the categories presumed worth retrying.
var transient = []Category{Throttling, Server, Network}

// Categorized is implemented by error types that carry categories.
type Categorized interface {
	error
	Categories() []Category
}

// Has reports whether any error in err's tree carries c.
func Has(err error, c Category) bool {
	found := false

	walk(err, func(cats []Category) bool {
		found = slices.Contains(cats, c)

		return !found
	})

	return found
}

// HasAny reports whether err carries at least one of cats.
func HasAny(err error, cats ...Category) bool {
	for _, c := range cats {
		if Has(err, c) {
			return true
		}
	}

	return false
}

// Of returns the sorted set of categories carried anywhere in err's tree.
func Of(err error) []Category {
	var all []Category

	walk(err, func(cats []Category) bool {
		all = append(all, cats...)

		return true
	})

	slices.Sort(all)

	return slices.Compact(all)
}

// IsTransient reports whether err is a throttling, server or network failure.
func IsTransient(err error) bool {
	return HasAny(err, transient...)
}

// Catch passes err to handler when it carries one of cats. Any other error,
// including nil, is returned unchanged.
func Catch(err error, handler func(error) error, cats ...Category) error {
	if err == nil || !HasAny(err, cats...) {
		return err
	}

	return handler(err)
}

// CatchValue is Catch for calls returning a value alongside the error.
func CatchValue[T any](value T, err error, handler func(error) (T, error), cats ...Category) (T, error) {
	if err == nil || !HasAny(err, cats...) {
		return value, err
	}

	return handler(err)
}

// Tag wraps err so that it carries cats in addition to its own categories.
// A nil err stays nil.
func Tag(err error, cats ...Category) error {
	if err == nil {
		return nil
	}

	return &taggedError{err: err, cats: slices.Clone(cats)}
}

type taggedError struct {
	err  error
	cats []Category
}

func (e *taggedError) Error() string {
	return e.err.Error()
}

func (e *taggedError) Unwrap() error {
	return e.err
}

func (e *taggedError) Categories() []Category {
	return e.cats
}

// walk visits the categories of every Categorized error in the tree rooted at
// err, depth first, until visit returns false.
func walk(err error, visit func([]Category) bool) bool {
	if err == nil {
		return true
	}

	if c, ok := err.(Categorized); ok && !visit(c.Categories()) {
		return false
	}

	switch unwrapped := err.(type) {
	case interface{ Unwrap() error }:
		return walk(unwrapped.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, inner := range unwrapped.Unwrap() {
			if !walk(inner, visit) {
				return false
			}
		}
	}

	return true
}
