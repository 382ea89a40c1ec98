// Package sensitive marks secret-bearing fields so that values read from the
// wire never print, log or serialize for display as their plain content.
//
// A Value is either Raw (supplied by the caller) or Wrapped (produced by
// decoding). Encoding to JSON always writes the plain content, so either form
// can be sent; decoding from JSON always yields a Wrapped value.
//
// Value is a struct, so omitempty has no effect on it. Tag optional secret
// fields with omitzero to leave them out when unset:
//
//	Password sensitive.String `json:"password,omitzero"`
package sensitive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
)

// Placeholder is what a Value renders as in any human-facing form.
const Placeholder = "<redacted>"

// Value holds a secret of type T.
type Value[T any] struct {
	value   T
	wrapped bool
}

// String is the common case of a secret string.
type String = Value[string]

// Raw returns a caller-supplied value.
func Raw[T any](v T) Value[T] {
	return Value[T]{value: v}
}

// Wrap returns a redaction-wrapped value.
func Wrap[T any](v T) Value[T] {
	return Value[T]{value: v, wrapped: true}
}

// Unwrap returns the plain content for either form.
func (v Value[T]) Unwrap() T {
	return v.value
}

// IsWrapped reports whether v was produced by Wrap or by decoding.
func (v Value[T]) IsWrapped() bool {
	return v.wrapped
}

// Wrapped returns v in wrapped form.
func (v Value[T]) Wrapped() Value[T] {
	return Wrap(v.value)
}

// IsZero reports whether the content is the zero value of T, in either form.
// encoding/json consults it for omitzero.
func (v Value[T]) IsZero() bool {
	return reflect.ValueOf(&v.value).Elem().IsZero()
}

// String implements fmt.Stringer.
func (v Value[T]) String() string {
	return Placeholder
}

// GoString implements fmt.GoStringer so %#v stays redacted too.
func (v Value[T]) GoString() string {
	return Placeholder
}

// Format implements fmt.Formatter for every verb.
func (v Value[T]) Format(state fmt.State, _ rune) {
	_, _ = fmt.Fprint(state, Placeholder)
}

// LogValue implements slog.LogValuer.
func (v Value[T]) LogValue() slog.Value {
	return slog.StringValue(Placeholder)
}

// MarshalYAML keeps secrets out of YAML dumps of configuration or responses.
func (v Value[T]) MarshalYAML() (any, error) {
	return Placeholder, nil
}

// MarshalJSON writes the plain content for transmission.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(v.value)
	if err != nil {
		return nil, fmt.Errorf("encoding sensitive value: %w", err)
	}

	return data, nil
}

// UnmarshalJSON decodes the plain content and wraps it.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	var decoded T

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return fmt.Errorf("decoding sensitive value: %w", err)
	}

	*v = Wrap(decoded)

	return nil
}
