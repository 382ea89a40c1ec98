// Package fieldpath reads and writes fields of JSON-shaped values by wire name
// or by dotted path, so that callers can address fields of arbitrary typed
// inputs and outputs the way they appear on the wire.
package fieldpath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Static errors for err113 compliance.
var (
	ErrNotObject   = errors.New("value does not encode to a JSON object")
	ErrNotInteger  = errors.New("value is not an integer")
	ErrPathBlocked = errors.New("path crosses a non-object value")
)

// Object is the decoded form of a JSON object. Numbers are json.Number.
type Object map[string]any

// Encode converts v to its wire object form. Fields omitted by their JSON
// encoding are absent. A nil value encodes to an empty object.
func Encode(v any) (Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}

	return Parse(data)
}

// Parse decodes a JSON document that must be an object or null.
func Parse(data []byte) (Object, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Object{}, nil
	}

	if trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var obj Object

	err := decoder.Decode(&obj)
	if err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}

	return obj, nil
}

// DecodeInto converts obj back into the typed value pointed to by out.
func (o Object) DecodeInto(out any) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("decoding fields: %w", err)
	}

	return nil
}

// Clone returns a shallow copy of o.
func (o Object) Clone() Object {
	clone := make(Object, len(o))
	for key, value := range o {
		clone[key] = value
	}

	return clone
}

// Get looks up a dotted path such as "data" or "result.items". A key that is
// present with a JSON null value is reported as absent.
func (o Object) Get(path string) (any, bool) {
	var current any = map[string]any(o)

	for _, key := range strings.Split(path, ".") {
		obj, ok := asMap(current)
		if !ok {
			return nil, false
		}

		current, ok = obj[key]
		if !ok || current == nil {
			return nil, false
		}
	}

	return current, true
}

// Set assigns value at a dotted path, creating intermediate objects.
func (o Object) Set(path string, value any) error {
	keys := strings.Split(path, ".")
	current := map[string]any(o)

	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key]
		if !ok || next == nil {
			created := map[string]any{}
			current[key] = created
			current = created

			continue
		}

		nextObj, ok := asMap(next)
		if !ok {
			return fmt.Errorf("%w: %s", ErrPathBlocked, path)
		}

		current = nextObj
	}

	current[keys[len(keys)-1]] = value

	return nil
}

// Int converts a decoded JSON number to an int.
func Int(value any) (int, error) {
	switch typed := value.(type) {
	case json.Number:
		n, err := strconv.Atoi(typed.String())
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, typed)
		}

		return n, nil
	case float64:
		if typed != float64(int(typed)) {
			return 0, fmt.Errorf("%w: %v", ErrNotInteger, typed)
		}

		return int(typed), nil
	case int:
		return typed, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotInteger, value)
	}
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case Object:
		return typed, true
	default:
		return nil, false
	}
}
