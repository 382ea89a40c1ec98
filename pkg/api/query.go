package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fivetwenty-io/restkit/internal/fieldpath"
)

// encodeQuery renders wire fields as query parameters. Strings are sent
// verbatim, numbers and booleans as literals, arrays as repeated parameters
// and objects as compact JSON.
func encodeQuery(fields fieldpath.Object) url.Values {
	values := url.Values{}

	for key, value := range fields {
		switch typed := value.(type) {
		case nil:
			continue
		case []any:
			for _, element := range typed {
				if element != nil {
					values.Add(key, queryValue(element))
				}
			}
		default:
			values.Set(key, queryValue(typed))
		}
	}

	return values
}

func queryValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}

		return string(data)
	}
}

// pathSegment renders a scalar path field. An absent field yields "".
func pathSegment(value any) (string, error) {
	switch typed := value.(type) {
	case nil:
		return "", nil
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return "", ErrInvalidPathField
	}
}

func escapePathSegment(segment string) string {
	return url.PathEscape(segment)
}
