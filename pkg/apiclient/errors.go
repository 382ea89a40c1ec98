package apiclient

import "errors"

// Static errors for err113 compliance.
var (
	ErrConfigRequired = errors.New("config is required")
)
