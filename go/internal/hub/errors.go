package hub

import "errors"

var (
	ErrNotFound        = errors.New("notification not found")
	ErrInvalidRequest  = errors.New("invalid notification request")
	ErrMissingIdentity = errors.New("identity is required")
)
