package domain

import "errors"

// Validation errors for inbound webhook events.
var (
	ErrMissingEventID   = errors.New("event id is required")
	ErrMissingEventType = errors.New("event type is required")
	ErrMissingObjectRef = errors.New("event payload is missing the object reference")
)
