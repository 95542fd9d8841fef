package booking

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session date or time")
	ErrFamilyNotFound  = errors.New("family code not found")
	ErrInvalidScope    = errors.New("invalid status scope")
)
