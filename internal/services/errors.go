package services

import "errors"

// Sentinel errors returned by the service layer. Handlers map these onto the
// HTTP error envelope; nothing else should leak out of a service call.
var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrExpiredCredential   = errors.New("credential has expired")
	ErrMalformedCredential = errors.New("credential is malformed")
	ErrAccountDisabled     = errors.New("account is disabled")

	ErrNotFound   = errors.New("record not found")
	ErrForbidden  = errors.New("access denied")
	ErrValidation = errors.New("validation failed")

	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")

	ErrNotConfigured       = errors.New("service not configured")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrUnparsableResponse  = errors.New("upstream response could not be parsed")
)
