package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrNoAPIKeys indicates rotation or lookup was requested with no keys configured
	ErrNoAPIKeys = errors.New("no api keys configured")

	// ErrUnknownSettingsKey indicates a field name outside the persisted layout
	ErrUnknownSettingsKey = errors.New("unknown settings key")

	// ErrUnknownMessageType indicates a message type the router does not handle
	ErrUnknownMessageType = errors.New("unknown request type")

	// ErrTargetUnreachable indicates a context could not be reached during broadcast
	ErrTargetUnreachable = errors.New("target unreachable")

	// ErrServiceUnavailable indicates the settings service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
