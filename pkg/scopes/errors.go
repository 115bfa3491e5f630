package scopes

import "errors"

var (
	// ErrInvalidScope is returned when a scope is not valid
	ErrInvalidScope = errors.New("scopes: invalid scope format")
	// ErrScopeNotAllowed is returned when a scope is not granted or not in the allowed list
	ErrScopeNotAllowed = errors.New("scopes: scope not in allowed list")
	// ErrMissingToken is returned when a credential carries no token
	ErrMissingToken = errors.New("scopes: missing token")
	// ErrUnsupportedCredential is returned for credentials that are not tokens
	ErrUnsupportedCredential = errors.New("scopes: unsupported credential type")
)
