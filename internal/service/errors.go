// Package service provides business logic services for Alexander Assets.
package service

import "errors"

// Common service errors.
var (
	// ErrInternalError wraps unexpected repository failures.
	ErrInternalError = errors.New("internal server error")
)
