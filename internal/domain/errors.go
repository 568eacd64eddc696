// Package domain contains the core business entities for Alexander Assets.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Asset Errors
	// ===========================================

	// ErrAssetNotFound indicates the requested asset does not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrEmptyUpload indicates an upload carried no content.
	ErrEmptyUpload = errors.New("upload is empty")

	// ===========================================
	// Variation Errors
	// ===========================================

	// ErrVariationNotFound indicates the requested variation does not exist.
	ErrVariationNotFound = errors.New("variation not found")

	// ErrVariationExists indicates the (original, name) pair is already taken.
	ErrVariationExists = errors.New("variation already exists")

	// ErrDimensionTooLarge indicates a requested variation exceeds the size limit.
	ErrDimensionTooLarge = errors.New("requested dimensions too large")

	// ErrTransformFailed indicates the image engine could not decode, process or encode.
	ErrTransformFailed = errors.New("image transform failed")

	// ===========================================
	// Delivery Errors
	// ===========================================

	// ErrRangeNotSatisfiable indicates a Range header could not be honored.
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")

	// ===========================================
	// Blob/Storage Errors
	// ===========================================

	// ErrBlobNotFound indicates the asset's blob is missing from its disk.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrStorageFailure indicates a disk operation failed.
	ErrStorageFailure = errors.New("storage operation failed")

	// ErrDiskNotFound indicates an asset references a disk that is not configured.
	ErrDiskNotFound = errors.New("disk not configured")

	// ===========================================
	// Configuration Errors
	// ===========================================

	// ErrInvalidPathGenerator indicates an unknown path generator strategy.
	ErrInvalidPathGenerator = errors.New("invalid path generator")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., asset id, disk name).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
