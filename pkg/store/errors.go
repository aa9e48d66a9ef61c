package store

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrDatasetExists   = errors.New("dataset already exists")
	ErrKindMismatch    = errors.New("column kind mismatch")
	ErrLengthMismatch  = errors.New("column length mismatch")
	ErrCorrupt         = errors.New("column file corrupt")
	ErrInvalidPath     = errors.New("invalid dataset path")
	ErrStoreClosed     = errors.New("store is closed")
)

// StorageError provides structured error information for archive operations.
type StorageError struct {
	Op      string // Operation that failed (e.g., "read", "create_or_replace")
	Entity  string // Entity type ("dataset", "group", "link", "store")
	Path    string // Archive path (if applicable)
	Cause   error  // Underlying error
	Context string // Additional context
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Path != "" {
		if e.Context != "" {
			return fmt.Sprintf("%s %s %s (%s): %v", e.Op, e.Entity, e.Path, e.Context, e.Cause)
		}
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.Path, e.Cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Entity, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *StorageError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building StorageErrors.
type ErrorBuilder struct {
	err StorageError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: StorageError{Op: op}}
}

// Dataset sets the entity to "dataset" with the given path.
func (b *ErrorBuilder) Dataset(path string) *ErrorBuilder {
	b.err.Entity = "dataset"
	b.err.Path = path
	return b
}

// Group sets the entity to "group" with the given path.
func (b *ErrorBuilder) Group(path string) *ErrorBuilder {
	b.err.Entity = "group"
	b.err.Path = path
	return b
}

// Link sets the entity to "link" with the given path.
func (b *ErrorBuilder) Link(path string) *ErrorBuilder {
	b.err.Entity = "link"
	b.err.Path = path
	return b
}

// Store sets the entity to "store" rooted at dir.
func (b *ErrorBuilder) Store(dir string) *ErrorBuilder {
	b.err.Entity = "store"
	b.err.Context = dir
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed StorageError.
func (b *ErrorBuilder) Build() *StorageError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// NotFoundError creates a dataset not found error.
func NotFoundError(op, path string) error {
	return NewError(op).Dataset(path).Cause(ErrDatasetNotFound).Err()
}

// CorruptError creates a corrupt column error with a reason.
func CorruptError(path, reason string) error {
	return NewError("read").Dataset(path).Context(reason).Cause(ErrCorrupt).Err()
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDatasetNotFound)
}

// IsClosed returns true if the error indicates the store is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrStoreClosed)
}
