// Package errors provides error categorization and retry helpers for eventplane.
//
// The package implements a layered error handling approach:
//   - Categorization: Classify errors for appropriate handling
//   - Retry: Handle transient failures with exponential backoff
//
// Domain errors elsewhere in eventplane (buffer capacity, source I/O, misuse of
// closed resources) implement Categorized so that policies such as retry can
// decide without knowing every concrete type.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: source I/O hiccups, throttling, timeouts.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: rejected requests, invalid input.
	CategoryPermanent

	// CategoryFatal indicates the failing resource is unusable from now on.
	// Examples: a stream buffer that cannot grow past its configured maximum.
	CategoryFatal

	// CategoryMisuse indicates a programming defect.
	// Examples: reading a closed buffer, building a chain without a target.
	CategoryMisuse
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryFatal:
		return "fatal"
	case CategoryMisuse:
		return "misuse"
	default:
		return "unknown"
	}
}

// Categorized is implemented by errors that know their own category.
type Categorized interface {
	error
	Category() Category
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Kind indicates how this error should be handled.
	Kind Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Kind, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Kind, e.Retries)
}

// Category implements Categorized.
func (e *CategorizedError) Category() Category {
	return e.Kind
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:     err,
		Kind:    category,
		Context: context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Fatal creates a fatal error.
func Fatal(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryFatal, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var cat Categorized
	if errors.As(err, &cat) {
		return cat.Category()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsFatal reports whether the error left its resource unusable.
func IsFatal(err error) bool {
	return Categorize(err) == CategoryFatal
}
