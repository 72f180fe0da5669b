package acton

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for unknown predictor, recommender or database kinds.
	// It is always raised before any storage is opened.
	ErrConfiguration = errors.New("configuration error")

	// ErrSchemaMismatch is returned when a dtype or dimensionality conflicts with the
	// persisted schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrCorruptStore is returned when a persisted store fails structural validation.
	ErrCorruptStore = errors.New("corrupt store")

	// ErrDimensionMismatch is returned when id counts disagree with array shapes on write.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrMissingSchema is returned when reading before dimensionality is established.
	ErrMissingSchema = errors.New("missing schema")

	// ErrReadOnly is returned by write operations on read-only databases.
	ErrReadOnly = errors.New("read-only database")

	// ErrUnsupported is returned for operations that are not yet supported,
	// such as reading labels from more than one labeller.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrClosed is returned when a database is used outside its open scope.
	ErrClosed = errors.New("database is closed")

	// ErrOutOfRange is returned when an id addresses a row beyond the stored extent.
	ErrOutOfRange = errors.New("id out of range")
)

// SchemaMismatchError describes a conflict between a requested or supplied
// value and the schema.
//
// It unwraps to ErrSchemaMismatch.
type SchemaMismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: incompatible %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// DimensionMismatchError indicates that an array axis does not match the
// number of ids supplied with it.
//
// It unwraps to ErrDimensionMismatch.
type DimensionMismatchError struct {
	Axis     string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.Axis, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// CorruptStoreError reports why a persisted store was rejected.
//
// The original underlying error (if any) can be accessed via errors.Unwrap;
// errors.Is(err, ErrCorruptStore) always holds.
type CorruptStoreError struct {
	Path   string
	Reason string
	cause  error
}

// NewCorruptStoreError creates a CorruptStoreError with an optional cause.
func NewCorruptStoreError(path, reason string, cause error) *CorruptStoreError {
	return &CorruptStoreError{Path: path, Reason: reason, cause: cause}
}

func (e *CorruptStoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("corrupt store %s: %s: %v", e.Path, e.Reason, e.cause)
	}
	return fmt.Sprintf("corrupt store %s: %s", e.Path, e.Reason)
}

func (e *CorruptStoreError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrCorruptStore}
	}
	return []error{ErrCorruptStore, e.cause}
}

// Configurationf formats an ErrConfiguration error.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
