// Package errors provides the error taxonomy shared by the map codec,
// the format interpreters and the version converter.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrIO indicates a resource could not be opened, closed or seeked
	ErrIO = errors.New("i/o failure")
	// ErrRead indicates a short read from a byte stream
	ErrRead = errors.New("short read")
	// ErrWrite indicates a short write to a byte stream
	ErrWrite = errors.New("short write")
	// ErrUnrecognizedFormat indicates a bad magic or file identifier
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	// ErrTypeMismatch indicates a node had an unexpected type tag
	ErrTypeMismatch = errors.New("node type mismatch")
	// ErrStructure indicates a violation of the node-tree shape
	ErrStructure = errors.New("structure violation")
	// ErrUnsupportedVersion indicates a version outside the supported set
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrEncoding indicates a value that cannot be encoded or decoded
	ErrEncoding = errors.New("encoding error")
	// ErrCancelled indicates the operation was cancelled by the caller
	ErrCancelled = errors.New("cancelled")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
)

// IOError represents a failure to acquire or release a resource.
type IOError struct {
	Operation string // Operation being performed (e.g., "open", "close", "rename")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// ReadError reports fewer bytes available than requested.
type ReadError struct {
	Offset int64 // Stream offset where the read started
	Want   int   // Bytes requested
	Got    int   // Bytes actually read
	Err    error // Underlying error, if any
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read at offset %d: wanted %d bytes, got %d", e.Offset, e.Want, e.Got)
}

func (e *ReadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrRead
}

func (e *ReadError) Is(target error) bool {
	return target == ErrRead
}

// WriteError reports a short or failed write.
type WriteError struct {
	Offset int64
	Want   int
	Got    int
	Err    error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write at offset %d: wrote %d of %d bytes: %v", e.Offset, e.Got, e.Want, e.Err)
	}
	return fmt.Sprintf("write at offset %d: wrote %d of %d bytes", e.Offset, e.Got, e.Want)
}

func (e *WriteError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrWrite
}

func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}

// UnrecognizedFormatError represents a file whose identifier matches no known format.
type UnrecognizedFormatError struct {
	Path       string // File path, if applicable
	Identifier []byte // Identifier bytes that were found
}

func (e *UnrecognizedFormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("unrecognized format in %s: identifier % x", e.Path, e.Identifier)
	}
	return fmt.Sprintf("unrecognized format: identifier % x", e.Identifier)
}

func (e *UnrecognizedFormatError) Unwrap() error {
	return ErrUnrecognizedFormat
}

// TypeMismatchError represents a node whose type tag is not the one expected.
type TypeMismatchError struct {
	Context  string // What was being read (e.g., "map data", "tile area")
	Expected []byte // Acceptable type tags
	Actual   byte   // Type tag found
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: unexpected node type %d (want one of %v)", e.Context, e.Actual, e.Expected)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// StructureError represents a violation of the node-tree shape.
type StructureError struct {
	Context string // Where the violation happened
	Message string // What was wrong
}

func (e *StructureError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Context, e.Message)
	}
	return e.Message
}

func (e *StructureError) Unwrap() error {
	return ErrStructure
}

// UnsupportedVersionError represents a version outside the supported set,
// or a pair of versions with no conversion path between them.
type UnsupportedVersionError struct {
	Kind    string // "structure", "client" or "conversion"
	Version string // Offending version, rendered for humans
	Reason  string // Why it's not supported
}

func (e *UnsupportedVersionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s version %s: %s", e.Kind, e.Version, e.Reason)
	}
	return fmt.Sprintf("unsupported %s version %s", e.Kind, e.Version)
}

func (e *UnsupportedVersionError) Unwrap() error {
	return ErrUnsupportedVersion
}

// EncodingError represents a value that cannot be encoded or decoded,
// such as an oversized short string or a dangling escape byte.
type EncodingError struct {
	Message string
	Err     error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding: %s: %v", e.Message, e.Err)
	}
	return "encoding: " + e.Message
}

func (e *EncodingError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrEncoding
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "job", "mapping", "blob")
	ID       string // Identifier of the resource
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ParseError represents a parsing failure in a text document such as a
// mapping table, an item catalog or a rules file.
type ParseError struct {
	Format  string // Format being parsed (e.g., "XML", "rules")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Helper functions for creating common errors

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// NewStructure creates a StructureError
func NewStructure(context, format string, args ...interface{}) *StructureError {
	return &StructureError{Context: context, Message: fmt.Sprintf(format, args...)}
}

// NewTypeMismatch creates a TypeMismatchError
func NewTypeMismatch(context string, actual byte, expected ...byte) *TypeMismatchError {
	return &TypeMismatchError{Context: context, Expected: expected, Actual: actual}
}

// NewUnsupportedVersion creates an UnsupportedVersionError
func NewUnsupportedVersion(kind, version, reason string) *UnsupportedVersionError {
	return &UnsupportedVersionError{Kind: kind, Version: version, Reason: reason}
}

// NewEncoding creates an EncodingError
func NewEncoding(format string, args ...interface{}) *EncodingError {
	return &EncodingError{Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Fatal reports whether err must abort a whole load rather than being
// downgraded to a warning for the current tile or item.
func Fatal(err error) bool {
	return errors.Is(err, ErrUnrecognizedFormat) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrIO) ||
		errors.Is(err, ErrCancelled)
}
