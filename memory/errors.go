package memory

import "errors"

// Kind categorizes an engine error.
type Kind string

const (
	// KindValidation marks malformed or missing caller input. Never retried.
	KindValidation Kind = "validation_error"
	// KindConnection marks an unreachable or timed-out backing store.
	// Retried once at the operation boundary before surfacing.
	KindConnection Kind = "connection_error"
	// KindSchema marks a missing or incompatible index schema. Fatal at
	// startup, not per-operation.
	KindSchema Kind = "schema_error"
	// KindStoreWrite marks a write the index rejected after the input had
	// already passed validation and embedding.
	KindStoreWrite Kind = "store_write_error"
)

// Error is the engine's typed error. "Nothing found" is never an Error;
// empty results and false are normal outcomes.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewConnectionError creates a connection error wrapping cause.
func NewConnectionError(message string, cause error) *Error {
	return &Error{Kind: KindConnection, Message: message, Err: cause}
}

// NewSchemaError creates a schema error wrapping cause.
func NewSchemaError(message string, cause error) *Error {
	return &Error{Kind: KindSchema, Message: message, Err: cause}
}

// NewStoreWriteError creates a store-write error wrapping cause.
func NewStoreWriteError(message string, cause error) *Error {
	return &Error{Kind: KindStoreWrite, Message: message, Err: cause}
}

func isKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsValidation checks whether err is a validation error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsConnection checks whether err is a connection error.
func IsConnection(err error) bool { return isKind(err, KindConnection) }

// IsSchema checks whether err is a schema error.
func IsSchema(err error) bool { return isKind(err, KindSchema) }

// IsStoreWrite checks whether err is a store-write error.
func IsStoreWrite(err error) bool { return isKind(err, KindStoreWrite) }

// ErrorKind returns the Kind of err, or an empty Kind for untyped errors.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
