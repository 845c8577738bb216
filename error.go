package wranglz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Error provides rich context about transformation and construction
// failures. It wraps the underlying error with the path of named components
// the failure traveled through, the input that caused it, and timing
// information.
type Error struct {
	Timestamp time.Time
	InputData cty.Value
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface, providing a detailed error message.
func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return e.Err.Error()
	}
	location := strings.Join(e.Path, " -> ")

	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *Error) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the error was caused by cancellation.
func (e *Error) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// wrapError converts a failure from a named component into an *Error. If the
// failure already is one, the component name is prepended to its path so the
// outermost name comes first; otherwise a fresh *Error is built around it.
func wrapError(name Name, err error, input cty.Value, start time.Time) *Error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		engineErr.Path = append([]Name{name}, engineErr.Path...)
		return engineErr
	}
	return &Error{
		Path:      []Name{name},
		InputData: input,
		Err:       err,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// MissingKeyError reports a key expected in a mapping or an index expected
// in a sequence that was not there.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q", e.Key)
}

// ConversionError reports a value that was present but could not be
// converted to the requested type.
type ConversionError struct {
	Reason error
	Got    cty.Type
	Want   cty.Type
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s: %v", e.Got.FriendlyName(), e.Want.FriendlyName(), e.Reason)
}

// Unwrap returns the conversion failure reported by the underlying
// conversion machinery.
func (e *ConversionError) Unwrap() error {
	return e.Reason
}

// UnknownTypeError reports a construction request for a type the Schema has
// no entry for.
type UnknownTypeError struct {
	TypeName string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.TypeName)
}

// FieldConstructionError wraps a step failure with the owning type and
// field so callers can tell exactly which declaration failed.
type FieldConstructionError struct {
	Err      error
	TypeName string
	Field    string
}

func (e *FieldConstructionError) Error() string {
	return fmt.Sprintf("failed @ %s.%s: %v", e.TypeName, e.Field, e.Err)
}

// Unwrap returns the step failure that aborted the field.
func (e *FieldConstructionError) Unwrap() error {
	return e.Err
}

// ConstructorError reports field values that could not be bound onto a new
// instance of the target type. With a validated Schema this indicates a
// value/field-type mismatch discovered at bind time.
type ConstructorError struct {
	Err      error
	TypeName string
	Field    string
}

func (e *ConstructorError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot construct %s: %v", e.TypeName, e.Err)
	}
	return fmt.Sprintf("cannot construct %s: field %s: %v", e.TypeName, e.Field, e.Err)
}

// Unwrap returns the underlying binding failure.
func (e *ConstructorError) Unwrap() error {
	return e.Err
}

// SchemaError reports a declaration problem: duplicate registration, a
// field name that resolves to no struct field, registration after freeze,
// an unregistered construction target, or a cycle in the declared type
// graph.
type SchemaError struct {
	Reason   error
	TypeName string
	Field    string
}

func (e *SchemaError) Error() string {
	switch {
	case e.TypeName == "":
		return fmt.Sprintf("schema: %v", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("schema: type %s: %v", e.TypeName, e.Reason)
	default:
		return fmt.Sprintf("schema: type %s: field %s: %v", e.TypeName, e.Field, e.Reason)
	}
}

// Unwrap returns the underlying declaration problem.
func (e *SchemaError) Unwrap() error {
	return e.Reason
}
