// Package errdefs defines the classified errors returned by every manifold
// package. Each error carries a Kind naming the stage that failed and a Code
// for programmatic handling.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind represents the stage of the pipeline an error originates from.
type Kind string

const (
	// KindSchema indicates a missing, incompatible or unsupported manifest version.
	KindSchema Kind = "schema"

	// KindEnvironment indicates the synthetic project context could not be built.
	// An unsupported generation is a build-time configuration defect.
	KindEnvironment Kind = "environment"

	// KindGraph indicates a corrupt or hand-edited manifest: a dangling
	// reference or a dependency cycle.
	KindGraph Kind = "graph"

	// KindSelection indicates a malformed expression or a state predicate
	// evaluated without a base snapshot. Fatal to that call only.
	KindSelection Kind = "selection"

	// KindEncoding indicates an unsupported output format.
	KindEncoding Kind = "encoding"
)

// Error represents a classified error with context.
type Error struct {
	// Kind is the pipeline stage that failed.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the unique id, pattern or path that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context such as expected and found versions.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two errors match when kind and code are equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewSchemaError creates a new schema error.
func NewSchemaError(message string, err error) *Error {
	return newError(KindSchema, message, err)
}

// NewEnvironmentError creates a new environment error.
func NewEnvironmentError(message string, err error) *Error {
	return newError(KindEnvironment, message, err)
}

// NewGraphError creates a new graph error.
func NewGraphError(message string, err error) *Error {
	return newError(KindGraph, message, err)
}

// NewSelectionError creates a new selection error.
func NewSelectionError(message string, err error) *Error {
	return newError(KindSelection, message, err)
}

// NewEncodingError creates a new encoding error.
func NewEncodingError(message string, err error) *Error {
	return newError(KindEncoding, message, err)
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of err, or the empty kind if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or the empty string if err is not classified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err is a classified error carrying code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// IsSchema returns true if the error is classified as a schema error.
func IsSchema(err error) bool {
	return KindOf(err) == KindSchema
}

// IsEnvironment returns true if the error is classified as an environment error.
func IsEnvironment(err error) bool {
	return KindOf(err) == KindEnvironment
}

// IsGraph returns true if the error is classified as a graph error.
func IsGraph(err error) bool {
	return KindOf(err) == KindGraph
}

// IsSelection returns true if the error is classified as a selection error.
func IsSelection(err error) bool {
	return KindOf(err) == KindSelection
}

// IsEncoding returns true if the error is classified as an encoding error.
func IsEncoding(err error) bool {
	return KindOf(err) == KindEncoding
}

// Error codes.
const (
	CodeMissingVersion        = "MISSING_VERSION"
	CodeUnsupportedVersion    = "UNSUPPORTED_VERSION"
	CodeIncompatibleVersion   = "INCOMPATIBLE_VERSION"
	CodeInvalidDocument       = "INVALID_DOCUMENT"
	CodeUnsupportedGeneration = "UNSUPPORTED_GENERATION"
	CodeProjectLoad           = "PROJECT_LOAD"
	CodeScratchDir            = "SCRATCH_DIR"
	CodeInvalidContext        = "INVALID_CONTEXT"
	CodeDanglingReference     = "DANGLING_REFERENCE"
	CodeCycleDetected         = "CYCLE_DETECTED"
	CodeDuplicateID           = "DUPLICATE_ID"
	CodeNoBaseState           = "NO_BASE_STATE"
	CodeMalformedExpression   = "MALFORMED_EXPRESSION"
	CodeUnsupportedFormat     = "UNSUPPORTED_FORMAT"
)
