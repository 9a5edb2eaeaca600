// Package errors provides structured error types for storyforge.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for storyforge.
const (
	// Lookup errors
	CodeProjectNotFound Code = "PROJECT_NOT_FOUND"
	CodeEntityNotFound  Code = "ENTITY_NOT_FOUND"

	// Tier errors
	CodeRemoteUnavailable     Code = "REMOTE_UNAVAILABLE"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
	CodeDeserializationFailed Code = "DESERIALIZATION_FAILED"
	CodeWriteFailed           Code = "WRITE_FAILED"

	// Validation errors
	CodeInvalidReference Code = "INVALID_REFERENCE"
	CodeProjectExists    Code = "PROJECT_EXISTS"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Archive errors
	CodeArchiveFailed Code = "ARCHIVE_FAILED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
)

var codeCategories = map[Code]Category{
	CodeProjectNotFound:       CategoryNotFound,
	CodeEntityNotFound:        CategoryNotFound,
	CodeRemoteUnavailable:     CategoryUnavailable,
	CodeStoreUnavailable:      CategoryUnavailable,
	CodeDeserializationFailed: CategoryInternal,
	CodeWriteFailed:           CategoryInternal,
	CodeInvalidReference:      CategoryBadRequest,
	CodeProjectExists:         CategoryConflict,
	CodeConfigInvalid:         CategoryBadRequest,
	CodeConfigMissing:         CategoryBadRequest,
	CodeArchiveFailed:         CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// StoryError is the structured error type for storyforge.
type StoryError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *StoryError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *StoryError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *StoryError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *StoryError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *StoryError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *StoryError) MarshalJSON() ([]byte, error) {
	type alias StoryError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a StoryError with the same code.
func (e *StoryError) Is(target error) bool {
	t, ok := target.(*StoryError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *StoryError) WithCause(err error) *StoryError {
	return &StoryError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrProjectNotFound returns an error when no tier knows the project.
func ErrProjectNotFound(id string) *StoryError {
	return &StoryError{
		Code: CodeProjectNotFound,
		What: fmt.Sprintf("project %s not found", id),
		Why:  "No project with this ID exists in the cache, the local store, or the remote source",
		Fix:  "Run 'storyforge list' to see known projects, or 'storyforge sync' to pull from the remote",
	}
}

// ErrProjectExists returns an error when a create names a project id that is
// already taken.
func ErrProjectExists(id string) *StoryError {
	return &StoryError{
		Code: CodeProjectExists,
		What: fmt.Sprintf("project %s already exists", id),
		Fix:  "Update the existing project, or create without an id to get a fresh one",
	}
}

// ErrEntityNotFound returns an error for a missing child entity.
func ErrEntityNotFound(kind, id string) *StoryError {
	return &StoryError{
		Code: CodeEntityNotFound,
		What: fmt.Sprintf("%s %s not found", kind, id),
	}
}

// ErrRemoteUnavailable returns an error when the remote source could not be reached.
func ErrRemoteUnavailable(op string) *StoryError {
	return &StoryError{
		Code: CodeRemoteUnavailable,
		What: fmt.Sprintf("remote %s failed", op),
		Why:  "The remote project API did not answer successfully and no local data was available",
		Fix:  "Check remote.base_url, or run with --offline to use local data only",
	}
}

// ErrStoreUnavailable returns an error when the persistent store cannot be opened.
func ErrStoreUnavailable(dsn string) *StoryError {
	return &StoryError{
		Code: CodeStoreUnavailable,
		What: "persistent store unavailable",
		Why:  fmt.Sprintf("Could not open %s", dsn),
		Fix:  "Check the database section of the config",
	}
}

// ErrDeserializationFailed returns an error for an unreadable stored factory.
func ErrDeserializationFailed(projectID, component string) *StoryError {
	return &StoryError{
		Code: CodeDeserializationFailed,
		What: fmt.Sprintf("factory %s has an unreadable %s component", projectID, component),
	}
}

// ErrWriteFailed returns an error when a mutation could not be persisted.
// The mutation is still applied in memory.
func ErrWriteFailed(projectID string) *StoryError {
	return &StoryError{
		Code: CodeWriteFailed,
		What: fmt.Sprintf("persisting factory %s failed", projectID),
		Why:  "The change is applied for this session but was not written to the local store",
	}
}

// ErrInvalidReference returns an error for a dangling cross-entity reference.
func ErrInvalidReference(kind, id, ref string) *StoryError {
	return &StoryError{
		Code: CodeInvalidReference,
		What: fmt.Sprintf("%s %s references unknown %s", kind, id, ref),
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *StoryError {
	return &StoryError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .storyforge/config.yaml and fix the invalid field",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *StoryError {
	return &StoryError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
		Why:  "This field is required but not set in configuration",
		Fix:  fmt.Sprintf("Add '%s' to .storyforge/config.yaml", field),
	}
}

// ErrArchiveFailed returns an error for a failed export or import.
func ErrArchiveFailed(key string) *StoryError {
	return &StoryError{
		Code: CodeArchiveFailed,
		What: fmt.Sprintf("archive entry %s failed", key),
	}
}

// AsStoryError attempts to convert an error to a StoryError.
// Returns nil if the error is not a StoryError.
func AsStoryError(err error) *StoryError {
	var se *StoryError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err is, or wraps, a StoryError with the given code.
func HasCode(err error, code Code) bool {
	se := AsStoryError(err)
	return se != nil && se.Code == code
}

// Wrap wraps a generic error into a StoryError with unknown code.
func Wrap(err error, what string) *StoryError {
	return &StoryError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
