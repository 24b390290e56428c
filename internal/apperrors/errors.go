package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"multinet/internal/models"
)

// ErrorType is the category of a failure surfaced to callers.
type ErrorType string

const (
	// ErrorTypeConflict: a name is taken, or a table is still referenced by a graph.
	ErrorTypeConflict ErrorType = "structural_conflict"
	// ErrorTypePartialFailure: a step failed after others succeeded; compensation ran.
	ErrorTypePartialFailure ErrorType = "partial_failure"
	// ErrorTypeParse: input bytes are not valid for the declared format.
	ErrorTypeParse ErrorType = "parse_failure"
	// ErrorTypeValidation: rows or columns failed type validation beyond tolerance.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeReferential: edge endpoints do not resolve.
	ErrorTypeReferential ErrorType = "referential"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeInvalid     ErrorType = "invalid_request"
	ErrorTypeStore       ErrorType = "store"
)

// Error is the single error shape returned by the services.
type Error struct {
	Type      ErrorType
	Op        string
	Entity    string
	Message   string
	Issues    []models.Issue
	Timestamp time.Time
	Err       error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Op != "" {
		prefix += " " + e.Op
	}
	if e.Entity != "" {
		prefix += " " + e.Entity
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Type so callers can write errors.Is(err, apperrors.ErrCancelled).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && t.Message == "" && t.Op == ""
}

func New(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Sentinels for errors.Is checks. They carry only a Type.
var (
	ErrConflict       = &Error{Type: ErrorTypeConflict}
	ErrPartialFailure = &Error{Type: ErrorTypePartialFailure}
	ErrParse          = &Error{Type: ErrorTypeParse}
	ErrValidation     = &Error{Type: ErrorTypeValidation}
	ErrReferential    = &Error{Type: ErrorTypeReferential}
	ErrCancelled      = &Error{Type: ErrorTypeCancelled}
	ErrNotFound       = &Error{Type: ErrorTypeNotFound}
	ErrInvalid        = &Error{Type: ErrorTypeInvalid}
)

func Conflict(op, entity, message string) *Error {
	e := New(ErrorTypeConflict, message, nil)
	e.Op, e.Entity = op, entity
	return e
}

func NotFound(entity string) *Error {
	e := New(ErrorTypeNotFound, "not found", nil)
	e.Entity = entity
	return e
}

func Invalid(message string) *Error {
	return New(ErrorTypeInvalid, message, nil)
}

func Parse(message string, err error) *Error {
	return New(ErrorTypeParse, message, err)
}

func Cancelled(op string) *Error {
	e := New(ErrorTypeCancelled, "operation cancelled", nil)
	e.Op = op
	return e
}

// Validation carries the full issue list that made an ingest fatal.
func Validation(message string, issues []models.Issue) *Error {
	e := New(ErrorTypeValidation, message, nil)
	e.Issues = issues
	return e
}

func Referential(message string, issues []models.Issue) *Error {
	e := New(ErrorTypeReferential, message, nil)
	e.Issues = issues
	return e
}

// PartialFailure wraps the failing step's error together with any errors
// raised while compensating earlier steps.
func PartialFailure(op, step string, stepErr error, undoErrs ...error) *Error {
	e := New(ErrorTypePartialFailure, fmt.Sprintf("step %q failed", step), errors.Join(append([]error{stepErr}, undoErrs...)...))
	e.Op = op
	return e
}

// TypeOf returns the type of the first *Error in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IssuesOf returns the issues attached to err, if any.
func IssuesOf(err error) []models.Issue {
	var e *Error
	if errors.As(err, &e) {
		return e.Issues
	}
	return nil
}

func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeConflict, ErrorTypeCancelled:
		return http.StatusConflict
	case ErrorTypeParse, ErrorTypeValidation, ErrorTypeReferential:
		return http.StatusUnprocessableEntity
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
