// Package errs defines the error taxonomy shared by the workflow engine:
// validation failures, illegal state transitions, missing entities, and
// collaborator outages. Handlers map these onto HTTP status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ValidationError reports malformed or incomplete input caught before any
// state mutation. Missing lists every unmet requirement so the caller can
// fix them all in one pass.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Missing, "; ")
}

// Validation builds a ValidationError from the list of unmet requirements.
func Validation(missing ...string) *ValidationError {
	return &ValidationError{Missing: missing}
}

// PreconditionError reports an illegal state transition. Current carries the
// entity's present status so the caller can reconcile.
type PreconditionError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s cannot %s while in status %s", e.Entity, e.Attempted, e.Current)
}

// Precondition builds a PreconditionError.
func Precondition(entity, current, attempted string) *PreconditionError {
	return &PreconditionError{Entity: entity, Current: current, Attempted: attempted}
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// DependencyError reports an unreachable external collaborator. For the
// notifier this is logged and swallowed; it never aborts an operation.
type DependencyError struct {
	System string
	Err    error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.System, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Dependency wraps a collaborator failure.
func Dependency(system string, err error) *DependencyError {
	return &DependencyError{System: system, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// HTTPStatus maps a taxonomy error onto an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsPrecondition(err):
		return http.StatusConflict
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		var de *DependencyError
		if errors.As(err, &de) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a taxonomy error into an echo HTTPError with a structured
// body. Validation errors carry the full missing-requirements list;
// precondition errors carry the entity's current status.
func ToHTTP(err error) *echo.HTTPError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "validation failed",
			"missing": ve.Missing,
		})
	}
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":          pe.Error(),
			"current_status": pe.Current,
		})
	}
	return echo.NewHTTPError(HTTPStatus(err), err.Error())
}
