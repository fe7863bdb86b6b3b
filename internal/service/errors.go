package service

import (
	"errors"
	"fmt"
	"strings"

	"petadopt/internal/model"
	"petadopt/internal/schema"
	"petadopt/internal/store"
)

// Problem is one failed precondition.
type Problem struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports failed preconditions. No write happened.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Problems: []Problem{{Field: field, Reason: reason}}}
}

func fromSchema(errs schema.ValidationErrors) *ValidationError {
	v := &ValidationError{Problems: make([]Problem, len(errs))}
	for i, fe := range errs {
		v.Problems[i] = Problem{Field: fe.Field, Reason: fe.Reason}
	}
	return v
}

// AuthorizationError is a role or ownership mismatch.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

func forbidden(format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidStateError is a transition attempted from a status that does not
// allow it.
type InvalidStateError struct {
	Current model.RequestStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("request is %s, only pending requests can change", e.Current)
}

// PersistenceError wraps a store or blob transport failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotFoundError is a missing referenced record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// storeErr maps a store error for the record kind/id into the taxonomy.
func storeErr(op, kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return &PersistenceError{Op: op, Err: err}
}

// Error codes shared by the HTTP and WebSocket surfaces.
const (
	CodeValidation  = "validation_failed"
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeConflict    = "invalid_state"
	CodePersistence = "persistence_failed"
	CodeInternal    = "internal_error"
)

// Code classifies err into one of the error codes.
func Code(err error) string {
	var (
		verr *ValidationError
		aerr *AuthorizationError
		nerr *NotFoundError
		serr *InvalidStateError
		perr *PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return CodeValidation
	case errors.As(err, &aerr):
		return CodeForbidden
	case errors.As(err, &nerr):
		return CodeNotFound
	case errors.As(err, &serr):
		return CodeConflict
	case errors.As(err, &perr):
		return CodePersistence
	default:
		return CodeInternal
	}
}
