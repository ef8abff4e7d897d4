package engine

import (
	"errors"
	"fmt"

	"teamline/internal/repo"
)

var (
	// ErrSprintNotActive is returned when closing a sprint that is already
	// completed, including a concurrent close that lost the race.
	ErrSprintNotActive = errors.New("sprint is not active")
	// ErrActiveSprintExists is returned when a project already has an active sprint.
	ErrActiveSprintExists = errors.New("project already has an active sprint")
)

// ValidationError reports bad input. Nothing has been written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity. It matches repo.ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return repo.ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persist wraps err as a PersistenceError unless it already carries a
// domain meaning.
func persist(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		nf *NotFoundError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &nf), errors.As(err, &pe),
		errors.Is(err, ErrSprintNotActive), errors.Is(err, ErrActiveSprintExists):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// lookup converts repo.ErrNotFound into a NotFoundError for kind/id.
func lookup(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return persist("load "+kind, err)
}

func errMoveCount(moved int64, want int) error {
	return fmt.Errorf("moved %d of %d tasks", moved, want)
}
