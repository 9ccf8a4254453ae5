package engine

import (
	"fmt"

	"contentline/internal/repo"
)

// ValidationError reports malformed input for one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// WipLimitError reports a move into a stage that is already at its cap.
type WipLimitError struct {
	Stage string
	Limit int
}

func (e WipLimitError) Error() string {
	return fmt.Sprintf("stage %s is at its WIP limit of %d", e.Stage, e.Limit)
}

// InvalidStateError reports an operation that does not apply to the current state.
type InvalidStateError struct {
	Message string
}

func (e InvalidStateError) Error() string {
	return e.Message
}

// ConflictError reports a write that lost against a concurrent change.
type ConflictError struct {
	Err error
}

func (e ConflictError) Error() string {
	return "resource changed concurrently, retry"
}

func (e ConflictError) Unwrap() error {
	return e.Err
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, repo.ErrNotFound)
}
