package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound signals a lookup of a missing article or queue entry. It
// is fatal to that single operation and propagated to the caller.
var ErrNotFound = errors.New("not found")

// SourceUnavailableError marks a source adapter that could not be
// reached. The pipeline treats it as "zero items from this adapter".
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// GenerationError marks a failed generative-text call. The affected
// item is skipped without persisting anything.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError marks malformed persistence input, including values
// outside the closed status/category enumerations.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PublishError marks a failed delivery to one platform. It is recorded
// on the queue entry; retrying is an operator decision.
type PublishError struct {
	Platform Platform
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Platform, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
