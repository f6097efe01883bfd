package services

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Handlers map these onto HTTP statuses; aggregators
// decide retry behavior from them.

// ValidationError rejects a malformed or unknown event at ingestion. The
// event is never stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// SchemaError rejects an event whose payload is not a flat document.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload schema invalid: %s", e.Reason)
}

// DependencyError wraps a failure of an external dependency (e.g. the spend
// report bucket). The owning job skips its cycle; other jobs proceed.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// State machine violations. Idempotent callers treat "already done" as
// success (see PrizeService.Claim).
var (
	ErrAlreadyClaimed    = errors.New("prize already claimed")
	ErrPrizeNotFound     = errors.New("prize not found")
	ErrForbidden         = errors.New("prize belongs to another user")
	ErrInvalidTransition = errors.New("invalid tournament status transition")
	ErrAlreadyClosed     = errors.New("tournament already closed")
)
