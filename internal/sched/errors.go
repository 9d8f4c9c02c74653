// Package sched is the dispatch scheduling core: availability math,
// constraint evaluation, slot search, schedule optimization, and
// disruption handling. All operations are pure computations over an
// immutable snapshot; persistence and commits live in the store.
package sched

import "fmt"

// InvalidInputError reports malformed technician/job data rejected at
// the API boundary before any search runs.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error { return &InvalidInputError{Field: field, Reason: reason} }
