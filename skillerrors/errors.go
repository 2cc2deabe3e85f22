// Package skillerrors defines the error taxonomy shared by the rating,
// skill, storage and api packages, kept separate to avoid circular imports.
package skillerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScore is returned when a reported result has a
	// non-positive winning score or no strict winner. Nothing is mutated
	// when this is returned.
	ErrInvalidScore = errors.New("invalid score")

	// ErrNoHistory is returned when a guild has no recorded matches to
	// undo. Callers must treat it as "nothing to undo", not a failure.
	ErrNoHistory = errors.New("no match history")

	// ErrUnknownMetric is returned for a leaderboard metric that is
	// neither "mean" nor "exposure".
	ErrUnknownMetric = errors.New("unknown leaderboard metric")
)

// StorageError wraps a persistence I/O failure. Storage failures are fatal
// for the in-flight operation and are never retried by the core; state is
// left as of the last successful write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
