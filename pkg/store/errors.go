package store

import "errors"

// Sentinel errors returned by store operations. Callers match with
// errors.Is; anything else is a storage failure and fatal for the
// operation that hit it.
var (
	// ErrEntryNotFound is returned when no cache entry exists for a path.
	ErrEntryNotFound = errors.New("store: cache entry not found")

	// ErrIssueNotFound is returned when no issue matches the given ID.
	ErrIssueNotFound = errors.New("store: issue not found")

	// ErrInvalidStatus is returned when an issue status transition names
	// an undefined status.
	ErrInvalidStatus = errors.New("store: invalid issue status")
)
