package persistence

import (
	"fmt"
)

// ConflictError is an error indicating that an operation within a batch
// caused an optimistic concurrency conflict.
//
// Conflicts are retryable: the caller should re-read the affected aggregate
// and re-dispatch.
type ConflictError struct {
	// Cause is the operation that caused the conflict.
	Cause Operation
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict in %T operation",
		e.Cause,
	)
}

// NotFoundError is an error indicating that an operation within a batch
// references a record that does not exist.
type NotFoundError struct {
	// Cause is the operation that caused the error.
	Cause Operation
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(
		"record not found in %T operation",
		e.Cause,
	)
}

// UnknownProcessError is the error returned when a referenced process or
// process version does not exist.
type UnknownProcessError struct {
	ProcessID string
	VersionID string
}

func (e UnknownProcessError) Error() string {
	if e.VersionID == "" {
		return fmt.Sprintf("process %s does not exist", e.ProcessID)
	}

	return fmt.Sprintf(
		"version %s of process %s does not exist",
		e.VersionID,
		e.ProcessID,
	)
}

// UnknownInstanceError is the error returned when a referenced archived
// instance does not exist.
type UnknownInstanceError struct {
	InstanceID string
}

func (e UnknownInstanceError) Error() string {
	return fmt.Sprintf("instance %s does not exist", e.InstanceID)
}
