package planner

import "errors"

// Error taxonomy shared by the plan builder, file inspection, and workflow
// layers. Callers match with errors.Is; the tool surfaces translate these
// into structured tool-result failures instead of aborting the run.
var (
	// ErrValidation marks a rejected plan mutation: label collision,
	// unknown column, dangling node reference, file outside the run's set.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a file or reference that does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrIO marks a read failure against the import root.
	ErrIO = errors.New("io failure")

	// ErrState marks an illegal state transition, such as approving twice
	// or approving without a valid verdict. Unlike the others it indicates
	// a programmer error and is fatal to the run.
	ErrState = errors.New("illegal state")
)
