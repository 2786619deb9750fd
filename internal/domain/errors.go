package domain

import "fmt"

// Checkpoint names the point in the order lifecycle at which validation runs.
type Checkpoint string

const (
	PreLogin  Checkpoint = "pre-login"
	PostLogin Checkpoint = "post-login"
)

// ValidationError reports an order that violates a structural invariant.
// It is surfaced to the caller as a plain message; the order is not
// dispatched.
type ValidationError struct {
	Checkpoint Checkpoint
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order (%s): %s %s", e.Checkpoint, e.Field, e.Reason)
}
