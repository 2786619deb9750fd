package engine

import (
	"errors"
	"fmt"

	"autorsa/internal/domain"
)

var (
	// ErrInvalidPhase is the only error Dispatch returns.
	ErrInvalidPhase = errors.New("invalid phase")

	// ErrQueueFull is returned by Queue.Submit when the backlog is full.
	ErrQueueFull = errors.New("dispatch queue full")
)

// LoginError records a broker whose login step failed. The broker is treated
// as not logged in and the order continues.
type LoginError struct {
	Broker string
	Err    error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%s login: %v", e.Broker, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

// NotLoggedInError records a broker skipped because it had no session when
// its query or transaction was due.
type NotLoggedInError struct {
	Broker string
	Cause  error // the LoginError, when login failed outright
}

func (e *NotLoggedInError) Error() string {
	return fmt.Sprintf("%s not logged in", e.Broker)
}

func (e *NotLoggedInError) Unwrap() error { return e.Cause }

// ExecutionError records a failure while querying holdings or submitting a
// transaction, including faults raised inside an isolated context.
type ExecutionError struct {
	Broker string
	Phase  domain.Phase
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Broker, e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
