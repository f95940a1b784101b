package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrCashNotClaimed     = errors.New("no cash payment was reported for this track")
	ErrInactiveDefinition = errors.New("service definition is not active")

	// Gateway errors
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid gateway signature")

	// Storage errors
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Coordination
	ErrLockHeld = errors.New("lock is held by another instance")
)

// TransitionError is returned when a lifecycle operation is requested from a
// state that does not allow it. It matches ErrInvalidTransition via errors.Is.
type TransitionError struct {
	Op   string
	From string
	Msg  string
}

func (e *TransitionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("cannot %s from status %s", e.Op, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
