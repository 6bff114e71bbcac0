package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound = errors.New("document not found")
	ErrExpired  = errors.New("document has expired")
)

// ValidationError reports bad input on a named field. It is detected
// before any blob or record write happens.
type ValidationError struct {
	Field string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Cause)
}

// StorageError reports an I/O failure against the blob store or the
// record store. The operation left no partial state (compensating
// cleanup already ran), so the whole call can be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PartialFailure reports a delete that succeeded in one store and failed
// in the other. Step names the half that still needs attention.
type PartialFailure struct {
	ID   string
	Step string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial delete of %s: %s step failed: %v", e.ID, e.Step, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
