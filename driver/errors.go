package driver

import (
	"errors"
	"fmt"
)

var (
	// The medium behind a driver cannot be reached. Not a per-job problem.
	ErrDriverUnavailable = errors.New("driver unavailable")
	// The driver has no slot to place a job right now. The job is not at fault.
	ErrNoCapacity   = errors.New("driver has no capacity")
	ErrUnknownToken = errors.New("unknown token")
	ErrInvalidSpec  = errors.New("invalid job spec")
)

// SpawnError is returned by Submit when a job could not be started:
// a missing binary, a refused ssh connection, a rejected batch submission.
type SpawnError struct {
	Job string
	Err error
}

func NewSpawnError(job string, err error) *SpawnError {
	return &SpawnError{Job: job, Err: err}
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("couldn't start job %s: %v", e.Job, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// UnavailableError carries the reason a driver's medium is unreachable.
// It matches ErrDriverUnavailable with errors.Is.
type UnavailableError struct {
	Driver Kind
	Err    error
}

func NewUnavailableError(k Kind, err error) *UnavailableError {
	return &UnavailableError{Driver: k, Err: err}
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s driver unavailable: %v", e.Driver, e.Err)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrDriverUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }

// KillError is returned by a Kill that did not reach the backend.
// Callers log it and carry on.
type KillError struct {
	Token Token
	Err   error
}

func NewKillError(tok Token, err error) *KillError {
	return &KillError{Token: tok, Err: err}
}

func (e *KillError) Error() string {
	return fmt.Sprintf("couldn't kill %s: %v", e.Token, e.Err)
}

func (e *KillError) Unwrap() error { return e.Err }

func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}
