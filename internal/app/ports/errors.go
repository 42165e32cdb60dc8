package ports

import (
	"errors"

	"hivescan/internal/domain/account"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrAuthFailed     = errors.New("authentication failed")
	ErrAccountBanned  = errors.New("account banned")
	ErrTransport      = errors.New("transport failure")
	ErrHashingOffline = errors.New("hashing server offline")
	ErrBadHashKey     = errors.New("invalid or expired hashing key")
	ErrNoSession      = errors.New("no session")
	ErrBadResponse    = errors.New("unexpected response")
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransient
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// FatalError ends the current lease with Reason.
type FatalError struct {
	Reason account.FailureReason
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "fatal: " + string(e.Reason)
	}
	return "fatal: " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func Fatal(reason account.FailureReason, err error) error {
	return &FatalError{Reason: reason, Err: err}
}

func Classify(err error) (Outcome, account.FailureReason) {
	if err == nil {
		return OutcomeOK, ""
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return OutcomeFatal, fatal.Reason
	}
	switch {
	case errors.Is(err, ErrAccountBanned):
		return OutcomeFatal, account.ReasonBanned
	case errors.Is(err, ErrTransport),
		errors.Is(err, ErrHashingOffline),
		errors.Is(err, ErrBadHashKey),
		errors.Is(err, ErrBadResponse),
		errors.Is(err, ErrAuthFailed):
		return OutcomeTransient, ""
	default:
		return OutcomeFatal, account.ReasonException
	}
}
