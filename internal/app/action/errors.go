package action

import (
	"errors"
	"fmt"

	"hivescan/internal/app/ports"
)

var (
	ErrSkipped           = errors.New("action skipped")
	ErrChallenge         = errors.New("challenge encountered")
	ErrOutOfRange        = errors.New("target out of range")
	ErrOnCooldown        = errors.New("target on cooldown")
	ErrInventoryFull     = errors.New("inventory full")
	ErrDailyQuota        = errors.New("daily quota reached")
	ErrFled              = errors.New("pokemon fled")
	ErrNoBalls           = errors.New("no balls left")
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	ErrRejected          = errors.New("remote rejected action")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// RemoteError carries the remote result code behind a classified failure.
type RemoteError struct {
	Kind Kind
	Code int
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: result %d: %v", e.Kind, e.Code, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ChallengeError is returned when a response carries a captcha challenge.
type ChallengeError struct {
	URL string
}

func (e *ChallengeError) Error() string {
	return "challenge encountered: " + e.URL
}

func (e *ChallengeError) Unwrap() error {
	return ErrChallenge
}

// CycleFatal reports whether the remaining actions of this cycle should be
// abandoned after err. Classified remote results only affect one entity.
func CycleFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChallenge) {
		return true
	}
	if errors.Is(err, ports.ErrBadResponse) || isLocal(err) {
		return false
	}
	return true
}

func isLocal(err error) bool {
	for _, target := range []error{
		ErrSkipped, ErrOutOfRange, ErrOnCooldown, ErrInventoryFull, ErrDailyQuota,
		ErrFled, ErrNoBalls, ErrAttemptsExhausted, ErrRejected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
