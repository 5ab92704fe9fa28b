// Package apperr holds the error taxonomy shared by the cart, pricing and
// order packages. Callers match with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCoupon      = errors.New("invalid coupon")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrRemoteSync         = errors.New("remote sync failed")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("version conflict")
)

// Validation wraps msg as an ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// InvalidCoupon wraps msg as an ErrInvalidCoupon.
func InvalidCoupon(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidCoupon)
}

// Precondition wraps msg as an ErrPreconditionFailed.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPreconditionFailed)
}

// TransitionError reports a status change that the transition table does not allow.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// RemoteError is the opaque wrapper for any backend or network failure.
// StatusCode is 0 when no HTTP response was received.
type RemoteError struct {
	Op         string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString("remote ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is lets errors.Is(err, ErrRemoteSync) match any RemoteError.
func (e *RemoteError) Is(target error) bool { return target == ErrRemoteSync }

func (e *RemoteError) Unwrap() error { return e.Err }

// Messages extracts user-facing messages from err. RemoteError messages
// from the backend are returned as-is; anything else yields err.Error().
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) && len(re.Messages) > 0 {
		return re.Messages
	}
	return []string{err.Error()}
}
