package redemption

import (
	"errors"
	"strings"
)

// Op names a redemption mutation.
type Op string

const (
	OpCommit Op = "redeem"
	OpRevert Op = "remove"
)

var (
	// ErrBusy is returned while another commit or revert for the cart is pending.
	ErrBusy = errors.New("a coin update is already in progress for this cart")

	// ErrNothingToRemove may be returned by a Backend whose revert found no
	// committed redemption. The coordinator treats it as success.
	ErrNothingToRemove = errors.New("no coins applied to this cart")

	ErrUnauthenticated = errors.New("customer is not authenticated")
)

// UnauthenticatedError is returned when a mutation is attempted without a session.
type UnauthenticatedError struct {
	Op Op
}

func (e *UnauthenticatedError) Error() string {
	if e.Op == OpRevert {
		return "You must be logged in to remove coins"
	}
	return "You must be logged in to redeem coins"
}

func (e *UnauthenticatedError) Unwrap() error { return ErrUnauthenticated }

// RejectedError is a backend refusal of a commit or revert. Message is shown
// to the customer as returned by the backend.
type RejectedError struct {
	Op      Op
	Message string
	Err     error
}

func (e *RejectedError) Error() string { return e.Message }
func (e *RejectedError) Unwrap() error { return e.Err }

// describer is implemented by backend errors that carry a user-facing message.
type describer interface {
	Description() string
}

func newRejected(op Op, err error) *RejectedError {
	msg := ""
	var d describer
	if errors.As(err, &d) {
		msg = d.Description()
	}
	if strings.TrimSpace(msg) == "" {
		msg = err.Error()
	}
	if strings.TrimSpace(msg) == "" {
		msg = fallbackMessage(op)
	}
	return &RejectedError{Op: op, Message: msg, Err: err}
}

func fallbackMessage(op Op) string {
	if op == OpRevert {
		return "Failed to remove coins"
	}
	return "Failed to redeem coins"
}

// Describe returns the message to show next to the redemption control.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	return err.Error()
}
