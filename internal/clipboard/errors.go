package clipboard

import (
	"errors"
	"fmt"

	"go.klb.dev/x11clip/internal/xconn"
)

// Error categories. Errors returned by this package wrap exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrConnectionSetup = errors.New("x11 connection setup failed")
	ErrProtocolIO      = errors.New("x11 protocol i/o failed")
	ErrLock            = errors.New("selection store poisoned")
	ErrTimeout         = errors.New("selection load timed out")
	ErrOwner           = errors.New("could not take selection ownership")
	ErrUnexpectedType  = errors.New("unexpected selection type")
	ErrChannelClosed   = errors.New("selection owner is not running")
)

// UnexpectedTypeError reports a selection owner that answered with a
// representation other than the one requested.
type UnexpectedTypeError struct {
	Target xconn.Atom
	Got    xconn.Atom
	// GotName is the received type's atom name, or "Unknown(<n>)".
	GotName string
}

func (e *UnexpectedTypeError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnexpectedType, e.GotName)
}

func (e *UnexpectedTypeError) Is(target error) bool { return target == ErrUnexpectedType }

func protocolErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProtocolIO, op, err)
}
