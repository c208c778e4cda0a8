package approval

import (
	"errors"
	"fmt"

	"github.com/imrishuroy/po-approvals/internal/orders"
)

// Engine errors. Callers match them with errors.Is.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
)

// StateError reports that the order's current status does not admit the
// requested action. It matches ErrInvalidState.
type StateError struct {
	Current orders.Status
	Reason  string
}

func (e *StateError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid state: order is %s", e.Current)
	}
	return fmt.Sprintf("invalid state: order is %s: %s", e.Current, e.Reason)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

func invalidState(current orders.Status, reason string) error {
	return &StateError{Current: current, Reason: reason}
}
