package session

import (
	"errors"
	"fmt"
)

// Session-layer errors (spec §7). These are surfaced to callers and never
// retried automatically.
var (
	ErrNotConnected           = errors.New("session: not connected")
	ErrBusy                   = errors.New("session: request already in flight for this PF")
	ErrCommandTimeout         = errors.New("session: command timed out waiting for reply")
	ErrModeChangeWhileRunning = errors.New("session: mode change requires the PCS to be stopped")
)

// CommandRejected wraps a PCS NACK (or any command-specific rejection)
// with a human-readable reason.
type CommandRejected struct {
	Reason string
}

func (e *CommandRejected) Error() string {
	return fmt.Sprintf("session: command rejected: %s", e.Reason)
}

// rejected builds a *CommandRejected for reason.
func rejected(reason string) error {
	return &CommandRejected{Reason: reason}
}
