package fints

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/message"
)

// ProtocolError is returned when the bank responds with a code >= 9000
type ProtocolError = message.ProtocolError

var (
	// ErrNoDialog is returned when an operation needs an open dialog
	ErrNoDialog = errors.New("No active FinTS dialog")

	// ErrTanPending is returned when a TAN challenge must be completed first
	ErrTanPending = errors.New("TAN challenge is pending")

	// ErrNotAuthenticated is returned when an operation needs a completed login
	ErrNotAuthenticated = errors.New("FinTS dialog is not authenticated")
)

// TanRequiredError is returned by operations that were interrupted by a
// TAN challenge. Complete the challenge and repeat the operation
type TanRequiredError struct {
	Challenge TanChallenge
}

func (e *TanRequiredError) Error() string {
	return fmt.Sprintf("TAN required (%v) for order %v", e.Challenge.Process, e.Challenge.OrderRef)
}

// ErrTanTimeout is returned when a decoupled confirmation did not arrive in time
var ErrTanTimeout = errors.New("TAN confirmation timed out")
