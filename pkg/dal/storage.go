package dal

import (
	"context"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

// Ledger transaction types
const (
	TransactionTypeIncome  uint8 = 1
	TransactionTypeExpense uint8 = 2
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("Not found")

// PendingTransactionDTO is a transaction to be reported to ledger
type PendingTransactionDTO struct {
	ID        string
	Amount    string
	Date      string
	Comment   string
	AccountID string
	TypeID    uint8
}

// Storage is a persistance layer
type Storage interface {
	Setup(ctx context.Context) error

	// GetSystemID returns a system id the bank assigned to the user or ErrNotFound
	GetSystemID(ctx context.Context, bankCode, userID string) (string, error)
	SaveSystemID(ctx context.Context, bankCode, userID, systemID string) error

	SavePendingTransaction(ctx context.Context, trx *PendingTransactionDTO) error
}
