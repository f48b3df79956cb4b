// Package banks holds bank independent fetcher contracts and per user bank config.
package banks

import (
	"context"
	"time"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

// FetchedTransaction is a transaction read from a bank statement
type FetchedTransaction interface {
	ToDTO() (*dal.PendingTransactionDTO, error)
}

// FetchParams represents what to fetch from bank. From and To are inclusive days
type FetchParams struct {
	From            time.Time
	To              time.Time
	LedgerAccountID string
}

// Fetcher reads transactions of the bank account mapped to a ledger account
type Fetcher interface {
	Fetch(ctx context.Context, params *FetchParams) ([]FetchedTransaction, error)
}
