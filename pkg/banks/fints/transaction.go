package fints

import (
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/mt940"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
)

// transactionNamespace scopes ids of fetched transactions
var transactionNamespace = uuid.NewV5(uuid.NamespaceURL, "https://github.com/evgeny-myasishchev/ledger.fints-fetcher/transactions")

type fetchedTransaction struct {
	mt940.Transaction

	id              string
	ledgerAccountID string
}

func transactionKey(ledgerAccountID string, trx *mt940.Transaction) string {
	return strings.Join([]string{
		ledgerAccountID,
		trx.BookingDate.Format(isoDateFormat),
		trx.ValueDate.Format(isoDateFormat),
		trx.Amount.String(),
		trx.Currency,
		trx.CounterpartyIBAN,
		trx.EndToEndReference,
		trx.Reference,
		trx.Purpose,
	}, "|")
}

// toFetchedTransactions keeps booked transactions and assigns stable ids.
// Equal entries of a statement are told apart by their occurrence
func toFetchedTransactions(ledgerAccountID string, trxs []mt940.Transaction) []banks.FetchedTransaction {
	occurrences := map[string]int{}
	var result []banks.FetchedTransaction
	for i := range trxs {
		if !trxs[i].Booked {
			continue
		}
		key := transactionKey(ledgerAccountID, &trxs[i])
		occurrences[key]++
		key += "|" + strconv.Itoa(occurrences[key])
		result = append(result, &fetchedTransaction{
			Transaction:     trxs[i],
			id:              uuid.NewV5(transactionNamespace, key).String(),
			ledgerAccountID: ledgerAccountID,
		})
	}
	return result
}

func (trx *fetchedTransaction) comment() string {
	purpose := trx.Purpose
	if purpose == "" {
		purpose = trx.BookingText
	}
	if trx.CounterpartyName == "" {
		return purpose
	}
	if purpose == "" {
		return trx.CounterpartyName
	}
	return trx.CounterpartyName + ": " + purpose
}

func (trx *fetchedTransaction) ToDTO() (*dal.PendingTransactionDTO, error) {
	typeID := dal.TransactionTypeIncome
	if trx.Amount.IsNegative() {
		typeID = dal.TransactionTypeExpense
	}
	return &dal.PendingTransactionDTO{
		ID:        trx.id,
		Amount:    trx.Amount.Abs().StringFixed(2),
		Date:      trx.BookingDate.Format(isoDateFormat),
		Comment:   trx.comment(),
		AccountID: trx.ledgerAccountID,
		TypeID:    typeID,
	}, nil
}
