package fints

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	isoDateFormat  = "2006-01-02"
	bankDateFormat = "20060102"
)

// TanProcess is a kind of authentication the bank asks for
type TanProcess string

// TAN processes
const (
	TanProcessSingleStep TanProcess = "singleStep"
	TanProcessTwoStep    TanProcess = "twoStep"
	TanProcessDecoupled  TanProcess = "decoupled"
)

var decoupledKeywords = []string{"DECOUPLED", "APP", "PUSH", "SECUREGO"}

const decoupledMethodID = "940"

// TanMethod is a two step TAN method advertised by the bank
type TanMethod struct {
	ID            string
	Name          string
	TechnicalName string
	Decoupled     bool

	// Version is a version of the HITANS segment the method came from
	Version int
}

// IsDecoupled reports methods confirmed in a banking app without TAN entry
func (m TanMethod) IsDecoupled() bool {
	if m.Decoupled || m.ID == decoupledMethodID {
		return true
	}
	text := strings.ToUpper(m.TechnicalName + " " + m.Name)
	for _, keyword := range decoupledKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// TanChallenge is an authentication the caller has to complete
type TanChallenge struct {
	Process  TanProcess
	Text     string
	OrderRef string
	DialogID string
}

// Account is a bank account of the logged in user
type Account struct {
	AccountNumber string
	IBAN          string
	BIC           string
	OwnerName     string
	AccountType   string
	Currency      string
	BankCode      string
}

// DialogState is a snapshot returned to the caller after dialog operations
type DialogState struct {
	TanRequired bool
	Challenge   *TanChallenge
	Accounts    []Account
	DialogID    string
	SystemID    string
	TanMethod   string
}

// ParseISODate parses YYYY-MM-DD dates
func ParseISODate(value string) (time.Time, error) {
	t, err := time.Parse(isoDateFormat, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "Invalid date: %v", value)
	}
	return t, nil
}

func formatBankDate(t time.Time) string {
	return t.Format(bankDateFormat)
}
