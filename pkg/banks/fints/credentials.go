package fints

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// BankCredentials are the login data of a single bank user
type BankCredentials struct {
	BankCode string `validate:"required,numeric,len=8"`

	// URL is optional for banks from the known banks table
	URL string `validate:"omitempty,url"`

	UserID string `validate:"required"`
	PIN    string `validate:"required"`

	// ProductID is a registered FinTS product id. Session default is used if empty
	ProductID string
}

// Validate checks required fields and resolves missing URL
func (c *BankCredentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "Invalid bank credentials")
	}
	if c.URL == "" {
		url, ok := LookupBankURL(c.BankCode)
		if !ok {
			return errors.Errorf("No FinTS URL configured for bank: %v", c.BankCode)
		}
		c.URL = url
	}
	return nil
}

// String never reveals user id or PIN
func (c BankCredentials) String() string {
	return fmt.Sprintf("{BankCode: %v, URL: %v, UserID: ***, PIN: ***}", c.BankCode, c.URL)
}

// GoString makes %#v safe as well
func (c BankCredentials) GoString() string {
	return c.String()
}
