// Package mt940 parses SWIFT MT940/MT942 statements embedded in FinTS
// statement responses.
package mt940

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

const defaultCurrency = "EUR"

var (
	tagRegexp         = regexp.MustCompile(`^:(\d{2}[A-Z]?):`)
	transactionRegexp = regexp.MustCompile(`^(\d{6})(\d{4})?(RC|RD|C|D)([A-Z])?(\d+,\d{0,2})N(\w{3})([^/]*)(?://(.*))?`)
)

// Transaction is a single statement entry
type Transaction struct {
	BookingDate time.Time
	ValueDate   time.Time

	// Amount is signed. Debits are negative
	Amount   decimal.Decimal
	Currency string

	CounterpartyName string
	CounterpartyIBAN string
	CounterpartyBIC  string

	Purpose           string
	EndToEndReference string
	MandateReference  string
	CreditorID        string

	BookingText     string
	TransactionCode string
	Reference       string

	// Booked is false for entries that are not final yet
	Booked bool

	IsStorno bool
}

type field struct {
	tag   string
	value string
}

func detectDivider(text string) string {
	crlf := strings.Count(text, "\r\n-")
	at := strings.Count(text, "@@-")
	if at > crlf {
		return "@@"
	}
	return "\r\n"
}

// splitFields splits a day into tagged fields. Lines without a tag
// are continuation of the previous field
func splitFields(day string, divider string) []field {
	var fields []field
	for _, line := range strings.Split(day, divider) {
		if match := tagRegexp.FindStringSubmatch(line); match != nil {
			fields = append(fields, field{tag: match[1], value: line[len(match[0]):]})
			continue
		}
		if len(fields) == 0 {
			continue
		}
		fields[len(fields)-1].value += line
	}
	return fields
}

// InferBookingDate reconstructs a booking date from MMDD using the year
// of the value date. The year shifts when months are more than 6 apart
func InferBookingDate(valueDate time.Time, mmdd string) (time.Time, error) {
	if len(mmdd) != 4 {
		return time.Time{}, errors.Errorf("Unexpected booking date: %v", mmdd)
	}
	month, err := strconv.Atoi(mmdd[:2])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "Unexpected booking month: %v", mmdd)
	}
	day, err := strconv.Atoi(mmdd[2:])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "Unexpected booking day: %v", mmdd)
	}
	year := valueDate.Year()
	delta := month - int(valueDate.Month())
	if delta > 6 {
		year--
	} else if delta < -6 {
		year++
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

func parseShortDate(yymmdd string) (time.Time, error) {
	return time.Parse("060102", yymmdd)
}

func parseTransactionLine(line string) (*Transaction, error) {
	match := transactionRegexp.FindStringSubmatch(line)
	if match == nil {
		return nil, errors.Errorf("Unexpected transaction line format")
	}
	valueDate, err := parseShortDate(match[1])
	if err != nil {
		return nil, errors.Wrap(err, "Bad value date")
	}
	bookingDate := valueDate
	if match[2] != "" {
		if bookingDate, err = InferBookingDate(valueDate, match[2]); err != nil {
			return nil, err
		}
	}
	amount, err := decimal.NewFromString(strings.Replace(match[5], ",", ".", 1))
	if err != nil {
		return nil, errors.Wrap(err, "Bad amount")
	}
	mark := match[3]
	if mark == "D" || mark == "RD" {
		amount = amount.Neg()
	}
	return &Transaction{
		ValueDate:       valueDate,
		BookingDate:     bookingDate,
		Amount:          amount,
		IsStorno:        strings.HasPrefix(mark, "R"),
		TransactionCode: match[6],
		Reference:       strings.TrimSpace(match[7]),
	}, nil
}

func currencyOf(f field) string {
	switch f.tag {
	case "60F", "60M":
		// C240101EUR1234,56
		if len(f.value) >= 10 {
			return f.value[7:10]
		}
	case "34F":
		if len(f.value) >= 3 {
			return f.value[:3]
		}
	}
	return ""
}

func parseDay(ctx context.Context, day string, divider string, booked bool) []Transaction {
	fields := splitFields(day, divider)
	currency := defaultCurrency
	for _, f := range fields {
		switch f.tag {
		case "34F", "13D":
			booked = false
		case "60F", "60M":
			booked = true
		}
		if c := currencyOf(f); c != "" {
			currency = c
		}
	}

	var (
		result  []Transaction
		current *Transaction
	)
	flush := func() {
		if current != nil {
			result = append(result, *current)
			current = nil
		}
	}
	for _, f := range fields {
		switch f.tag {
		case "61":
			flush()
			trx, err := parseTransactionLine(f.value)
			if err != nil {
				logger.WithError(err).Warn(ctx, "Skipping transaction line")
				continue
			}
			trx.Currency = currency
			trx.Booked = booked
			current = trx
		case "86":
			if current != nil {
				applyDescription(current, f.value)
			}
		}
	}
	flush()
	return result
}

// Parse decodes ISO-8859-1 statement data. Booked is a default for days
// that carry no explicit booked or pending marker
func Parse(ctx context.Context, raw []byte, booked bool) []Transaction {
	if len(raw) == 0 {
		return nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		decoded = raw
	}
	text := string(decoded)
	divider := detectDivider(text)

	var result []Transaction
	for _, day := range strings.Split(text, divider+"-") {
		if strings.TrimSpace(day) == "" {
			continue
		}
		result = append(result, parseDay(ctx, day, divider, booked)...)
	}
	return result
}
