// Package message assembles FinTS messages from segments and interprets
// bank responses.
package message

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/segment"
)

const (
	// HBCIVersion is a protocol version sent in the message header
	HBCIVersion = "300"

	// CountryCode is a German bank country code used in bank ids
	CountryCode = "280"

	// SingleStepFunction is a security function of single step PIN/TAN
	SingleStepFunction = "999"

	lengthPlaceholder = "000000000000"

	encryptionHeaderNumber = 998
	encryptionDataNumber   = 999
)

// Params hold everything required to frame a message
type Params struct {
	DialogID      string
	MessageNumber int

	BankCode string
	UserID   string
	SystemID string
	PIN      string

	// TAN is appended to the signature footer when not empty
	TAN string

	// SecurityFunction is a TAN method id or 999 for single step
	SecurityFunction string

	SecurityReference int

	Time time.Time
}

func (p Params) date() string {
	return p.Time.Format("20060102")
}

func (p Params) clock() string {
	return p.Time.Format("150405")
}

func (p Params) securityFunction() string {
	if p.SecurityFunction == "" {
		return SingleStepFunction
	}
	return p.SecurityFunction
}

func header(p Params) *segment.Builder {
	return segment.New("HNHBK", 3).
		Add(lengthPlaceholder).
		Add(HBCIVersion).
		Add(p.DialogID).
		Add(strconv.Itoa(p.MessageNumber))
}

func footer(p Params) *segment.Builder {
	return segment.New("HNHBS", 1).Add(strconv.Itoa(p.MessageNumber))
}

func signatureHeader(p Params) *segment.Builder {
	return segment.New("HNSHK", 4).
		Add("PIN", "2").
		Add(p.securityFunction()).
		Add(strconv.Itoa(p.SecurityReference)).
		Add("1").
		Add("1").
		Add("1", "", p.SystemID).
		Add("1").
		Add("1", p.date(), p.clock()).
		Add("1", "999", "1").
		Add("6", "10", "16").
		Add(CountryCode, p.BankCode, p.UserID, "S", "0", "0")
}

func signatureFooter(p Params) *segment.Builder {
	secret := []string{p.PIN}
	if p.TAN != "" {
		secret = append(secret, p.TAN)
	}
	return segment.New("HNSHA", 2).
		Add(strconv.Itoa(p.SecurityReference)).
		Add("").
		Add(secret...)
}

func encryptionHeader(p Params) *segment.Builder {
	return segment.New("HNVSK", 3).
		Add("PIN", "2").
		Add("998").
		Add("1").
		Add("1", "", p.SystemID).
		Add("1", p.date(), p.clock()).
		AddItems(
			segment.Text("2"),
			segment.Text("2"),
			segment.Text("13"),
			segment.Binary([]byte("00000000")),
			segment.Text("5"),
			segment.Text("1"),
		).
		Add(CountryCode, p.BankCode, p.UserID, "V", "0", "0").
		Add("0")
}

// signed renders HNSHK + business + HNSHA numbered from 2.
// Returns the next free segment number
func signed(p Params, business []*segment.Builder) ([]byte, int) {
	var buf bytes.Buffer
	number := 2
	buf.Write(signatureHeader(p).Build(number))
	for _, seg := range business {
		number++
		buf.Write(seg.Build(number))
	}
	number++
	buf.Write(signatureFooter(p).Build(number))
	return buf.Bytes(), number + 1
}

func finalize(p Params, body []byte, footerNumber int) []byte {
	var buf bytes.Buffer
	buf.Write(header(p).Build(1))
	buf.Write(body)
	buf.Write(footer(p).Build(footerNumber))
	msg := buf.Bytes()

	length := fmt.Sprintf("%012d", len(msg))
	placeholderAt := bytes.Index(msg, []byte(lengthPlaceholder))
	copy(msg[placeholderAt:], length)
	return msg
}

// Plain builds an unencrypted message with signed segments
func Plain(p Params, business ...*segment.Builder) []byte {
	body, footerNumber := signed(p, business)
	return finalize(p, body, footerNumber)
}

// Authenticated builds a message with signed segments wrapped into
// the encryption envelope
func Authenticated(p Params, business ...*segment.Builder) []byte {
	payload, footerNumber := signed(p, business)
	var body bytes.Buffer
	body.Write(encryptionHeader(p).Build(encryptionHeaderNumber))
	body.Write(segment.New("HNVSD", 1).AddItems(segment.Binary(payload)).Build(encryptionDataNumber))
	return finalize(p, body.Bytes(), footerNumber)
}
