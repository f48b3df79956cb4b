package fints

import (
	"fmt"
	"testing"

	"github.com/bxcodec/faker/v3"
	"github.com/stretchr/testify/assert"
)

func TestBankCredentials_Validate(t *testing.T) {
	type testCase struct {
		name  string
		creds BankCredentials
		run   func(t *testing.T, creds BankCredentials, err error)
	}
	tests := []func() testCase{
		func() testCase {
			creds := randomCredentials()
			want := creds
			return testCase{
				name:  "valid with url",
				creds: creds,
				run: func(t *testing.T, creds BankCredentials, err error) {
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, want, creds)
				},
			}
		},
		func() testCase {
			creds := randomCredentials()
			creds.URL = ""
			creds.BankCode = "50010517"
			return testCase{
				name:  "known bank url",
				creds: creds,
				run: func(t *testing.T, creds BankCredentials, err error) {
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, "https://fints.ing.de/fints/", creds.URL)
				},
			}
		},
		func() testCase {
			creds := randomCredentials()
			creds.URL = ""
			creds.BankCode = "99999999"
			return testCase{
				name:  "unknown bank without url",
				creds: creds,
				run: func(t *testing.T, creds BankCredentials, err error) {
					assert.EqualError(t, err, "No FinTS URL configured for bank: 99999999")
				},
			}
		},
		func() testCase {
			creds := randomCredentials()
			creds.BankCode = "1203"
			return testCase{
				name:  "short bank code",
				creds: creds,
				run: func(t *testing.T, creds BankCredentials, err error) {
					assert.Error(t, err)
				},
			}
		},
		func() testCase {
			creds := randomCredentials()
			creds.UserID = ""
			return testCase{
				name:  "missing user",
				creds: creds,
				run: func(t *testing.T, creds BankCredentials, err error) {
					assert.Error(t, err)
				},
			}
		},
		func() testCase {
			creds := randomCredentials()
			creds.URL = "not a url " + faker.Word()
			return testCase{
				name:  "invalid url",
				creds: creds,
				run: func(t *testing.T, creds BankCredentials, err error) {
					assert.Error(t, err)
				},
			}
		},
	}
	for _, tt := range tests {
		tt := tt()
		t.Run(tt.name, func(t *testing.T) {
			creds := tt.creds
			err := creds.Validate()
			tt.run(t, creds, err)
		})
	}
}

func TestBankCredentials_String(t *testing.T) {
	creds := randomCredentials()
	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		text := fmt.Sprintf(format, creds)
		assert.NotContains(t, text, creds.PIN, format)
		assert.NotContains(t, text, creds.UserID, format)
		assert.Contains(t, text, creds.BankCode, format)
	}
}
