package fints

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
)

type mockConfig struct {
	userConfigs map[string]interface{}
}

func (cfg *mockConfig) GetUserConfig(ctx context.Context, userID string, receiver interface{}) error {
	if userCfg, ok := cfg.userConfigs[userID]; ok {
		reflect.ValueOf(receiver).Elem().Set(reflect.ValueOf(userCfg).Elem())
		return nil
	}
	return errors.New("Config not found, user: " + userID)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetSystemID(ctx context.Context, bankCode, userID string) (string, error) {
	args := m.Called(bankCode, userID)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) SaveSystemID(ctx context.Context, bankCode, userID, systemID string) error {
	return m.Called(bankCode, userID, systemID).Error(0)
}

type mockTanHandler struct {
	mock.Mock
}

func (m *mockTanHandler) PromptTan(ctx context.Context, challenge TanChallenge) (string, error) {
	args := m.Called(challenge)
	return args.String(0), args.Error(1)
}

func (m *mockTanHandler) ConfirmInApp(ctx context.Context, challenge TanChallenge) {
	m.Called(challenge)
}

const testIBAN = "DE02120300000000202051"

func randomUserConfig() *userConfig {
	return &userConfig{
		UserID:    "uid-" + faker.Word(),
		BankCode:  "12030000",
		URL:       "https://fints.example.com/" + faker.Word(),
		LoginName: faker.Username(),
		PIN:       faker.Password(),
		Accounts: map[string]string{
			"acc-" + faker.Word(): testIBAN,
		},
	}
}

func ledgerAccountOf(cfg *userConfig) string {
	for ledgerAccountID := range cfg.Accounts {
		return ledgerAccountID
	}
	panic("No accounts configured")
}

func TestNewFetcher(t *testing.T) {
	existingConfig := randomUserConfig()
	invalidConfig := randomUserConfig()
	invalidConfig.PIN = ""
	notExistingUser := "user-id-" + faker.Word()

	fetcherCfg := &mockConfig{
		userConfigs: map[string]interface{}{
			existingConfig.UserID: existingConfig,
			invalidConfig.UserID:  invalidConfig,
		},
	}

	tests := []struct {
		name   string
		userID string
		assert func(*testing.T, *Fetcher, error)
	}{
		{
			name:   "existing user",
			userID: existingConfig.UserID,
			assert: func(t *testing.T, fetcher *Fetcher, err error) {
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, existingConfig, fetcher.userCfg)
				assert.Equal(t, defaultPollInterval, fetcher.pollInterval)
				assert.Equal(t, defaultTanTimeout, fetcher.tanTimeout)
			},
		},
		{
			name:   "not existing user",
			userID: notExistingUser,
			assert: func(t *testing.T, fetcher *Fetcher, err error) {
				cause := errors.Cause(err)
				assert.EqualError(t, cause, "Config not found, user: "+notExistingUser)
			},
		},
		{
			name:   "invalid config",
			userID: invalidConfig.UserID,
			assert: func(t *testing.T, fetcher *Fetcher, err error) {
				assert.Error(t, err)
				assert.Nil(t, fetcher)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFetcher(context.Background(), tt.userID, fetcherCfg)
			tt.assert(t, got, err)
		})
	}
}

func TestFetcher_Fetch(t *testing.T) {
	type testCase struct {
		name      string
		userCfg   *userConfig
		transport *scriptedTransport
		params    *banks.FetchParams
		setup     func(storage *mockStorage, handler *mockTanHandler)
		run       func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error)
	}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []func() testCase{
		func() testCase {
			userCfg := randomUserConfig()
			ledgerAccountID := ledgerAccountOf(userCfg)
			return testCase{
				name:    "decoupled login",
				userCfg: userCfg,
				transport: &scriptedTransport{responses: []string{
					bankResponse("D1", okCode, "HIRMS:3:2:4+3920::Zugelassene TAN-Verfahren:940", decoupledMethods),
					bankResponse("D1", dialogEndCode),
					bankResponse("D2", okCode, "HIRMS:3:2:5+3955::Freigabe in der App", "HITAN:5:7:5+4++ORDER-7+Bitte in der App bestaetigen"),
					bankResponse("D2", okCode, "HIRMS:3:2:3+3956::Freigabe ausstehend"),
					bankResponse("D2", okCode, "HIRMS:3:2:3+0900::Freigabe gueltig", accountsUPD, systemID),
					bankResponse("D2", okCode, "HIKAZ:4:7:3+"+statementPage1+"+"+statementPage2),
					bankResponse("D2", dialogEndCode),
				}},
				params: &banks.FetchParams{From: from, To: to, LedgerAccountID: ledgerAccountID},
				setup: func(storage *mockStorage, handler *mockTanHandler) {
					storage.On("GetSystemID", userCfg.BankCode, userCfg.LoginName).Return("", dal.ErrNotFound)
					storage.On("SaveSystemID", userCfg.BankCode, userCfg.LoginName, "sys-4711").Return(nil)
					handler.On("ConfirmInApp", mock.MatchedBy(func(c TanChallenge) bool {
						return c.OrderRef == "ORDER-7" && c.Process == TanProcessDecoupled
					})).Return()
				},
				run: func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error) {
					if !assert.NoError(t, err) {
						return
					}
					if !assert.Len(t, got, 1) {
						return
					}
					dto, err := got[0].ToDTO()
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, "12.50", dto.Amount)
					assert.Equal(t, "2024-01-02", dto.Date)
					assert.Equal(t, "Coffee", dto.Comment)
					assert.Equal(t, ledgerAccountID, dto.AccountID)
					assert.Equal(t, dal.TransactionTypeExpense, dto.TypeID)
					assert.NotEmpty(t, dto.ID)

					assert.Len(t, tr.sent, 7)
					assert.Contains(t, string(tr.sent[6]), "HKEND")
				},
			}
		},
		func() testCase {
			userCfg := randomUserConfig()
			return testCase{
				name:    "statement tan",
				userCfg: userCfg,
				transport: &scriptedTransport{responses: []string{
					bankResponse("D1", okCode, "HIRMS:3:2:4+3920::Zugelassene TAN-Verfahren:942", mobileTanMethods),
					bankResponse("D1", dialogEndCode),
					bankResponse("D2", okCode, "HITAN:5:6:5+4++noref+nochallenge", accountsUPD),
					bankResponse("D2", okCode, "HITAN:5:6:4+4++ORDER-9+Umsaetze freigeben"),
					bankResponse("D2", okCode, "HITAN:5:6:3+2++ORDER-9", "HIKAZ:4:7:3+"+statementPage2),
					bankResponse("D2", dialogEndCode),
				}},
				params: &banks.FetchParams{From: from, To: to, LedgerAccountID: ledgerAccountOf(userCfg)},
				setup: func(storage *mockStorage, handler *mockTanHandler) {
					storage.On("GetSystemID", userCfg.BankCode, userCfg.LoginName).Return("sys-known", nil)
					handler.On("PromptTan", mock.MatchedBy(func(c TanChallenge) bool {
						return c.OrderRef == "ORDER-9" && c.Text == "Umsaetze freigeben"
					})).Return("123456", nil)
				},
				run: func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error) {
					if !assert.NoError(t, err) {
						return
					}
					if !assert.Len(t, got, 1) {
						return
					}
					dto, _ := got[0].ToDTO()
					assert.Equal(t, dal.TransactionTypeIncome, dto.TypeID)
					assert.Equal(t, "100.00", dto.Amount)

					hkidn, _ := tr.request(t, 0).Find("HKIDN")
					assert.Equal(t, "sys-known", hkidn.Item(2, 0))
					hnsha, _ := tr.request(t, 4).Find("HNSHA")
					assert.Equal(t, "123456", hnsha.Item(2, 1))
				},
			}
		},
		func() testCase {
			userCfg := randomUserConfig()
			return testCase{
				name:    "decoupled timeout",
				userCfg: userCfg,
				transport: &scriptedTransport{
					responses: []string{
						bankResponse("D1", okCode, "HIRMS:3:2:4+3920::Zugelassene TAN-Verfahren:940", decoupledMethods),
						bankResponse("D1", dialogEndCode),
						bankResponse("D2", okCode, "HITAN:5:7:5+4++ORDER-7+Bitte in der App bestaetigen"),
					},
					fallback: bankResponse("D2", okCode, "HIRMS:3:2:3+3956::Freigabe ausstehend"),
				},
				params: &banks.FetchParams{From: from, To: to, LedgerAccountID: ledgerAccountOf(userCfg)},
				setup: func(storage *mockStorage, handler *mockTanHandler) {
					storage.On("GetSystemID", userCfg.BankCode, userCfg.LoginName).Return("", dal.ErrNotFound)
					handler.On("ConfirmInApp", mock.Anything).Return()
				},
				run: func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error) {
					assert.Equal(t, ErrTanTimeout, errors.Cause(err))
					assert.Contains(t, string(tr.sent[len(tr.sent)-1]), "HKEND")
				},
			}
		},
		func() testCase {
			userCfg := randomUserConfig()
			ledgerAccountID := "acc-unknown-" + faker.Word()
			return testCase{
				name:      "unknown ledger account",
				userCfg:   userCfg,
				transport: &scriptedTransport{},
				params:    &banks.FetchParams{From: from, To: to, LedgerAccountID: ledgerAccountID},
				run: func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error) {
					assert.EqualError(t, err, "No FinTS account configured for ledger account: "+ledgerAccountID)
					assert.Empty(t, tr.sent)
				},
			}
		},
		func() testCase {
			userCfg := randomUserConfig()
			userCfg.Accounts[ledgerAccountOf(userCfg)] = "DE88100900001234567892"
			return testCase{
				name:    "bank account not available",
				userCfg: userCfg,
				transport: &scriptedTransport{responses: []string{
					bankResponse("D1", okCode, accountsUPD),
					bankResponse("D1", dialogEndCode),
				}},
				params: &banks.FetchParams{From: from, To: to, LedgerAccountID: ledgerAccountOf(userCfg)},
				setup: func(storage *mockStorage, handler *mockTanHandler) {
					storage.On("GetSystemID", userCfg.BankCode, userCfg.LoginName).Return("", dal.ErrNotFound)
				},
				run: func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error) {
					assert.EqualError(t, err, "Bank account is not available for the user: DE88100900001234567892")
					assert.Len(t, tr.sent, 2)
				},
			}
		},
		func() testCase {
			userCfg := randomUserConfig()
			storageErr := errors.New("storage failed " + faker.Word())
			return testCase{
				name:      "storage error",
				userCfg:   userCfg,
				transport: &scriptedTransport{},
				params:    &banks.FetchParams{From: from, To: to, LedgerAccountID: ledgerAccountOf(userCfg)},
				setup: func(storage *mockStorage, handler *mockTanHandler) {
					storage.On("GetSystemID", userCfg.BankCode, userCfg.LoginName).Return("", storageErr)
				},
				run: func(t *testing.T, tr *scriptedTransport, got []banks.FetchedTransaction, err error) {
					assert.Equal(t, storageErr, errors.Cause(err))
					assert.Empty(t, tr.sent)
				},
			}
		},
	}
	for _, tt := range tests {
		tt := tt()
		t.Run(tt.name, func(t *testing.T) {
			storage := &mockStorage{}
			handler := &mockTanHandler{}
			if tt.setup != nil {
				tt.setup(storage, handler)
			}
			fetcher, err := NewFetcher(
				context.Background(),
				tt.userCfg.UserID,
				&mockConfig{userConfigs: map[string]interface{}{tt.userCfg.UserID: tt.userCfg}},
				WithSessionFactory(NewSession, WithTransport(tt.transport)),
				WithSystemIDStorage(storage),
				WithTanHandler(handler),
				WithFetcherProductID("product-"+faker.Word()),
				WithTanPolling(time.Millisecond, 50*time.Millisecond),
			)
			if !assert.NoError(t, err) {
				return
			}
			got, err := fetcher.Fetch(context.Background(), tt.params)
			tt.run(t, tt.transport, got, err)
			storage.AssertExpectations(t)
			handler.AssertExpectations(t)
		})
	}
}

func TestFetcher_ListAccounts(t *testing.T) {
	userCfg := randomUserConfig()
	tr := &scriptedTransport{responses: []string{
		bankResponse("D1", okCode, "HIRMS:3:2:4+3920::Zugelassene TAN-Verfahren:942", mobileTanMethods),
		bankResponse("D1", dialogEndCode),
		bankResponse("D2", okCode, "HITAN:5:6:5+4++ORDER-1+Bitte TAN eingeben"),
		bankResponse("D2", okCode, "HITAN:5:6:3+2++ORDER-1", accountsUPD),
		bankResponse("D2", dialogEndCode),
	}}

	t.Run("no tan handler", func(t *testing.T) {
		fetcher, err := NewFetcher(
			context.Background(),
			userCfg.UserID,
			&mockConfig{userConfigs: map[string]interface{}{userCfg.UserID: userCfg}},
			WithSessionFactory(NewSession, WithTransport(&scriptedTransport{responses: tr.responses[:3]})),
		)
		if !assert.NoError(t, err) {
			return
		}
		_, err = fetcher.ListAccounts(context.Background())
		assert.EqualError(t, err, "TAN required but no TAN handler configured")
	})

	t.Run("with tan", func(t *testing.T) {
		handler := &mockTanHandler{}
		handler.On("PromptTan", mock.Anything).Return("654321", nil)
		fetcher, err := NewFetcher(
			context.Background(),
			userCfg.UserID,
			&mockConfig{userConfigs: map[string]interface{}{userCfg.UserID: userCfg}},
			WithSessionFactory(NewSession, WithTransport(tr)),
			WithTanHandler(handler),
		)
		if !assert.NoError(t, err) {
			return
		}
		got, err := fetcher.ListAccounts(context.Background())
		if !assert.NoError(t, err) {
			return
		}
		if assert.Len(t, got, 1) {
			assert.Equal(t, testIBAN, got[0].IBAN)
		}
		assert.Len(t, tr.sent, 5)
	})
}
