package fints

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/mt940"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/dal"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTanTimeout   = 5 * time.Minute
)

type userConfig struct {
	UserID string `validate:"required"`

	BankCode string `validate:"required,numeric,len=8"`
	URL      string `validate:"omitempty,url"`

	// LoginName is a user id issued by the bank
	LoginName string `validate:"required"`
	PIN       string `validate:"required"`

	// TanMethod is a preferred TAN method id. First allowed is used if empty
	TanMethod string

	// Accounts is a map where key is LedgerAccountID and value is an IBAN
	// of the bank account to read from
	Accounts map[string]string `validate:"required,min=1"`
}

func (cfg *userConfig) credentials(productID string) BankCredentials {
	return BankCredentials{
		BankCode:  cfg.BankCode,
		URL:       cfg.URL,
		UserID:    cfg.LoginName,
		PIN:       cfg.PIN,
		ProductID: productID,
	}
}

// TanHandler completes TAN challenges on behalf of the user
type TanHandler interface {
	// PromptTan asks the user for a TAN of the challenge
	PromptTan(ctx context.Context, challenge TanChallenge) (string, error)

	// ConfirmInApp tells the user to confirm the challenge in the banking app
	ConfirmInApp(ctx context.Context, challenge TanChallenge)
}

// SystemIDStorage keeps system ids assigned by banks
type SystemIDStorage interface {
	GetSystemID(ctx context.Context, bankCode, userID string) (string, error)
	SaveSystemID(ctx context.Context, bankCode, userID, systemID string) error
}

var _ banks.Fetcher = (*Fetcher)(nil)

// Fetcher reads statements of configured accounts via FinTS
type Fetcher struct {
	userCfg *userConfig

	newSession   SessionFactory
	sessionOpts  []SessionOpt
	storage      SystemIDStorage
	tanHandler   TanHandler
	productID    string
	pollInterval time.Duration
	tanTimeout   time.Duration
}

// FetcherOpt is an option of a fetcher
type FetcherOpt func(f *Fetcher)

// WithSessionFactory sets a factory of dialog sessions
func WithSessionFactory(factory SessionFactory, opts ...SessionOpt) FetcherOpt {
	return func(f *Fetcher) {
		f.newSession = factory
		f.sessionOpts = opts
	}
}

// WithSystemIDStorage sets a storage of bank system ids
func WithSystemIDStorage(storage SystemIDStorage) FetcherOpt {
	return func(f *Fetcher) {
		f.storage = storage
	}
}

// WithTanHandler sets a handler of TAN challenges
func WithTanHandler(handler TanHandler) FetcherOpt {
	return func(f *Fetcher) {
		f.tanHandler = handler
	}
}

// WithFetcherProductID sets a registered FinTS product id
func WithFetcherProductID(productID string) FetcherOpt {
	return func(f *Fetcher) {
		f.productID = productID
	}
}

// WithTanPolling sets how often and how long decoupled confirmations are polled
func WithTanPolling(interval time.Duration, timeout time.Duration) FetcherOpt {
	return func(f *Fetcher) {
		if interval > 0 {
			f.pollInterval = interval
		}
		if timeout > 0 {
			f.tanTimeout = timeout
		}
	}
}

func (f *Fetcher) loadSystemID(ctx context.Context) (string, error) {
	if f.storage == nil {
		return initialSystemID, nil
	}
	systemID, err := f.storage.GetSystemID(ctx, f.userCfg.BankCode, f.userCfg.LoginName)
	if errors.Cause(err) == dal.ErrNotFound {
		logger.Info(ctx, "No system id stored for bank %v", f.userCfg.BankCode)
		return initialSystemID, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "Failed to load system id")
	}
	return systemID, nil
}

func (f *Fetcher) saveSystemID(ctx context.Context, previous string, current string) {
	if f.storage == nil || current == previous || current == initialSystemID || current == "" {
		return
	}
	if err := f.storage.SaveSystemID(ctx, f.userCfg.BankCode, f.userCfg.LoginName, current); err != nil {
		logger.WithError(err).Warn(ctx, "Failed to save system id")
		return
	}
	logger.Info(ctx, "Saved new system id for bank %v", f.userCfg.BankCode)
}

// withSession logs in, completes authentication and runs fn. The dialog is
// always ended
func (f *Fetcher) withSession(ctx context.Context, fn func(ctx context.Context, s *Session, state *DialogState) error) error {
	systemID, err := f.loadSystemID(ctx)
	if err != nil {
		return err
	}
	opts := append(append([]SessionOpt{}, f.sessionOpts...),
		WithSystemID(systemID),
		WithPreferredTanMethod(f.userCfg.TanMethod),
	)
	s := f.newSession(opts...)
	defer s.EndDialog(ctx)

	state, err := s.InitDialog(ctx, f.userCfg.credentials(f.productID))
	if err != nil {
		return errors.Wrap(err, "Failed to init dialog")
	}
	if state, err = f.authorize(ctx, s, state); err != nil {
		return err
	}
	f.saveSystemID(ctx, systemID, s.SystemID())
	return fn(ctx, s, state)
}

func (f *Fetcher) authorize(ctx context.Context, s *Session, state *DialogState) (*DialogState, error) {
	for state.TanRequired {
		if f.tanHandler == nil {
			return nil, errors.New("TAN required but no TAN handler configured")
		}
		challenge := *state.Challenge
		var err error
		if challenge.Process == TanProcessDecoupled {
			state, err = f.awaitDecoupled(ctx, s, challenge)
		} else {
			state, err = f.submitTan(ctx, s, challenge)
		}
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (f *Fetcher) submitTan(ctx context.Context, s *Session, challenge TanChallenge) (*DialogState, error) {
	tan, err := f.tanHandler.PromptTan(ctx, challenge)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to get TAN")
	}
	return s.SubmitTan(ctx, tan, challenge.OrderRef)
}

func (f *Fetcher) awaitDecoupled(ctx context.Context, s *Session, challenge TanChallenge) (*DialogState, error) {
	f.tanHandler.ConfirmInApp(ctx, challenge)

	deadline := time.NewTimer(f.tanTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrTanTimeout
		case <-ticker.C:
		}
		state, err := s.PollDecoupledTan(ctx, challenge.OrderRef)
		if err != nil {
			return nil, err
		}
		if !state.TanRequired || state.Challenge.OrderRef != challenge.OrderRef {
			return state, nil
		}
	}
}

func (f *Fetcher) fetchStatements(ctx context.Context, s *Session, account Account, from, to time.Time) ([]mt940.Transaction, error) {
	for {
		trxs, err := s.FetchTransactions(ctx, account, from, to)
		var tanErr *TanRequiredError
		if !errors.As(err, &tanErr) {
			return trxs, err
		}
		challenge := tanErr.Challenge
		if _, err := f.authorize(ctx, s, &DialogState{TanRequired: true, Challenge: &challenge}); err != nil {
			return nil, err
		}
	}
}

func findAccount(accounts []Account, iban string) (Account, bool) {
	for _, account := range accounts {
		if account.IBAN == iban {
			return account, true
		}
	}
	return Account{}, false
}

// Fetch reads booked transactions of the bank account mapped to the ledger account
func (f *Fetcher) Fetch(ctx context.Context, params *banks.FetchParams) ([]banks.FetchedTransaction, error) {
	iban, ok := f.userCfg.Accounts[params.LedgerAccountID]
	if !ok {
		return nil, errors.Errorf("No FinTS account configured for ledger account: %v", params.LedgerAccountID)
	}

	var result []banks.FetchedTransaction
	err := f.withSession(ctx, func(ctx context.Context, s *Session, state *DialogState) error {
		account, ok := findAccount(state.Accounts, iban)
		if !ok {
			return errors.Errorf("Bank account is not available for the user: %v", iban)
		}
		trxs, err := f.fetchStatements(ctx, s, account, params.From, params.To)
		if err != nil {
			return errors.Wrap(err, "Failed to fetch statements")
		}
		result = toFetchedTransactions(params.LedgerAccountID, trxs)
		logger.Info(ctx, "Fetched %v booked transactions for account: %v", len(result), params.LedgerAccountID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAccounts returns accounts available to the user
func (f *Fetcher) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := f.withSession(ctx, func(ctx context.Context, s *Session, state *DialogState) error {
		accounts = state.Accounts
		return nil
	})
	return accounts, err
}

// NewFetcher creates an instance of a FinTS fetcher for a given user
func NewFetcher(ctx context.Context, userID string, cfg banks.FetcherConfig, opts ...FetcherOpt) (*Fetcher, error) {
	var userCfg userConfig
	if err := cfg.GetUserConfig(ctx, userID, &userCfg); err != nil {
		return nil, errors.Wrap(err, "Failed to fetch user config")
	}
	if err := validate.Struct(&userCfg); err != nil {
		return nil, errors.Wrapf(err, "Invalid FinTS config of user: %v", userID)
	}
	f := &Fetcher{
		userCfg:      &userCfg,
		newSession:   NewSession,
		pollInterval: defaultPollInterval,
		tanTimeout:   defaultTanTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}
