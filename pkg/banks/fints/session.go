// Package fints implements a read-only FinTS 3.0 PIN/TAN client that logs in,
// lists accounts and fetches account statements.
package fints

import (
	"context"
	"math/rand"
	"time"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/message"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/mt940"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/segment"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/transport"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

// Dialog states
const (
	StateDisconnected      = "disconnected"
	StateProbingSingleStep = "probing_single_step"
	StateTanRequired       = "tan_required"
	StateAwaitingTan       = "awaiting_tan"
	StateAccountsReady     = "accounts_ready"
)

const (
	eventProbe         = "probe"
	eventRequireTan    = "require_tan"
	eventChallenge     = "challenge"
	eventAccountsReady = "accounts_ready"
	eventEnd           = "end"
)

const (
	initialDialogID = "0"
	initialSystemID = "0"

	tanProcessInit   = "4"
	tanProcessSubmit = "2"
	tanProcessPoll   = "S"

	defaultProductVersion = "1.0"
	defaultHTTPTimeout    = 30 * time.Second
)

// ErrNoChallenge is returned when a TAN is submitted without a pending challenge
var ErrNoChallenge = errors.New("No TAN challenge to complete")

type orderKind int

const (
	orderLogin orderKind = iota
	orderAccounts
	orderStatement
)

type statementRequest struct {
	account Account
	from    time.Time
	to      time.Time
}

func (r statementRequest) matches(other statementRequest) bool {
	return r.account.IBAN == other.account.IBAN &&
		r.account.AccountNumber == other.account.AccountNumber &&
		r.from.Equal(other.from) &&
		r.to.Equal(other.to)
}

// pendingOrder is a business order that may be interrupted by a challenge
type pendingOrder struct {
	kind      orderKind
	statement statementRequest

	transactions []mt940.Transaction
	touchdown    string
	complete     bool
}

type dialog struct {
	id                string
	messageNumber     int
	securityReference int
	systemID          string

	// tanMethod is a security function of signed messages
	tanMethod string

	orderRef  string
	challenge *TanChallenge
}

// Session owns a single FinTS dialog. Not safe for concurrent use
type Session struct {
	creds        BankCredentials
	transport    transport.Transport
	newTransport func(url string) transport.Transport

	productID          string
	productVersion     string
	preferredTanMethod string

	now    func() time.Time
	random *rand.Rand

	machine *fsm.FSM
	dialog  dialog

	tanMethods     []TanMethod
	allowedMethods []string
	accounts       []Account
	pending        *pendingOrder
}

// SessionOpt is an option of a session
type SessionOpt func(s *Session)

// SessionFactory creates new sessions
type SessionFactory func(opts ...SessionOpt) *Session

// WithTransport makes the session use a given transport for any bank
func WithTransport(t transport.Transport) SessionOpt {
	return func(s *Session) {
		s.newTransport = func(string) transport.Transport { return t }
	}
}

// WithHTTPTimeout sets a timeout of a single bank request
func WithHTTPTimeout(timeout time.Duration) SessionOpt {
	return func(s *Session) {
		s.newTransport = func(url string) transport.Transport {
			return transport.NewHTTPTransport(url, transport.WithTimeout(timeout))
		}
	}
}

// WithProductID sets a registered product id used when credentials have none
func WithProductID(productID string) SessionOpt {
	return func(s *Session) {
		s.productID = productID
	}
}

// WithProductVersion sets a product version reported to the bank
func WithProductVersion(version string) SessionOpt {
	return func(s *Session) {
		s.productVersion = version
	}
}

// WithSystemID sets a system id previously assigned by the bank
func WithSystemID(systemID string) SessionOpt {
	return func(s *Session) {
		if systemID != "" {
			s.dialog.systemID = systemID
		}
	}
}

// WithPreferredTanMethod picks a given method if the bank allows it
func WithPreferredTanMethod(methodID string) SessionOpt {
	return func(s *Session) {
		s.preferredTanMethod = methodID
	}
}

func withNow(now func() time.Time) SessionOpt {
	return func(s *Session) {
		s.now = now
	}
}

func withRandom(random *rand.Rand) SessionOpt {
	return func(s *Session) {
		s.random = random
	}
}

// NewSession creates a disconnected session
func NewSession(opts ...SessionOpt) *Session {
	s := &Session{
		productVersion: defaultProductVersion,
		now:            time.Now,
		random:         rand.New(rand.NewSource(time.Now().UnixNano())),
		dialog:         dialog{systemID: initialSystemID},
	}
	WithHTTPTimeout(defaultHTTPTimeout)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.resetDialog()
	s.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventProbe, Src: []string{StateDisconnected}, Dst: StateProbingSingleStep},
			{Name: eventRequireTan, Src: []string{StateProbingSingleStep}, Dst: StateTanRequired},
			{
				Name: eventChallenge,
				Src:  []string{StateProbingSingleStep, StateTanRequired, StateAwaitingTan, StateAccountsReady},
				Dst:  StateAwaitingTan,
			},
			{
				Name: eventAccountsReady,
				Src:  []string{StateProbingSingleStep, StateTanRequired, StateAwaitingTan, StateAccountsReady},
				Dst:  StateAccountsReady,
			},
			{
				Name: eventEnd,
				Src:  []string{StateDisconnected, StateProbingSingleStep, StateTanRequired, StateAwaitingTan, StateAccountsReady},
				Dst:  StateDisconnected,
			},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				logger.Debug(ctx, "Dialog state changed: %v -> %v", e.Src, e.Dst)
			},
		},
	)
	return s
}

// State returns a current dialog state name
func (s *Session) State() string {
	return s.machine.Current()
}

// SystemID returns a system id assigned by the bank or "0"
func (s *Session) SystemID() string {
	return s.dialog.systemID
}

// Accounts returns accounts known so far
func (s *Session) Accounts() []Account {
	return append([]Account(nil), s.accounts...)
}

// TanMethods returns methods advertised by the bank
func (s *Session) TanMethods() []TanMethod {
	return append([]TanMethod(nil), s.tanMethods...)
}

func (s *Session) transition(ctx context.Context, event string) error {
	err := s.machine.Event(ctx, event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return errors.Wrapf(err, "Unexpected dialog transition %v from %v", event, s.machine.Current())
	}
	return nil
}

func (s *Session) resetDialog() {
	s.dialog = dialog{
		id:                initialDialogID,
		messageNumber:     1,
		securityReference: s.dialog.securityReference,
		systemID:          s.dialog.systemID,
		tanMethod:         s.dialog.tanMethod,
	}
}

// nextSecurityReference never repeats the previous reference
func (s *Session) nextSecurityReference() int {
	for {
		ref := 1000000 + s.random.Intn(9000000)
		if ref != s.dialog.securityReference {
			return ref
		}
	}
}

func (s *Session) messageParams(tan string) message.Params {
	return message.Params{
		DialogID:          s.dialog.id,
		MessageNumber:     s.dialog.messageNumber,
		BankCode:          s.creds.BankCode,
		UserID:            s.creds.UserID,
		SystemID:          s.dialog.systemID,
		PIN:               s.creds.PIN,
		TAN:               tan,
		SecurityFunction:  s.dialog.tanMethod,
		SecurityReference: s.dialog.securityReference,
		Time:              s.now(),
	}
}

// send performs a single round trip. Dialog id and message number are
// updated only when the response is parsed and has no errors
func (s *Session) send(ctx context.Context, tan string, segments ...*segment.Builder) (*message.Response, error) {
	if s.transport == nil {
		return nil, ErrNoDialog
	}
	s.dialog.securityReference = s.nextSecurityReference()
	msg := message.Authenticated(s.messageParams(tan), segments...)

	ctx = diag.ContextWithDialogID(ctx, s.dialog.id)
	raw, err := s.transport.Send(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, "FinTS request failed")
	}
	res, err := message.ParseResponse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to parse FinTS response")
	}
	for _, code := range res.Codes() {
		logger.Debug(ctx, "Bank code %v: %v", code.Code, code.Text)
	}
	if err := res.Error(); err != nil {
		logger.WithError(err).Warn(ctx, "Bank rejected the message")
		return nil, err
	}
	s.dialog.messageNumber++
	if id := res.DialogID(); id != "" && id != initialDialogID {
		s.dialog.id = id
	}
	return res, nil
}

func (s *Session) productIDValue() string {
	if s.creds.ProductID != "" {
		return s.creds.ProductID
	}
	return s.productID
}

func (s *Session) identification() []*segment.Builder {
	return []*segment.Builder{
		segment.New("HKIDN", 2).
			Add(message.CountryCode, s.creds.BankCode).
			Add(s.creds.UserID).
			Add(s.dialog.systemID).
			Add("1"),
		segment.New("HKVVB", 3).
			Add("0").
			Add("0").
			Add("0").
			Add(s.productIDValue()).
			Add(s.productVersion),
	}
}

func (s *Session) currentMethod() TanMethod {
	for _, m := range s.tanMethods {
		if m.ID == s.dialog.tanMethod {
			return m
		}
	}
	return TanMethod{ID: s.dialog.tanMethod}
}

func (s *Session) tanVersion() int {
	if s.currentMethod().Version >= 7 {
		return 7
	}
	return 6
}

func (s *Session) twoStep() bool {
	return s.dialog.tanMethod != "" && s.dialog.tanMethod != message.SingleStepFunction
}

func (s *Session) tanInit(reference string) *segment.Builder {
	return segment.New("HKTAN", s.tanVersion()).Add(tanProcessInit).Add(reference)
}

func (s *Session) tanContinue(process string, orderRef string) *segment.Builder {
	return segment.New("HKTAN", s.tanVersion()).
		Add(process).
		Add("").
		Add("").
		Add("").
		Add(orderRef).
		Add("N")
}

// withTan adds HKTAN initiation for business segments of two step dialogs
func (s *Session) withTan(business *segment.Builder) []*segment.Builder {
	if !s.twoStep() {
		return []*segment.Builder{business}
	}
	return []*segment.Builder{business, s.tanInit(business.Name())}
}

func (s *Session) statementSegment(req statementRequest, touchdown string) *segment.Builder {
	bankCode := req.account.BankCode
	if bankCode == "" {
		bankCode = s.creds.BankCode
	}
	b := segment.New("HKKAZ", 7).
		Add(req.account.IBAN, req.account.BIC, req.account.AccountNumber, "", message.CountryCode, bankCode).
		Add("N").
		Add(formatBankDate(req.from)).
		Add(formatBankDate(req.to))
	if touchdown != "" {
		b.Add("").Add(touchdown)
	}
	return b
}

func (s *Session) absorbParameters(res *message.Response) {
	if methods, ok := parseTanMethods(res); ok {
		s.tanMethods = methods
	}
	if allowed, ok := parseAllowedMethods(res); ok {
		s.allowedMethods = allowed
	}
	if accounts, ok := parseUPDAccounts(res); ok {
		s.accounts = mergeAccounts(accounts, s.accounts)
	}
	if systemID, ok := parseSystemID(res); ok {
		s.dialog.systemID = systemID
	}
}

func (s *Session) snapshot() *DialogState {
	state := &DialogState{
		Accounts:  s.Accounts(),
		DialogID:  s.dialog.id,
		SystemID:  s.dialog.systemID,
		TanMethod: s.dialog.tanMethod,
	}
	if s.machine.Is(StateAwaitingTan) && s.dialog.challenge != nil {
		challenge := *s.dialog.challenge
		state.TanRequired = true
		state.Challenge = &challenge
	}
	return state
}

func (s *Session) singleStepAllowed() bool {
	if len(s.allowedMethods) == 0 {
		return true
	}
	for _, id := range s.allowedMethods {
		if id == message.SingleStepFunction {
			return true
		}
	}
	return false
}

func (s *Session) selectTanMethod() string {
	for _, id := range s.allowedMethods {
		if id == s.preferredTanMethod {
			return id
		}
	}
	for _, id := range s.allowedMethods {
		if id != message.SingleStepFunction {
			return id
		}
	}
	return message.SingleStepFunction
}

// InitDialog opens a dialog and logs in. The result either carries accounts
// or a TAN challenge to complete with SubmitTan or PollDecoupledTan
func (s *Session) InitDialog(ctx context.Context, creds BankCredentials) (*DialogState, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if !s.machine.Is(StateDisconnected) {
		s.EndDialog(ctx)
	}
	s.creds = creds
	s.transport = s.newTransport(creds.URL)
	s.tanMethods, s.allowedMethods, s.accounts = nil, nil, nil
	s.dialog.tanMethod = message.SingleStepFunction
	s.resetDialog()
	s.pending = &pendingOrder{kind: orderLogin}

	logger.Info(ctx, "Starting dialog with bank %v", creds.BankCode)
	if err := s.transition(ctx, eventProbe); err != nil {
		return nil, err
	}
	res, err := s.send(ctx, "", s.identification()...)
	if err != nil {
		return nil, err
	}
	s.absorbParameters(res)

	if s.singleStepAllowed() {
		logger.Info(ctx, "Single step authentication accepted")
		return s.completeLogin(ctx)
	}

	method := s.selectTanMethod()
	logger.Info(ctx, "Two step authentication required, using TAN method %v", method)
	if err := s.transition(ctx, eventRequireTan); err != nil {
		return nil, err
	}
	s.closeDialog(ctx)
	s.dialog.tanMethod = method
	return s.initDialogWithTan(ctx)
}

func (s *Session) initDialogWithTan(ctx context.Context) (*DialogState, error) {
	res, err := s.send(ctx, "", append(s.identification(), s.tanInit("HKIDN"))...)
	if err != nil {
		return nil, err
	}
	s.absorbParameters(res)
	if h, ok := parseChallenge(res); ok {
		return s.challenged(ctx, h)
	}
	return s.completeLogin(ctx)
}

func (s *Session) challenged(ctx context.Context, h hitan) (*DialogState, error) {
	process := TanProcessTwoStep
	if s.currentMethod().IsDecoupled() {
		process = TanProcessDecoupled
	}
	s.dialog.orderRef = h.orderRef
	s.dialog.challenge = &TanChallenge{
		Process:  process,
		Text:     h.challenge,
		OrderRef: h.orderRef,
		DialogID: s.dialog.id,
	}
	logger.Info(ctx, "Bank requested %v authentication", process)
	if err := s.transition(ctx, eventChallenge); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// completeLogin retrieves accounts unless user data already listed them
func (s *Session) completeLogin(ctx context.Context) (*DialogState, error) {
	if len(s.accounts) > 0 {
		s.pending = nil
		if err := s.transition(ctx, eventAccountsReady); err != nil {
			return nil, err
		}
		return s.snapshot(), nil
	}

	s.pending = &pendingOrder{kind: orderAccounts}
	res, err := s.send(ctx, "", s.withTan(segment.New("HKSPA", 1))...)
	if err != nil {
		return nil, err
	}
	if h, ok := parseChallenge(res); ok {
		return s.challenged(ctx, h)
	}
	return s.completeAccounts(ctx, res)
}

func (s *Session) completeAccounts(ctx context.Context, res *message.Response) (*DialogState, error) {
	if sepa, ok := parseSEPAAccounts(res); ok {
		s.accounts = mergeAccounts(s.accounts, sepa)
	}
	logger.Info(ctx, "Got %v accounts", len(s.accounts))
	s.pending = nil
	if err := s.transition(ctx, eventAccountsReady); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *Session) requireChallenge(orderRef string) (string, error) {
	if s.machine.Is(StateDisconnected) {
		return "", ErrNoDialog
	}
	if !s.machine.Is(StateAwaitingTan) || s.pending == nil {
		return "", ErrNoChallenge
	}
	if orderRef == "" {
		orderRef = s.dialog.orderRef
	}
	return orderRef, nil
}

// SubmitTan completes a challenge with a TAN entered by the user
func (s *Session) SubmitTan(ctx context.Context, tan string, orderRef string) (*DialogState, error) {
	orderRef, err := s.requireChallenge(orderRef)
	if err != nil {
		return nil, err
	}
	res, err := s.send(ctx, tan, s.tanContinue(tanProcessSubmit, orderRef))
	if err != nil {
		return nil, err
	}
	return s.afterTan(ctx, res)
}

// PollDecoupledTan checks whether a decoupled challenge was confirmed.
// The result has TanRequired set while the confirmation is pending
func (s *Session) PollDecoupledTan(ctx context.Context, orderRef string) (*DialogState, error) {
	orderRef, err := s.requireChallenge(orderRef)
	if err != nil {
		return nil, err
	}
	res, err := s.send(ctx, "", s.tanContinue(tanProcessPoll, orderRef))
	if err != nil {
		return nil, err
	}
	if !res.HasCode(message.CodeDecoupledConfirmed) && isStillPending(res) {
		logger.Debug(ctx, "Decoupled confirmation is still pending")
		return s.snapshot(), nil
	}
	return s.afterTan(ctx, res)
}

func isStillPending(res *message.Response) bool {
	if res.HasCode(message.CodeDecoupledPending) ||
		res.HasCode(message.CodeDecoupledStarted) ||
		res.HasCode(message.CodeStrongAuthPending) {
		return true
	}
	h, ok := parseChallenge(res)
	return ok && h.process == tanProcessInit
}

// afterTan resumes the interrupted order once the challenge is confirmed
func (s *Session) afterTan(ctx context.Context, res *message.Response) (*DialogState, error) {
	if h, ok := parseChallenge(res); ok && h.process == tanProcessInit {
		return s.challenged(ctx, h)
	}
	logger.Info(ctx, "TAN confirmed")
	s.dialog.orderRef = ""
	s.dialog.challenge = nil

	order := s.pending
	switch order.kind {
	case orderLogin:
		s.absorbParameters(res)
		return s.completeLogin(ctx)
	case orderAccounts:
		return s.completeAccounts(ctx, res)
	default:
		s.absorbStatementPage(ctx, res, order)
		if err := s.transition(ctx, eventAccountsReady); err != nil {
			return nil, err
		}
		return s.snapshot(), nil
	}
}

func (s *Session) absorbStatementPage(ctx context.Context, res *message.Response, order *pendingOrder) {
	if page, ok := parseStatementPage(res); ok {
		booked := mt940.Parse(ctx, page.booked, true)
		pending := mt940.Parse(ctx, page.pending, false)
		logger.Debug(ctx, "Got statement page: %v booked, %v pending", len(booked), len(pending))
		order.transactions = append(order.transactions, booked...)
		order.transactions = append(order.transactions, pending...)
	}
	touchdown, more := res.Touchdown()
	order.touchdown = touchdown
	order.complete = !more
}

// FetchTransactions pages statements of the account for a given period.
// *TanRequiredError is returned when the bank asks for a TAN. Complete the
// challenge and call it again with the same arguments to continue
func (s *Session) FetchTransactions(ctx context.Context, account Account, from, to time.Time) ([]mt940.Transaction, error) {
	switch s.machine.Current() {
	case StateAccountsReady:
	case StateDisconnected:
		return nil, ErrNoDialog
	case StateAwaitingTan:
		return nil, ErrTanPending
	default:
		return nil, ErrNotAuthenticated
	}

	req := statementRequest{account: account, from: from, to: to}
	order := s.pending
	if order == nil || order.kind != orderStatement || !order.statement.matches(req) {
		order = &pendingOrder{kind: orderStatement, statement: req}
		s.pending = order
	}

	for !order.complete {
		res, err := s.send(ctx, "", s.withTan(s.statementSegment(req, order.touchdown))...)
		if err != nil {
			return nil, err
		}
		if h, ok := parseChallenge(res); ok {
			if _, err := s.challenged(ctx, h); err != nil {
				return nil, err
			}
			return nil, &TanRequiredError{Challenge: *s.dialog.challenge}
		}
		s.absorbStatementPage(ctx, res, order)
	}

	s.pending = nil
	logger.Info(ctx, "Fetched %v transactions", len(order.transactions))
	return order.transactions, nil
}

// closeDialog sends HKEND if the bank assigned a dialog. Failures are ignored
func (s *Session) closeDialog(ctx context.Context) {
	defer s.resetDialog()
	if s.transport == nil || s.dialog.id == "" || s.dialog.id == initialDialogID {
		return
	}
	s.dialog.securityReference = s.nextSecurityReference()
	msg := message.Plain(s.messageParams(""), segment.New("HKEND", 1).Add(s.dialog.id))

	ctx = diag.ContextWithDialogID(ctx, s.dialog.id)
	raw, err := s.transport.Send(ctx, msg)
	if err != nil {
		logger.WithError(err).Warn(ctx, "Failed to end dialog")
		return
	}
	res, err := message.ParseResponse(raw)
	if err == nil {
		err = res.Error()
	}
	if err != nil {
		logger.WithError(err).Warn(ctx, "Bank did not accept dialog end")
		return
	}
	logger.Debug(ctx, "Dialog ended")
}

// EndDialog releases the dialog on the bank side. Never fails
func (s *Session) EndDialog(ctx context.Context) {
	s.closeDialog(ctx)
	s.pending = nil
	if err := s.transition(ctx, eventEnd); err != nil {
		logger.WithError(err).Warn(ctx, "Failed to reset dialog state")
	}
}
