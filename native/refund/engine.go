package refund

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"refundledger/core/events"
	"refundledger/crypto"
)

const (
	OpDeposit   = "deposit"
	OpClaim     = "claim"
	OpSweep     = "sweep"
	OpTerminate = "terminate"
	OpSetPrice  = "set_price"
	OpSchedule  = "set_schedule"
	OpRescue    = "rescue"

	maxDecimals = 36
)

type engineState interface {
	RefundAccountGet(participant [20]byte) (*Account, bool, error)
	RefundAccounts(fn func(*Account) error) error
	RefundParamsGet() (*Params, bool, error)
	// RefundCommit persists the params and accounts in one atomic write.
	RefundCommit(params *Params, accounts []*Account) error
}

// TokenLedger is the external value-transfer ledger. Amounts are minor units.
// Transfer moves funds the caller already owns; TransferFrom spends an
// allowance the owner granted to spender.
type TokenLedger interface {
	BalanceOf(token string, owner [20]byte) (*big.Int, error)
	Allowance(token string, owner, spender [20]byte) (*big.Int, error)
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	TransferFrom(token string, spender, owner, to [20]byte, amount *big.Int) error
}

// Metrics receives operation outcomes.
type Metrics interface {
	ObserveOperation(op string, err error)
	SetOutstanding(amount *big.Int)
	AddTransferred(direction string, minor *big.Int)
}

// Roles are the fixed identities the engine compares callers against.
type Roles struct {
	Admin   [20]byte
	Rescuer [20]byte
	// Treasury receives swept seller earnings. Defaults to Admin.
	Treasury [20]byte
	// Custody is the account holding every deposit.
	Custody [20]byte
}

// StartWindow bounds caller-supplied start times relative to the deposit
// time. A zero duration disables that side of the window.
type StartWindow struct {
	MaxFuture time.Duration
	MaxPast   time.Duration
}

// Config carries construction-time settings for the engine.
type Config struct {
	Roles       Roles
	Token       string
	Decimals    uint8
	Price       *big.Int
	Schedule    Schedule
	StartWindow StartWindow
}

// Quote is a read-only snapshot of an account's entitlement at a given time.
type Quote struct {
	At         int64
	Week       uint64
	Percentage uint8
	Refundable *big.Int
	Earned     *big.Int
	Delta      *big.Int
}

// SweepEntry reports the outcome for one participant of a sweep.
type SweepEntry struct {
	Participant [20]byte
	Delta       *big.Int
	Skipped     bool
	Reason      string
}

// SweepResult summarises a sweep. Total is in whole units, TotalMinor in
// token minor units.
type SweepResult struct {
	Total      *big.Int
	TotalMinor *big.Int
	Entries    []SweepEntry
}

// Engine is the refund ledger controller. Every exported operation runs under
// a single mutex and either commits completely or leaves state untouched.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	ledger   TokenLedger
	emitter  events.Emitter
	logger   *slog.Logger
	metrics  Metrics
	nowFn    func() int64
	roles    Roles
	token    string
	scale    *big.Int
	window   StartWindow
	defaults *Params
}

// NewEngine validates the configuration and returns an engine with a no-op
// emitter. State and ledger must be configured before use.
func NewEngine(cfg Config) (*Engine, error) {
	roles := cfg.Roles
	if roles.Admin == ([20]byte{}) {
		return nil, fmt.Errorf("refund engine: admin address required")
	}
	if roles.Rescuer == ([20]byte{}) {
		return nil, fmt.Errorf("refund engine: rescuer address required")
	}
	if roles.Custody == ([20]byte{}) {
		return nil, fmt.Errorf("refund engine: custody address required")
	}
	if roles.Treasury == ([20]byte{}) {
		roles.Treasury = roles.Admin
	}
	token := NormalizeToken(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("refund engine: token symbol required")
	}
	if cfg.Decimals > maxDecimals {
		return nil, fmt.Errorf("refund engine: decimals out of range: %d", cfg.Decimals)
	}
	schedule := cfg.Schedule
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	params, err := SanitizeParams(&Params{Price: cfg.Price, Schedule: schedule, Outstanding: big.NewInt(0)})
	if err != nil {
		return nil, fmt.Errorf("refund engine: %w", err)
	}
	if cfg.StartWindow.MaxFuture < 0 || cfg.StartWindow.MaxPast < 0 {
		return nil, fmt.Errorf("refund engine: start window must be non-negative")
	}
	return &Engine{
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		nowFn:    func() int64 { return time.Now().Unix() },
		roles:    roles,
		token:    token,
		scale:    Scale(cfg.Decimals),
		window:   cfg.StartWindow,
		defaults: params,
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger used for every value movement.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetMetrics configures the metrics sink. Nil disables metrics.
func (e *Engine) SetMetrics(metrics Metrics) { e.metrics = metrics }

// SetLogger configures the structured logger. Nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock returned by Now. Transports use it to stamp
// calls; the operations themselves always take an explicit time.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Roles returns the configured role identities.
func (e *Engine) Roles() Roles { return e.roles }

// Token returns the configured token symbol.
func (e *Engine) Token() string { return e.token }

// MinorUnits converts a whole-unit amount into token minor units.
func (e *Engine) MinorUnits(whole *big.Int) *big.Int {
	return new(big.Int).Mul(cloneBigInt(whole), e.scale)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) observe(op string, err error) {
	if e.metrics != nil {
		e.metrics.ObserveOperation(op, err)
	}
	if err != nil {
		e.logger.Warn("refund operation rejected", "op", op, "error", err.Error())
	}
}

func (e *Engine) loadParams() (*Params, error) {
	params, ok, err := e.state.RefundParamsGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.defaults.Clone(), nil
	}
	return params, nil
}

func (e *Engine) loadAccount(participant [20]byte) (*Account, error) {
	acc, ok, err := e.state.RefundAccountGet(participant)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSuchAccount
	}
	return acc, nil
}

// commit persists the staged params and accounts. It runs after the
// operation's external transfer succeeded, so a failure here is logged loudly.
func (e *Engine) commit(op string, params *Params, accounts ...*Account) error {
	if err := e.state.RefundCommit(params, accounts); err != nil {
		e.logger.Error("refund state commit failed after transfer", "op", op, "error", err.Error())
		return fmt.Errorf("refund: commit %s: %w", op, err)
	}
	if e.metrics != nil {
		e.metrics.SetOutstanding(params.Outstanding)
	}
	return nil
}

func (e *Engine) payOut(op string, to [20]byte, whole *big.Int) (*big.Int, error) {
	minor := e.MinorUnits(whole)
	if minor.Sign() == 0 {
		return minor, nil
	}
	if err := e.ledger.Transfer(e.token, e.roles.Custody, to, minor); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExternalTransferFailed, op, err)
	}
	if e.metrics != nil {
		e.metrics.AddTransferred("out", minor)
	}
	return minor, nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if caller != e.roles.Admin {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) checkStartTime(startTime, now int64) error {
	if startTime < 0 {
		return ErrStartTimeOutOfRange
	}
	if future := int64(e.window.MaxFuture / time.Second); future > 0 && startTime > now+future {
		return ErrStartTimeOutOfRange
	}
	if past := int64(e.window.MaxPast / time.Second); past > 0 && startTime < now-past {
		return ErrStartTimeOutOfRange
	}
	return nil
}

// SetPrice replaces the price required for new deposits. Existing accounts
// keep their committed amount.
func (e *Engine) SetPrice(caller [20]byte, price *big.Int) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpSetPrice, err) }()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	previous := cloneBigInt(params.Price)
	params.Price = cloneBigInt(price)
	if err := e.commit(OpSetPrice, params); err != nil {
		return err
	}
	e.logger.Info("refund price updated", "previous", previous.String(), "price", params.Price.String())
	e.emit(NewPriceUpdatedEvent(previous, params.Price))
	return nil
}

// SetRefundSchedule replaces the refund curve. The new curve applies to
// every later lookup, including accounts that deposited under the old one.
func (e *Engine) SetRefundSchedule(caller [20]byte, schedule Schedule) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpSchedule, err) }()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := schedule.Validate(); err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	previous := params.Schedule.Clone()
	params.Schedule = schedule.Clone()
	if err := e.commit(OpSchedule, params); err != nil {
		return err
	}
	e.logger.Info("refund schedule updated", "previous", previous.String(), "schedule", params.Schedule.String())
	e.emit(NewScheduleUpdatedEvent(previous, params.Schedule))
	return nil
}

// Deposit pulls the declared price from the caller into custody and opens the
// caller's account. Each identity may deposit once, ever. startTime may be any
// non-negative unix time, optionally bounded by the configured StartWindow;
// negative values are rejected with ErrStartTimeOutOfRange before any tokens
// move because stored timestamps are unsigned.
func (e *Engine) Deposit(caller [20]byte, declaredPrice *big.Int, startTime, now int64) (acc *Account, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpDeposit, err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if declaredPrice == nil || declaredPrice.Cmp(params.Price) != 0 {
		return nil, ErrPriceMismatch
	}
	if _, ok, err := e.state.RefundAccountGet(caller); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrDuplicateDeposit
	}
	if err := e.checkStartTime(startTime, now); err != nil {
		return nil, err
	}
	minor := e.MinorUnits(declaredPrice)
	allowance, err := e.ledger.Allowance(e.token, caller, e.roles.Custody)
	if err != nil {
		return nil, fmt.Errorf("%w: allowance: %v", ErrExternalTransferFailed, err)
	}
	if allowance == nil || allowance.Cmp(minor) < 0 {
		return nil, ErrAllowanceInsufficient
	}
	if err := e.ledger.TransferFrom(e.token, e.roles.Custody, caller, e.roles.Custody, minor); err != nil {
		return nil, fmt.Errorf("%w: deposit: %v", ErrExternalTransferFailed, err)
	}
	if e.metrics != nil {
		e.metrics.AddTransferred("in", minor)
	}
	acc = &Account{
		Participant:     caller,
		Committed:       cloneBigInt(declaredPrice),
		StartTime:       startTime,
		DepositedAt:     now,
		SellerWithdrawn: big.NewInt(0),
		Refunded:        big.NewInt(0),
	}
	params.Outstanding = new(big.Int).Add(params.Outstanding, acc.Committed)
	if err := e.commit(OpDeposit, params, acc); err != nil {
		return nil, err
	}
	e.logger.Info("refund deposit",
		"participant", crypto.FromRaw(caller).String(),
		"committed", acc.Committed.String(),
		"startTime", startTime)
	e.emit(NewDepositedEvent(acc, minor))
	return acc.Clone(), nil
}

// EligibleRefund returns the refund the participant could claim at now.
// Settled accounts report zero.
func (e *Engine) EligibleRefund(participant [20]byte, now int64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(participant)
	if err != nil {
		return nil, err
	}
	if acc.Settled {
		return big.NewInt(0), nil
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	return Payable(acc, params.Schedule, now), nil
}

// Quote returns the entitlement breakdown for a participant at now.
func (e *Engine) Quote(participant [20]byte, now int64) (*Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(participant)
	if err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	week := ElapsedWeeks(now, acc.StartTime)
	quote := &Quote{At: now, Week: week, Percentage: params.Schedule.Lookup(week)}
	if acc.Settled {
		quote.Refundable, quote.Earned, quote.Delta = big.NewInt(0), big.NewInt(0), big.NewInt(0)
		return quote, nil
	}
	quote.Refundable = Payable(acc, params.Schedule, now)
	quote.Earned = SellerEarned(acc, params.Schedule, now)
	quote.Delta = SellerEarnedDelta(acc, params.Schedule, now)
	return quote, nil
}

// ClaimRefund pays the caller's current refund out of custody and settles the
// account. Outstanding liability drops by the full committed amount.
func (e *Engine) ClaimRefund(caller [20]byte, now int64) (amount *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpClaim, err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if acc.Settled {
		return nil, ErrAlreadySettled
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	refund := Payable(acc, params.Schedule, now)
	if err := e.settle(acc, params, refund, SettlementClaimed, now); err != nil {
		return nil, err
	}
	minor, err := e.payOut(OpClaim, caller, refund)
	if err != nil {
		return nil, err
	}
	if err := e.commit(OpClaim, params, acc); err != nil {
		return nil, err
	}
	e.logger.Info("refund claimed",
		"participant", crypto.FromRaw(caller).String(),
		"refund", refund.String(),
		"week", ElapsedWeeks(now, acc.StartTime))
	e.emit(NewClaimedEvent(acc, minor))
	return refund, nil
}

// TerminateAgreement lets the administrator close an account, pushing the
// participant's current refund to them. Earned funds not yet swept stay in
// custody and are reported as forfeited on the event.
func (e *Engine) TerminateAgreement(caller, participant [20]byte, now int64) (amount *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpTerminate, err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(participant)
	if err != nil {
		return nil, err
	}
	if acc.Settled {
		return nil, ErrAlreadySettled
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	refund := Payable(acc, params.Schedule, now)
	forfeited := new(big.Int).Sub(acc.Committed, acc.SellerWithdrawn)
	forfeited.Sub(forfeited, refund)
	if err := e.settle(acc, params, refund, SettlementTerminated, now); err != nil {
		return nil, err
	}
	minor, err := e.payOut(OpTerminate, participant, refund)
	if err != nil {
		return nil, err
	}
	if err := e.commit(OpTerminate, params, acc); err != nil {
		return nil, err
	}
	e.logger.Info("refund agreement terminated",
		"participant", crypto.FromRaw(participant).String(),
		"refund", refund.String(),
		"forfeited", forfeited.String())
	e.emit(NewTerminatedEvent(acc, minor, forfeited))
	return refund, nil
}

// settle stages the terminal transition on acc and params.
func (e *Engine) settle(acc *Account, params *Params, refund *big.Int, kind Settlement, now int64) error {
	outstanding := new(big.Int).Sub(params.Outstanding, acc.Committed)
	if outstanding.Sign() < 0 {
		return fmt.Errorf("refund: outstanding liability underflow settling %s", crypto.FromRaw(acc.Participant))
	}
	params.Outstanding = outstanding
	acc.Settled = true
	acc.Settlement = kind
	acc.SettledAt = now
	acc.Refunded = cloneBigInt(refund)
	return nil
}

// SellerWithdraw sweeps the newly earned share of every listed participant to
// the treasury. Missing and settled accounts are skipped. The per-account
// deltas are paid in a single transfer so the sweep commits atomically.
func (e *Engine) SellerWithdraw(caller [20]byte, participants [][20]byte, now int64) (result *SweepResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpSweep, err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	result = &SweepResult{Total: big.NewInt(0), Entries: make([]SweepEntry, 0, len(participants))}
	staged := make(map[[20]byte]*Account)
	changed := make([]*Account, 0, len(participants))
	for _, participant := range participants {
		entry := SweepEntry{Participant: participant, Delta: big.NewInt(0)}
		acc, ok := staged[participant]
		if !ok {
			loaded, found, err := e.state.RefundAccountGet(participant)
			if err != nil {
				return nil, err
			}
			if !found {
				entry.Skipped, entry.Reason = true, "no account"
				result.Entries = append(result.Entries, entry)
				continue
			}
			acc = loaded
			staged[participant] = acc
		}
		if acc.Settled {
			entry.Skipped, entry.Reason = true, "settled"
			result.Entries = append(result.Entries, entry)
			continue
		}
		delta := SellerEarnedDelta(acc, params.Schedule, now)
		entry.Delta = cloneBigInt(delta)
		result.Entries = append(result.Entries, entry)
		if delta.Sign() == 0 {
			continue
		}
		acc.SellerWithdrawn = new(big.Int).Add(acc.SellerWithdrawn, delta)
		result.Total.Add(result.Total, delta)
		if !containsAccount(changed, acc) {
			changed = append(changed, acc)
		}
	}
	minor, err := e.payOut(OpSweep, e.roles.Treasury, result.Total)
	if err != nil {
		return nil, err
	}
	result.TotalMinor = minor
	if len(changed) > 0 {
		if err := e.commit(OpSweep, params, changed...); err != nil {
			return nil, err
		}
	}
	e.logger.Info("refund sweep",
		"requested", len(participants),
		"accounts", len(changed),
		"total", result.Total.String())
	for _, entry := range result.Entries {
		if entry.Skipped || entry.Delta.Sign() == 0 {
			continue
		}
		e.emit(NewSweptEvent(staged[entry.Participant], entry.Delta, e.roles.Treasury))
	}
	return result, nil
}

func containsAccount(list []*Account, acc *Account) bool {
	for _, existing := range list {
		if existing == acc {
			return true
		}
	}
	return false
}

// RescueToken moves an arbitrary token balance out of custody to the rescuer.
// Participant bookkeeping is left untouched, including when the token is the
// ledger's own.
func (e *Engine) RescueToken(caller [20]byte, token string, amount *big.Int) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.observe(OpRescue, err) }()
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.roles.Rescuer {
		return ErrUnauthorized
	}
	symbol := NormalizeToken(token)
	if symbol == "" {
		return fmt.Errorf("%w: token symbol required", ErrInvalidRescue)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRescue)
	}
	if err := e.ledger.Transfer(symbol, e.roles.Custody, e.roles.Rescuer, amount); err != nil {
		return fmt.Errorf("%w: rescue: %v", ErrExternalTransferFailed, err)
	}
	e.logger.Warn("refund custody rescue",
		"token", symbol,
		"amount", amount.String(),
		"rescuer", crypto.FromRaw(caller).String())
	e.emit(NewRescuedEvent(symbol, amount, caller))
	return nil
}

// Account returns a copy of the participant's account.
func (e *Engine) Account(participant [20]byte) (*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadAccount(participant)
}

// Params returns the current price, schedule and outstanding liability.
func (e *Engine) Params() (*Params, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadParams()
}

// CustodyBalance reports the custody balance of the configured token in minor
// units, as seen by the token ledger.
func (e *Engine) CustodyBalance() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.custodyBalance()
}

// ParamsAndCustody returns the params and the custody balance read under one
// lock, so no operation can land between the two reads.
func (e *Engine) ParamsAndCustody() (*Params, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	params, err := e.loadParams()
	if err != nil {
		return nil, nil, err
	}
	balance, err := e.custodyBalance()
	if err != nil {
		return nil, nil, err
	}
	return params, balance, nil
}

func (e *Engine) custodyBalance() (*big.Int, error) {
	balance, err := e.ledger.BalanceOf(e.token, e.roles.Custody)
	if err != nil {
		return nil, fmt.Errorf("refund: custody balance: %w", err)
	}
	return cloneBigInt(balance), nil
}

// Accounts returns a copy of every account in storage key order.
func (e *Engine) Accounts() ([]*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	out := make([]*Account, 0)
	err := e.state.RefundAccounts(func(acc *Account) error {
		out = append(out, acc.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveParticipants lists every account that is not settled.
func (e *Engine) ActiveParticipants() ([][20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0)
	err := e.state.RefundAccounts(func(acc *Account) error {
		if !acc.Settled {
			out = append(out, acc.Participant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeToken trims and upper-cases a token symbol.
func NormalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Scale returns 10^decimals, the number of minor units per whole unit.
func Scale(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// IsRejection reports whether err is one of the engine's typed rejections as
// opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrUnauthorized, ErrInvalidSchedule, ErrPriceMismatch, ErrDuplicateDeposit,
		ErrAllowanceInsufficient, ErrNoSuchAccount, ErrAlreadySettled,
		ErrExternalTransferFailed, ErrInvalidPrice, ErrStartTimeOutOfRange, ErrInvalidRescue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
