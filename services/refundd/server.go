package refundd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"refundledger/crypto"
	"refundledger/integrations/exports"
	"refundledger/integrations/journal"
	"refundledger/native/refund"
	"refundledger/services/refundd/middleware"
	"refundledger/state/bank"
)

// Bank is the token ledger surface the daemon exposes next to the engine.
type Bank interface {
	refund.TokenLedger
	Approve(token string, owner, spender [20]byte, amount *big.Int) error
	Mint(token string, to [20]byte, amount *big.Int) error
}

// ServerConfig wires the HTTP surface. Journal, Observability, RateLimiter
// and MetricsHandler are optional.
type ServerConfig struct {
	Engine         *refund.Engine
	Bank           Bank
	Journal        *journal.Journal
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	MetricsHandler http.Handler
	Decimals       uint8
	Faucet         bool
	Logger         *slog.Logger
}

// Server exposes the refund ledger over JSON HTTP.
type Server struct {
	cfg    ServerConfig
	engine *refund.Engine
	bank   Bank
	logger *slog.Logger
	router chi.Router
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("refundd: engine required")
	}
	if cfg.Bank == nil {
		return nil, errors.New("refundd: token ledger required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("refundd: authenticator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, engine: cfg.Engine, bank: cfg.Bank, logger: cfg.Logger}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.cfg.Observability != nil {
		r.Use(s.cfg.Observability.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.MetricsHandler != nil {
		r.Handle("/metrics", s.cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(pub chi.Router) {
			if s.cfg.RateLimiter != nil {
				pub.Use(s.cfg.RateLimiter.Middleware)
			}
			pub.Get("/params", s.handleParams)
			pub.Get("/accounts", s.handleAccounts)
			pub.Get("/accounts/{participant}", s.handleAccount)
			pub.Get("/accounts/{participant}/eligible", s.handleEligible)
			pub.Get("/accounts/{participant}/quote", s.handleQuote)
			pub.Get("/balances/{owner}", s.handleBalance)
			pub.Get("/export", s.handleExport)
			pub.Get("/events", s.handleEvents)
		})
		v1.Group(func(priv chi.Router) {
			priv.Use(s.cfg.Authenticator.Middleware)
			if s.cfg.RateLimiter != nil {
				priv.Use(s.cfg.RateLimiter.Middleware)
			}
			priv.Post("/deposit", s.handleDeposit)
			priv.Post("/claim", s.handleClaim)
			priv.Post("/sweep", s.handleSweep)
			priv.Post("/terminate", s.handleTerminate)
			priv.Post("/rescue", s.handleRescue)
			priv.Post("/admin/price", s.handleSetPrice)
			priv.Post("/admin/schedule", s.handleSetSchedule)
			priv.Post("/token/approve", s.handleApprove)
			if s.cfg.Faucet {
				priv.Post("/dev/mint", s.handleMint)
			}
		})
	})
	return r
}

type accountView struct {
	Participant     string `json:"participant"`
	Committed       string `json:"committed"`
	StartTime       int64  `json:"startTime"`
	DepositedAt     int64  `json:"depositedAt"`
	SellerWithdrawn string `json:"sellerWithdrawn"`
	Status          string `json:"status"`
	Refunded        string `json:"refunded"`
	SettledAt       int64  `json:"settledAt,omitempty"`
}

func newAccountView(acc *refund.Account) accountView {
	return accountView{
		Participant:     crypto.FromRaw(acc.Participant).String(),
		Committed:       acc.Committed.String(),
		StartTime:       acc.StartTime,
		DepositedAt:     acc.DepositedAt,
		SellerWithdrawn: acc.SellerWithdrawn.String(),
		Status:          acc.Settlement.String(),
		Refunded:        acc.Refunded.String(),
		SettledAt:       acc.SettledAt,
	}
}

type paramsView struct {
	Token          string `json:"token"`
	Decimals       uint8  `json:"decimals"`
	Price          string `json:"price"`
	Schedule       []int  `json:"schedule"`
	Outstanding    string `json:"outstanding"`
	CustodyBalance string `json:"custodyBalance"`
	Admin          string `json:"admin"`
	Rescuer        string `json:"rescuer"`
	Treasury       string `json:"treasury"`
	Custody        string `json:"custody"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params, balance, err := s.engine.ParamsAndCustody()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	roles := s.engine.Roles()
	schedule := make([]int, len(params.Schedule))
	for i, pct := range params.Schedule {
		schedule[i] = int(pct)
	}
	writeJSON(w, http.StatusOK, paramsView{
		Token:          s.engine.Token(),
		Decimals:       s.cfg.Decimals,
		Price:          params.Price.String(),
		Schedule:       schedule,
		Outstanding:    params.Outstanding.String(),
		CustodyBalance: balance.String(),
		Admin:          crypto.FromRaw(roles.Admin).String(),
		Rescuer:        crypto.FromRaw(roles.Rescuer).String(),
		Treasury:       crypto.FromRaw(roles.Treasury).String(),
		Custody:        crypto.FromRaw(roles.Custody).String(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.Accounts()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	out := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		if status != "" && acc.Settlement.String() != status {
			continue
		}
		out = append(out, newAccountView(acc))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.pathAddress(w, r, "participant")
	if !ok {
		return
	}
	acc, err := s.engine.Account(participant)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(acc))
}

func (s *Server) handleEligible(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.pathAddress(w, r, "participant")
	if !ok {
		return
	}
	at, ok := s.queryTime(w, r)
	if !ok {
		return
	}
	amount, err := s.engine.EligibleRefund(participant, at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"at": at, "refund": amount.String()})
}

type quoteView struct {
	At         int64  `json:"at"`
	Week       uint64 `json:"week"`
	Percentage uint8  `json:"percentage"`
	Refundable string `json:"refundable"`
	Earned     string `json:"earned"`
	Unswept    string `json:"unswept"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	participant, ok := s.pathAddress(w, r, "participant")
	if !ok {
		return
	}
	at, ok := s.queryTime(w, r)
	if !ok {
		return
	}
	quote, err := s.engine.Quote(participant, at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteView{
		At:         quote.At,
		Week:       quote.Week,
		Percentage: quote.Percentage,
		Refundable: quote.Refundable.String(),
		Earned:     quote.Earned.String(),
		Unswept:    quote.Delta.String(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.pathAddress(w, r, "owner")
	if !ok {
		return
	}
	token := r.URL.Query().Get("token")
	if strings.TrimSpace(token) == "" {
		token = s.engine.Token()
	}
	balance, err := s.bank.BalanceOf(token, owner)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	allowance, err := s.bank.Allowance(token, owner, s.engine.Roles().Custody)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":            refund.NormalizeToken(token),
		"balance":          balance.String(),
		"custodyAllowance": allowance.String(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.Accounts()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	params, err := s.engine.Params()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	at, ok := s.queryTime(w, r)
	if !ok {
		return
	}
	var (
		data        []byte
		checksum    string
		contentType string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		data, checksum, err = exports.AccountsCSV(accounts, params.Schedule, time.Unix(at, 0))
		contentType = "text/csv"
	case "jsonl":
		data, checksum, err = exports.AccountsJSONL(accounts, params.Schedule, time.Unix(at, 0))
		contentType = "application/x-ndjson"
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-SHA256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type eventView struct {
	Seq        int64             `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		writeError(w, http.StatusNotFound, "event journal disabled")
		return
	}
	query := r.URL.Query()
	filter := journal.Filter{Type: query.Get("type")}
	if raw := query.Get("participant"); raw != "" {
		participant, err := crypto.ParseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Participant = crypto.FromRaw(participant).String()
	}
	if raw := query.Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be unix seconds")
			return
		}
		filter.Since = time.Unix(since, 0)
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	entries, err := s.cfg.Journal.List(r.Context(), filter)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	out := make([]eventView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, eventView{
			Seq:        entry.Seq,
			ID:         entry.ID.String(),
			Type:       entry.Type,
			Attributes: entry.Attrs(),
			CreatedAt:  entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

type depositRequest struct {
	Price     string `json:"price"`
	StartTime *int64 `json:"startTime"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	price, ok := parseAmount(w, "price", req.Price)
	if !ok {
		return
	}
	now := s.engine.Now()
	start := now
	if req.StartTime != nil {
		start = *req.StartTime
	}
	acc, err := s.engine.Deposit(caller, price, start, now)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountView(acc))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	amount, err := s.engine.ClaimRefund(s.caller(r), s.engine.Now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"refund":      amount.String(),
		"refundMinor": s.engine.MinorUnits(amount).String(),
	})
}

type sweepRequest struct {
	Participants []string `json:"participants"`
	All          bool     `json:"all"`
}

type sweepEntryView struct {
	Participant string `json:"participant"`
	Delta       string `json:"delta"`
	Skipped     bool   `json:"skipped,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req sweepRequest
	if !decode(w, r, &req) {
		return
	}
	var participants [][20]byte
	if req.All {
		active, err := s.engine.ActiveParticipants()
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		participants = active
	}
	for _, raw := range req.Participants {
		participant, err := crypto.ParseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("participant %q: %v", raw, err))
			return
		}
		participants = append(participants, participant)
	}
	result, err := s.engine.SellerWithdraw(caller, participants, s.engine.Now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	entries := make([]sweepEntryView, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, sweepEntryView{
			Participant: crypto.FromRaw(entry.Participant).String(),
			Delta:       entry.Delta.String(),
			Skipped:     entry.Skipped,
			Reason:      entry.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      result.Total.String(),
		"totalMinor": result.TotalMinor.String(),
		"entries":    entries,
	})
}

type terminateRequest struct {
	Participant string `json:"participant"`
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req terminateRequest
	if !decode(w, r, &req) {
		return
	}
	participant, err := crypto.ParseAddress(req.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("participant: %v", err))
		return
	}
	amount, err := s.engine.TerminateAgreement(caller, participant, s.engine.Now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refund": amount.String()})
}

type rescueRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleRescue(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req rescueRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.engine.RescueToken(caller, req.Token, amount); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req priceRequest
	if !decode(w, r, &req) {
		return
	}
	price, ok := parseAmount(w, "price", req.Price)
	if !ok {
		return
	}
	if err := s.engine.SetPrice(caller, price); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scheduleRequest struct {
	Schedule []int `json:"schedule"`
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	schedule := make(refund.Schedule, 0, len(req.Schedule))
	for i, pct := range req.Schedule {
		if pct < 0 || pct > 255 {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("schedule[%d]: %d out of range", i, pct))
			return
		}
		schedule = append(schedule, uint8(pct))
	}
	if err := s.engine.SetRefundSchedule(caller, schedule); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type approveRequest struct {
	Amount string `json:"amount"`
}

// handleApprove lets the caller grant custody an allowance in minor units.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.bank.Approve(s.engine.Token(), caller, s.engine.Roles().Custody, amount); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if s.caller(r) != s.engine.Roles().Admin {
		s.writeErr(w, r, refund.ErrUnauthorized)
		return
	}
	var req mintRequest
	if !decode(w, r, &req) {
		return
	}
	to, err := crypto.ParseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("to: %v", err))
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.bank.Mint(s.engine.Token(), to, amount); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) caller(r *http.Request) [20]byte {
	caller, _ := middleware.Caller(r.Context())
	return caller
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, name string) ([20]byte, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", name, err))
		return [20]byte{}, false
	}
	return addr, true
}

// queryTime reads ?at= as unix seconds, defaulting to the engine clock.
func (s *Server) queryTime(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("at"))
	if raw == "" {
		return s.engine.Now(), true
	}
	at, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "at must be unix seconds")
		return 0, false
	}
	return at, true
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("route", r.URL.Path),
			slog.String("request_id", middleware.RequestID(r.Context())),
			slog.Any("error", err))
	}
	writeError(w, status, err.Error())
}

// StatusFor maps ledger errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, refund.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, refund.ErrNoSuchAccount):
		return http.StatusNotFound
	case errors.Is(err, refund.ErrDuplicateDeposit), errors.Is(err, refund.ErrAlreadySettled):
		return http.StatusConflict
	case errors.Is(err, refund.ErrInvalidSchedule), errors.Is(err, refund.ErrPriceMismatch),
		errors.Is(err, refund.ErrInvalidPrice), errors.Is(err, refund.ErrStartTimeOutOfRange),
		errors.Is(err, refund.ErrInvalidRescue),
		errors.Is(err, bank.ErrNegativeAmount), errors.Is(err, bank.ErrAmountOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, refund.ErrAllowanceInsufficient), errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	case errors.Is(err, refund.ErrExternalTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}
	return true
}

func parseAmount(w http.ResponseWriter, field, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a base-10 integer", field))
		return nil, false
	}
	return amount, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
