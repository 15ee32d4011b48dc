package observability

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"refundledger/native/refund"
)

// RefundMetrics captures the ledger's operation outcomes and balances.
type RefundMetrics struct {
	operations  *prometheus.CounterVec
	outstanding prometheus.Gauge
	transferred *prometheus.CounterVec
}

var (
	refundMetricsOnce sync.Once
	refundRegistry    *RefundMetrics
)

// Refund returns the lazily-initialised refund metrics registered on the
// default prometheus registry.
func Refund() *RefundMetrics {
	refundMetricsOnce.Do(func() {
		refundRegistry = NewRefundMetrics(prometheus.DefaultRegisterer)
	})
	return refundRegistry
}

// NewRefundMetrics builds refund collectors and registers them on reg. Tests
// pass a fresh registry.
func NewRefundMetrics(reg prometheus.Registerer) *RefundMetrics {
	m := &RefundMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refund",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "refund",
			Subsystem: "ledger",
			Name:      "outstanding_liability",
			Help:      "Committed whole units across accounts that are not settled.",
		}),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refund",
			Subsystem: "ledger",
			Name:      "transferred_minor_units_total",
			Help:      "Token minor units moved into or out of custody.",
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.outstanding, m.transferred)
	}
	return m
}

// ObserveOperation records the outcome of one ledger operation.
func (m *RefundMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if strings.TrimSpace(op) == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
}

// SetOutstanding publishes the outstanding liability.
func (m *RefundMetrics) SetOutstanding(amount *big.Int) {
	if m == nil {
		return
	}
	m.outstanding.Set(bigToFloat(amount))
}

// AddTransferred adds minor units to the transfer counter for direction
// ("in" or "out").
func (m *RefundMetrics) AddTransferred(direction string, minor *big.Int) {
	if m == nil || minor == nil || minor.Sign() <= 0 {
		return
	}
	m.transferred.WithLabelValues(direction).Add(bigToFloat(minor))
}

// Outcome maps an operation error onto a stable label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, refund.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, refund.ErrInvalidSchedule):
		return "invalid_schedule"
	case errors.Is(err, refund.ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, refund.ErrDuplicateDeposit):
		return "duplicate_deposit"
	case errors.Is(err, refund.ErrAllowanceInsufficient):
		return "allowance_insufficient"
	case errors.Is(err, refund.ErrNoSuchAccount):
		return "no_such_account"
	case errors.Is(err, refund.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, refund.ErrExternalTransferFailed):
		return "transfer_failed"
	case errors.Is(err, refund.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, refund.ErrStartTimeOutOfRange):
		return "start_time_out_of_range"
	case errors.Is(err, refund.ErrInvalidRescue):
		return "invalid_rescue"
	default:
		return "error"
	}
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
