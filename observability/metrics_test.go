package observability

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"refundledger/core/events"
	"refundledger/native/refund"
)

func TestOutcomeLabels(t *testing.T) {
	cases := map[string]error{
		"success":                 nil,
		"unauthorized":            refund.ErrUnauthorized,
		"invalid_schedule":        refund.Schedule{10}.Validate(),
		"price_mismatch":          refund.ErrPriceMismatch,
		"duplicate_deposit":       fmt.Errorf("wrapped: %w", refund.ErrDuplicateDeposit),
		"allowance_insufficient":  refund.ErrAllowanceInsufficient,
		"no_such_account":         refund.ErrNoSuchAccount,
		"already_settled":         refund.ErrAlreadySettled,
		"transfer_failed":         refund.ErrExternalTransferFailed,
		"invalid_price":           refund.ErrInvalidPrice,
		"start_time_out_of_range": refund.ErrStartTimeOutOfRange,
		"invalid_rescue":          refund.ErrInvalidRescue,
		"error":                   errors.New("disk"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestRefundMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRefundMetrics(reg)

	m.ObserveOperation(refund.OpDeposit, nil)
	m.ObserveOperation(refund.OpDeposit, refund.ErrDuplicateDeposit)
	m.ObserveOperation("", nil)
	m.SetOutstanding(big.NewInt(5000))
	m.AddTransferred("in", big.NewInt(5_000_000_000))
	m.AddTransferred("out", big.NewInt(0))

	if got := testutil.ToFloat64(m.operations.WithLabelValues(refund.OpDeposit, "success")); got != 1 {
		t.Fatalf("unexpected success count: %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(refund.OpDeposit, "duplicate_deposit")); got != 1 {
		t.Fatalf("unexpected duplicate count: %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "success")); got != 1 {
		t.Fatalf("unexpected unknown count: %v", got)
	}
	if got := testutil.ToFloat64(m.outstanding); got != 5000 {
		t.Fatalf("unexpected outstanding: %v", got)
	}
	if got := testutil.ToFloat64(m.transferred.WithLabelValues("in")); got != 5e9 {
		t.Fatalf("unexpected transferred: %v", got)
	}
	if got := testutil.CollectAndCount(m.transferred); got != 1 {
		t.Fatalf("zero transfer should not create a series, got %d", got)
	}

	var nilMetrics *RefundMetrics
	nilMetrics.ObserveOperation(refund.OpClaim, nil)
	nilMetrics.SetOutstanding(big.NewInt(1))
}

func TestEventMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEventMetrics(reg)
	m.Emit(events.Record{Type: refund.EventTypeDeposited})
	m.Emit(events.Record{Type: refund.EventTypeDeposited})
	m.Emit(events.Record{Type: " "})
	m.Emit(nil)

	if got := testutil.ToFloat64(m.emitted.WithLabelValues(refund.EventTypeDeposited)); got != 2 {
		t.Fatalf("unexpected deposited count: %v", got)
	}
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unexpected unknown count: %v", got)
	}
}
