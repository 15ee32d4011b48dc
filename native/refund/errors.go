package refund

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized           = errors.New("refund: unauthorized caller")
	ErrInvalidSchedule        = errors.New("refund: invalid refund schedule")
	ErrPriceMismatch          = errors.New("refund: declared price does not match current price")
	ErrDuplicateDeposit       = errors.New("refund: participant already deposited")
	ErrAllowanceInsufficient  = errors.New("refund: token allowance below deposit amount")
	ErrNoSuchAccount          = errors.New("refund: no account for participant")
	ErrAlreadySettled         = errors.New("refund: account already settled")
	ErrExternalTransferFailed = errors.New("refund: external transfer failed")
	ErrInvalidPrice           = errors.New("refund: price must be positive")
	ErrStartTimeOutOfRange    = errors.New("refund: start time outside accepted window")
	ErrInvalidRescue          = errors.New("refund: invalid rescue request")

	errNilState  = errors.New("refund engine: state not configured")
	errNilLedger = errors.New("refund engine: token ledger not configured")
)

const (
	ReasonNoRefundPeriod = "must have at least 1 non-zero refund period"
	ReasonMustEndAtZero  = "must end with zero refund"
	ReasonNotDecreasing  = "refund must be non-increasing"
	ReasonAboveHundred   = "refund percentage must not exceed 100"
)

// InvalidScheduleError reports which schedule invariant was violated. It
// matches ErrInvalidSchedule under errors.Is.
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSchedule.Error(), e.Reason)
}

func (e *InvalidScheduleError) Is(target error) bool {
	return target == ErrInvalidSchedule
}
