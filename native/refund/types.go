package refund

import (
	"fmt"
	"math/big"
)

// Settlement records how an account reached its terminal state.
type Settlement uint8

const (
	SettlementNone Settlement = iota
	SettlementClaimed
	SettlementTerminated
)

func (s Settlement) String() string {
	switch s {
	case SettlementNone:
		return "active"
	case SettlementClaimed:
		return "claimed"
	case SettlementTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("settlement(%d)", uint8(s))
	}
}

// Valid reports whether the value is a known settlement kind.
func (s Settlement) Valid() bool {
	switch s {
	case SettlementNone, SettlementClaimed, SettlementTerminated:
		return true
	default:
		return false
	}
}

// Account is the per-participant commitment. Amounts are whole currency
// units; the token ledger works in minor units.
type Account struct {
	Participant     [20]byte
	Committed       *big.Int
	StartTime       int64
	DepositedAt     int64
	SellerWithdrawn *big.Int
	Settled         bool
	Settlement      Settlement
	SettledAt       int64
	// Refunded is the amount paid back to the participant at settlement.
	Refunded *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Committed = cloneBigInt(a.Committed)
	clone.SellerWithdrawn = cloneBigInt(a.SellerWithdrawn)
	clone.Refunded = cloneBigInt(a.Refunded)
	return &clone
}

// Params is the global ledger state shared by every account.
type Params struct {
	Price    *big.Int
	Schedule Schedule
	// Outstanding is the committed total over accounts that are not settled.
	Outstanding *big.Int
}

// Clone returns a deep copy of the params.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	return &Params{
		Price:       cloneBigInt(p.Price),
		Schedule:    p.Schedule.Clone(),
		Outstanding: cloneBigInt(p.Outstanding),
	}
}

// SanitizeAccount validates a stored account and fills nil amounts.
func SanitizeAccount(a *Account) (*Account, error) {
	if a == nil {
		return nil, fmt.Errorf("nil account")
	}
	clone := a.Clone()
	if clone.Committed.Sign() <= 0 {
		return nil, fmt.Errorf("refund account committed amount must be positive")
	}
	if clone.SellerWithdrawn.Sign() < 0 || clone.Refunded.Sign() < 0 {
		return nil, fmt.Errorf("refund account amounts must be non-negative")
	}
	if new(big.Int).Add(clone.SellerWithdrawn, clone.Refunded).Cmp(clone.Committed) > 0 {
		return nil, fmt.Errorf("refund account payouts exceed committed amount")
	}
	if clone.StartTime < 0 || clone.DepositedAt < 0 || clone.SettledAt < 0 {
		return nil, fmt.Errorf("refund account timestamps must be non-negative")
	}
	if !clone.Settlement.Valid() {
		return nil, fmt.Errorf("invalid settlement kind: %d", clone.Settlement)
	}
	if clone.Settled != (clone.Settlement != SettlementNone) {
		return nil, fmt.Errorf("refund account settlement flag inconsistent")
	}
	return clone, nil
}

// SanitizeParams validates stored params and fills nil amounts.
func SanitizeParams(p *Params) (*Params, error) {
	if p == nil {
		return nil, fmt.Errorf("nil params")
	}
	clone := p.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if clone.Outstanding.Sign() < 0 {
		return nil, fmt.Errorf("outstanding liability must be non-negative")
	}
	if err := clone.Schedule.Validate(); err != nil {
		return nil, err
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
