package refund

import "math/big"

var hundred = big.NewInt(100)

// Refundable returns the amount the participant could reclaim at now.
//
// The committed amount is multiplied by the percentage before dividing by
// 100, so the result truncates once: 333 at 75% yields 249, never 248.
func Refundable(acc *Account, schedule Schedule, now int64) *big.Int {
	if acc == nil || acc.Committed == nil || acc.Committed.Sign() <= 0 {
		return big.NewInt(0)
	}
	pct := schedule.Lookup(ElapsedWeeks(now, acc.StartTime))
	out := new(big.Int).Mul(acc.Committed, big.NewInt(int64(pct)))
	return out.Quo(out, hundred)
}

// Payable is the refund that can actually be paid out at now: the refundable
// amount, capped by what has not already been swept to the seller.
func Payable(acc *Account, schedule Schedule, now int64) *big.Int {
	refundable := Refundable(acc, schedule, now)
	if acc == nil || acc.SellerWithdrawn == nil || acc.Committed == nil {
		return refundable
	}
	remaining := new(big.Int).Sub(acc.Committed, acc.SellerWithdrawn)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	if refundable.Cmp(remaining) > 0 {
		return remaining
	}
	return refundable
}

// SellerEarned returns the non-refundable share accrued at now.
func SellerEarned(acc *Account, schedule Schedule, now int64) *big.Int {
	if acc == nil || acc.Committed == nil || acc.Committed.Sign() <= 0 {
		return big.NewInt(0)
	}
	earned := new(big.Int).Sub(acc.Committed, Refundable(acc, schedule, now))
	if earned.Sign() < 0 {
		return big.NewInt(0)
	}
	return earned
}

// SellerEarnedDelta returns the earned share not yet swept. It never goes
// negative: a schedule replacement that raises the refundable share leaves
// the delta at zero until accrual catches up with what was already swept.
func SellerEarnedDelta(acc *Account, schedule Schedule, now int64) *big.Int {
	earned := SellerEarned(acc, schedule, now)
	if acc == nil || acc.SellerWithdrawn == nil {
		return earned
	}
	delta := earned.Sub(earned, acc.SellerWithdrawn)
	if delta.Sign() < 0 {
		return big.NewInt(0)
	}
	return delta
}
