package refund

import (
	"math/big"
	"strconv"

	"refundledger/core/events"
	"refundledger/crypto"
)

const (
	EventTypeDeposited       = "refund.deposited"
	EventTypeClaimed         = "refund.claimed"
	EventTypeSwept           = "refund.swept"
	EventTypeTerminated      = "refund.terminated"
	EventTypePriceUpdated    = "refund.price_updated"
	EventTypeScheduleUpdated = "refund.schedule_updated"
	EventTypeRescued         = "refund.rescued"
)

// NewDepositedEvent is emitted once a participant's funds reach custody.
func NewDepositedEvent(acc *Account, minor *big.Int) events.Record {
	attrs := accountAttributes(acc)
	attrs["amountMinor"] = cloneBigInt(minor).String()
	return events.Record{Type: EventTypeDeposited, Attrs: attrs}
}

// NewClaimedEvent is emitted when the participant pulls their refund.
func NewClaimedEvent(acc *Account, minor *big.Int) events.Record {
	attrs := accountAttributes(acc)
	attrs["amountMinor"] = cloneBigInt(minor).String()
	return events.Record{Type: EventTypeClaimed, Attrs: attrs}
}

// NewTerminatedEvent is emitted when the administrator ends an agreement and
// pushes the remaining refund to the participant.
func NewTerminatedEvent(acc *Account, minor, forfeited *big.Int) events.Record {
	attrs := accountAttributes(acc)
	attrs["amountMinor"] = cloneBigInt(minor).String()
	attrs["forfeited"] = cloneBigInt(forfeited).String()
	return events.Record{Type: EventTypeTerminated, Attrs: attrs}
}

// NewSweptEvent is emitted once per account that contributed to a sweep.
func NewSweptEvent(acc *Account, delta *big.Int, payout [20]byte) events.Record {
	attrs := accountAttributes(acc)
	attrs["delta"] = cloneBigInt(delta).String()
	attrs["payout"] = crypto.FromRaw(payout).String()
	return events.Record{Type: EventTypeSwept, Attrs: attrs}
}

// NewPriceUpdatedEvent records a price change.
func NewPriceUpdatedEvent(previous, next *big.Int) events.Record {
	return events.Record{Type: EventTypePriceUpdated, Attrs: map[string]string{
		"previous": cloneBigInt(previous).String(),
		"price":    cloneBigInt(next).String(),
	}}
}

// NewScheduleUpdatedEvent records a schedule replacement.
func NewScheduleUpdatedEvent(previous, next Schedule) events.Record {
	return events.Record{Type: EventTypeScheduleUpdated, Attrs: map[string]string{
		"previous": previous.String(),
		"schedule": next.String(),
	}}
}

// NewRescuedEvent records a rescue transfer. Amounts are raw token units.
func NewRescuedEvent(token string, amount *big.Int, rescuer [20]byte) events.Record {
	return events.Record{Type: EventTypeRescued, Attrs: map[string]string{
		"token":   token,
		"amount":  cloneBigInt(amount).String(),
		"rescuer": crypto.FromRaw(rescuer).String(),
	}}
}

func accountAttributes(acc *Account) map[string]string {
	attrs := make(map[string]string)
	if acc == nil {
		return attrs
	}
	attrs["participant"] = crypto.FromRaw(acc.Participant).String()
	attrs["committed"] = cloneBigInt(acc.Committed).String()
	attrs["startTime"] = strconv.FormatInt(acc.StartTime, 10)
	attrs["sellerWithdrawn"] = cloneBigInt(acc.SellerWithdrawn).String()
	attrs["status"] = acc.Settlement.String()
	if acc.Settled {
		attrs["refunded"] = cloneBigInt(acc.Refunded).String()
		attrs["settledAt"] = strconv.FormatInt(acc.SettledAt, 10)
	}
	return attrs
}
