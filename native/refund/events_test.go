package refund

import (
	"math/big"
	"testing"

	"refundledger/crypto"
)

func TestDepositedEventAttributes(t *testing.T) {
	acc := testAccount(5000, 1234)
	evt := NewDepositedEvent(acc, big.NewInt(5_000_000_000))
	if evt.EventType() != EventTypeDeposited {
		t.Fatalf("unexpected type: %s", evt.EventType())
	}
	attrs := evt.Attributes()
	if attrs["participant"] != crypto.FromRaw(acc.Participant).String() {
		t.Fatalf("unexpected participant: %s", attrs["participant"])
	}
	if attrs["committed"] != "5000" || attrs["startTime"] != "1234" || attrs["status"] != "active" {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}
	if attrs["amountMinor"] != "5000000000" {
		t.Fatalf("unexpected amountMinor: %s", attrs["amountMinor"])
	}
	if _, ok := attrs["settledAt"]; ok {
		t.Fatalf("active account must not carry settlement attrs")
	}
}

func TestClaimedEventCarriesSettlement(t *testing.T) {
	acc := testAccount(5000, 0)
	acc.Settled = true
	acc.Settlement = SettlementClaimed
	acc.SettledAt = 99
	acc.Refunded = big.NewInt(3750)
	attrs := NewClaimedEvent(acc, big.NewInt(3_750_000_000)).Attributes()
	if attrs["status"] != "claimed" || attrs["refunded"] != "3750" || attrs["settledAt"] != "99" {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}
}

func TestAdminEventAttributes(t *testing.T) {
	price := NewPriceUpdatedEvent(big.NewInt(5000), big.NewInt(6000)).Attributes()
	if price["previous"] != "5000" || price["price"] != "6000" {
		t.Fatalf("unexpected price attrs: %+v", price)
	}
	schedule := NewScheduleUpdatedEvent(Schedule{100, 0}, Schedule{100, 50, 0}).Attributes()
	if schedule["previous"] != "100,0" || schedule["schedule"] != "100,50,0" {
		t.Fatalf("unexpected schedule attrs: %+v", schedule)
	}
	rescuer := newTestAddress(0xBB)
	rescued := NewRescuedEvent("DAI", big.NewInt(42), rescuer)
	if rescued.EventType() != EventTypeRescued {
		t.Fatalf("unexpected type: %s", rescued.EventType())
	}
	if rescued.Attrs["amount"] != "42" || rescued.Attrs["rescuer"] != crypto.FromRaw(rescuer).String() {
		t.Fatalf("unexpected rescue attrs: %+v", rescued.Attrs)
	}
}

func TestSettlementString(t *testing.T) {
	if SettlementTerminated.String() != "terminated" {
		t.Fatalf("unexpected string: %s", SettlementTerminated)
	}
	if Settlement(9).Valid() {
		t.Fatalf("unknown settlement should be invalid")
	}
	if Settlement(9).String() != "settlement(9)" {
		t.Fatalf("unexpected string: %s", Settlement(9))
	}
}
