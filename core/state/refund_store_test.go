package state

import (
	"math/big"
	"testing"

	"refundledger/native/refund"
	"refundledger/storage"
)

func sampleAccount(fill byte, committed int64) *refund.Account {
	var participant [20]byte
	for i := range participant {
		participant[i] = fill
	}
	return &refund.Account{
		Participant:     participant,
		Committed:       big.NewInt(committed),
		StartTime:       1_700_000_000,
		DepositedAt:     1_700_000_100,
		SellerWithdrawn: big.NewInt(0),
		Refunded:        big.NewInt(0),
	}
}

func TestRefundStoreRoundTrip(t *testing.T) {
	store := NewRefundStore(storage.NewMemDB())

	if _, ok, err := store.RefundParamsGet(); err != nil || ok {
		t.Fatalf("expected no params before first commit: ok=%v err=%v", ok, err)
	}

	params := &refund.Params{
		Price:       big.NewInt(5000),
		Schedule:    refund.DefaultSchedule(),
		Outstanding: big.NewInt(5000),
	}
	acc := sampleAccount(0x01, 5000)
	acc.SellerWithdrawn = big.NewInt(1250)
	if err := store.RefundCommit(params, []*refund.Account{acc}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	gotParams, ok, err := store.RefundParamsGet()
	if err != nil || !ok {
		t.Fatalf("params get: ok=%v err=%v", ok, err)
	}
	if gotParams.Price.Int64() != 5000 || gotParams.Outstanding.Int64() != 5000 {
		t.Fatalf("unexpected params: %+v", gotParams)
	}
	if !gotParams.Schedule.Equal(refund.DefaultSchedule()) {
		t.Fatalf("unexpected schedule: %s", gotParams.Schedule)
	}

	got, ok, err := store.RefundAccountGet(acc.Participant)
	if err != nil || !ok {
		t.Fatalf("account get: ok=%v err=%v", ok, err)
	}
	if got.Committed.Int64() != 5000 || got.SellerWithdrawn.Int64() != 1250 || got.StartTime != acc.StartTime || got.DepositedAt != acc.DepositedAt {
		t.Fatalf("unexpected account: %+v", got)
	}

	if _, ok, err := store.RefundAccountGet([20]byte{0x09}); err != nil || ok {
		t.Fatalf("expected missing account: ok=%v err=%v", ok, err)
	}
}

func TestRefundStoreSettledAccount(t *testing.T) {
	store := NewRefundStore(storage.NewMemDB())
	acc := sampleAccount(0x02, 5000)
	acc.Settled = true
	acc.Settlement = refund.SettlementTerminated
	acc.SettledAt = 1_700_100_000
	acc.Refunded = big.NewInt(2500)
	params := &refund.Params{Price: big.NewInt(5000), Schedule: refund.DefaultSchedule(), Outstanding: big.NewInt(0)}
	if err := store.RefundCommit(params, []*refund.Account{acc}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, _, err := store.RefundAccountGet(acc.Participant)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Settled || got.Settlement != refund.SettlementTerminated || got.Refunded.Int64() != 2500 || got.SettledAt != acc.SettledAt {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestRefundStoreRejectsInvalidRecords(t *testing.T) {
	store := NewRefundStore(storage.NewMemDB())
	params := &refund.Params{Price: big.NewInt(5000), Schedule: refund.DefaultSchedule(), Outstanding: big.NewInt(0)}

	bad := sampleAccount(0x03, 0)
	if err := store.RefundCommit(params, []*refund.Account{bad}); err == nil {
		t.Fatalf("expected zero commitment to be rejected")
	}
	if _, ok, _ := store.RefundParamsGet(); ok {
		t.Fatalf("rejected commit must not write params")
	}

	badParams := &refund.Params{Price: big.NewInt(5000), Schedule: refund.Schedule{50, 50}, Outstanding: big.NewInt(0)}
	if err := store.RefundCommit(badParams, nil); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}
}

func TestRefundStoreIteratesAccounts(t *testing.T) {
	store := NewRefundStore(storage.NewMemDB())
	params := &refund.Params{Price: big.NewInt(10), Schedule: refund.DefaultSchedule(), Outstanding: big.NewInt(30)}
	accounts := []*refund.Account{sampleAccount(0x01, 10), sampleAccount(0x02, 10), sampleAccount(0x03, 10)}
	if err := store.RefundCommit(params, accounts); err != nil {
		t.Fatalf("commit: %v", err)
	}
	seen := make(map[[20]byte]bool)
	err := store.RefundAccounts(func(acc *refund.Account) error {
		seen[acc.Participant] = true
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(seen))
	}
}

func TestRefundStoreOnLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := NewRefundStore(db)
	params := &refund.Params{Price: big.NewInt(10), Schedule: refund.Schedule{100, 0}, Outstanding: big.NewInt(10)}
	acc := sampleAccount(0x04, 10)
	if err := store.RefundCommit(params, []*refund.Account{acc}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := NewRefundStore(reopened).RefundAccountGet(acc.Participant)
	if err != nil || !ok || got.Committed.Int64() != 10 {
		t.Fatalf("unexpected account after reopen: %+v ok=%v err=%v", got, ok, err)
	}
}
