package exports

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"refundledger/native/refund"
)

const week = int64(refund.SecondsPerWeek)

func sampleAccounts() []*refund.Account {
	var alice, bob [20]byte
	alice[19], bob[19] = 1, 2
	return []*refund.Account{
		{
			Participant:     alice,
			Committed:       big.NewInt(5000),
			StartTime:       0,
			SellerWithdrawn: big.NewInt(0),
			Refunded:        big.NewInt(0),
		},
		{
			Participant:     bob,
			Committed:       big.NewInt(5000),
			SellerWithdrawn: big.NewInt(1250),
			Settled:         true,
			Settlement:      refund.SettlementClaimed,
			SettledAt:       5 * week,
			Refunded:        big.NewInt(3750),
		},
	}
}

func TestAccountsCSV(t *testing.T) {
	now := time.Unix(3*week, 0)
	data, checksum, err := AccountsCSV(sampleAccounts(), refund.DefaultSchedule(), now)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "participant,committed,start_time") {
		t.Fatalf("missing header: %s", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",3,75,3750,1250") {
		t.Fatalf("unexpected active row: %s", lines[1])
	}
	if !strings.Contains(lines[2], ",claimed,3750,") || !strings.HasSuffix(lines[2], ",0,0") {
		t.Fatalf("unexpected settled row: %s", lines[2])
	}
}

func TestAccountsJSONL(t *testing.T) {
	now := time.Unix(3*week, 0)
	data, checksum, err := AccountsJSONL(sampleAccounts(), refund.DefaultSchedule(), now)
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var row Snapshot
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row.Status != "active" || row.Refundable != "3750" || row.Percentage != 75 {
		t.Fatalf("unexpected row %+v", row)
	}
	if !strings.HasPrefix(row.Participant, "rfd1") {
		t.Fatalf("expected bech32 participant, got %s", row.Participant)
	}
}
