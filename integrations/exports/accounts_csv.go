package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"
	"time"

	"refundledger/crypto"
	"refundledger/native/refund"
)

var csvHeader = []string{
	"participant", "committed", "start_time", "deposited_at",
	"seller_withdrawn", "status", "refunded", "settled_at",
	"week", "percentage", "refundable", "earned_unswept",
}

// AccountsCSV renders a snapshot of accounts evaluated against schedule at
// now, returning the payload and its SHA-256 checksum.
func AccountsCSV(accounts []*refund.Account, schedule refund.Schedule, now time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, acc := range accounts {
		if acc == nil {
			continue
		}
		row := snapshotOf(acc, schedule, now.Unix())
		record := []string{
			row.Participant,
			row.Committed,
			strconv.FormatInt(row.StartTime, 10),
			strconv.FormatInt(row.DepositedAt, 10),
			row.SellerWithdrawn,
			row.Status,
			row.Refunded,
			strconv.FormatInt(row.SettledAt, 10),
			strconv.FormatUint(row.Week, 10),
			strconv.Itoa(int(row.Percentage)),
			row.Refundable,
			row.EarnedUnswept,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return checksummed(buffer.Bytes())
}

func checksummed(data []byte) ([]byte, string, error) {
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// Snapshot is the export view of one account.
type Snapshot struct {
	Participant     string `json:"participant"`
	Committed       string `json:"committed"`
	StartTime       int64  `json:"startTime"`
	DepositedAt     int64  `json:"depositedAt"`
	SellerWithdrawn string `json:"sellerWithdrawn"`
	Status          string `json:"status"`
	Refunded        string `json:"refunded"`
	SettledAt       int64  `json:"settledAt,omitempty"`
	Week            uint64 `json:"week"`
	Percentage      uint8  `json:"percentage"`
	Refundable      string `json:"refundable"`
	EarnedUnswept   string `json:"earnedUnswept"`
}

func snapshotOf(acc *refund.Account, schedule refund.Schedule, now int64) Snapshot {
	week := refund.ElapsedWeeks(now, acc.StartTime)
	row := Snapshot{
		Participant:     crypto.FromRaw(acc.Participant).String(),
		Committed:       acc.Committed.String(),
		StartTime:       acc.StartTime,
		DepositedAt:     acc.DepositedAt,
		SellerWithdrawn: acc.SellerWithdrawn.String(),
		Status:          acc.Settlement.String(),
		Refunded:        acc.Refunded.String(),
		SettledAt:       acc.SettledAt,
		Week:            week,
		Percentage:      schedule.Lookup(week),
		Refundable:      "0",
		EarnedUnswept:   "0",
	}
	if !acc.Settled {
		row.Refundable = refund.Payable(acc, schedule, now).String()
		row.EarnedUnswept = refund.SellerEarnedDelta(acc, schedule, now).String()
	}
	return row
}
