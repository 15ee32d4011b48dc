package exports

import (
	"bytes"
	"encoding/json"
	"time"

	"refundledger/native/refund"
)

// AccountsJSONL renders the same snapshot as AccountsCSV as JSON Lines.
func AccountsJSONL(accounts []*refund.Account, schedule refund.Schedule, now time.Time) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, acc := range accounts {
		if acc == nil {
			continue
		}
		if err := encoder.Encode(snapshotOf(acc, schedule, now.Unix())); err != nil {
			return nil, "", err
		}
	}
	return checksummed(buffer.Bytes())
}
