package refund

import (
	"strconv"
	"strings"
)

// SecondsPerWeek is the length of one schedule period.
const SecondsPerWeek int64 = 7 * 24 * 60 * 60

// Schedule is the refund curve: entry i is the percentage of the committed
// amount a participant may reclaim during the i-th whole week after their
// start time.
type Schedule []uint8

var defaultSchedule = Schedule{100, 100, 75, 75, 75, 75, 50, 50, 50, 50, 25, 25, 25, 25, 10, 0}

// DefaultSchedule returns a copy of the curve installed at construction.
func DefaultSchedule() Schedule { return defaultSchedule.Clone() }

// Clone returns an independent copy of the schedule.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return nil
	}
	out := make(Schedule, len(s))
	copy(out, s)
	return out
}

// Validate checks the schedule invariants. Violations are reported as
// *InvalidScheduleError.
func (s Schedule) Validate() error {
	if len(s) < 2 {
		return &InvalidScheduleError{Reason: ReasonNoRefundPeriod}
	}
	if s[len(s)-1] != 0 {
		return &InvalidScheduleError{Reason: ReasonMustEndAtZero}
	}
	for i := 0; i+1 < len(s); i++ {
		if s[i+1] > s[i] {
			return &InvalidScheduleError{Reason: ReasonNotDecreasing}
		}
	}
	if s[0] == 0 {
		return &InvalidScheduleError{Reason: ReasonNoRefundPeriod}
	}
	if s[0] > 100 {
		return &InvalidScheduleError{Reason: ReasonAboveHundred}
	}
	return nil
}

// Lookup returns the percentage for the given elapsed week. Weeks past the
// end of the table resolve to the final entry, which is always zero for a
// valid schedule.
func (s Schedule) Lookup(weeks uint64) uint8 {
	if len(s) == 0 {
		return 0
	}
	if weeks < uint64(len(s)) {
		return s[weeks]
	}
	return s[len(s)-1]
}

// Equal reports whether both schedules hold the same entries.
func (s Schedule) Equal(other Schedule) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the schedule as a comma separated list.
func (s Schedule) String() string {
	parts := make([]string, len(s))
	for i, pct := range s {
		parts[i] = strconv.FormatUint(uint64(pct), 10)
	}
	return strings.Join(parts, ",")
}

// ParseSchedule reads a comma separated list of percentages. The result is
// not validated.
func ParseSchedule(raw string) (Schedule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &InvalidScheduleError{Reason: ReasonNoRefundPeriod}
	}
	fields := strings.Split(trimmed, ",")
	out := make(Schedule, 0, len(fields))
	for _, field := range fields {
		value, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
		if err != nil {
			return nil, &InvalidScheduleError{Reason: "invalid percentage " + strconv.Quote(strings.TrimSpace(field))}
		}
		out = append(out, uint8(value))
	}
	return out, nil
}

// ElapsedWeeks returns the number of whole weeks between start and now,
// clamped to zero when now precedes start.
func ElapsedWeeks(now, start int64) uint64 {
	if now <= start {
		return 0
	}
	return uint64((now - start) / SecondsPerWeek)
}
