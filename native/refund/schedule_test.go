package refund

import (
	"errors"
	"testing"
)

func TestScheduleValidate(t *testing.T) {
	cases := []struct {
		name     string
		schedule Schedule
		reason   string
	}{
		{name: "single entry", schedule: Schedule{50}, reason: ReasonNoRefundPeriod},
		{name: "empty", schedule: Schedule{}, reason: ReasonNoRefundPeriod},
		{name: "no zero tail", schedule: Schedule{50, 50}, reason: ReasonMustEndAtZero},
		{name: "increase", schedule: Schedule{50, 100, 0}, reason: ReasonNotDecreasing},
		{name: "all zero", schedule: Schedule{0, 0}, reason: ReasonNoRefundPeriod},
		{name: "above hundred", schedule: Schedule{120, 0}, reason: ReasonAboveHundred},
		{name: "default", schedule: DefaultSchedule()},
		{name: "minimal", schedule: Schedule{1, 0}},
		{name: "flat then zero", schedule: Schedule{100, 100, 100, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schedule.Validate()
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected valid schedule, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("expected ErrInvalidSchedule, got %v", err)
			}
			var typed *InvalidScheduleError
			if !errors.As(err, &typed) {
				t.Fatalf("expected *InvalidScheduleError, got %T", err)
			}
			if typed.Reason != tc.reason {
				t.Fatalf("unexpected reason: %q", typed.Reason)
			}
		})
	}
}

func TestScheduleValidateStepDown(t *testing.T) {
	schedule := make(Schedule, 0, 17)
	for pct := 100; pct >= 6; pct -= 6 {
		schedule = append(schedule, uint8(pct))
	}
	schedule = append(schedule, 0)
	if err := schedule.Validate(); err != nil {
		t.Fatalf("expected valid schedule %s: %v", schedule, err)
	}
}

func TestInvalidScheduleErrorMessage(t *testing.T) {
	err := Schedule{50, 50}.Validate()
	want := "refund: invalid refund schedule: must end with zero refund"
	if err == nil || err.Error() != want {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScheduleLookup(t *testing.T) {
	schedule := DefaultSchedule()
	if got := schedule.Lookup(0); got != 100 {
		t.Fatalf("week 0: %d", got)
	}
	if got := schedule.Lookup(5); got != 75 {
		t.Fatalf("week 5: %d", got)
	}
	if got := schedule.Lookup(14); got != 10 {
		t.Fatalf("week 14: %d", got)
	}
	if got := schedule.Lookup(15); got != 0 {
		t.Fatalf("week 15: %d", got)
	}
	if got := schedule.Lookup(1 << 40); got != 0 {
		t.Fatalf("far future: %d", got)
	}
	if got := Schedule(nil).Lookup(0); got != 0 {
		t.Fatalf("empty schedule: %d", got)
	}
}

func TestElapsedWeeks(t *testing.T) {
	const start = int64(1_000_000)
	if got := ElapsedWeeks(start-1, start); got != 0 {
		t.Fatalf("before start: %d", got)
	}
	if got := ElapsedWeeks(start, start); got != 0 {
		t.Fatalf("at start: %d", got)
	}
	if got := ElapsedWeeks(start+SecondsPerWeek-1, start); got != 0 {
		t.Fatalf("just before one week: %d", got)
	}
	if got := ElapsedWeeks(start+SecondsPerWeek, start); got != 1 {
		t.Fatalf("one week: %d", got)
	}
	if got := ElapsedWeeks(start+5*SecondsPerWeek+2*86400, start); got != 5 {
		t.Fatalf("five weeks two days: %d", got)
	}
}

func TestParseSchedule(t *testing.T) {
	parsed, err := ParseSchedule(" 100, 50 ,0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(Schedule{100, 50, 0}) {
		t.Fatalf("unexpected schedule: %s", parsed)
	}
	if parsed.String() != "100,50,0" {
		t.Fatalf("unexpected string: %s", parsed.String())
	}
	for _, raw := range []string{"", "100,abc,0", "300,0", "-1,0"} {
		if _, err := ParseSchedule(raw); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("%q: expected ErrInvalidSchedule, got %v", raw, err)
		}
	}
}

func TestDefaultScheduleIsCopy(t *testing.T) {
	first := DefaultSchedule()
	first[0] = 1
	if DefaultSchedule()[0] != 100 {
		t.Fatalf("default schedule mutated through copy")
	}
}
