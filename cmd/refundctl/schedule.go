package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"refundledger/native/refund"
)

// scheduleFile is the YAML layout accepted by set-schedule --file. A bare
// top-level sequence of percentages is accepted too.
type scheduleFile struct {
	Schedule []int `yaml:"schedule"`
}

func loadScheduleFile(path string) ([]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc scheduleFile
	if err := yaml.Unmarshal(raw, &doc); err == nil && len(doc.Schedule) > 0 {
		return doc.Schedule, nil
	}
	var bare []int
	if err := yaml.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("parse %s: expected a schedule list: %w", path, err)
	}
	if len(bare) == 0 {
		return nil, fmt.Errorf("parse %s: schedule is empty", path)
	}
	return bare, nil
}

// checkSchedule runs the ledger's validation locally so operators see the
// reason before a request is sent.
func checkSchedule(values []int) error {
	schedule := make(refund.Schedule, 0, len(values))
	for i, pct := range values {
		if pct < 0 || pct > 255 {
			return fmt.Errorf("schedule[%d]: %d out of range", i, pct)
		}
		schedule = append(schedule, uint8(pct))
	}
	return schedule.Validate()
}

func parseScheduleFlag(raw string) ([]int, error) {
	parsed, err := refund.ParseSchedule(raw)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(parsed))
	for i, pct := range parsed {
		out[i] = int(pct)
	}
	return out, nil
}

// parseTime accepts unix seconds, RFC3339 or a signed duration relative to now.
func parseTime(raw string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("time value required")
	}
	if strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-") {
		d, err := time.ParseDuration(trimmed)
		if err == nil {
			return now.Add(d).Unix(), nil
		}
		if strings.HasPrefix(trimmed, "+") {
			return 0, fmt.Errorf("invalid relative time %q: %v", raw, err)
		}
	}
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return secs, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: use unix seconds, RFC3339 or +duration", raw)
	}
	return ts.Unix(), nil
}
