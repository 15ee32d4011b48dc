package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "refundd", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("deposit", slog.String("participant", "nhb1abc"))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "deposit" || entry["severity"] != "INFO" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["service"] != "refundd" || entry["env"] != "test" {
		t.Fatalf("missing service attributes: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", entry)
	}
}

func TestSetupBridgesStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	setup(&buf, "refundctl", "", slog.LevelInfo)
	log.Printf("legacy %d", 7)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "legacy 7" || entry["service"] != "refundctl" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["env"]; ok {
		t.Fatalf("empty env should be omitted: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("journal_dsn", "postgres://user:pw@db/refund"); attr.Value.String() != RedactedValue {
		t.Fatalf("dsn should be redacted: %v", attr)
	}
	if attr := MaskField("participant", "nhb1abc"); attr.Value.String() != "nhb1abc" {
		t.Fatalf("participant should pass through: %v", attr)
	}
	if attr := MaskField("webhook_endpoint", " "); attr.Value.String() != " " {
		t.Fatalf("empty values pass through: %v", attr)
	}
	if IsAllowlisted("journal_dsn") {
		t.Fatalf("journal_dsn must not be allowlisted: %v", RedactionAllowlist())
	}
}
