package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration so TOML files can use "720h" style strings.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Ledger holds the roles, token and pricing of the refund ledger.
type Ledger struct {
	Token    string `toml:"Token"`
	Decimals uint8  `toml:"Decimals"`
	// Price is a whole-unit decimal string.
	Price    string `toml:"Price"`
	Schedule []int  `toml:"Schedule"`
	Admin    string `toml:"Admin"`
	Rescuer  string `toml:"Rescuer"`
	Treasury string `toml:"Treasury,omitempty"`
	Custody  string `toml:"Custody,omitempty"`

	StartWindow StartWindow `toml:"start_window"`
}

// StartWindow bounds deposit start times. Zero disables a side.
type StartWindow struct {
	MaxFuture Duration `toml:"MaxFuture"`
	MaxPast   Duration `toml:"MaxPast"`
}

// Auth configures bearer-token caller authentication.
type Auth struct {
	HMACSecret string   `toml:"HMACSecret"`
	Issuer     string   `toml:"Issuer"`
	Audience   string   `toml:"Audience,omitempty"`
	ClockSkew  Duration `toml:"ClockSkew"`
}

// RateLimit throttles API calls per caller.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Journal configures the SQL event journal. A postgres:// DSN selects the
// postgres driver, anything else is a sqlite path.
type Journal struct {
	DSN string `toml:"DSN"`
}

// Webhook forwards ledger events to an HTTP receiver. Empty Endpoint
// disables delivery; empty Events forwards every type.
type Webhook struct {
	Endpoint string   `toml:"Endpoint"`
	Secret   string   `toml:"Secret"`
	Events   []string `toml:"Events,omitempty"`
}

// Telemetry toggles OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Dev enables helpers that must stay off in production.
type Dev struct {
	// Faucet exposes token minting over the API.
	Faucet bool `toml:"Faucet"`
}
