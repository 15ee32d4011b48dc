package config

import (
	"fmt"
	"math/big"
	"strings"

	"refundledger/crypto"
	"refundledger/native/refund"
)

// CustodyModule names the module whose derived address holds deposits when
// no explicit custody address is configured.
const CustodyModule = "refund-custody"

// Validate checks that the configuration can build a ledger engine.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if _, err := cfg.EngineConfig(); err != nil {
		return err
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be non-negative")
	}
	if strings.TrimSpace(cfg.Webhook.Endpoint) != "" && strings.TrimSpace(cfg.Webhook.Secret) == "" {
		return fmt.Errorf("webhook: Secret required when Endpoint is set")
	}
	return nil
}

// EngineConfig converts the ledger section into the engine's construction
// parameters.
func (cfg *Config) EngineConfig() (refund.Config, error) {
	var out refund.Config
	ledger := cfg.Ledger
	admin, err := crypto.ParseAddress(ledger.Admin)
	if err != nil {
		return out, fmt.Errorf("ledger.Admin: %w", err)
	}
	rescuer, err := crypto.ParseAddress(ledger.Rescuer)
	if err != nil {
		return out, fmt.Errorf("ledger.Rescuer: %w", err)
	}
	treasury := admin
	if strings.TrimSpace(ledger.Treasury) != "" {
		if treasury, err = crypto.ParseAddress(ledger.Treasury); err != nil {
			return out, fmt.Errorf("ledger.Treasury: %w", err)
		}
	}
	custody := crypto.DeriveModuleAddress(CustodyModule)
	if strings.TrimSpace(ledger.Custody) != "" {
		if custody, err = crypto.ParseAddress(ledger.Custody); err != nil {
			return out, fmt.Errorf("ledger.Custody: %w", err)
		}
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(ledger.Price), 10)
	if !ok || price.Sign() <= 0 {
		return out, fmt.Errorf("ledger.Price: must be a positive integer, got %q", ledger.Price)
	}
	schedule := make(refund.Schedule, 0, len(ledger.Schedule))
	for i, pct := range ledger.Schedule {
		if pct < 0 || pct > 100 {
			return out, fmt.Errorf("ledger.Schedule[%d]: percentage %d out of range", i, pct)
		}
		schedule = append(schedule, uint8(pct))
	}
	if err := schedule.Validate(); err != nil {
		return out, fmt.Errorf("ledger.Schedule: %w", err)
	}
	if ledger.StartWindow.MaxFuture.Duration < 0 || ledger.StartWindow.MaxPast.Duration < 0 {
		return out, fmt.Errorf("ledger.start_window: durations must be non-negative")
	}
	out = refund.Config{
		Roles: refund.Roles{
			Admin:    admin,
			Rescuer:  rescuer,
			Treasury: treasury,
			Custody:  custody,
		},
		Token:    ledger.Token,
		Decimals: ledger.Decimals,
		Price:    price,
		Schedule: schedule,
		StartWindow: refund.StartWindow{
			MaxFuture: ledger.StartWindow.MaxFuture.Duration,
			MaxPast:   ledger.StartWindow.MaxPast.Duration,
		},
	}
	return out, nil
}
