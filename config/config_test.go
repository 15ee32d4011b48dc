package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"refundledger/crypto"
	"refundledger/native/refund"
)

func testAddress(b byte) string {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.RefundPrefix, raw).String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refund.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[ledger]
Price = "5000"
Admin = "`+testAddress(1)+`"
Rescuer = "`+testAddress(2)+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8090" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Ledger.Token != "USDC" {
		t.Fatalf("unexpected token %q", cfg.Ledger.Token)
	}
	if len(cfg.Ledger.Schedule) != len(refund.DefaultSchedule()) {
		t.Fatalf("default schedule not applied: %v", cfg.Ledger.Schedule)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engineCfg.Roles.Treasury != engineCfg.Roles.Admin {
		t.Fatalf("treasury should default to admin")
	}
	if engineCfg.Roles.Custody != crypto.DeriveModuleAddress(CustodyModule) {
		t.Fatalf("custody should default to the derived module address")
	}
	if engineCfg.Price.String() != "5000" {
		t.Fatalf("unexpected price %s", engineCfg.Price)
	}
}

func TestLoadParsesStartWindow(t *testing.T) {
	path := writeConfig(t, `
[ledger]
Price = "10"
Schedule = [100, 50, 0]
Admin = "`+testAddress(1)+`"
Rescuer = "`+testAddress(2)+`"

[ledger.start_window]
MaxFuture = "720h"
MaxPast = "504h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engineCfg.StartWindow.MaxFuture != 30*24*time.Hour || engineCfg.StartWindow.MaxPast != 21*24*time.Hour {
		t.Fatalf("unexpected window %+v", engineCfg.StartWindow)
	}
	if !engineCfg.Schedule.Equal(refund.Schedule{100, 50, 0}) {
		t.Fatalf("unexpected schedule %v", engineCfg.Schedule)
	}
}

func TestLoadRejectsInvalidLedger(t *testing.T) {
	cases := map[string]string{
		"schedule": `
[ledger]
Price = "10"
Schedule = [50, 60, 0]
Admin = "` + testAddress(1) + `"
Rescuer = "` + testAddress(2) + `"
`,
		"price": `
[ledger]
Price = "0"
Admin = "` + testAddress(1) + `"
Rescuer = "` + testAddress(2) + `"
`,
		"admin": `
[ledger]
Price = "10"
Admin = "not-an-address"
Rescuer = "` + testAddress(2) + `"
`,
		"unknown key": `
Bogus = true
[ledger]
Price = "10"
Admin = "` + testAddress(1) + `"
Rescuer = "` + testAddress(2) + `"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestLoadCreatesDefaultWithKeystores(t *testing.T) {
	t.Setenv(PassphraseEnv, "secret")
	dir := t.TempDir()
	path := filepath.Join(dir, "refund.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Auth.HMACSecret) != 64 {
		t.Fatalf("expected hex encoded 32 byte secret, got %q", cfg.Auth.HMACSecret)
	}
	admin, err := crypto.KeystoreAddress(filepath.Join(dir, "admin.keystore"), "secret")
	if err != nil {
		t.Fatalf("admin keystore: %v", err)
	}
	if admin.String() != cfg.Ledger.Admin {
		t.Fatalf("admin mismatch: %s vs %s", admin, cfg.Ledger.Admin)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Ledger.Rescuer != cfg.Ledger.Rescuer || reloaded.Auth.HMACSecret != cfg.Auth.HMACSecret {
		t.Fatalf("persisted config differs from generated config")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted: %v", err)
	}
	if !strings.Contains(string(raw), "[ledger]") {
		t.Fatalf("persisted file missing ledger table:\n%s", raw)
	}
}
