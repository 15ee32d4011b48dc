package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"refundledger/crypto"
	"refundledger/native/refund"

	"github.com/BurntSushi/toml"
)

// PassphraseEnv names the environment variable holding the passphrase used
// for keystores generated alongside a default config.
const PassphraseEnv = "REFUND_KEYSTORE_PASSPHRASE"

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile,omitempty"`

	Ledger    Ledger    `toml:"ledger"`
	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"rate_limit"`
	Journal   Journal   `toml:"journal"`
	Webhook   Webhook   `toml:"webhook"`
	Telemetry Telemetry `toml:"telemetry"`
	Dev       Dev       `toml:"dev"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated default with new admin and rescuer keys.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./refund-data"
	}
	if strings.TrimSpace(cfg.Ledger.Token) == "" {
		cfg.Ledger.Token = "USDC"
	}
	if cfg.Ledger.Schedule == nil {
		for _, pct := range refund.DefaultSchedule() {
			cfg.Ledger.Schedule = append(cfg.Ledger.Schedule, int(pct))
		}
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = "refundd"
	}
	if cfg.Auth.ClockSkew.Duration <= 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if strings.TrimSpace(cfg.Journal.DSN) == "" {
		cfg.Journal.DSN = filepath.Join(cfg.DataDir, "journal.db")
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	passphrase := os.Getenv(PassphraseEnv)
	dir := filepath.Dir(path)
	admin, err := generateRoleKey(filepath.Join(dir, "admin.keystore"), passphrase)
	if err != nil {
		return nil, err
	}
	rescuer, err := generateRoleKey(filepath.Join(dir, "rescuer.keystore"), passphrase)
	if err != nil {
		return nil, err
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	cfg := &Config{
		Ledger: Ledger{
			Token:    "USDC",
			Decimals: 6,
			Price:    "5000",
			Admin:    admin,
			Rescuer:  rescuer,
		},
		Auth: Auth{HMACSecret: hex.EncodeToString(secret)},
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func generateRoleKey(path, passphrase string) (string, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
