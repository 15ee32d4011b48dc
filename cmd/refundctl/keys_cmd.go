package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"refundledger/config"
	"refundledger/crypto"
	"refundledger/services/refundd/middleware"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func keystorePassphrase() string {
	return os.Getenv(config.PassphraseEnv)
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	var out string
	fs.StringVar(&out, "out", "", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists", out))
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(out, key, keystorePassphrase()); err != nil {
		return printError(stderr, err.Error())
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "address: %s\nhex:     %s\nkeystore: %s\n", addr.String(), addr.Hex(), out)
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		cfgPath  string
		keystore string
		subject  string
		ttl      time.Duration
	)
	fs.StringVar(&cfgPath, "config", "refund.toml", "refundd configuration holding the HMAC secret")
	fs.StringVar(&keystore, "keystore", "", "keystore whose address becomes the token subject")
	fs.StringVar(&subject, "subject", "", "explicit subject address")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if (keystore == "") == (subject == "") {
		return printError(stderr, "exactly one of --keystore or --subject is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	var raw [20]byte
	if keystore != "" {
		addr, err := crypto.KeystoreAddress(keystore, keystorePassphrase())
		if err != nil {
			return printError(stderr, err.Error())
		}
		raw = addr.Raw()
	} else {
		raw, err = crypto.ParseAddress(subject)
		if err != nil {
			return printError(stderr, err.Error())
		}
	}
	token, err := middleware.IssueToken(middleware.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	}, raw, ttl, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}
