package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	apiEndpoint = defaultAPIEndpoint()
	apiToken    = strings.TrimSpace(os.Getenv("REFUND_TOKEN"))
)

func defaultAPIEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("REFUND_API")); v != "" {
		return v
	}
	return "http://localhost:8090"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "generate-key":
		return runGenerateKey(rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "approve":
		return runApprove(rest, stdout, stderr)
	case "mint":
		return runMint(rest, stdout, stderr)
	case "balance":
		return runBalance(rest, stdout, stderr)
	case "deposit":
		return runDeposit(rest, stdout, stderr)
	case "claim":
		return runClaim(rest, stdout, stderr)
	case "eligible":
		return runEligible(rest, stdout, stderr)
	case "quote":
		return runQuote(rest, stdout, stderr)
	case "sweep":
		return runSweep(rest, stdout, stderr)
	case "terminate":
		return runTerminate(rest, stdout, stderr)
	case "set-price":
		return runSetPrice(rest, stdout, stderr)
	case "set-schedule":
		return runSetSchedule(rest, stdout, stderr)
	case "rescue":
		return runRescue(rest, stdout, stderr)
	case "status":
		return runStatus(rest, stdout, stderr)
	case "accounts":
		return runAccounts(rest, stdout, stderr)
	case "events":
		return runEvents(rest, stdout, stderr)
	case "export":
		return runExport(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

// applyGlobalFlags strips --api and --token from the front of args.
func applyGlobalFlags(args []string) ([]string, error) {
	for len(args) > 0 {
		name, value, inline := strings.Cut(args[0], "=")
		if name != "--api" && name != "--token" {
			return args, nil
		}
		if !inline {
			if len(args) < 2 {
				return nil, fmt.Errorf("Error: %s requires a value", name)
			}
			value = args[1]
			args = args[1:]
		}
		args = args[1:]
		if name == "--api" {
			apiEndpoint = strings.TrimSpace(value)
		} else {
			apiToken = strings.TrimSpace(value)
		}
	}
	return args, nil
}

func usage() string {
	return `Usage: refundctl [--api URL] [--token JWT] <command> [flags]

Keys and auth:
  generate-key  --out FILE                     create an encrypted keystore
  token         --config FILE (--keystore FILE | --subject ADDR) [--ttl 24h]

Token ledger:
  approve       --amount MINOR                 allow custody to pull MINOR units
  balance       ADDR [--token SYMBOL]
  mint          --to ADDR --amount MINOR       dev faucet, admin only

Participants:
  deposit       --price UNITS [--start TIME]
  claim
  eligible      ADDR [--at TIME]
  quote         ADDR [--at TIME]

Administration:
  sweep         [--all] [ADDR...]
  terminate     ADDR
  set-price     --price UNITS
  set-schedule  (--file schedule.yaml | --schedule 100,50,0)
  rescue        --token SYMBOL --amount MINOR

Views:
  status
  accounts      [--status active|claimed|terminated]
  events        [--type T] [--participant ADDR] [--since TIME] [--limit N]
  export        [--format csv|jsonl] [--out FILE] [--at TIME]

TIME accepts unix seconds, RFC3339 or a +/- duration relative to now.`
}
