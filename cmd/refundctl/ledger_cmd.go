package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"refundledger/crypto"
)

func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("approve", stderr)
	var amount string
	fs.StringVar(&amount, "amount", "", "allowance in token minor units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireInteger("--amount", amount); err != nil {
		return printError(stderr, err.Error())
	}
	data, err := apiCall(http.MethodPost, "/v1/token/approve", map[string]string{"amount": amount}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "allowance updated")
	return 0
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	var to, amount string
	fs.StringVar(&to, "to", "", "recipient address")
	fs.StringVar(&amount, "amount", "", "amount in token minor units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := crypto.ParseAddress(to); err != nil {
		return printError(stderr, "--to: "+err.Error())
	}
	if err := requireInteger("--amount", amount); err != nil {
		return printError(stderr, err.Error())
	}
	data, err := apiCall(http.MethodPost, "/v1/dev/mint", map[string]string{"to": to, "amount": amount}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "minted")
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var token string
	fs.StringVar(&token, "token", "", "token symbol, defaults to the ledger token")
	owner, ok := parseWithAddress(fs, args, stderr)
	if !ok {
		return 1
	}
	path := "/v1/balances/" + url.PathEscape(owner)
	if token != "" {
		path += "?token=" + url.QueryEscape(token)
	}
	return getAndPrint(path, stdout, stderr)
}

func runDeposit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("deposit", stderr)
	var price, start string
	fs.StringVar(&price, "price", "", "current price in whole units")
	fs.StringVar(&start, "start", "", "agreement start time, defaults to now")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireInteger("--price", price); err != nil {
		return printError(stderr, err.Error())
	}
	body := map[string]interface{}{"price": price}
	if start != "" {
		ts, err := parseTime(start, cliNow())
		if err != nil {
			return printError(stderr, err.Error())
		}
		body["startTime"] = ts
	}
	data, err := apiCall(http.MethodPost, "/v1/deposit", body, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "deposited")
	return 0
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("claim", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	data, err := apiCall(http.MethodPost, "/v1/claim", nil, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "claimed")
	return 0
}

func runEligible(args []string, stdout, stderr io.Writer) int {
	return runAccountView("eligible", args, stdout, stderr)
}

func runQuote(args []string, stdout, stderr io.Writer) int {
	return runAccountView("quote", args, stdout, stderr)
}

func runAccountView(view string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(view, stderr)
	var at string
	fs.StringVar(&at, "at", "", "evaluation time, defaults to the server clock")
	participant, ok := parseWithAddress(fs, args, stderr)
	if !ok {
		return 1
	}
	path := "/v1/accounts/" + url.PathEscape(participant) + "/" + view
	if at != "" {
		ts, err := parseTime(at, cliNow())
		if err != nil {
			return printError(stderr, err.Error())
		}
		path += "?at=" + strconv.FormatInt(ts, 10)
	}
	return getAndPrint(path, stdout, stderr)
}

func runSweep(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("sweep", stderr)
	var all bool
	fs.BoolVar(&all, "all", false, "sweep every active account")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	participants := fs.Args()
	if !all && len(participants) == 0 {
		return printError(stderr, "provide participant addresses or --all")
	}
	for _, p := range participants {
		if _, err := crypto.ParseAddress(p); err != nil {
			return printError(stderr, fmt.Sprintf("participant %s: %v", p, err))
		}
	}
	if participants == nil {
		participants = []string{}
	}
	data, err := apiCall(http.MethodPost, "/v1/sweep", map[string]interface{}{"participants": participants, "all": all}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "swept")
	return 0
}

func runTerminate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("terminate", stderr)
	participant, ok := parseWithAddress(fs, args, stderr)
	if !ok {
		return 1
	}
	data, err := apiCall(http.MethodPost, "/v1/terminate", map[string]string{"participant": participant}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "terminated")
	return 0
}

func runSetPrice(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-price", stderr)
	var price string
	fs.StringVar(&price, "price", "", "new price in whole units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireInteger("--price", price); err != nil {
		return printError(stderr, err.Error())
	}
	data, err := apiCall(http.MethodPost, "/v1/admin/price", map[string]string{"price": price}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "price updated")
	return 0
}

func runSetSchedule(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-schedule", stderr)
	var file, inline string
	fs.StringVar(&file, "file", "", "YAML file holding the schedule")
	fs.StringVar(&inline, "schedule", "", "comma separated percentages")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if (file == "") == (inline == "") {
		return printError(stderr, "exactly one of --file or --schedule is required")
	}
	var (
		schedule []int
		err      error
	)
	if file != "" {
		schedule, err = loadScheduleFile(file)
	} else {
		schedule, err = parseScheduleFlag(inline)
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := checkSchedule(schedule); err != nil {
		return printError(stderr, err.Error())
	}
	data, err := apiCall(http.MethodPost, "/v1/admin/schedule", map[string]interface{}{"schedule": schedule}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "schedule updated")
	return 0
}

func runRescue(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rescue", stderr)
	var token, amount string
	fs.StringVar(&token, "token", "", "token symbol to rescue")
	fs.StringVar(&amount, "amount", "", "amount in token minor units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(token) == "" {
		return printError(stderr, "--token is required")
	}
	if err := requireInteger("--amount", amount); err != nil {
		return printError(stderr, err.Error())
	}
	data, err := apiCall(http.MethodPost, "/v1/rescue", map[string]string{"token": token, "amount": amount}, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "rescued")
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return getAndPrint("/v1/params", stdout, stderr)
}

func runAccounts(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("accounts", stderr)
	var status string
	fs.StringVar(&status, "status", "", "filter by active, claimed or terminated")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	path := "/v1/accounts"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	return getAndPrint(path, stdout, stderr)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	var eventType, participant, since string
	var limit int
	fs.StringVar(&eventType, "type", "", "event type, e.g. refund.claimed")
	fs.StringVar(&participant, "participant", "", "participant address")
	fs.StringVar(&since, "since", "", "only events at or after this time")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := url.Values{}
	if eventType != "" {
		query.Set("type", eventType)
	}
	if participant != "" {
		query.Set("participant", participant)
	}
	if since != "" {
		ts, err := parseTime(since, cliNow())
		if err != nil {
			return printError(stderr, err.Error())
		}
		query.Set("since", strconv.FormatInt(ts, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return getAndPrint(path, stdout, stderr)
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("export", stderr)
	var format, out, at string
	fs.StringVar(&format, "format", "csv", "csv or jsonl")
	fs.StringVar(&out, "out", "", "write to file instead of stdout")
	fs.StringVar(&at, "at", "", "evaluation time, defaults to the server clock")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if format != "csv" && format != "jsonl" {
		return printError(stderr, "--format must be csv or jsonl")
	}
	query := url.Values{"format": {format}}
	if at != "" {
		ts, err := parseTime(at, cliNow())
		if err != nil {
			return printError(stderr, err.Error())
		}
		query.Set("at", strconv.FormatInt(ts, 10))
	}
	data, err := apiCall(http.MethodGet, "/v1/export?"+query.Encode(), nil, false)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if out == "" {
		_, _ = stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(data), out)
	return 0
}

func getAndPrint(path string, stdout, stderr io.Writer) int {
	data, err := apiCall(http.MethodGet, path, nil, false)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printResult(stdout, data, "{}")
	return 0
}

// parseWithAddress parses flags around a single positional address.
func parseWithAddress(fs interface {
	Parse([]string) error
	Args() []string
}, args []string, stderr io.Writer) (string, bool) {
	positional := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if positional == "" && len(fs.Args()) > 0 {
		positional = fs.Args()[0]
	}
	if positional == "" {
		printError(stderr, "address argument required")
		return "", false
	}
	if _, err := crypto.ParseAddress(positional); err != nil {
		printError(stderr, err.Error())
		return "", false
	}
	return positional, true
}

func requireInteger(flagName, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%s is required", flagName)
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return fmt.Errorf("%s must be a non-negative integer", flagName)
		}
	}
	return nil
}
