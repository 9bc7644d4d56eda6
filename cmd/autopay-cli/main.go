package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/api"
	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

var httpClient = http.DefaultClient

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "claim":
		return handleClaim(args[2:], stdout, stderr)
	case "audit":
		return handleAudit(args[2:], stdout, stderr)
	case "policy":
		return handlePolicy(args[2:], stdout, stderr)
	case "policies":
		return handlePolicies(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

// remote holds the flags every API command shares.
type remote struct {
	addr  *string
	token *string
	org   *string
}

func remoteFlags(fs *flag.FlagSet) remote {
	return remote{
		addr:  fs.String("addr", envOrDefault("AUTOPAY_ADDR", defaultAddr), "Autopay API address"),
		token: fs.String("token", envOrDefault("AUTOPAY_TOKEN", os.Getenv("AUTOPAY_DEV_TOKEN")), "bearer token"),
		org:   fs.String("org", os.Getenv("AUTOPAY_ORGANIZATION_ID"), "organization id"),
	}
}

func (r remote) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, strings.TrimRight(*r.addr, "/")+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if *r.token != "" {
		req.Header.Set("Authorization", "Bearer "+*r.token)
	}
	if *r.org != "" {
		req.Header.Set(api.TenantHeader, *r.org)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func handleClaim(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	r := remoteFlags(fs)
	text := fs.String("text", "", "free-text claim, e.g. \"Reimburse $0.30 for parking\"")
	amount := fs.Float64("amount", math.NaN(), "claim amount in dollars")
	purpose := fs.String("purpose", "", "claim purpose")
	recipient := fs.String("recipient", "", "recipient contact")
	wallet := fs.String("wallet", "", "recipient wallet address")
	employee := fs.String("employee", "", "employee id")
	category := fs.String("category", "", "expense category")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}
	if *text == "" && fs.NArg() > 0 {
		*text = strings.Join(fs.Args(), " ")
	}

	claim := types.Claim{
		OrganizationID: *r.org,
		EmployeeID:     *employee,
		Text:           *text,
		Purpose:        *purpose,
		Recipient:      *recipient,
		WalletAddress:  *wallet,
		Category:       *category,
	}
	if !math.IsNaN(*amount) {
		claim.Amount = amount
	}
	if claim.Text == "" && !claim.Structured() {
		fmt.Fprintln(stderr, "claim requires --text or both --amount and --purpose")
		fs.Usage()
		return 2
	}

	body, status, err := r.do(http.MethodPost, "/v1/claims", claim)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if *jsonOut {
		_, _ = stdout.Write(body)
	}

	var resp types.AgentResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Status == "" {
		fmt.Fprintf(stderr, "claim failed: %s\n", strings.TrimSpace(string(body)))
		return 1
	}
	if !*jsonOut {
		fmt.Fprintf(stdout, "status=%s amount=%s purpose=%q", resp.Status, money.Format(resp.Amount), resp.Purpose)
		if resp.TxID != "" {
			fmt.Fprintf(stdout, " txId=%s", resp.TxID)
		}
		if resp.DecisionID != "" {
			fmt.Fprintf(stdout, " decision_id=%s", resp.DecisionID)
		}
		fmt.Fprintf(stdout, "\nreason: %s\n", resp.Reason)
	}
	if status != http.StatusOK || resp.Status == types.StatusRejected {
		return 1
	}
	return 0
}

func handleAudit(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	r := remoteFlags(fs)
	csvOut := fs.Bool("csv", false, "export as CSV")
	outPath := fs.String("out", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	path := "/v1/audit"
	if *csvOut {
		path += "?format=csv"
	}
	body, status, err := r.do(http.MethodGet, path, nil)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "audit failed: %s\n", strings.TrimSpace(string(body)))
		return 1
	}

	if *outPath == "" {
		_, _ = stdout.Write(body)
		return 0
	}
	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			fmt.Fprintln(stderr, "output dir:", err)
			return 1
		}
	}
	if err := os.WriteFile(*outPath, body, 0o600); err != nil {
		fmt.Fprintln(stderr, "write output:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *outPath)
	return 0
}

func handlePolicy(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	fs := flag.NewFlagSet("policy "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	r := remoteFlags(fs)

	var (
		body   []byte
		status int
		err    error
	)
	switch args[0] {
	case "get":
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		body, status, err = r.do(http.MethodGet, "/v1/policy", nil)
	case "set":
		perTxn := fs.Float64("per-txn-max", math.NaN(), "per-transaction maximum in dollars")
		daily := fs.Float64("daily-max", math.NaN(), "daily maximum in dollars")
		whitelist := fs.String("whitelist", "", "comma-separated whitelisted contacts")
		defaultContact := fs.String("default-contact", "", "default recipient (must be whitelisted)")
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		var u policy.Update
		if !math.IsNaN(*perTxn) {
			u.PerTxnMax = perTxn
		}
		if !math.IsNaN(*daily) {
			u.DailyMax = daily
		}
		if *whitelist != "" {
			u.WhitelistedContacts = strings.Split(*whitelist, ",")
		}
		if *defaultContact != "" {
			u.DefaultContact = defaultContact
		}
		if err := u.Validate(); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		body, status, err = r.do(http.MethodPut, "/v1/policy", u)
	default:
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "policy %s failed: %s\n", args[0], strings.TrimSpace(string(body)))
		return 1
	}

	var p policy.Policy
	if err := json.Unmarshal(body, &p); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "whitelistedContacts=%s defaultContact=%s perTxnMax=%s dailyMax=%s policy_hash=%s\n",
		strings.Join(p.WhitelistedContacts, ","), p.DefaultContact, money.Format(p.PerTxnMax), money.Format(p.DailyMax), p.Hash())
	return 0
}

func handlePolicies(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "lint" {
		usage(stderr)
		return 2
	}
	fs := flag.NewFlagSet("policies lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args[1:]); err != nil {
		fs.Usage()
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "policies lint requires <policies_path>")
		fs.Usage()
		return 2
	}

	loaded, err := custompolicy.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	ordered := custompolicy.Ordered(loaded)
	fmt.Fprintf(stdout, "ok policies=%d active=%d\n", len(loaded), len(ordered))
	for _, p := range ordered {
		line := fmt.Sprintf("  %s [%s] %s", p.ID, p.RuleType, custompolicy.Describe(p))
		if p.RuleType == custompolicy.CustomCondition {
			line += " (deferred to agent)"
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Autopay CLI

Usage:
  autopay claim (--text TEXT | --amount N --purpose P) [--recipient R] [--wallet W] [--org ORG] [--json]
  autopay audit [--csv] [--out PATH] [--addr URL] [--token TOKEN]
  autopay policy get [--org ORG]
  autopay policy set [--per-txn-max N] [--daily-max N] [--whitelist a,b] [--default-contact C] [--org ORG]
  autopay policies lint <policies_path>
`)
}
