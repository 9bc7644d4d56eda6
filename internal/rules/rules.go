// Package rules evaluates the three built-in payout limits against a policy
// and the audit ledger's running daily total.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

const (
	RuleRecipientWhitelisted = "recipient-whitelisted"
	RulePerTransactionLimit  = "per-transaction-limit"
	RuleDailyTotalLimit      = "daily-total-limit"
)

// RuleCount is the number of rules every evaluation reports.
const RuleCount = 3

const passedReason = "Rule passed"

type Result struct {
	ID            string
	Label         string
	Passed        bool
	Reason        string
	Weight        float64
	EvidencePaths []string
}

// Evaluation is the complete outcome for one claim. Approved is the logical
// AND of every result; Reason joins the failing reasons.
type Evaluation struct {
	Approved bool
	Results  []Result
	Reason   string
	// DailyTotal is the approved spend for the evaluation date before this claim.
	DailyTotal float64
	Date       string
}

// Confidence is the fraction of rules that passed. It never affects Approved.
func (e Evaluation) Confidence() float64 {
	if len(e.Results) == 0 {
		return 0
	}
	passed := 0
	for _, r := range e.Results {
		if r.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(e.Results))
}

func (e Evaluation) Decision() types.Decision {
	if e.Approved {
		return types.DecisionApprove
	}
	return types.DecisionDeny
}

// Explanations renders one explanation per rule; passing rules get a fixed
// reason so none is empty.
func (e Evaluation) Explanations() []types.Explanation {
	out := make([]types.Explanation, 0, len(e.Results))
	for _, r := range e.Results {
		reason := r.Reason
		if reason == "" {
			reason = passedReason
		}
		weight := r.Weight
		out = append(out, types.Explanation{ID: r.ID, Label: r.Label, Reason: reason, Weight: &weight})
	}
	return out
}

// DailyTotaler reports approved spend for a YYYY-MM-DD date.
type DailyTotaler interface {
	GetDailyTotal(date string) float64
}

// TenantTotaler reports approved spend for one organization. Ledgers that
// implement it keep each tenant's daily limit separate.
type TenantTotaler interface {
	GetTenantDailyTotal(tenant, date string) float64
}

type Evaluator struct {
	ledger DailyTotaler
	tenant string
	now    func() time.Time
}

func NewEvaluator(ledger DailyTotaler) *Evaluator {
	return &Evaluator{ledger: ledger, now: time.Now}
}

// WithClock returns a copy of the evaluator that reads time from now.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	cp := *e
	cp.now = now
	return &cp
}

// ForTenant returns a copy of the evaluator whose daily total only counts
// tenant's approvals, when the ledger can tell tenants apart.
func (e *Evaluator) ForTenant(tenant string) *Evaluator {
	cp := *e
	cp.tenant = tenant
	return &cp
}

func (e *Evaluator) dailyTotal(date string) float64 {
	if e.ledger == nil {
		return 0
	}
	if tt, ok := e.ledger.(TenantTotaler); ok && e.tenant != "" {
		return tt.GetTenantDailyTotal(e.tenant, date)
	}
	return e.ledger.GetDailyTotal(date)
}

// Evaluate runs all three rules without short-circuiting. An empty
// recipient passes the whitelist rule; callers resolve defaults first.
func (e *Evaluator) Evaluate(p policy.Policy, amount float64, recipient string) Evaluation {
	date := e.now().UTC().Format(time.DateOnly)
	todayTotal := e.dailyTotal(date)

	amountMicros := money.ToMicros(amount)
	totalMicros := money.ToMicros(todayTotal)
	perTxnMicros := money.ToMicros(p.PerTxnMax)
	dailyMicros := money.ToMicros(p.DailyMax)

	results := make([]Result, 0, RuleCount)

	recipientOK := recipient == "" || p.IsWhitelisted(recipient)
	results = append(results, Result{
		ID:            RuleRecipientWhitelisted,
		Label:         "Recipient Whitelisted",
		Passed:        recipientOK,
		Reason:        failIf(!recipientOK, "Recipient \"%s\" is not whitelisted.", recipient),
		Weight:        weight(recipientOK, 0.2, -1.0),
		EvidencePaths: []string{"recipient"},
	})

	// Amounts past money.MaxAmount fail both limits whatever the policy says.
	inRange := money.Valid(amount)
	projectedMicros := money.AddMicros(totalMicros, amountMicros)

	perTxnOK := inRange && amountMicros <= perTxnMicros
	results = append(results, Result{
		ID:     RulePerTransactionLimit,
		Label:  "Per-Transaction Limit",
		Passed: perTxnOK,
		Reason: failIf(!perTxnOK, "Amount $%s exceeds per-transaction maximum of $%s.",
			money.Format(amount), money.Format(p.PerTxnMax)),
		Weight:        weight(perTxnOK, 0.4, -0.6),
		EvidencePaths: []string{"amount"},
	})

	dailyOK := inRange && projectedMicros <= dailyMicros
	results = append(results, Result{
		ID:     RuleDailyTotalLimit,
		Label:  "Daily Total Limit",
		Passed: dailyOK,
		Reason: failIf(!dailyOK, "Daily total would be $%s, exceeding daily maximum of $%s. Remaining today: $%s.",
			money.Format(money.FromMicros(projectedMicros)),
			money.Format(p.DailyMax),
			money.Format(money.FromMicros(dailyMicros-totalMicros))),
		Weight:        weight(dailyOK, 0.4, -0.7),
		EvidencePaths: []string{"amount"},
	})

	eval := Evaluation{Approved: true, Results: results, DailyTotal: todayTotal, Date: date}
	var reasons []string
	for _, r := range results {
		if !r.Passed {
			eval.Approved = false
			reasons = append(reasons, r.Reason)
		}
	}
	eval.Reason = strings.Join(reasons, " ")
	return eval
}

func failIf(failed bool, format string, args ...any) string {
	if !failed {
		return ""
	}
	return fmt.Sprintf(format, args...)
}

func weight(passed bool, pass, fail float64) float64 {
	if passed {
		return pass
	}
	return fail
}
