package custompolicy

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

// ExplanationPrefix prefixes the explanation id of a failed policy.
const ExplanationPrefix = "custom-policy-"

type Result struct {
	Passed         bool
	FailedPolicies []CustomPolicy
	Reasons        []string
}

// Reason joins every failure reason for the response and audit entry.
func (r Result) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

// Explanations yields one weight -1 entry per failed policy.
func (r Result) Explanations() []types.Explanation {
	out := make([]types.Explanation, 0, len(r.FailedPolicies))
	for i, p := range r.FailedPolicies {
		w := -1.0
		out = append(out, types.Explanation{
			ID:     ExplanationPrefix + p.ID,
			Label:  p.Name,
			Reason: r.Reasons[i],
			Weight: &w,
		})
	}
	return out
}

type Evaluator struct {
	now func() time.Time
	loc *time.Location
}

// NewEvaluator evaluates time restrictions in loc; nil means time.Local.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{now: time.Now, loc: loc}
}

func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	cp := *e
	cp.now = now
	return &cp
}

// Ordered returns the active policies, highest priority first. Ties keep
// newest-created first, then input order.
func Ordered(policies []CustomPolicy) []CustomPolicy {
	active := make([]CustomPolicy, 0, len(policies))
	for _, p := range policies {
		if p.Active {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].CreatedAt > active[j].CreatedAt
	})
	return active
}

// Evaluate checks every active policy; it never stops at the first failure.
func (e *Evaluator) Evaluate(subject Subject, policies []CustomPolicy) Result {
	now := e.now().In(e.loc)
	res := Result{Passed: true}
	for _, p := range Ordered(policies) {
		if reason, failed := e.check(p, subject, now); failed {
			res.Passed = false
			res.FailedPolicies = append(res.FailedPolicies, p)
			res.Reasons = append(res.Reasons, reason)
		}
	}
	return res
}

func (e *Evaluator) check(p CustomPolicy, s Subject, now time.Time) (string, bool) {
	cfg := p.RuleConfig
	var reason string
	switch p.RuleType {
	case AmountLimit:
		amount := money.ToMicros(s.Amount)
		if cfg.MaxAmount != nil && amount > money.ToMicros(*cfg.MaxAmount) {
			reason = fmt.Sprintf("Amount $%s exceeds maximum of $%s", money.Format(s.Amount), money.Format(*cfg.MaxAmount))
		}
		if cfg.MinAmount != nil && amount < money.ToMicros(*cfg.MinAmount) {
			reason = fmt.Sprintf("Amount $%s is below minimum of $%s", money.Format(s.Amount), money.Format(*cfg.MinAmount))
		}

	case PurposeRestriction:
		if s.Purpose == "" {
			break
		}
		purpose := strings.ToLower(s.Purpose)
		for _, kw := range cfg.BlockedKeywords {
			if strings.Contains(purpose, strings.ToLower(kw)) {
				reason = fmt.Sprintf("Purpose contains blocked keyword \"%s\"", kw)
				break
			}
		}
		if reason == "" && len(cfg.AllowedKeywords) > 0 && !slices.ContainsFunc(cfg.AllowedKeywords, func(kw string) bool {
			return strings.Contains(purpose, strings.ToLower(kw))
		}) {
			reason = "Purpose must contain one of: " + strings.Join(cfg.AllowedKeywords, ", ")
		}

	case EmployeeRestriction:
		if s.EmployeeID == "" {
			break
		}
		if slices.Contains(cfg.BlockedEmployeeIDs, s.EmployeeID) {
			reason = "Employee is blocked by policy"
		}
		if len(cfg.AllowedEmployeeIDs) > 0 && !slices.Contains(cfg.AllowedEmployeeIDs, s.EmployeeID) {
			reason = "Employee is not in allowed list"
		}

	case TimeRestriction:
		day := strings.ToLower(now.Weekday().String())
		if len(cfg.AllowedDays) > 0 && !slices.ContainsFunc(cfg.AllowedDays, func(d string) bool {
			return strings.EqualFold(strings.TrimSpace(d), day)
		}) {
			reason = "Claims are only allowed on: " + strings.Join(cfg.AllowedDays, ", ")
			break
		}
		if w := cfg.AllowedHours; w != nil && !w.contains(now.Hour()*60+now.Minute()) {
			reason = fmt.Sprintf("Claims are only allowed between %s and %s", w.Start, w.End)
		}

	case CategoryRestriction:
		if s.Category == "" {
			break
		}
		if containsFold(cfg.BlockedCategories, s.Category) {
			reason = fmt.Sprintf("Category \"%s\" is blocked", s.Category)
		}
		if len(cfg.AllowedCategories) > 0 && !containsFold(cfg.AllowedCategories, s.Category) {
			reason = "Category must be one of: " + strings.Join(cfg.AllowedCategories, ", ")
		}

	case CustomCondition:
		// Enforced by the agent, see Deferred.
	}

	if reason == "" {
		return "", false
	}
	return fmt.Sprintf("%s (Policy: %s)", reason, p.Name), true
}

func containsFold(list []string, v string) bool {
	return slices.ContainsFunc(list, func(s string) bool { return strings.EqualFold(s, v) })
}

// contains reports whether minute lies in the window. A malformed window
// admits nothing.
func (w HourWindow) contains(minute int) bool {
	start, ok1 := parseClock(w.Start)
	end, ok2 := parseClock(w.End)
	if !ok1 || !ok2 {
		return false
	}
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
