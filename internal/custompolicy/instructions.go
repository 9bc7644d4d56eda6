package custompolicy

import (
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/money"
)

// Deferred returns the active custom_condition policies. They never fail a
// claim here and are handed to the agent instead.
func Deferred(policies []CustomPolicy) []CustomPolicy {
	var out []CustomPolicy
	for _, p := range Ordered(policies) {
		if p.RuleType == CustomCondition {
			out = append(out, p)
		}
	}
	return out
}

// Describe renders a policy as an instruction line for the agent prompt.
func Describe(p CustomPolicy) string {
	cfg := p.RuleConfig
	var sb strings.Builder
	switch p.RuleType {
	case AmountLimit:
		if cfg.MaxAmount != nil {
			sb.WriteString("Maximum amount: $" + money.Format(*cfg.MaxAmount) + ". ")
		}
		if cfg.MinAmount != nil {
			sb.WriteString("Minimum amount: $" + money.Format(*cfg.MinAmount) + ". ")
		}
	case PurposeRestriction:
		if len(cfg.AllowedKeywords) > 0 {
			sb.WriteString("Purpose must contain one of: " + strings.Join(cfg.AllowedKeywords, ", ") + ". ")
		}
		if len(cfg.BlockedKeywords) > 0 {
			sb.WriteString("Purpose must NOT contain: " + strings.Join(cfg.BlockedKeywords, ", ") + ". ")
		}
	case TimeRestriction:
		if len(cfg.AllowedDays) > 0 {
			sb.WriteString("Claims only allowed on: " + strings.Join(cfg.AllowedDays, ", ") + ". ")
		}
		if cfg.AllowedHours != nil {
			sb.WriteString("Claims only allowed between " + cfg.AllowedHours.Start + " and " + cfg.AllowedHours.End + ". ")
		}
	case EmployeeRestriction:
		if len(cfg.AllowedEmployeeIDs) > 0 {
			sb.WriteString("Only specific employees allowed. ")
		}
		if len(cfg.BlockedEmployeeIDs) > 0 {
			sb.WriteString("Specific employees blocked. ")
		}
	case CategoryRestriction:
		if len(cfg.AllowedCategories) > 0 {
			sb.WriteString("Only categories allowed: " + strings.Join(cfg.AllowedCategories, ", ") + ". ")
		}
		if len(cfg.BlockedCategories) > 0 {
			sb.WriteString("Categories blocked: " + strings.Join(cfg.BlockedCategories, ", ") + ". ")
		}
	case CustomCondition:
		sb.WriteString("Custom condition: " + cfg.Condition + ". ")
	}

	head := p.Name
	if p.Description != "" {
		head += " (" + p.Description + ")"
	}
	return strings.TrimSpace(head + ": " + sb.String())
}

// AgentInstructions describes every active policy in evaluation order.
func AgentInstructions(policies []CustomPolicy) []string {
	ordered := Ordered(policies)
	out := make([]string, 0, len(ordered))
	for _, p := range ordered {
		out = append(out, Describe(p))
	}
	return out
}
