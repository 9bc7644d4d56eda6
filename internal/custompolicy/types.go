// Package custompolicy evaluates tenant-defined constraints that apply on
// top of the built-in payout rules.
package custompolicy

type RuleType string

const (
	AmountLimit         RuleType = "amount_limit"
	PurposeRestriction  RuleType = "purpose_restriction"
	EmployeeRestriction RuleType = "employee_restriction"
	TimeRestriction     RuleType = "time_restriction"
	CategoryRestriction RuleType = "category_restriction"
	CustomCondition     RuleType = "custom_condition"
)

// HourWindow bounds the minute of day as "HH:MM" strings, inclusive. A start
// after the end wraps past midnight.
type HourWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// RuleConfig carries the settings of every rule type; each type reads only
// its own fields.
type RuleConfig struct {
	MaxAmount *float64 `json:"maxAmount,omitempty" yaml:"maxAmount,omitempty"`
	MinAmount *float64 `json:"minAmount,omitempty" yaml:"minAmount,omitempty"`

	AllowedCategories []string `json:"allowedCategories,omitempty" yaml:"allowedCategories,omitempty"`
	BlockedCategories []string `json:"blockedCategories,omitempty" yaml:"blockedCategories,omitempty"`

	AllowedDays  []string    `json:"allowedDays,omitempty" yaml:"allowedDays,omitempty"`
	AllowedHours *HourWindow `json:"allowedHours,omitempty" yaml:"allowedHours,omitempty"`

	AllowedEmployeeIDs []string `json:"allowedEmployeeIds,omitempty" yaml:"allowedEmployeeIds,omitempty"`
	BlockedEmployeeIDs []string `json:"blockedEmployeeIds,omitempty" yaml:"blockedEmployeeIds,omitempty"`

	AllowedKeywords []string `json:"allowedKeywords,omitempty" yaml:"allowedKeywords,omitempty"`
	BlockedKeywords []string `json:"blockedKeywords,omitempty" yaml:"blockedKeywords,omitempty"`

	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

type CustomPolicy struct {
	ID             string     `json:"id" yaml:"id"`
	OrganizationID string     `json:"organization_id,omitempty" yaml:"organization_id,omitempty"`
	Name           string     `json:"name" yaml:"name"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	RuleType       RuleType   `json:"rule_type" yaml:"rule_type"`
	RuleConfig     RuleConfig `json:"rule_config" yaml:"rule_config"`
	Active         bool       `json:"active" yaml:"active"`
	Priority       int        `json:"priority" yaml:"priority"`
	CreatedAt      string     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Subject is the part of a claim custom policies look at. Empty optional
// fields make the corresponding restriction not applicable.
type Subject struct {
	Amount     float64
	Purpose    string
	EmployeeID string
	Category   string
}
