package custompolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

// Wednesday 2025-03-12 10:30 UTC.
var wednesday = time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)

func evaluator() *Evaluator {
	return NewEvaluator(time.UTC).WithClock(func() time.Time { return wednesday })
}

func pol(id string, rt RuleType, cfg RuleConfig) CustomPolicy {
	return CustomPolicy{ID: id, Name: "P" + id, RuleType: rt, RuleConfig: cfg, Active: true}
}

func TestEvaluatePerType(t *testing.T) {
	cases := []struct {
		name    string
		policy  CustomPolicy
		subject Subject
		reason  string
	}{
		{"max ok", pol("1", AmountLimit, RuleConfig{MaxAmount: f(10)}), Subject{Amount: 10}, ""},
		{"max fail", pol("1", AmountLimit, RuleConfig{MaxAmount: f(10)}), Subject{Amount: 10.01},
			"Amount $10.01 exceeds maximum of $10.00 (Policy: P1)"},
		{"min fail", pol("1", AmountLimit, RuleConfig{MinAmount: f(1)}), Subject{Amount: 0.5},
			"Amount $0.50 is below minimum of $1.00 (Policy: P1)"},
		{"blocked keyword", pol("2", PurposeRestriction, RuleConfig{BlockedKeywords: []string{"Alcohol"}}),
			Subject{Purpose: "Team ALCOHOL night"}, `Purpose contains blocked keyword "Alcohol" (Policy: P2)`},
		{"allowed keyword missing", pol("2", PurposeRestriction, RuleConfig{AllowedKeywords: []string{"travel", "meal"}}),
			Subject{Purpose: "books"}, "Purpose must contain one of: travel, meal (Policy: P2)"},
		{"allowed keyword present", pol("2", PurposeRestriction, RuleConfig{AllowedKeywords: []string{"meal"}}),
			Subject{Purpose: "Client MEAL"}, ""},
		{"purpose absent", pol("2", PurposeRestriction, RuleConfig{AllowedKeywords: []string{"meal"}}),
			Subject{}, ""},
		{"employee blocked", pol("3", EmployeeRestriction, RuleConfig{BlockedEmployeeIDs: []string{"e1"}}),
			Subject{EmployeeID: "e1"}, "Employee is blocked by policy (Policy: P3)"},
		{"employee not allowed", pol("3", EmployeeRestriction, RuleConfig{AllowedEmployeeIDs: []string{"e2"}}),
			Subject{EmployeeID: "e1"}, "Employee is not in allowed list (Policy: P3)"},
		{"employee absent", pol("3", EmployeeRestriction, RuleConfig{AllowedEmployeeIDs: []string{"e2"}}),
			Subject{}, ""},
		{"day not allowed", pol("4", TimeRestriction, RuleConfig{AllowedDays: []string{"monday", "friday"}}),
			Subject{}, "Claims are only allowed on: monday, friday (Policy: P4)"},
		{"day allowed", pol("4", TimeRestriction, RuleConfig{AllowedDays: []string{"Wednesday"}}), Subject{}, ""},
		{"hours outside", pol("4", TimeRestriction, RuleConfig{AllowedHours: &HourWindow{Start: "11:00", End: "17:00"}}),
			Subject{}, "Claims are only allowed between 11:00 and 17:00 (Policy: P4)"},
		{"hours inclusive", pol("4", TimeRestriction, RuleConfig{AllowedHours: &HourWindow{Start: "09:00", End: "10:30"}}),
			Subject{}, ""},
		{"hours overnight", pol("4", TimeRestriction, RuleConfig{AllowedHours: &HourWindow{Start: "22:00", End: "11:00"}}),
			Subject{}, ""},
		{"hours malformed", pol("4", TimeRestriction, RuleConfig{AllowedHours: &HourWindow{Start: "9am", End: "17:00"}}),
			Subject{}, "Claims are only allowed between 9am and 17:00 (Policy: P4)"},
		{"category blocked", pol("5", CategoryRestriction, RuleConfig{BlockedCategories: []string{"Entertainment"}}),
			Subject{Category: "entertainment"}, `Category "entertainment" is blocked (Policy: P5)`},
		{"category not allowed", pol("5", CategoryRestriction, RuleConfig{AllowedCategories: []string{"travel", "meals"}}),
			Subject{Category: "gifts"}, "Category must be one of: travel, meals (Policy: P5)"},
		{"custom condition", pol("6", CustomCondition, RuleConfig{Condition: "no weekend travel"}), Subject{Amount: 1e6}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evaluator().Evaluate(tc.subject, []CustomPolicy{tc.policy})
			if tc.reason == "" {
				assert.True(t, res.Passed, res.Reason())
				assert.Empty(t, res.FailedPolicies)
				return
			}
			assert.False(t, res.Passed)
			require.Len(t, res.Reasons, 1)
			assert.Equal(t, tc.reason, res.Reasons[0])
		})
	}
}

func TestEvaluateAllPoliciesInPriorityOrder(t *testing.T) {
	low := pol("low", AmountLimit, RuleConfig{MaxAmount: f(1)})
	low.Priority = 1
	high := pol("high", PurposeRestriction, RuleConfig{BlockedKeywords: []string{"gift"}})
	high.Priority = 10
	inactive := pol("off", AmountLimit, RuleConfig{MaxAmount: f(0)})
	inactive.Active = false

	res := evaluator().Evaluate(Subject{Amount: 5, Purpose: "gift card"}, []CustomPolicy{low, inactive, high})
	assert.False(t, res.Passed)
	require.Len(t, res.FailedPolicies, 2)
	assert.Equal(t, "high", res.FailedPolicies[0].ID)
	assert.Equal(t, "low", res.FailedPolicies[1].ID)
	assert.Equal(t, `Purpose contains blocked keyword "gift" (Policy: Phigh); Amount $5.00 exceeds maximum of $1.00 (Policy: Plow)`, res.Reason())

	ex := res.Explanations()
	require.Len(t, ex, 2)
	assert.Equal(t, "custom-policy-high", ex[0].ID)
	assert.Equal(t, "Phigh", ex[0].Label)
	require.NotNil(t, ex[0].Weight)
	assert.Equal(t, -1.0, *ex[0].Weight)
}

func TestOrderedStableOnTies(t *testing.T) {
	a := pol("a", AmountLimit, RuleConfig{})
	b := pol("b", AmountLimit, RuleConfig{})
	c := pol("c", AmountLimit, RuleConfig{})
	c.CreatedAt = "2025-01-02T00:00:00Z"
	got := Ordered([]CustomPolicy{a, b, c})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestEvaluateUsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 10:30 UTC is 19:30 in Tokyo.
	ev := NewEvaluator(tokyo).WithClock(func() time.Time { return wednesday })
	p := pol("4", TimeRestriction, RuleConfig{AllowedHours: &HourWindow{Start: "09:00", End: "17:00"}})
	assert.False(t, ev.Evaluate(Subject{}, []CustomPolicy{p}).Passed)
}

func TestEvaluateNoPolicies(t *testing.T) {
	res := evaluator().Evaluate(Subject{Amount: 1}, nil)
	assert.True(t, res.Passed)
	assert.Equal(t, "", res.Reason())
	assert.Empty(t, res.Explanations())
}
