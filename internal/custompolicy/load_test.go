package custompolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
- id: travel-only
  organization_id: acme
  name: Travel only
  rule_type: purpose_restriction
  priority: 10
  rule_config:
    allowedKeywords: [travel, taxi]
- name: Office hours
  rule_type: time_restriction
  active: false
  rule_config:
    allowedDays: [monday, tuesday]
    allowedHours: {start: "09:00", end: "17:30"}
- name: Manager sign-off
  rule_type: custom_condition
  rule_config:
    condition: Claims above $100 need manager sign-off
`

func TestParseYAML(t *testing.T) {
	policies, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, policies, 3)

	assert.Equal(t, "travel-only", policies[0].ID)
	assert.True(t, policies[0].Active)
	assert.Equal(t, 10, policies[0].Priority)
	assert.Equal(t, []string{"travel", "taxi"}, policies[0].RuleConfig.AllowedKeywords)

	assert.False(t, policies[1].Active)
	require.NotNil(t, policies[1].RuleConfig.AllowedHours)
	assert.Equal(t, "17:30", policies[1].RuleConfig.AllowedHours.End)
	assert.NotEmpty(t, policies[1].ID)

	// Derived ids are stable.
	again, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, policies[2].ID, again[2].ID)
}

func TestParseJSON(t *testing.T) {
	policies, err := Parse([]byte(`[{"id":"cap","name":"Cap","rule_type":"amount_limit","rule_config":{"maxAmount":2.5}}]`))
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.NotNil(t, policies[0].RuleConfig.MaxAmount)
	assert.Equal(t, 2.5, *policies[0].RuleConfig.MaxAmount)
}

func TestParseEmpty(t *testing.T) {
	policies, err := Parse([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown type":      `[{"name":"x","rule_type":"vibes"}]`,
		"missing name":      `[{"rule_type":"amount_limit","rule_config":{"maxAmount":1}}]`,
		"bad clock":         `[{"name":"x","rule_type":"time_restriction","rule_config":{"allowedHours":{"start":"9am","end":"17:00"}}}]`,
		"bad day":           `[{"name":"x","rule_type":"time_restriction","rule_config":{"allowedDays":["funday"]}}]`,
		"negative max":      `[{"name":"x","rule_type":"amount_limit","rule_config":{"maxAmount":-1}}]`,
		"empty amount":      `[{"name":"x","rule_type":"amount_limit","rule_config":{}}]`,
		"condition missing": `[{"name":"x","rule_type":"custom_condition","rule_config":{}}]`,
		"unknown field":     `[{"name":"x","rule_type":"purpose_restriction","rule_config":{"blockedWords":["a"]}}]`,
		"not a list":        `{"name":"x"}`,
		"duplicate ids":     `[{"id":"a","name":"x","rule_type":"custom_condition","rule_config":{"condition":"c"}},{"id":"a","name":"y","rule_type":"custom_condition","rule_config":{"condition":"c"}}]`,
		"yaml syntax":       "- name: [unterminated",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalidPolicies)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	policies, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, policies, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestForTenant(t *testing.T) {
	policies, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Len(t, ForTenant(policies, "acme"), 3)
	assert.Len(t, ForTenant(policies, "globex"), 2)
}
