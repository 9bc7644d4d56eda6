package types

// DecisionRecord is the content-addressed justification of one adjudication.
// Amounts are carried in micro-units so the record can be canonicalized.
type DecisionRecord struct {
	Schema         string           `json:"schema"`
	DecisionID     string           `json:"decision_id"`
	CreatedAt      string           `json:"created_at"`
	TraceID        string           `json:"trace_id"`
	OrganizationID string           `json:"organization_id,omitempty"`
	ClaimID        string           `json:"claim_id,omitempty"`
	AmountMicros   int64            `json:"amount_micros"`
	Recipient      string           `json:"recipient,omitempty"`
	Policy         DecisionPolicy   `json:"policy"`
	Verdict        Decision         `json:"verdict"`
	Status         Status           `json:"status"`
	Rules          []DecisionRule   `json:"rules"`
	CustomPolicies []DecisionCustom `json:"custom_policies,omitempty"`
	TxID           string           `json:"tx_id,omitempty"`

	// DeferredPolicies lists custom_condition policy ids left to the agent.
	DeferredPolicies []string `json:"deferred_policies,omitempty"`
}

type DecisionPolicy struct {
	PolicyHash      string   `json:"policy_hash"`
	PerTxnMaxMicros int64    `json:"per_txn_max_micros"`
	DailyMaxMicros  int64    `json:"daily_max_micros"`
	Whitelist       []string `json:"whitelist"`
}

type DecisionRule struct {
	ID     string `json:"id"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

type DecisionCustom struct {
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}
