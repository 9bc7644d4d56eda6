package types

import "strings"

// Status is the outcome recorded for a finalized claim.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusReview   Status = "review"
)

// Decision is the deterministic verdict derived from rule evaluation.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionReview  Decision = "review"
)

// Claim is a reimbursement request. Either Text or both Amount and Purpose
// must be present.
type Claim struct {
	ClaimID        string   `json:"claim_id,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
	EmployeeID     string   `json:"employee_id,omitempty"`
	Text           string   `json:"text,omitempty"`
	Amount         *float64 `json:"amount,omitempty"`
	Purpose        string   `json:"purpose,omitempty"`
	Recipient      string   `json:"recipient,omitempty"`
	WalletAddress  string   `json:"wallet_address,omitempty"`
	Category       string   `json:"category,omitempty"`
}

// Structured reports whether the claim carries an explicit amount and purpose.
func (c Claim) Structured() bool {
	return c.Amount != nil && c.Purpose != ""
}

type Explanation struct {
	ID     string   `json:"id"`
	Label  string   `json:"label,omitempty"`
	Reason string   `json:"reason"`
	Weight *float64 `json:"weight,omitempty"`
}

// AgentResponse is the adjudication result returned to callers.
type AgentResponse struct {
	Status       Status        `json:"status"`
	Amount       float64       `json:"amount"`
	Purpose      string        `json:"purpose"`
	Recipient    string        `json:"recipient,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	TxID         string        `json:"txId,omitempty"`
	Error        string        `json:"error,omitempty"`
	Decision     Decision      `json:"decision,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
	Explanations []Explanation `json:"explanations,omitempty"`
	TraceID      string        `json:"traceId,omitempty"`
	ClaimID      string        `json:"claimId,omitempty"`
	DecisionID   string        `json:"decisionId,omitempty"`
}

// AuditEntry is one immutable ledger row.
type AuditEntry struct {
	Timestamp      string  `json:"timestamp"`
	OrganizationID string  `json:"organizationId,omitempty"`
	Status         Status  `json:"status"`
	Amount         float64 `json:"amount"`
	Purpose        string  `json:"purpose"`
	Recipient      string  `json:"recipient,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	TxID           string  `json:"txId,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Date returns the date portion of the entry timestamp.
func (e AuditEntry) Date() string {
	date, _, _ := strings.Cut(e.Timestamp, "T")
	return date
}
