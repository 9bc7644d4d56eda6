// Package decision builds content-addressed decision records so the
// justification for a claim outcome can be reproduced and verified later.
package decision

import (
	"errors"

	"github.com/techmehedi/Autopay-Agent/internal/crypto"
	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
	"github.com/techmehedi/Autopay-Agent/internal/rules"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

const DecisionSchema = "autopay.decision.v1"

var ErrDecisionMismatch = errors.New("decision id does not match record contents")

type Input struct {
	TraceID        string
	OrganizationID string
	ClaimID        string
	Amount         float64
	Recipient      string
	Policy         policy.Policy
	// Rules is nil when custom policies rejected the claim first.
	Rules    *rules.Evaluation
	Custom   custompolicy.Result
	Deferred []custompolicy.CustomPolicy
	Status   types.Status
	TxID     string
	// CreatedAt is an RFC 3339 timestamp.
	CreatedAt string
}

// BuildDecision builds a decision record and computes its decision_id.
func BuildDecision(in Input) (types.DecisionRecord, error) {
	record := types.DecisionRecord{
		Schema:         DecisionSchema,
		CreatedAt:      in.CreatedAt,
		TraceID:        in.TraceID,
		OrganizationID: in.OrganizationID,
		ClaimID:        in.ClaimID,
		AmountMicros:   money.ToMicros(in.Amount),
		Recipient:      in.Recipient,
		Policy: types.DecisionPolicy{
			PolicyHash:      in.Policy.Hash(),
			PerTxnMaxMicros: money.ToMicros(in.Policy.PerTxnMax),
			DailyMaxMicros:  money.ToMicros(in.Policy.DailyMax),
			Whitelist:       append([]string{}, in.Policy.WhitelistedContacts...),
		},
		Status: in.Status,
		TxID:   in.TxID,
	}

	record.Verdict = types.DecisionDeny
	if in.Rules != nil {
		record.Verdict = in.Rules.Decision()
		for _, r := range in.Rules.Results {
			record.Rules = append(record.Rules, types.DecisionRule{ID: r.ID, Passed: r.Passed, Reason: r.Reason})
		}
	}
	if !in.Custom.Passed {
		record.Verdict = types.DecisionDeny
	}
	for i, p := range in.Custom.FailedPolicies {
		record.CustomPolicies = append(record.CustomPolicies, types.DecisionCustom{
			PolicyID: p.ID,
			Name:     p.Name,
			Reason:   in.Custom.Reasons[i],
		})
	}
	for _, p := range in.Deferred {
		record.DeferredPolicies = append(record.DeferredPolicies, p.ID)
	}

	id, err := computeID(record)
	if err != nil {
		return types.DecisionRecord{}, err
	}
	record.DecisionID = id
	return record, nil
}

// Verify recomputes the decision id from the record contents.
func Verify(record types.DecisionRecord) error {
	id, err := computeID(record)
	if err != nil {
		return err
	}
	if id != record.DecisionID {
		return ErrDecisionMismatch
	}
	return nil
}

func computeID(record types.DecisionRecord) (string, error) {
	ruleViews := make([]any, 0, len(record.Rules))
	for _, r := range record.Rules {
		ruleViews = append(ruleViews, map[string]any{"id": r.ID, "passed": r.Passed, "reason": r.Reason})
	}
	customViews := make([]any, 0, len(record.CustomPolicies))
	for _, c := range record.CustomPolicies {
		customViews = append(customViews, map[string]any{"policy_id": c.PolicyID, "name": c.Name, "reason": c.Reason})
	}

	signingView := map[string]any{
		"schema":          record.Schema,
		"created_at":      record.CreatedAt,
		"trace_id":        record.TraceID,
		"organization_id": record.OrganizationID,
		"claim_id":        record.ClaimID,
		"amount_micros":   record.AmountMicros,
		"recipient":       record.Recipient,
		"policy": map[string]any{
			"policy_hash":        record.Policy.PolicyHash,
			"per_txn_max_micros": record.Policy.PerTxnMaxMicros,
			"daily_max_micros":   record.Policy.DailyMaxMicros,
			"whitelist":          record.Policy.Whitelist,
		},
		"verdict":           string(record.Verdict),
		"status":            string(record.Status),
		"rules":             ruleViews,
		"custom_policies":   customViews,
		"deferred_policies": record.DeferredPolicies,
		"tx_id":             record.TxID,
	}

	canonical, err := crypto.Canonicalize(signingView)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
