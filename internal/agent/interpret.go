package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/payout"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

// Opinion is the agent's advisory view of a claim. ClaimedTxID is whatever
// id the agent wrote in its reply; it is never used as a payout id.
type Opinion struct {
	Status      types.Status
	Amount      float64
	Purpose     string
	Recipient   string
	Reason      string
	ClaimedTxID string
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Interpret reads the agent's final reply. A JSON object anywhere in the
// reply is preferred; otherwise the reply counts as approval when it says
// "approved" or "success". Amount and purpose fall back to input.
func Interpret(t Transcript, input string) Opinion {
	text := t.FinalText()

	op, ok := fromJSON(text)
	if !ok {
		lower := strings.ToLower(text)
		op = Opinion{
			Status:  types.StatusRejected,
			Amount:  ExtractAmount(text),
			Purpose: input,
			Reason:  text,
		}
		if strings.Contains(lower, "approved") || strings.Contains(lower, "success") {
			op.Status = types.StatusApproved
		}
	}

	if op.Amount <= 0 || !money.Finite(op.Amount) {
		op.Amount = ExtractAmount(input)
	}
	if op.Purpose == "" {
		op.Purpose = input
	}
	return op
}

func fromJSON(text string) (Opinion, bool) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return Opinion{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return Opinion{}, false
	}

	op := Opinion{
		Status:    types.StatusRejected,
		Amount:    number(raw["amount"]),
		Purpose:   str(raw["purpose"]),
		Recipient: str(raw["recipient"]),
		Reason:    str(raw["reason"]),
	}
	switch strings.ToLower(str(raw["status"])) {
	case string(types.StatusApproved):
		op.Status = types.StatusApproved
	case string(types.StatusReview):
		op.Status = types.StatusReview
	}
	for _, key := range []string{"txId", "transactionId", "transaction_id"} {
		if id := str(raw[key]); id != "" {
			op.ClaimedTxID = id
			break
		}
	}
	return op, true
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		return ExtractAmount(n)
	}
	return 0
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// VerifiedTxID returns the transaction id from the last structured result of
// a payout tool the agent called. Text results and ids the agent only wrote
// in prose are ignored.
func VerifiedTxID(t Transcript) (string, bool) {
	payoutCalls := make(map[string]struct{})
	var found string
	for _, msg := range t.Messages {
		for _, call := range msg.ToolCalls {
			if !payout.IsPayoutToolName(call.Name) {
				continue
			}
			if call.ID != "" {
				payoutCalls[call.ID] = struct{}{}
			}
			if call.Result == nil {
				continue
			}
			if id, ok := payout.ExtractTxID(payout.ClassifyResult(call.Result, nil)); ok {
				found = id
			}
		}
		if msg.Role != RoleTool || msg.Structured == nil {
			continue
		}
		if _, ok := payoutCalls[msg.ToolCallID]; !ok {
			continue
		}
		if id, ok := payout.ExtractTxID(payout.ToolResult{Kind: payout.ResultStructured, Fields: msg.Structured}); ok {
			found = id
		}
	}
	return found, found != ""
}

// PayoutAttempted reports whether the agent called any payout tool.
func PayoutAttempted(t Transcript) bool {
	for _, msg := range t.Messages {
		for _, call := range msg.ToolCalls {
			if payout.IsPayoutToolName(call.Name) {
				return true
			}
		}
	}
	return false
}
