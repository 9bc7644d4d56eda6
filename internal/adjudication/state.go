package adjudication

type Stage string

const (
	StageReceived          Stage = "received"
	StageCustomPolicyCheck Stage = "custom_policy_check"
	StageRuleEvaluation    Stage = "rule_evaluation"
	StageAgentConsult      Stage = "agent_consult"
	StageReconcile         Stage = "reconcile"
	StagePayoutAttempt     Stage = "payout_attempt"
	StageAuditAppend       Stage = "audit_append"
	StageResponse          Stage = "response"
)

type Terminal string

const (
	TerminalNone     Terminal = ""
	TerminalApproved Terminal = "approved"
	// TerminalNoPayout approves a claim that needs no transfer.
	TerminalNoPayout Terminal = "approved_no_payout"
	TerminalRejected Terminal = "rejected"
	TerminalReview   Terminal = "review"
)

// Facts are what a run has learned so far. Each stage fills in its own.
type Facts struct {
	CustomPassed   bool
	RulesApproved  bool
	ZeroAmount     bool
	AgentFailed    bool
	AgentApproved  bool
	AgentVerified  bool
	PayoutFailed   bool
	PayoutVerified bool
}

// Transition maps the finished stage and the facts to the next stage. The
// terminal outcome is decided on the way into StageAuditAppend and is
// TerminalNone before that.
func Transition(stage Stage, f Facts) (Stage, Terminal) {
	switch stage {
	case StageReceived:
		return StageCustomPolicyCheck, TerminalNone
	case StageCustomPolicyCheck:
		if !f.CustomPassed {
			return StageAuditAppend, TerminalRejected
		}
		return StageRuleEvaluation, TerminalNone
	case StageRuleEvaluation:
		switch {
		case !f.RulesApproved:
			return StageAuditAppend, TerminalRejected
		case f.ZeroAmount:
			return StageAuditAppend, TerminalNoPayout
		}
		return StageAgentConsult, TerminalNone
	case StageAgentConsult:
		return StageReconcile, TerminalNone
	case StageReconcile:
		switch {
		case f.AgentFailed, !f.AgentApproved:
			return StageAuditAppend, TerminalRejected
		case f.AgentVerified:
			return StageAuditAppend, TerminalApproved
		}
		return StagePayoutAttempt, TerminalNone
	case StagePayoutAttempt:
		switch {
		case f.PayoutFailed:
			return StageAuditAppend, TerminalRejected
		case f.PayoutVerified:
			return StageAuditAppend, TerminalApproved
		}
		return StageAuditAppend, TerminalReview
	default:
		return StageResponse, TerminalNone
	}
}
