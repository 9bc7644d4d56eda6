package agent

import (
	"fmt"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
)

// customPolicyStart is the list number of the first custom policy line; the
// built-in rules take 1 to 4.
const customPolicyStart = 5

type PromptInput struct {
	Policy policy.Policy
	// Contact is the whitelisted recipient the agent should pay.
	Contact        string
	TodayTotal     float64
	CustomPolicies []custompolicy.CustomPolicy
	Input          string
}

// Prompt renders the instructions sent to the agent for one claim.
func Prompt(in PromptInput) string {
	contact := in.Contact
	perTxn := "$" + money.Format(in.Policy.PerTxnMax)
	daily := "$" + money.Format(in.Policy.DailyMax)
	today := "$" + money.Format(in.TodayTotal)
	remaining := "$" + money.Format(in.Policy.DailyMax-in.TodayTotal)

	var sb strings.Builder
	sb.WriteString("You are AutoPay Agent, an AI assistant that processes expense claims and makes payments using payment tools.\n\n")
	sb.WriteString("POLICY RULES (STRICTLY ENFORCE):\n")
	fmt.Fprintf(&sb, "1. DEFAULT RECIPIENT: If no recipient is mentioned in the claim, automatically use the whitelisted contact: %s\n", contact)
	fmt.Fprintf(&sb, "2. RECIPIENT CHECK: Only pay to whitelisted contact %s. If a different recipient is mentioned, reject. If no recipient is mentioned, use %s (PASSES check).\n", contact, contact)
	fmt.Fprintf(&sb, "3. Maximum per transaction: %s\n", perTxn)
	fmt.Fprintf(&sb, "4. Maximum daily total: %s (Current today: %s, Remaining: %s)", daily, today, remaining)

	if lines := custompolicy.AgentInstructions(in.CustomPolicies); len(lines) > 0 {
		sb.WriteString("\n\nCUSTOM POLICIES (STRICTLY ENFORCE):\n")
		for i, line := range lines {
			fmt.Fprintf(&sb, "%d. %s\n", i+customPolicyStart, line)
		}
		sb.WriteString("\nThese custom policies are in addition to the standard policies above. ALL policies must pass for approval.")
	}

	sb.WriteString("\n\nWORKFLOW:\n")
	sb.WriteString("1. Parse the expense claim to extract amount and purpose\n")
	fmt.Fprintf(&sb, "2. RECIPIENT: If recipient is mentioned, check if it matches %s. If not mentioned, DEFAULT to %s (this is OK).\n", contact, contact)
	fmt.Fprintf(&sb, "3. Check if amount is within per-transaction limit (max %s)\n", perTxn)
	fmt.Fprintf(&sb, "4. Check if adding this amount would exceed daily limit (current today: %s, remaining: %s)\n", today, remaining)
	fmt.Fprintf(&sb, "5. If ALL rules pass, use the payout/payment tool to send USDC to %s\n", contact)
	fmt.Fprintf(&sb, "6. Only reject if: amount exceeds limits, OR a different recipient (not %s) is explicitly mentioned\n\n", contact)
	fmt.Fprintf(&sb, "IMPORTANT: Missing recipient is NOT a reason for rejection - always default to %s.\n\n", contact)
	fmt.Fprintf(&sb, "Process this expense claim: %q\n\n", in.Input)
	sb.WriteString("Always provide a structured response with status (approved/rejected), amount, purpose, and reason or transaction ID.")
	return sb.String()
}
