// Package adjudication decides reimbursement claims. It runs the custom
// policies and built-in rules, consults the agent, makes at most one payout
// and records the outcome in the audit ledger.
package adjudication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/techmehedi/Autopay-Agent/internal/agent"
	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/decision"
	"github.com/techmehedi/Autopay-Agent/internal/ledger"
	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/payout"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
	"github.com/techmehedi/Autopay-Agent/internal/rules"
	"github.com/techmehedi/Autopay-Agent/internal/webhook"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

// ErrInvalidClaim is returned for claims that cannot be evaluated. Nothing
// is written to the ledger for them.
var ErrInvalidClaim = errors.New("invalid claim")

// ErrMissingFields is the ErrInvalidClaim for a claim with neither text nor
// an amount and purpose.
var ErrMissingFields = fmt.Errorf("%w: need text, or amount and purpose", ErrInvalidClaim)

// ErrRecord reports that a decided claim could not be written to the ledger.
// The response returned alongside it is still the claim's outcome.
var ErrRecord = errors.New("record claim")

const policyViolation = "Policy violation"

type PolicySource interface {
	Get(ctx context.Context, tenant string) policy.Policy
}

type Options struct {
	Policies PolicySource
	Ledger   ledger.AuditLog
	// Parser reads free-text claims; nil uses agent.FallbackParser.
	Parser agent.Parser
	// Consultant is asked for an opinion on claims the rules approve; nil
	// skips the consult.
	Consultant agent.Consultant
	Payer      Payer
	// Webhooks enqueues a claim.decided event with every ledger entry. It
	// needs a Ledger that implements ledger.Store.
	Webhooks bool
	// Location is the zone custom time restrictions are read in.
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

type Service struct {
	policies   PolicySource
	ledger     ledger.AuditLog
	rules      *rules.Evaluator
	custom     *custompolicy.Evaluator
	parser     agent.Parser
	consultant agent.Consultant
	payer      Payer
	webhooks   bool
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Policies == nil {
		return nil, fmt.Errorf("missing policy source")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("missing ledger")
	}
	if opts.Parser == nil {
		opts.Parser = agent.FallbackParser{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if _, ok := opts.Ledger.(ledger.Store); opts.Webhooks && !ok {
		return nil, fmt.Errorf("webhooks need a transactional ledger")
	}
	return &Service{
		policies:   opts.Policies,
		ledger:     opts.Ledger,
		rules:      rules.NewEvaluator(opts.Ledger).WithClock(opts.Now),
		custom:     custompolicy.NewEvaluator(opts.Location).WithClock(opts.Now),
		parser:     opts.Parser,
		consultant: opts.Consultant,
		payer:      opts.Payer,
		webhooks:   opts.Webhooks,
		logger:     opts.Logger.With("component", "adjudication"),
		now:        opts.Now,
	}, nil
}

// run is the state of one claim moving through the stages.
type run struct {
	tenant  TenantConfig
	claim   types.Claim
	traceID string
	logger  *slog.Logger

	input     string
	amount    float64
	purpose   string
	recipient string
	policy    policy.Policy

	custom   custompolicy.Result
	deferred []custompolicy.CustomPolicy
	eval     *rules.Evaluation
	opinion  *agent.Opinion
	facts    Facts
	terminal Terminal

	reason string
	txID   string
	errMsg string
}

// Adjudicate decides one claim. Every decided claim, approved or not, is
// appended to the ledger before Adjudicate returns.
func (s *Service) Adjudicate(ctx context.Context, tenant TenantConfig, claim types.Claim) (types.AgentResponse, error) {
	if err := validate(claim); err != nil {
		return types.AgentResponse{}, err
	}
	if tenant.ID == "" {
		tenant.ID = claim.OrganizationID
	}
	tenant.ID = tenantKey(tenant.ID)

	r := &run{tenant: tenant, claim: claim, traceID: s.newTraceID()}
	r.logger = s.logger.With("trace_id", r.traceID, "tenant", tenant.ID)

	for stage := StageReceived; stage != StageResponse; {
		switch stage {
		case StageReceived:
			if err := s.normalize(ctx, r); err != nil {
				r.logger.Info("claim not evaluated", "error", err)
				return types.AgentResponse{}, err
			}
		case StageCustomPolicyCheck:
			s.checkCustom(r)
		case StageRuleEvaluation:
			s.evaluateRules(r)
		case StageAgentConsult:
			s.consult(ctx, r)
		case StageReconcile:
			s.reconcile(r)
		case StagePayoutAttempt:
			s.pay(ctx, r)
		case StageAuditAppend:
			return s.record(r)
		}
		var terminal Terminal
		stage, terminal = Transition(stage, r.facts)
		if terminal != TerminalNone {
			r.terminal = terminal
		}
	}
	return types.AgentResponse{}, fmt.Errorf("claim %s finished without a decision", r.traceID)
}

func validate(claim types.Claim) error {
	if strings.TrimSpace(claim.Text) == "" && !claim.Structured() {
		return ErrMissingFields
	}
	if claim.Amount != nil {
		return checkAmount(*claim.Amount)
	}
	return nil
}

func checkAmount(amount float64) error {
	switch {
	case !money.Finite(amount) || amount < 0:
		return fmt.Errorf("%w: amount must be a non-negative number", ErrInvalidClaim)
	case amount > money.MaxAmount:
		return fmt.Errorf("%w: amount must not exceed %s", ErrInvalidClaim, money.Format(money.MaxAmount))
	}
	return nil
}

// normalize resolves amount, purpose and recipient. A text claim whose
// amount is out of range is invalid like a structured one.
func (s *Service) normalize(ctx context.Context, r *run) error {
	claim := r.claim
	explicit := firstNonEmpty(claim.WalletAddress, claim.Recipient)

	if claim.Structured() {
		r.amount = *claim.Amount
		r.purpose = claim.Purpose
		r.recipient = explicit
		r.input = fmt.Sprintf("Reimburse $%s for %s", money.Format(r.amount), r.purpose)
		if explicit != "" {
			r.input += " to " + explicit
		}
	} else {
		r.input = claim.Text
		parsed, err := s.parser.Parse(ctx, claim.Text)
		if err != nil {
			r.logger.Warn("claim parser failed; using fallback", "error", err)
			parsed, _ = agent.FallbackParser{}.Parse(ctx, claim.Text)
		}
		if !money.Finite(parsed.Amount) || parsed.Amount < 0 {
			parsed.Amount = agent.ExtractAmount(claim.Text)
		}
		if err := checkAmount(parsed.Amount); err != nil {
			return err
		}
		r.amount = parsed.Amount
		r.purpose = firstNonEmpty(parsed.Purpose, claim.Text)
		r.recipient = firstNonEmpty(explicit, parsed.Recipient)
	}

	r.policy = r.tenant.Overrides.Apply(s.policies.Get(ctx, r.tenant.ID))
	if r.recipient == "" {
		r.recipient = r.policy.DefaultRecipient()
	}
	return nil
}

func (s *Service) checkCustom(r *run) {
	r.custom = s.custom.Evaluate(custompolicy.Subject{
		Amount:     r.amount,
		Purpose:    r.purpose,
		EmployeeID: r.claim.EmployeeID,
		Category:   r.claim.Category,
	}, r.tenant.CustomPolicies)
	r.deferred = custompolicy.Deferred(r.tenant.CustomPolicies)
	r.facts.CustomPassed = r.custom.Passed

	if !r.custom.Passed {
		r.reason = r.custom.Reason()
		if r.reason == "" {
			r.reason = policyViolation
		}
		r.logger.Info("claim rejected by custom policy", "policies", len(r.custom.FailedPolicies))
	}
}

func (s *Service) evaluateRules(r *run) {
	eval := s.rules.ForTenant(r.tenant.ID).Evaluate(r.policy, r.amount, r.recipient)
	r.eval = &eval
	r.facts.RulesApproved = eval.Approved
	r.facts.ZeroAmount = money.ToMicros(r.amount) == 0

	switch {
	case !eval.Approved:
		r.reason = eval.Reason
	case r.facts.ZeroAmount:
		r.reason = "No payout needed for a zero amount."
	}
}

func (s *Service) consult(ctx context.Context, r *run) {
	if s.consultant == nil {
		r.facts.AgentApproved = true
		return
	}
	if len(r.deferred) > 0 {
		r.logger.Info("custom conditions deferred to agent", "policies", len(r.deferred))
	}

	prompt := agent.Prompt(agent.PromptInput{
		Policy:         r.policy,
		Contact:        r.recipient,
		TodayTotal:     r.eval.DailyTotal,
		CustomPolicies: r.tenant.CustomPolicies,
		Input:          r.input,
	})
	transcript, err := s.consultant.Consult(ctx, agent.Consultation{Tenant: r.tenant.ID, Prompt: prompt, Input: r.input})
	if err != nil {
		r.facts.AgentFailed = true
		r.errMsg = err.Error()
		if errors.Is(err, agent.ErrUnavailable) {
			r.reason = fmt.Sprintf("Failed to initialize agent: %s. Please check tool configurations.", err)
		} else {
			r.reason = "Agent error: " + err.Error()
		}
		r.logger.Warn("agent consult failed", "error", err)
		return
	}

	op := agent.Interpret(transcript, r.input)
	r.opinion = &op
	r.facts.AgentApproved = op.Status == types.StatusApproved

	txID, verified := agent.VerifiedTxID(transcript)
	if op.ClaimedTxID != "" && op.ClaimedTxID != txID {
		r.logger.Warn("discarding transaction id not backed by a tool result", "claimed", op.ClaimedTxID)
	}
	if verified {
		r.txID = txID
		r.facts.AgentVerified = true
	} else if agent.PayoutAttempted(transcript) {
		r.logger.Warn("agent called a payout tool without a verifiable result")
	}
}

func (s *Service) reconcile(r *run) {
	if r.opinion == nil {
		return
	}
	switch {
	case !r.facts.AgentApproved:
		r.reason = firstNonEmpty(r.opinion.Reason, "Claim rejected by agent.")
	case r.facts.AgentVerified:
		r.reason = joinReason(r.opinion.Reason, "Payment executed via MCP. Transaction ID: "+r.txID)
	default:
		r.reason = r.opinion.Reason
	}
}

func (s *Service) pay(ctx context.Context, r *run) {
	base := r.reason
	if s.payer == nil {
		r.facts.PayoutFailed = true
		r.errMsg = ErrPaymentsNotConfigured.Error()
		r.reason = joinReason(base, "Failed to execute payment: "+r.errMsg)
		return
	}

	out, err := s.payer.Pay(ctx, r.tenant, payout.Request{Recipient: r.recipient, Amount: r.amount, Purpose: r.purpose})
	switch {
	case err != nil:
		r.facts.PayoutFailed = true
		r.errMsg = err.Error()
		r.reason = joinReason(base, "Failed to execute payment: "+err.Error())
		r.logger.Warn("payout failed", "error", err)
	case out.Verified:
		r.facts.PayoutVerified = true
		r.txID = out.TxID
		r.reason = joinReason(base, "Payment executed via MCP. Transaction ID: "+out.TxID)
		r.logger.Info("payout executed", "tool", out.Tool, "attempts", out.Attempts, "tx_id", out.TxID)
	default:
		r.reason = joinReason(base, "Payment executed via MCP (transaction ID pending verification).")
		r.logger.Warn("payout accepted without verifiable transaction id", "tool", out.Tool, "result", out.Result.Kind.String())
	}
}

func (s *Service) record(r *run) (types.AgentResponse, error) {
	now := s.now().UTC()
	status := statusFor(r.terminal)

	resp := types.AgentResponse{
		Status:    status,
		Amount:    r.amount,
		Purpose:   r.purpose,
		Recipient: r.recipient,
		Reason:    r.reason,
		TxID:      r.txID,
		Error:     r.errMsg,
		TraceID:   r.traceID,
		ClaimID:   r.claim.ClaimID,
	}
	if r.eval != nil {
		confidence := r.eval.Confidence()
		resp.Decision = r.eval.Decision()
		resp.Confidence = &confidence
		resp.Explanations = r.eval.Explanations()
	} else {
		confidence := 1.0
		resp.Decision = types.DecisionDeny
		resp.Confidence = &confidence
		resp.Explanations = r.custom.Explanations()
	}

	entry := types.AuditEntry{
		Timestamp:      now.Format(time.RFC3339Nano),
		OrganizationID: r.tenant.ID,
		Status:         status,
		Amount:         r.amount,
		Purpose:        r.purpose,
		Recipient:      r.recipient,
		Reason:         r.reason,
		TxID:           r.txID,
		Error:          r.errMsg,
	}

	rec, err := decision.BuildDecision(decision.Input{
		TraceID:        r.traceID,
		OrganizationID: r.tenant.ID,
		ClaimID:        r.claim.ClaimID,
		Amount:         r.amount,
		Recipient:      r.recipient,
		Policy:         r.policy,
		Rules:          r.eval,
		Custom:         r.custom,
		Deferred:       r.deferred,
		Status:         status,
		TxID:           r.txID,
		CreatedAt:      now.Format(time.RFC3339),
	})
	if err != nil {
		return s.appendOnly(r, resp, entry, err)
	}
	resp.DecisionID = rec.DecisionID

	store, ok := s.ledger.(ledger.Store)
	if !ok {
		return s.appendOnly(r, resp, entry, nil)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return s.appendOnly(r, resp, entry, err)
	}
	var event *ledger.OutboxRecord
	if s.webhooks {
		evt, err := webhook.NewClaimDecided(r.tenant.ID, resp, entry, now)
		if err != nil {
			r.logger.Warn("build webhook event", "error", err)
		} else {
			event = &evt
		}
	}

	err = store.WithTx(func(tx ledger.Tx) error {
		if err := tx.AddEntry(entry); err != nil {
			return err
		}
		if err := tx.PutDecision(ledger.DecisionRecord{
			DecisionID: rec.DecisionID,
			TraceID:    r.traceID,
			PolicyHash: rec.Policy.PolicyHash,
			Verdict:    string(rec.Verdict),
			BodyJSON:   body,
			CreatedAt:  rec.CreatedAt,
		}); err != nil {
			return err
		}
		if event != nil {
			return tx.PutOutbox(*event)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("record claim", "error", err, "status", status, "tx_id", r.txID)
		return resp, fmt.Errorf("%w: %w", ErrRecord, err)
	}
	r.logger.Info("claim decided", "status", status, "amount", r.amount, "decision_id", rec.DecisionID)
	return resp, nil
}

// appendOnly writes just the audit entry, for ledgers that keep nothing else
// or when the decision record could not be built.
func (s *Service) appendOnly(r *run, resp types.AgentResponse, entry types.AuditEntry, cause error) (types.AgentResponse, error) {
	if cause != nil {
		r.logger.Warn("decision record unavailable", "error", cause)
		resp.DecisionID = ""
	}
	if err := s.ledger.AddEntry(entry); err != nil {
		r.logger.Error("record claim", "error", err, "status", resp.Status, "tx_id", r.txID)
		return resp, fmt.Errorf("%w: %w", ErrRecord, err)
	}
	r.logger.Info("claim decided", "status", resp.Status, "amount", r.amount)
	return resp, nil
}

func statusFor(t Terminal) types.Status {
	switch t {
	case TerminalApproved, TerminalNoPayout:
		return types.StatusApproved
	case TerminalReview:
		return types.StatusReview
	default:
		return types.StatusRejected
	}
}

// newTraceID returns "tr_" + base-36 milliseconds + "_" + random suffix.
func (s *Service) newTraceID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return "tr_" + strconv.FormatInt(s.now().UnixMilli(), 36) + "_" + suffix
}

func joinReason(base, suffix string) string {
	return strings.TrimSpace(base + " " + suffix)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
