package ledger

import "github.com/techmehedi/Autopay-Agent/pkg/types"

// AuditLog is the append-only record of finalized claims. Reads never fail:
// a missing or unreadable backing store reads as empty.
type AuditLog interface {
	AddEntry(entry types.AuditEntry) error
	GetAllEntries() []types.AuditEntry
	// GetDailyTotal sums approved amounts whose timestamp date equals date (YYYY-MM-DD).
	GetDailyTotal(date string) float64
	// GetTenantDailyTotal is GetDailyTotal restricted to one organization.
	GetTenantDailyTotal(tenant, date string) float64
}

// UnscopedTenant owns entries recorded without an organization id.
const UnscopedTenant = "default"

// EntryTenant returns the organization an entry belongs to.
func EntryTenant(e types.AuditEntry) string {
	if e.OrganizationID == "" {
		return UnscopedTenant
	}
	return e.OrganizationID
}

// ForTenant keeps the entries that belong to tenant, in order.
func ForTenant(entries []types.AuditEntry, tenant string) []types.AuditEntry {
	out := []types.AuditEntry{}
	for _, e := range entries {
		if EntryTenant(e) == tenant {
			out = append(out, e)
		}
	}
	return out
}

// Store is a full ledger: audit log plus the records that reference it.
type Store interface {
	AuditLog

	WithTx(fn func(Tx) error) error

	PutDecision(decision DecisionRecord) error
	GetDecision(decisionID string) (DecisionRecord, bool)

	PutPolicyVersion(policy PolicyVersionRecord) error
	GetPolicyVersion(policyHash string) (PolicyVersionRecord, bool)
	GetLatestPolicyVersion(policyID string) (PolicyVersionRecord, bool)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(eventID string) (OutboxRecord, bool)
	ListOutboxDue(now string, limit int) ([]OutboxRecord, error)
}

// Tx groups the writes that finalize one claim.
type Tx interface {
	AddEntry(entry types.AuditEntry) error
	PutDecision(decision DecisionRecord) error
	PutOutbox(rec OutboxRecord) error
}

type DecisionRecord struct {
	DecisionID string
	TraceID    string
	PolicyHash string
	Verdict    string
	BodyJSON   []byte
	CreatedAt  string
}

type PolicyVersionRecord struct {
	PolicyHash    string
	PolicyID      string
	PolicyVersion string
	PolicyYAML    string
	CreatedAt     string
}

type OutboxRecord struct {
	EventID       string
	EventType     string
	PayloadJSON   []byte
	Status        string // pending | sent
	AttemptCount  int
	NextAttemptAt string
	LastError     *string
	SentAt        *string
	CreatedAt     string
	UpdatedAt     string
}
