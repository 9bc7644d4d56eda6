package ledger

import (
	"strconv"
	"sync"

	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

type InMemoryStore struct {
	mu sync.Mutex

	entries   []types.AuditEntry
	decisions map[string]DecisionRecord
	policies  map[string]PolicyVersionRecord
	outbox    map[string]OutboxRecord
	outboxSeq []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		decisions: make(map[string]DecisionRecord),
		policies:  make(map[string]PolicyVersionRecord),
		outbox:    make(map[string]OutboxRecord),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Writes are staged and applied only when fn succeeds.
	staged := &memTx{}
	if err := fn(staged); err != nil {
		return err
	}
	s.entries = append(s.entries, staged.entries...)
	for _, d := range staged.decisions {
		s.decisions[d.DecisionID] = d
	}
	for _, rec := range staged.outbox {
		s.putOutboxLocked(rec)
	}
	return nil
}

type memTx struct {
	entries   []types.AuditEntry
	decisions []DecisionRecord
	outbox    []OutboxRecord
}

func (t *memTx) AddEntry(entry types.AuditEntry) error {
	t.entries = append(t.entries, entry)
	return nil
}

func (t *memTx) PutDecision(decision DecisionRecord) error {
	t.decisions = append(t.decisions, decision)
	return nil
}

func (t *memTx) PutOutbox(rec OutboxRecord) error {
	t.outbox = append(t.outbox, rec)
	return nil
}

func (s *InMemoryStore) AddEntry(entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) GetAllEntries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *InMemoryStore) GetDailyTotal(date string) float64 {
	return DailyTotal(s.GetAllEntries(), date)
}

func (s *InMemoryStore) GetTenantDailyTotal(tenant, date string) float64 {
	return DailyTotal(ForTenant(s.GetAllEntries(), tenant), date)
}

func (s *InMemoryStore) PutDecision(decision DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.decisions[decision.DecisionID]; exists {
		return nil
	}
	s.decisions[decision.DecisionID] = decision
	return nil
}

func (s *InMemoryStore) GetDecision(decisionID string) (DecisionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decision, ok := s.decisions[decisionID]
	return decision, ok
}

func (s *InMemoryStore) PutPolicyVersion(policy PolicyVersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.policies[policy.PolicyHash]; exists {
		return nil
	}
	s.policies[policy.PolicyHash] = policy
	return nil
}

func (s *InMemoryStore) GetPolicyVersion(policyHash string) (PolicyVersionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[policyHash]
	return policy, ok
}

func (s *InMemoryStore) GetLatestPolicyVersion(policyID string) (PolicyVersionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest PolicyVersionRecord
		best   = -1
	)
	for _, rec := range s.policies {
		if rec.PolicyID != policyID {
			continue
		}
		v, err := strconv.Atoi(rec.PolicyVersion)
		if err != nil {
			continue
		}
		if v > best {
			best = v
			latest = rec
		}
	}
	return latest, best >= 0
}

func (s *InMemoryStore) PutOutbox(rec OutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putOutboxLocked(rec)
	return nil
}

func (s *InMemoryStore) putOutboxLocked(rec OutboxRecord) {
	if _, exists := s.outbox[rec.EventID]; !exists {
		s.outboxSeq = append(s.outboxSeq, rec.EventID)
	}
	s.outbox[rec.EventID] = rec
}

func (s *InMemoryStore) GetOutbox(eventID string) (OutboxRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outbox[eventID]
	return rec, ok
}

func (s *InMemoryStore) ListOutboxDue(now string, limit int) ([]OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []OutboxRecord{}
	for _, id := range s.outboxSeq {
		rec := s.outbox[id]
		if rec.Status != OutboxStatusPending || rec.NextAttemptAt > now {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DailyTotal sums approved amounts for date, in micro-units to avoid drift.
func DailyTotal(entries []types.AuditEntry, date string) float64 {
	var micros int64
	for _, e := range entries {
		if e.Status != types.StatusApproved || e.Date() != date {
			continue
		}
		micros = money.AddMicros(micros, money.ToMicros(e.Amount))
	}
	return money.FromMicros(micros)
}

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
)
