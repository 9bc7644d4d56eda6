package sqlstore

import (
	"context"
	"database/sql"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/techmehedi/Autopay-Agent/internal/ledger"
	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Durable appends: every commit is synced before returning.
	if _, err := db.Exec("PRAGMA synchronous = FULL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db, logger: slog.Default().With("component", "ledger_sqlite")}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) AddEntry(entry types.AuditEntry) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.AddEntry(entry) })
}

const selectEntries = `SELECT timestamp, organization_id, status, amount_micros, amount, purpose, recipient, reason, tx_id, error FROM audit_entries ORDER BY seq ASC`

func (s *Store) GetAllEntries() []types.AuditEntry {
	rows, err := s.db.Query(selectEntries)
	if err != nil {
		s.logger.Warn("read audit entries", "error", err)
		return []types.AuditEntry{}
	}
	defer rows.Close()

	out := []types.AuditEntry{}
	for rows.Next() {
		var (
			e                                    types.AuditEntry
			status                               string
			micros                               int64
			amount                               sql.NullFloat64
			org, recipient, reason, txID, errMsg sql.NullString
		)
		if err := rows.Scan(&e.Timestamp, &org, &status, &micros, &amount, &e.Purpose, &recipient, &reason, &txID, &errMsg); err != nil {
			s.logger.Warn("scan audit entry", "error", err)
			return []types.AuditEntry{}
		}
		e.Status = types.Status(status)
		// Rows written before the amount column only have micro-units.
		e.Amount = money.FromMicros(micros)
		if amount.Valid {
			e.Amount = amount.Float64
		}
		e.OrganizationID, e.Recipient, e.Reason, e.TxID, e.Error = org.String, recipient.String, reason.String, txID.String, errMsg.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("iterate audit entries", "error", err)
		return []types.AuditEntry{}
	}
	return out
}

func (s *Store) GetDailyTotal(date string) float64 {
	var micros int64
	row := s.db.QueryRow(`SELECT COALESCE(SUM(amount_micros), 0) FROM audit_entries WHERE entry_date = ? AND status = ?`, date, string(types.StatusApproved))
	if err := row.Scan(&micros); err != nil {
		s.logger.Warn("daily total", "date", date, "error", err)
		return 0
	}
	return money.FromMicros(micros)
}

// GetTenantDailyTotal counts rows without an organization id toward
// ledger.UnscopedTenant.
func (s *Store) GetTenantDailyTotal(tenant, date string) float64 {
	var micros int64
	row := s.db.QueryRow(`SELECT COALESCE(SUM(amount_micros), 0) FROM audit_entries WHERE COALESCE(organization_id, 'default') = ? AND entry_date = ? AND status = ?`, tenant, date, string(types.StatusApproved))
	if err := row.Scan(&micros); err != nil {
		s.logger.Warn("tenant daily total", "tenant", tenant, "date", date, "error", err)
		return 0
	}
	return money.FromMicros(micros)
}

func (s *Store) PutDecision(decision ledger.DecisionRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutDecision(decision) })
}

func (s *Store) GetDecision(decisionID string) (ledger.DecisionRecord, bool) {
	var rec ledger.DecisionRecord
	var body string
	row := s.db.QueryRow(`SELECT decision_id, trace_id, policy_hash, verdict, body_json, created_at FROM decisions WHERE decision_id = ?`, decisionID)
	if err := row.Scan(&rec.DecisionID, &rec.TraceID, &rec.PolicyHash, &rec.Verdict, &body, &rec.CreatedAt); err != nil {
		return ledger.DecisionRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (s *Store) PutPolicyVersion(policy ledger.PolicyVersionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO policy_versions(policy_hash, policy_id, policy_version, policy_yaml, created_at)
VALUES(?,?,?,?,?)
ON CONFLICT(policy_hash) DO NOTHING`,
		policy.PolicyHash, policy.PolicyID, policy.PolicyVersion, policy.PolicyYAML, policy.CreatedAt,
	)
	return err
}

func (s *Store) GetPolicyVersion(policyHash string) (ledger.PolicyVersionRecord, bool) {
	return s.scanPolicy(s.db.QueryRow(`SELECT policy_hash, policy_id, policy_version, policy_yaml, created_at FROM policy_versions WHERE policy_hash = ?`, policyHash))
}

func (s *Store) GetLatestPolicyVersion(policyID string) (ledger.PolicyVersionRecord, bool) {
	return s.scanPolicy(s.db.QueryRow(`SELECT policy_hash, policy_id, policy_version, policy_yaml, created_at FROM policy_versions
WHERE policy_id = ? ORDER BY policy_version DESC LIMIT 1`, policyID))
}

func (s *Store) scanPolicy(row *sql.Row) (ledger.PolicyVersionRecord, bool) {
	var rec ledger.PolicyVersionRecord
	if err := row.Scan(&rec.PolicyHash, &rec.PolicyID, &rec.PolicyVersion, &rec.PolicyYAML, &rec.CreatedAt); err != nil {
		return ledger.PolicyVersionRecord{}, false
	}
	return rec, true
}

func (s *Store) PutOutbox(rec ledger.OutboxRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutOutbox(rec) })
}

const selectOutbox = `SELECT event_id, event_type, payload_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at FROM webhook_outbox`

func (s *Store) GetOutbox(eventID string) (ledger.OutboxRecord, bool) {
	rec, err := scanOutbox(s.db.QueryRow(selectOutbox+` WHERE event_id = ?`, eventID))
	if err != nil {
		return ledger.OutboxRecord{}, false
	}
	return rec, true
}

func (s *Store) ListOutboxDue(now string, limit int) ([]ledger.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(selectOutbox+`
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY created_at ASC
LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.OutboxRecord{}
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row scanner) (ledger.OutboxRecord, error) {
	var rec ledger.OutboxRecord
	var payload string
	if err := row.Scan(&rec.EventID, &rec.EventType, &payload, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.OutboxRecord{}, err
	}
	rec.PayloadJSON = []byte(payload)
	return rec, nil
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) AddEntry(entry types.AuditEntry) error {
	_, err := t.tx.Exec(
		`INSERT INTO audit_entries(timestamp, organization_id, entry_date, status, amount_micros, amount, purpose, recipient, reason, tx_id, error)
VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		entry.Timestamp,
		nullable(entry.OrganizationID),
		entry.Date(),
		string(entry.Status),
		money.ToMicros(entry.Amount),
		entry.Amount,
		entry.Purpose,
		nullable(entry.Recipient),
		nullable(entry.Reason),
		nullable(entry.TxID),
		nullable(entry.Error),
	)
	return err
}

func (t *Tx) PutDecision(decision ledger.DecisionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO decisions(decision_id, trace_id, policy_hash, verdict, body_json, created_at) VALUES(?,?,?,?,?,?) ON CONFLICT(decision_id) DO NOTHING`,
		decision.DecisionID, decision.TraceID, decision.PolicyHash, decision.Verdict, string(decision.BodyJSON), decision.CreatedAt,
	)
	return err
}

func (t *Tx) PutOutbox(rec ledger.OutboxRecord) error {
	_, err := t.tx.Exec(
		`INSERT INTO webhook_outbox(event_id, event_type, payload_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(event_id) DO UPDATE SET
  status=excluded.status,
  attempt_count=excluded.attempt_count,
  next_attempt_at=excluded.next_attempt_at,
  last_error=excluded.last_error,
  sent_at=excluded.sent_at,
  updated_at=excluded.updated_at`,
		rec.EventID,
		rec.EventType,
		string(rec.PayloadJSON),
		rec.Status,
		rec.AttemptCount,
		rec.NextAttemptAt,
		rec.LastError,
		rec.SentAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
