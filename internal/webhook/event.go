// Package webhook delivers claim.decided events to a subscriber through the
// ledger's outbox, so an event is recorded in the same transaction as the
// claim it describes and delivered at least once afterwards.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/techmehedi/Autopay-Agent/internal/ledger"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

const EventClaimDecided = "claim.decided"

type Event struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	CreatedAt      string           `json:"createdAt"`
	OrganizationID string           `json:"organizationId,omitempty"`
	TraceID        string           `json:"traceId,omitempty"`
	DecisionID     string           `json:"decisionId,omitempty"`
	Data           types.AuditEntry `json:"data"`
}

// NewClaimDecided builds the pending outbox record announcing entry.
func NewClaimDecided(tenant string, resp types.AgentResponse, entry types.AuditEntry, now time.Time) (ledger.OutboxRecord, error) {
	ts := now.UTC().Format(time.RFC3339)
	event := Event{
		ID:             "evt_" + uuid.NewString(),
		Type:           EventClaimDecided,
		CreatedAt:      now.UTC().Format(time.RFC3339Nano),
		OrganizationID: tenant,
		TraceID:        resp.TraceID,
		DecisionID:     resp.DecisionID,
		Data:           entry,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return ledger.OutboxRecord{}, err
	}
	return ledger.OutboxRecord{
		EventID:       event.ID,
		EventType:     event.Type,
		PayloadJSON:   payload,
		Status:        ledger.OutboxStatusPending,
		NextAttemptAt: ts,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}, nil
}
