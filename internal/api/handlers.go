package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/techmehedi/Autopay-Agent/internal/adjudication"
	"github.com/techmehedi/Autopay-Agent/internal/auth"
	"github.com/techmehedi/Autopay-Agent/internal/decision"
	"github.com/techmehedi/Autopay-Agent/internal/ledger"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
	"github.com/techmehedi/Autopay-Agent/pkg/types"
)

const (
	TenantHeader = "X-Organization-Id"

	maxBodyBytes = 1 << 20
)

type ClaimService interface {
	Adjudicate(ctx context.Context, tenant adjudication.TenantConfig, claim types.Claim) (types.AgentResponse, error)
}

type TenantResolver interface {
	Resolve(id string) adjudication.TenantConfig
}

type PolicyStore interface {
	Get(ctx context.Context, tenant string) policy.Policy
	Set(ctx context.Context, tenant string, u policy.Update) (policy.Policy, error)
}

type DecisionReader interface {
	GetDecision(decisionID string) (ledger.DecisionRecord, bool)
}

// Handler serves the claim API. A nil Auth leaves the /v1 routes open.
type Handler struct {
	Auth      auth.Authenticator
	Claims    ClaimService
	Tenants   TenantResolver
	Policies  PolicyStore
	Audit     ledger.AuditLog
	Decisions DecisionReader
	Logger    *slog.Logger
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	if h.Claims == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "claim service not configured"})
		return
	}

	var claim types.Claim
	if err := decodeJSON(r, &claim); err != nil {
		writeJSON(w, http.StatusBadRequest, rejection("Invalid JSON body."))
		return
	}
	org, ok := tenantFor(w, r, claim.OrganizationID)
	if !ok {
		return
	}
	claim.OrganizationID = org

	var tenant adjudication.TenantConfig
	if h.Tenants != nil {
		tenant = h.Tenants.Resolve(claim.OrganizationID)
	} else {
		tenant.ID = claim.OrganizationID
	}

	resp, err := h.Claims.Adjudicate(r.Context(), tenant, claim)
	switch {
	case errors.Is(err, adjudication.ErrInvalidClaim):
		writeJSON(w, http.StatusBadRequest, rejection(invalidClaimReason(err)))
	case err != nil:
		h.logger().Error("claim not recorded", "tenant", tenant.ID, "trace_id", resp.TraceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "audit log not configured"})
		return
	}
	org, ok := tenantFor(w, r, "")
	if !ok {
		return
	}
	entries := h.Audit.GetAllEntries()
	if org != "" {
		entries = ledger.ForTenant(entries, org)
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := ledger.WriteCSV(w, entries); err != nil {
			h.logger().Warn("audit csv write failed", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if h.Policies == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "policy store not configured"})
		return
	}
	org, ok := tenantFor(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Policies.Get(r.Context(), org))
}

func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	if h.Policies == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "policy store not configured"})
		return
	}

	var u policy.Update
	if err := decodeJSON(r, &u); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && strings.HasPrefix(typeErr.Field, "whitelistedContacts") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "whitelistedContacts must be an array of strings"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	org, ok := tenantFor(w, r, "")
	if !ok {
		return
	}
	updated, err := h.Policies.Set(r.Context(), org, u)
	if errors.Is(err, policy.ErrInvalidPolicy) {
		_, msg, _ := strings.Cut(err.Error(), ": ")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) Decision(w http.ResponseWriter, r *http.Request) {
	if h.Decisions == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "decision store not configured"})
		return
	}

	org, ok := tenantFor(w, r, "")
	if !ok {
		return
	}
	decisionID := chi.URLParam(r, "decisionID")
	rec, ok := h.Decisions.GetDecision(decisionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "decision not found"})
		return
	}

	var record types.DecisionRecord
	if err := json.Unmarshal(rec.BodyJSON, &record); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "decision record unreadable"})
		return
	}
	// Another organization's decision reads as missing.
	if org != "" && record.OrganizationID != org {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "decision not found"})
		return
	}
	resp := map[string]any{"decision": record, "verified": true}
	if err := decision.Verify(record); err != nil {
		resp["verified"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth != nil {
			caller, err := h.Auth.Authenticate(r)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
				return
			}
			r = r.WithContext(auth.WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

const missingFieldsReason = `Missing required fields: provide either "text" or both "amount" and "purpose".`

func invalidClaimReason(err error) string {
	if errors.Is(err, adjudication.ErrMissingFields) {
		return missingFieldsReason
	}
	_, detail, found := strings.Cut(err.Error(), ": ")
	if !found {
		return "Invalid claim."
	}
	return "Invalid claim: " + detail + "."
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// tenantFor picks the organization a request acts for: the explicit value,
// then the tenant header or query, then the caller's own tenant. Callers
// pinned to a tenant get 403 for any other organization.
func tenantFor(w http.ResponseWriter, r *http.Request, explicit string) (string, bool) {
	org := strings.TrimSpace(explicit)
	if org == "" {
		org = tenantOf(r)
	}
	caller, _ := auth.CallerFrom(r.Context())
	if caller.Tenant == "" {
		return org, true
	}
	if org != "" && org != caller.Tenant {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "token not valid for organization " + org})
		return "", false
	}
	return caller.Tenant, true
}

func tenantOf(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(TenantHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("organization_id"))
}

func rejection(reason string) types.AgentResponse {
	return types.AgentResponse{Status: types.StatusRejected, Reason: reason}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
