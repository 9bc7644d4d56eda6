package adjudication

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/payout"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
)

func TestOverridesApply(t *testing.T) {
	base := policy.Policy{WhitelistedContacts: []string{"a", "b"}, DefaultContact: "a", PerTxnMax: 0.5, DailyMax: 3}
	perTxn, daily, bad := 2.0, 10.0, math.Inf(1)

	got := Overrides{DefaultContact: "b", PerTxnMax: &perTxn, DailyMax: &daily}.Apply(base)
	assert.Equal(t, "b", got.DefaultContact)
	assert.InDelta(t, 2.0, got.PerTxnMax, 1e-9)
	assert.InDelta(t, 10.0, got.DailyMax, 1e-9)

	got = Overrides{DefaultContact: "stranger", PerTxnMax: &bad}.Apply(base)
	assert.Equal(t, "a", got.DefaultContact, "non-whitelisted defaults are ignored")
	assert.InDelta(t, 0.5, got.PerTxnMax, 1e-9)
}

func TestDirectoryResolve(t *testing.T) {
	dir := NewDirectory([]custompolicy.CustomPolicy{
		{ID: "global", Name: "Global", Active: true},
		{ID: "acme-only", Name: "Acme", OrganizationID: "acme", Active: true},
		{ID: "other", Name: "Other", OrganizationID: "globex", Active: true},
	})
	dir.Register(TenantConfig{ID: "acme", Payments: payout.MCPConfig{URL: "https://pay.acme.test/mcp"}})

	acme := dir.Resolve("acme")
	assert.Equal(t, "acme", acme.ID)
	assert.Equal(t, "https://pay.acme.test/mcp", acme.Payments.URL)
	assert.Equal(t, []string{"global", "acme-only"}, ids(acme.CustomPolicies))

	def := dir.Resolve("  ")
	assert.Equal(t, policy.DefaultTenant, def.ID)
	assert.Equal(t, []string{"global"}, ids(def.CustomPolicies))

	dir.SetPolicies(nil)
	assert.Empty(t, dir.Resolve("acme").CustomPolicies)
}

func ids(policies []custompolicy.CustomPolicy) []string {
	out := make([]string, 0, len(policies))
	for _, p := range policies {
		out = append(out, p.ID)
	}
	return out
}

type stubProvider struct {
	tools []payout.Tool
	err   error
}

func (p stubProvider) ListTools(context.Context) ([]payout.Tool, error) { return p.tools, p.err }

func TestSessionPayer(t *testing.T) {
	var dials atomic.Int32
	var dialed []string
	sessions := payout.NewSessions(func(_ context.Context, cfg payout.MCPConfig) (payout.Provider, error) {
		dials.Add(1)
		dialed = append(dialed, cfg.URL)
		if cfg.URL == "https://down.test" {
			return stubProvider{err: errors.New("session expired")}, nil
		}
		return stubProvider{tools: []payout.Tool{{
			Name: "send_to_contact",
			Invoke: func(_ context.Context, params map[string]any) (any, error) {
				return map[string]any{"transactionId": "tx_9"}, nil
			},
		}}}, nil
	})
	payer := &SessionPayer{Sessions: sessions, Default: payout.MCPConfig{URL: "https://pay.test"}}
	req := payout.Request{Recipient: "alice", Amount: 0.3, Purpose: "parking"}

	out, err := payer.Pay(context.Background(), TenantConfig{}, req)
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, "tx_9", out.TxID)

	_, err = payer.Pay(context.Background(), TenantConfig{}, req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), dials.Load(), "sessions are reused")

	tenant := TenantConfig{Payments: payout.MCPConfig{URL: "https://down.test"}}
	_, err = payer.Pay(context.Background(), tenant, req)
	require.ErrorIs(t, err, payout.ErrListTools)
	_, err = payer.Pay(context.Background(), tenant, req)
	require.Error(t, err)
	assert.Equal(t, []string{"https://pay.test", "https://down.test", "https://down.test"}, dialed, "stale sessions are redialed")

	_, err = (&SessionPayer{Sessions: sessions}).Pay(context.Background(), TenantConfig{}, req)
	assert.ErrorIs(t, err, ErrPaymentsNotConfigured)
}
