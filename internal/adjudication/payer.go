package adjudication

import (
	"context"
	"errors"

	"github.com/techmehedi/Autopay-Agent/internal/payout"
)

var ErrPaymentsNotConfigured = errors.New("payment provider not configured")

// Payer makes the single transfer for an approved claim.
type Payer interface {
	Pay(ctx context.Context, tenant TenantConfig, req payout.Request) (payout.Outcome, error)
}

// SessionPayer pays through cached provider sessions, using the tenant's
// credentials when it has its own and Default otherwise.
type SessionPayer struct {
	Sessions *payout.Sessions
	Default  payout.MCPConfig
	Options  payout.Options
}

func (p *SessionPayer) Pay(ctx context.Context, tenant TenantConfig, req payout.Request) (payout.Outcome, error) {
	cfg := tenant.Payments
	if cfg.URL == "" {
		cfg = p.Default
	}
	if cfg.URL == "" || p.Sessions == nil {
		return payout.Outcome{}, ErrPaymentsNotConfigured
	}

	provider, err := p.Sessions.Get(ctx, cfg)
	if err != nil {
		return payout.Outcome{}, err
	}
	out, err := payout.NewExecutor(provider, p.Options).Execute(ctx, req)
	if errors.Is(err, payout.ErrListTools) {
		// The session may be stale; the next claim dials a fresh one.
		p.Sessions.Invalidate(cfg)
	}
	return out, err
}
