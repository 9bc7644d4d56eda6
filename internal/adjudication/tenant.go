package adjudication

import (
	"slices"
	"strings"
	"sync"

	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/money"
	"github.com/techmehedi/Autopay-Agent/internal/payout"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
)

// Overrides adjust a tenant's stored policy for one evaluation. A default
// contact that is not whitelisted is ignored.
type Overrides struct {
	DefaultContact string   `yaml:"default_contact"`
	PerTxnMax      *float64 `yaml:"per_txn_max"`
	DailyMax       *float64 `yaml:"daily_max"`
}

func (o Overrides) Apply(p policy.Policy) policy.Policy {
	if o.DefaultContact != "" && p.IsWhitelisted(o.DefaultContact) {
		p.DefaultContact = o.DefaultContact
	}
	if o.PerTxnMax != nil && money.Finite(*o.PerTxnMax) && *o.PerTxnMax >= 0 {
		p.PerTxnMax = *o.PerTxnMax
	}
	if o.DailyMax != nil && money.Finite(*o.DailyMax) && *o.DailyMax >= 0 {
		p.DailyMax = *o.DailyMax
	}
	return p
}

// TenantConfig is everything about one organization an evaluation needs.
// It is passed explicitly; nothing tenant-scoped lives in globals.
type TenantConfig struct {
	ID             string
	Overrides      Overrides
	CustomPolicies []custompolicy.CustomPolicy
	// Payments is empty when the tenant uses the deployment's provider.
	Payments payout.MCPConfig
}

// Directory resolves tenant ids to configurations. Custom policies are
// loaded once for the deployment and filtered per tenant.
type Directory struct {
	mu       sync.RWMutex
	policies []custompolicy.CustomPolicy
	tenants  map[string]TenantConfig
}

func NewDirectory(policies []custompolicy.CustomPolicy) *Directory {
	return &Directory{policies: policies, tenants: make(map[string]TenantConfig)}
}

// Register sets the overrides and payment credentials of one tenant.
func (d *Directory) Register(cfg TenantConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[tenantKey(cfg.ID)] = cfg
}

// SetPolicies replaces the deployment's custom policies.
func (d *Directory) SetPolicies(policies []custompolicy.CustomPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policies = policies
}

func (d *Directory) Resolve(id string) TenantConfig {
	key := tenantKey(id)
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg := d.tenants[key]
	cfg.ID = key
	cfg.CustomPolicies = slices.Concat(cfg.CustomPolicies, custompolicy.ForTenant(d.policies, key))
	return cfg
}

func tenantKey(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return policy.DefaultTenant
	}
	return id
}
