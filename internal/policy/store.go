package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store resolves the effective policy for a tenant: the persisted document
// merged field by field over the environment seed.
type Store struct {
	seed    Policy
	backend Backend
	cache   Cache
	logger  *slog.Logger

	// writes serializes read-modify-write updates within the process.
	writes sync.Mutex
}

// NewStore builds a store. A nil backend keeps policies only in the cache;
// a nil cache uses a MemoryCache.
func NewStore(seed Policy, backend Backend, cache Cache, logger *slog.Logger) *Store {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	seed.normalize()
	return &Store{seed: seed, backend: backend, cache: cache, logger: logger.With("component", "policy_store")}
}

func tenantKey(tenant string) string {
	if t := strings.TrimSpace(tenant); t != "" {
		return t
	}
	return DefaultTenant
}

func (s *Store) Get(ctx context.Context, tenant string) Policy {
	tenant = tenantKey(tenant)
	if p, ok := s.cache.Get(ctx, tenant); ok {
		return p
	}
	p := s.load(ctx, tenant)
	s.cache.Set(ctx, tenant, p)
	return p
}

func (s *Store) load(ctx context.Context, tenant string) Policy {
	if s.backend == nil {
		return s.seed.clone()
	}
	data, err := s.backend.Load(ctx, tenant)
	if err != nil {
		s.logger.Warn("policy load failed; using defaults", "tenant", tenant, "error", err)
		return s.seed.clone()
	}
	if len(data) == 0 {
		return s.seed.clone()
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("policy document malformed; using defaults", "tenant", tenant, "error", err)
		return s.seed.clone()
	}
	return doc.mergeOver(s.seed)
}

// Set applies a partial update, persists it and replaces the cached policy.
func (s *Store) Set(ctx context.Context, tenant string, u Update) (Policy, error) {
	if err := u.Validate(); err != nil {
		return Policy{}, err
	}
	tenant = tenantKey(tenant)

	s.writes.Lock()
	defer s.writes.Unlock()

	current := s.Get(ctx, tenant)
	if s.backend != nil {
		current = s.load(ctx, tenant)
	}
	next := u.apply(current)
	if s.backend != nil {
		data, err := yaml.Marshal(next)
		if err != nil {
			return Policy{}, fmt.Errorf("encode policy: %w", err)
		}
		if err := s.backend.Save(ctx, tenant, data); err != nil {
			return Policy{}, fmt.Errorf("persist policy: %w", err)
		}
	}
	s.cache.Set(ctx, tenant, next)
	s.logger.Info("policy updated", "tenant", tenant, "policy_hash", next.Hash())
	return next.clone(), nil
}

func (s *Store) DefaultRecipient(ctx context.Context, tenant string) string {
	return s.Get(ctx, tenant).DefaultRecipient()
}
