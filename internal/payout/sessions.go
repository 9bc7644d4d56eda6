package payout

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/techmehedi/Autopay-Agent/internal/crypto"
)

// DialFunc opens a provider for one set of credentials.
type DialFunc func(ctx context.Context, cfg MCPConfig) (Provider, error)

// Sessions caches one provider per credential set. Concurrent first use of
// the same credentials dials once.
type Sessions struct {
	dial DialFunc

	mu        sync.Mutex
	providers map[string]Provider
	group     singleflight.Group
}

func NewSessions(dial DialFunc) *Sessions {
	return &Sessions{dial: dial, providers: make(map[string]Provider)}
}

// sessionKey identifies credentials without holding the secret itself.
func sessionKey(cfg MCPConfig) string {
	return cfg.URL + "|" + cfg.ClientID + "|" + crypto.DigestHex([]byte(cfg.ClientSecret))
}

func (s *Sessions) Get(ctx context.Context, cfg MCPConfig) (Provider, error) {
	key := sessionKey(cfg)
	s.mu.Lock()
	p, ok := s.providers[key]
	s.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.Lock()
		if p, ok := s.providers[key]; ok {
			s.mu.Unlock()
			return p, nil
		}
		s.mu.Unlock()

		p, err := s.dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.providers[key] = p
		s.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Invalidate drops and closes the cached provider for cfg, if any.
func (s *Sessions) Invalidate(cfg MCPConfig) {
	key := sessionKey(cfg)
	s.mu.Lock()
	p, ok := s.providers[key]
	delete(s.providers, key)
	s.mu.Unlock()
	if c, isCloser := p.(io.Closer); ok && isCloser {
		_ = c.Close()
	}
}

func (s *Sessions) Close() error {
	s.mu.Lock()
	providers := s.providers
	s.providers = make(map[string]Provider)
	s.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
