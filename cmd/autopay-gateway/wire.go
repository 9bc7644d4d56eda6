package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/techmehedi/Autopay-Agent/internal/adjudication"
	"github.com/techmehedi/Autopay-Agent/internal/agent"
	"github.com/techmehedi/Autopay-Agent/internal/api"
	"github.com/techmehedi/Autopay-Agent/internal/auth"
	"github.com/techmehedi/Autopay-Agent/internal/config"
	"github.com/techmehedi/Autopay-Agent/internal/custompolicy"
	"github.com/techmehedi/Autopay-Agent/internal/ledger"
	"github.com/techmehedi/Autopay-Agent/internal/ledger/pgstore"
	"github.com/techmehedi/Autopay-Agent/internal/ledger/sqlstore"
	"github.com/techmehedi/Autopay-Agent/internal/payout"
	"github.com/techmehedi/Autopay-Agent/internal/policy"
	"github.com/techmehedi/Autopay-Agent/internal/webhook"
)

// app is a wired gateway: the HTTP server, the background loops it needs and
// the resources to release on shutdown.
type app struct {
	server  *http.Server
	workers []func(ctx context.Context)
	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newApp(ctx context.Context, cfg config.Config, environ map[string]string, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		_ = a.Close()
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fail(fmt.Errorf("timezone: %w", err))
	}

	audit, closer, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	policies, err := openPolicies(ctx, cfg, environ, audit, logger, a)
	if err != nil {
		return fail(err)
	}

	var custom []custompolicy.CustomPolicy
	if cfg.CustomPoliciesPath != "" {
		custom, err = custompolicy.LoadFile(cfg.CustomPoliciesPath)
		if err != nil {
			return fail(err)
		}
		logger.Info("custom policies loaded", "count", len(custom), "path", cfg.CustomPoliciesPath)
	}
	tenants := adjudication.NewDirectory(custom)
	for _, t := range cfg.Tenants {
		tenants.Register(tenantConfig(t))
	}

	sessions := payout.NewSessions(func(ctx context.Context, c payout.MCPConfig) (payout.Provider, error) {
		p, err := payout.DialMCP(ctx, c, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	a.closers = append(a.closers, sessions)
	payer := &adjudication.SessionPayer{
		Sessions: sessions,
		Default:  mcpConfig(cfg.Payments.MCPURL, cfg.Payments.TokenURL, cfg.Payments.ClientID, cfg.Payments.ClientSecret),
		Options: payout.Options{
			ServerName: cfg.Payments.ServerName,
			Settings: payout.Settings{
				Currency: cfg.Payments.Currency,
				Chain:    cfg.Payments.Chain,
				Network:  cfg.Payments.Network,
			},
			Logger: logger,
		},
	}

	opts := adjudication.Options{
		Policies: policies,
		Ledger:   audit,
		Payer:    payer,
		Webhooks: cfg.Webhook.Enabled,
		Location: loc,
		Logger:   logger,
	}
	if cfg.Agent.Enabled() {
		client := agent.NewResponsesClient(agent.ResponsesConfig{
			URL:        cfg.Agent.ResponsesURL,
			APIKey:     cfg.Agent.APIKey,
			Model:      cfg.Agent.Model,
			HTTPClient: &http.Client{Timeout: cfg.Agent.Timeout},
		})
		opts.Parser = client
		opts.Consultant = client
	} else {
		logger.Info("agent not configured; text claims use the amount extractor")
	}

	svc, err := adjudication.NewService(opts)
	if err != nil {
		return fail(err)
	}

	if cfg.Webhook.Enabled {
		store, ok := audit.(ledger.Store)
		if !ok {
			return fail(errors.New("webhooks need a sql ledger"))
		}
		poster := webhook.NewHTTPPoster(cfg.Webhook.URL, cfg.Webhook.Secret, nil)
		interval := cfg.Webhook.Interval
		a.workers = append(a.workers, func(ctx context.Context) {
			webhook.RunWorker(ctx, store, poster, interval, logger)
		})
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		a.workers = append(a.workers, limiter.Run)
	}

	h := &api.Handler{
		Claims:   svc,
		Tenants:  tenants,
		Policies: policies,
		Audit:    audit,
		Logger:   logger,
	}
	if store, ok := audit.(ledger.Store); ok {
		h.Decisions = store
	}
	if tokens := apiTokens(cfg); len(tokens) > 0 {
		h.Auth = auth.NewTokenAuthenticator(tokens)
	} else {
		logger.Warn("no API tokens configured; /v1 routes are unauthenticated")
	}

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.AuditLog, io.Closer, error) {
	if cfg.DB.Driver == "" {
		logger.Info("using file audit log", "path", cfg.AuditPath)
		return ledger.NewFileStore(cfg.AuditPath, logger), nil, nil
	}

	driver, err := ledger.ParseDriver(cfg.DB.Driver)
	if err != nil {
		return nil, nil, err
	}
	switch driver {
	case ledger.DBSQLite:
		store, err := sqlstore.OpenSQLite(cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		if err := ledger.MigrateContext(ctx, store.DB(), driver); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate sqlite ledger: %w", err)
		}
		return store, store, nil
	default:
		store, err := pgstore.OpenPostgres(cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		if err := ledger.MigrateContext(ctx, store.DB(), driver); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate postgres ledger: %w", err)
		}
		return store, store, nil
	}
}

// openPolicies persists tenant policies in policy_dir when set, otherwise as
// versions in a sql ledger, otherwise only in memory.
func openPolicies(ctx context.Context, cfg config.Config, environ map[string]string, audit ledger.AuditLog, logger *slog.Logger, a *app) (*policy.Store, error) {
	seed, err := policy.SeedFromEnv(environ)
	if err != nil {
		return nil, fmt.Errorf("policy env: %w", err)
	}

	var backend policy.Backend
	switch vs, ok := audit.(policy.VersionStore); {
	case cfg.PolicyDir != "":
		backend = policy.NewFileBackend(cfg.PolicyDir)
	case ok:
		backend = policy.NewLedgerBackend(vs)
	}

	var cache policy.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, closerFunc(client.Close))
		cache = policy.NewRedisCache(client, cfg.Redis.TTL, logger)
	}
	return policy.NewStore(seed, backend, cache, logger), nil
}

// apiTokens maps the operator dev token and each tenant's own token to a caller.
func apiTokens(cfg config.Config) map[string]auth.Caller {
	tokens := make(map[string]auth.Caller)
	if cfg.DevToken != "" {
		tokens[cfg.DevToken] = auth.Caller{Name: "dev"}
	}
	for _, t := range cfg.Tenants {
		if t.APIToken != "" {
			tokens[t.APIToken] = auth.Caller{Name: t.ID, Tenant: t.ID}
		}
	}
	return tokens
}

func tenantConfig(t config.TenantConfig) adjudication.TenantConfig {
	return adjudication.TenantConfig{
		ID: t.ID,
		Overrides: adjudication.Overrides{
			DefaultContact: t.DefaultContact,
			PerTxnMax:      t.PerTxnMax,
			DailyMax:       t.DailyMax,
		},
		Payments: mcpConfig(t.Payments.MCPURL, t.Payments.TokenURL, t.Payments.ClientID, t.Payments.ClientSecret),
	}
}

func mcpConfig(url, tokenURL, clientID, clientSecret string) payout.MCPConfig {
	return payout.MCPConfig{URL: url, TokenURL: tokenURL, ClientID: clientID, ClientSecret: clientSecret, Version: version}
}
