package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/techmehedi/Autopay-Agent/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := runFn(ctx, os.Args[1:], environMap(os.Environ()), listenAndServe, newApp, logger); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type listenFn func(ctx context.Context, server *http.Server) error
type appFactory func(ctx context.Context, cfg config.Config, environ map[string]string, logger *slog.Logger) (*app, error)

func run(ctx context.Context, args []string, environ map[string]string, listen listenFn, factory appFactory, logger *slog.Logger) error {
	fs := flag.NewFlagSet("autopay-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to autopay config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = environ["AUTOPAY_CONFIG_PATH"]
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg, environ); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := factory(ctx, cfg, environ, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	workerCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range a.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w(workerCtx)
		}()
	}
	defer wg.Wait()
	defer cancel()

	logger.Info("autopay-gateway listening", "addr", cfg.ListenAddr, "version", version)
	if err := listen(ctx, a.server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// listenAndServe serves until ctx is done, then drains in-flight requests.
func listenAndServe(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func environMap(kv []string) map[string]string {
	out := make(map[string]string, len(kv))
	for _, pair := range kv {
		if k, v, ok := strings.Cut(pair, "="); ok {
			out[k] = v
		}
	}
	return out
}
