package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/haukened/ipguard/internal/firewall/common/clock"
	"github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/config"
	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/gateways/adminapi"
	"github.com/haukened/ipguard/internal/firewall/gateways/httpguard"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/bloom"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/bolt"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/filestore"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/lru"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/redis"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/sqlite"
	"github.com/haukened/ipguard/internal/firewall/services/guard"
)

const (
	version = "0.1.0-dev"
	appName = "ipguardd"

	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// Application holds all the components of the guard daemon.
type Application struct {
	config  *config.AppConfig
	repo    *iplist.Repository
	guard   *guard.Guard
	guardLn net.Listener
	adminLn net.Listener
	guardSv *http.Server
	adminSv *http.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.LokiURL != "" {
		err = log.ConfigureLoki(ctx, cfg.Env, cfg.LogLevel, cfg.LokiURL)
	} else {
		err = log.Configure(cfg.Env, cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}
	defer log.Shutdown()

	log.Info(map[string]any{
		"version":           version,
		"env":               cfg.Env,
		"log_level":         cfg.LogLevel,
		"listen":            cfg.Listen,
		"admin_listen":      cfg.AdminListen,
		"store_driver":      cfg.StoreDriver,
		"enforce_whitelist": cfg.EnforceWhitelist,
		"fail_policy":       cfg.FailPolicy,
		"cache_size":        cfg.CacheSize,
		"cache_ttl":         cfg.CacheTTL.String(),
	}, "Starting "+appName)

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}
	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}

	cache, err := lru.New(cfg.CacheSize, clk)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create membership cache: %w", err)
	}

	repo, err := iplist.NewRepository(iplist.Options{
		Store:        store,
		Cache:        cache,
		Bloom:        bloom.NewFactory(),
		CacheTTL:     cfg.CacheTTL,
		StoreTimeout: cfg.StoreTimeout,
		FailClosed:   cfg.FailsClosed(),
		Source:       cfg.Source,
		Clock:        clk,
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	warmLists(ctx, repo)

	g := guard.New(guard.Options{
		Lists:            repo,
		Logger:           logger,
		EnforceWhitelist: cfg.EnforceWhitelist,
	})

	guardHandler, err := buildGuardHandler(cfg, g, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	adminHandler := buildAdminHandler(cfg, repo, g, logger)

	guardLn, err := listen(cfg.Listen, cfg.MaxConns)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	adminLn, err := listen(cfg.AdminListen, cfg.MaxConns)
	if err != nil {
		_ = guardLn.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.AdminListen, err)
	}

	return &Application{
		config:  cfg,
		repo:    repo,
		guard:   g,
		guardLn: guardLn,
		adminLn: adminLn,
		guardSv: &http.Server{Handler: guardHandler, ReadHeaderTimeout: defaultReadHeaderTimeout},
		adminSv: &http.Server{Handler: adminHandler, ReadHeaderTimeout: defaultReadHeaderTimeout},
	}, nil
}

// openStore creates the durable backend selected by cfg.StoreDriver.
func openStore(ctx context.Context, cfg *config.AppConfig) (iplist.Store, error) {
	if cfg.StoreDriver != "redis" {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o750); err != nil {
			return nil, err
		}
	}
	switch cfg.StoreDriver {
	case "bolt":
		return bolt.New(cfg.StorePath)
	case "sqlite":
		return sqlite.New(cfg.StorePath)
	case "file":
		return filestore.New(cfg.StorePath)
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		return redis.New(pingCtx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// warmLists loads both lists so a later store outage has a snapshot to
// fall back on. Failures are logged, not fatal.
func warmLists(ctx context.Context, repo *iplist.Repository) {
	for _, l := range domain.ListKinds {
		entries, err := repo.Report(ctx, l)
		if err != nil {
			log.Warn(map[string]any{"list": l.String(), "error": err}, "Could not preload list")
			continue
		}
		log.Info(map[string]any{"list": l.String(), "entries": len(entries)}, "List loaded")
	}
}

// buildGuardHandler proxies allowed requests to cfg.Upstream, or serves the
// forward-auth endpoint at /auth when no upstream is configured.
func buildGuardHandler(cfg *config.AppConfig, g *guard.Guard, logger log.Logger) (http.Handler, error) {
	h := httpguard.New(httpguard.Options{
		Guard:         g,
		Logger:        logger,
		BlockCode:     cfg.BlockCode,
		BlockMessage:  cfg.BlockMessage,
		RedirectTo:    cfg.RedirectNonWhitelistedTo,
		LogBlocked:    cfg.EnableLog,
		TrustedHeader: cfg.TrustedHeader,
	})

	r := mux.NewRouter()
	if cfg.Upstream == "" {
		r.Handle("/auth", h)
		log.Info(map[string]any{"path": "/auth"}, "Serving forward-auth only")
		return r, nil
	}

	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", cfg.Upstream, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logger.Error(map[string]any{"upstream": cfg.Upstream, "path": req.URL.Path, "error": err}, "Upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}
	r.PathPrefix("/").Handler(h.Middleware(proxy))
	log.Info(map[string]any{"upstream": cfg.Upstream}, "Proxying allowed requests")
	return r, nil
}

func buildAdminHandler(cfg *config.AppConfig, repo *iplist.Repository, g *guard.Guard, logger log.Logger) http.Handler {
	api := adminapi.NewServer(adminapi.Options{
		Lists:  repo,
		Guard:  g,
		Logger: logger,
		Token:  cfg.AdminToken,
	})
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.PathPrefix("/v1/").Handler(api)
	return r
}

// listen opens a TCP listener capped at maxConns concurrent connections.
func listen(addr string, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// Run serves both listeners and blocks until ctx is cancelled or a server fails.
func (app *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	serve := func(name string, sv *http.Server, ln net.Listener) {
		log.Info(map[string]any{"address": ln.Addr().String()}, name+" listener started")
		if err := sv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener: %w", name, err)
		}
	}
	go serve("guard", app.guardSv, app.guardLn)
	go serve("admin", app.adminSv, app.adminLn)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(nil, "Shutdown initiated")
	case runErr = <-errCh:
		log.Error(map[string]any{"error": runErr}, "Listener failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.guardSv.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during guard listener shutdown")
	}
	if err := app.adminSv.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during admin listener shutdown")
	}
	if err := app.repo.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing store")
	}
	if runErr == nil {
		log.Info(nil, "Graceful shutdown completed")
	}
	return runErr
}
