// ABOUTME: Gateway service wiring: listeners, routes, and component assembly
// ABOUTME: Serves channel webhooks plus the authenticated admin API

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/icdev/cmdgate/internal/auth"
	"github.com/icdev/cmdgate/internal/binder"
	"github.com/icdev/cmdgate/internal/catalog"
	"github.com/icdev/cmdgate/internal/channel"
	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/envelope"
	"github.com/icdev/cmdgate/internal/filter"
	"github.com/icdev/cmdgate/internal/router"
	"github.com/icdev/cmdgate/internal/secchain"
	"github.com/icdev/cmdgate/internal/store"
)

// Gateway is the assembled service. Create with New, start with Run.
type Gateway struct {
	cfg      *config.Config
	store    store.Store
	catalog  *catalog.Catalog
	binder   *binder.Binder
	chain    *secchain.Chain
	router   *router.Router
	filter   *filter.Filter
	adapters []channel.Adapter
	verifier *auth.JWTVerifier
	logger   *slog.Logger

	httpServer *http.Server
	tsServer   *tsnet.Server
	startedAt  time.Time
}

// redactionSink feeds filter redaction events into the audit trail.
type redactionSink struct {
	store store.Store
}

func (s *redactionSink) RecordRedaction(ctx context.Context, ch, userID, command string, detected, allowed envelope.Classification) error {
	return s.store.AppendAuditEvent(ctx, &store.AuditEvent{
		EventType: store.AuditEventRedaction,
		Actor:     userID,
		Action:    command,
		Detail: map[string]any{
			"channel":  ch,
			"detected": detected.String(),
			"ceiling":  allowed.String(),
		},
	})
}

// New assembles a Gateway from config. The command allowlist is loaded
// once here; changing it requires a restart.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	cat, err := catalog.Load(cfg.Gateway.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading command allowlist: %w", err)
	}

	bnd := binder.New(st, cfg.Security.ChallengeTTL, logger)
	chain := secchain.New(st, bnd, cat, &cfg.Security, cfg.Gateway.MultiTenant, logger)
	rtr := router.New(st, cfg.Gateway.ExecTimeout, logger)
	flt := filter.New(cfg.Gateway.FullAccessURL, &redactionSink{store: st}, logger)

	adapters := channel.BuildAdapters(&cfg.Channels, cfg.Gateway.Mode)
	if len(adapters) == 0 {
		return nil, errors.New("no channel adapters available for this mode")
	}
	for _, a := range adapters {
		logger.Info("channel adapter enabled",
			"channel", a.Name(),
			"path", a.WebhookPath(),
			"max_classification", a.MaxClassification().String())
	}

	return &Gateway{
		cfg:      cfg,
		store:    st,
		catalog:  cat,
		binder:   bnd,
		chain:    chain,
		router:   rtr,
		filter:   flt,
		adapters: adapters,
		verifier: auth.NewJWTVerifier(cfg.Auth.JWTSecret),
		logger:   logger,
	}, nil
}

// routes builds the HTTP mux: one webhook route per adapter, the admin
// API behind JWT, and the unauthenticated health and discovery endpoints.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	for _, a := range g.adapters {
		mux.Handle("POST "+a.WebhookPath(), g.handleWebhook(a))
	}

	admin := g.verifier.Middleware
	mux.Handle("POST /gateway/bind", admin(http.HandlerFunc(g.handleBind)))
	mux.Handle("GET /gateway/bindings", admin(http.HandlerFunc(g.handleListBindings)))
	mux.Handle("POST /gateway/bindings/{id}/revoke", admin(http.HandlerFunc(g.handleRevokeBinding)))
	mux.Handle("GET /gateway/executions", admin(http.HandlerFunc(g.handleListExecutions)))
	mux.Handle("GET /gateway/audit", admin(http.HandlerFunc(g.handleListAudit)))

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /.well-known/agent-card", g.handleAgentCard)

	return mux
}

// Run starts the configured listeners and blocks until ctx is cancelled
// or a listener fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.startedAt = time.Now()
	handler := g.routes()
	errCh := make(chan error, 2)

	if g.cfg.Server.HTTPAddr != "" {
		g.httpServer = &http.Server{
			Addr:              g.cfg.Server.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			g.logger.Info("http listener started", "addr", g.cfg.Server.HTTPAddr)
			if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if g.cfg.Tailscale.Enabled {
		ln, err := g.setupTailscaleListener()
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			g.logger.Info("tailscale listener started", "hostname", g.cfg.Tailscale.Hostname)
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tailscale server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return g.Shutdown()
	case err := <-errCh:
		return err
	}
}

// setupTailscaleListener joins the tailnet and listens on :443 inside it.
func (g *Gateway) setupTailscaleListener() (net.Listener, error) {
	ts := g.cfg.Tailscale
	g.tsServer = &tsnet.Server{
		Hostname:  ts.Hostname,
		AuthKey:   ts.AuthKey,
		Dir:       ts.StateDir,
		Ephemeral: ts.Ephemeral,
	}
	ln, err := g.tsServer.ListenTLS("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("tailscale listener: %w", err)
	}
	return ln, nil
}

// Shutdown drains the listeners and closes the tailnet node.
func (g *Gateway) Shutdown() error {
	g.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if g.tsServer != nil {
		if err := g.tsServer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
