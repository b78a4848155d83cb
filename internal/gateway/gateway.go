// ABOUTME: Gateway assembly and lifecycle: wires every component and runs the HTTP server
// ABOUTME: Owns startup order, route registration, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/loomworks/plugin-gateway/internal/admission"
	"github.com/loomworks/plugin-gateway/internal/auth"
	"github.com/loomworks/plugin-gateway/internal/config"
	"github.com/loomworks/plugin-gateway/internal/dispatch"
	"github.com/loomworks/plugin-gateway/internal/idempotency"
	"github.com/loomworks/plugin-gateway/internal/plugins"
	"github.com/loomworks/plugin-gateway/internal/registry"
	"github.com/loomworks/plugin-gateway/internal/session"
	"github.com/loomworks/plugin-gateway/internal/upstream/dialogue"
	"github.com/loomworks/plugin-gateway/internal/upstream/sessionstore"
)

// serviceTokenTTL bounds the lifetime of minted session-store tokens.
const serviceTokenTTL = 10 * time.Minute

// Gateway is the assembled service: signature gate, admission control,
// idempotency cache, plugin registry, dispatcher, and the HTTP server in
// front of them.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	gate       *auth.Gate
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	cache      *idempotency.Cache
	metrics    *Metrics
	limiter    *userLimiter
	httpServer *http.Server
}

// New assembles a gateway from configuration. Nothing is listening yet;
// call Run to serve.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := auth.NewServiceTokenSource(cfg.Upstream.SessionStore.TokenSecret, "plugin-gateway", serviceTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating service token source: %w", err)
	}

	store, err := sessionstore.NewClient(cfg.Upstream.SessionStore.BaseURL, tokens)
	if err != nil {
		return nil, fmt.Errorf("creating session store client: %w", err)
	}

	chat, err := dialogue.NewClient(cfg.Upstream.Dialogue.BaseURL, cfg.Upstream.Dialogue.APIKey, cfg.Upstream.Dialogue.Model)
	if err != nil {
		return nil, fmt.Errorf("creating dialogue client: %w", err)
	}

	sessions := session.NewManager(store, plugins.NewChatExchanger(chat), logger)

	reg := registry.New()
	if err := plugins.RegisterBuiltins(reg, plugins.Deps{
		Sessions: sessions,
		Chat:     chat,
		Logger:   logger,
	}); err != nil {
		return nil, fmt.Errorf("registering plugins: %w", err)
	}
	reg.Seal()

	gate := auth.NewGate(cfg.Auth.HMACSecret, cfg.Auth.FreshnessWindow)
	controller := admission.New(
		cfg.Concurrency.Global,
		cfg.Concurrency.PluginLimit("default"),
		cfg.Concurrency.PerPlugin,
		cfg.Concurrency.QueueSize,
	)
	cache := idempotency.New(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries)

	dispatcher := dispatch.New(gate, controller, cache, reg, cfg.Concurrency.AcquireTimeout, logger)

	metrics := NewMetrics()
	dispatcher.SetObserver(metrics)

	g := &Gateway{
		config:     cfg,
		logger:     logger.With("component", "gateway"),
		gate:       gate,
		registry:   reg,
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    metrics,
		limiter:    newUserLimiter(cfg.RateLimit.PerUserRPS, cfg.RateLimit.Burst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/invoke", g.handleInvoke)
	mux.HandleFunc("/healthz", g.handleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("gateway assembled", "plugins", reg.Names())
	return g, nil
}

// Handler exposes the HTTP mux, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves HTTP until the context is cancelled or the server fails,
// then shuts down gracefully. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", listener.Addr().String())
		if err := g.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context cancelled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.shutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// shutdown drains the HTTP server with a fresh timeout context, since the
// run context is already cancelled, then stops the cache sweeper.
func (g *Gateway) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := g.httpServer.Shutdown(ctx)
	g.cache.Close()

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}
