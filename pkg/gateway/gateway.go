// Package gateway wires the store, registry, fan-out engine, event bus,
// admission pipeline, admin reconciler, snapshot builder, and ingress
// server into a single running process.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/emprops/job-gateway/pkg/admin"
	"github.com/emprops/job-gateway/pkg/admission"
	"github.com/emprops/job-gateway/pkg/config"
	"github.com/emprops/job-gateway/pkg/events"
	"github.com/emprops/job-gateway/pkg/fanout"
	"github.com/emprops/job-gateway/pkg/health"
	"github.com/emprops/job-gateway/pkg/ingress"
	"github.com/emprops/job-gateway/pkg/log"
	"github.com/emprops/job-gateway/pkg/metrics"
	"github.com/emprops/job-gateway/pkg/registry"
	"github.com/emprops/job-gateway/pkg/snapshot"
	"github.com/emprops/job-gateway/pkg/store"
	"github.com/rs/zerolog"
)

const storeReadinessTimeout = 5 * time.Second

// storeChecker adapts the store's Ping to a health.Checker so startup
// readiness goes through health.Run's bounded-timeout probe.
type storeChecker struct {
	store *store.RedisStore
}

func (c storeChecker) Name() string { return "store" }

func (c storeChecker) Check(ctx context.Context) health.Result {
	if err := c.store.Ping(ctx); err != nil {
		return health.Result{Healthy: false, Message: err.Error()}
	}
	return health.Result{Healthy: true}
}

// Gateway owns the full component graph for one running process.
type Gateway struct {
	cfg config.Config
	log zerolog.Logger

	store      *store.RedisStore
	registry   *registry.Registry
	engine     *fanout.Engine
	bus        *events.Bus
	admission  *admission.Pipeline
	reconciler *admin.Reconciler
	snapshots  *snapshot.Builder
	collector  *metrics.Collector
	ingress    *ingress.Server
}

// New constructs the full component graph without starting anything.
func New(cfg config.Config) *Gateway {
	s := store.NewRedisStore(store.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	reg := registry.New(cfg.AuthSecret)
	engine := fanout.New(reg)
	bus := events.New(s, engine)
	pipeline := admission.New(s, engine)
	reconciler := admin.New(s, engine)
	snapshots := snapshot.New(s)
	collector := metrics.NewCollector(snapshots, reg)

	srv := ingress.New(ingress.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}, s, reg, engine, pipeline, reconciler, snapshots)

	return &Gateway{
		cfg:        cfg,
		log:        log.WithComponent("gateway"),
		store:      s,
		registry:   reg,
		engine:     engine,
		bus:        bus,
		admission:  pipeline,
		reconciler: reconciler,
		snapshots:  snapshots,
		collector:  collector,
		ingress:    srv,
	}
}

// Admission exposes the admission pipeline, e.g. for a CLI command that
// submits a job without going over HTTP.
func (g *Gateway) Admission() *admission.Pipeline { return g.admission }

// Reconciler exposes the admin reconciler for CLI convenience commands.
func (g *Gateway) Reconciler() *admin.Reconciler { return g.reconciler }

// Run starts every component, blocks on the ingress listener, and tears
// everything down in reverse order on return.
func (g *Gateway) Run(ctx context.Context) error {
	readiness := health.Run(ctx, storeChecker{g.store}, storeReadinessTimeout)
	if !readiness.Healthy {
		return fmt.Errorf("connect to store: %s", readiness.Message)
	}
	metrics.RegisterComponent("store", true, "")

	if err := g.bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	metrics.RegisterComponent("event_bus", true, "")

	g.collector.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.ingress.Start()
	}()

	select {
	case <-ctx.Done():
		return g.shutdown()
	case err := <-errCh:
		_ = g.shutdown()
		return err
	}
}

// shutdown stops components in the reverse order Run started them:
// ingress first so no new connections arrive, then the event bus, then
// the store clients.
func (g *Gateway) shutdown() error {
	g.log.Info().Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.ingress.Stop(stopCtx); err != nil {
		g.log.Warn().Err(err).Msg("ingress shutdown error")
	}

	g.collector.Stop()
	g.bus.Stop()

	if err := g.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
