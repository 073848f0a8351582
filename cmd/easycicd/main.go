// Command easycicd runs the self-hosted CI/CD agent: HTTP API, reverse
// proxy, build worker, and periodic workers over one shared store.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/api"
	"github.com/easycicd/agent/internal/build"
	"github.com/easycicd/agent/internal/config"
	"github.com/easycicd/agent/internal/deploy"
	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/logging"
	"github.com/easycicd/agent/internal/metrics"
	"github.com/easycicd/agent/internal/periodic"
	"github.com/easycicd/agent/internal/ports"
	"github.com/easycicd/agent/internal/proxy"
	"github.com/easycicd/agent/internal/queue"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
	"github.com/easycicd/agent/internal/worker"
	"github.com/easycicd/agent/internal/wsfanout"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate store")
	}

	metrics.InitGlobal()
	log.Info().Msg("metrics collector initialized")

	bus := events.NewBus(events.DefaultCapacity)

	engine, err := runtime.NewDockerEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to container runtime")
	}
	defer engine.Close()

	q := queue.New()
	builder := build.New(db, bus, engine, cfg.DataDir)
	deployCfg := deploy.Config{
		HealthGateRetries: cfg.HealthGateRetries,
		HealthGateDelay:   time.Duration(cfg.HealthGateDelay) * time.Second,
	}
	deployer := deploy.New(db, bus, engine, deployCfg)
	w := worker.New(db, q, builder, deployer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go w.Run(ctx)

	allocator := ports.New(db)
	go allocator.RunScanner(ctx, 60*time.Second, cfg.AppPortRangeStart, cfg.AppPortRangeEnd, cfg.ContainerPortRangeStart, cfg.ContainerPortRangeEnd)

	periodicWorkers := periodic.New(db, engine, bus)
	go periodicWorkers.RunContainerCleanup(ctx)
	go periodicWorkers.RunContainerHealthMonitor(ctx)
	go periodicWorkers.RunContainerLogStreamer(ctx)
	go periodicWorkers.RunSessionSweeper(ctx)

	hub := wsfanout.NewHub()
	go hub.Run(ctx, bus)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	handlers := api.New(db, bus, engine, builder, deployer, q, hub, cfg)
	api.SetupRoutes(r, handlers, db, cfg.CORSOrigins)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	proxySrv := &http.Server{Addr: cfg.ProxyAddr, Handler: proxy.New(db, cfg.BaseDomain)}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting easycicd api server")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.ProxyAddr).Msg("starting easycicd reverse proxy")
		if err := proxySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("proxy server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server forced shutdown")
	}
	if err := proxySrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("proxy server forced shutdown")
	}

	log.Info().Msg("easycicd stopped")
}
