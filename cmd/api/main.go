// Command api is the controller's entry point: it loads configuration,
// opens the embedded store, wires every domain service together, and
// serves the HTTP surface described in spec §6 until an interrupt
// signal asks for graceful shutdown — the same load/wire/serve shape
// as the teacher's cmd/api/main.go.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/sharedmem/controller/docs" // generated swagger spec
	"github.com/sharedmem/controller/internal/bus"
	"github.com/sharedmem/controller/internal/cluster"
	"github.com/sharedmem/controller/internal/config"
	"github.com/sharedmem/controller/internal/database"
	"github.com/sharedmem/controller/internal/discovery"
	"github.com/sharedmem/controller/internal/httpapi"
	"github.com/sharedmem/controller/internal/inferrouter"
	"github.com/sharedmem/controller/internal/memorypool"
	deviceRepo "github.com/sharedmem/controller/internal/repository/device"
	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/internal/supervisor"
	"github.com/sharedmem/controller/internal/wsgateway"
	"github.com/sharedmem/controller/pkg/xlog"
)

// @title           Sharedmem Controller API
// @version         1.0
// @description     LAN-scale distributed LLM-inference cluster control plane
// @BasePath        /
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := xlog.Build(cfg.Debug)
	logger.Info("logger initialized")

	db, err := database.Open(cfg.DB.Path, cfg.DB.PoolSize)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := database.SeedBuiltins(db, config.DefaultRuntimeSettings); err != nil {
		log.Fatalf("failed to seed builtins: %v", err)
	}

	b := bus.New(logger)

	reg := registry.New(
		deviceRepo.NewGormDeviceRepo(db),
		deviceRepo.NewGormRoleRepo(db),
		deviceRepo.NewGormAllocationRepo(db),
		deviceRepo.NewGormSettingRepo(db),
		b,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers := memorypool.DetectProviders(ctx, logger)
	aggregator := memorypool.NewAggregator(providers, memorypool.RedisOpt{
		Addr: cfg.RedisDB.Addr,
		Pass: cfg.RedisDB.Pass,
	}, b, logger)

	super := supervisor.New(cfg.Binaries.AgentPort, cfg.Binaries.EnginePort, cfg.Binaries.AgentBinary, cfg.Binaries.EngineBinary, b, logger)
	orchestrator := cluster.New(reg, super, aggregator, logger)
	router := inferrouter.New(super, reg, logger)
	gateway := wsgateway.New(b, logger)

	disco := discovery.New(cfg.Discovery.ServiceName, cfg.Binaries.AgentPort, b, logger)
	if cfg.Discovery.Enabled {
		if hostname, err := os.Hostname(); err == nil {
			if err := disco.Advertise(hostname); err != nil {
				logger.Warnf("mdns advertise failed: %v", err)
			}
		}
	}

	runBackground(ctx, logger, "memory-pool aggregator", aggregator.Run)
	runBackground(ctx, logger, "process supervisor watchdog", super.Run)
	runBackground(ctx, logger, "discovery pipeline", func(ctx context.Context) error {
		return reg.RunDiscoveryPipeline(ctx, b)
	})
	if cfg.Discovery.Enabled {
		runBackground(ctx, logger, "mdns discovery", disco.Run)
	}

	engine := httpapi.NewRouter(httpapi.Dependencies{
		Registry:     reg,
		Orchestrator: orchestrator,
		Aggregator:   aggregator,
		Router:       router,
		Gateway:      gateway,
		Log:          logger,
	})

	logger.Info("application initialized successfully")
	startServer(engine, logger, disco, cancel)
}

// runBackground launches a long-running task (the same GetName/Run
// shape the supervisor watchdog and memory aggregator both expose) in
// its own goroutine and logs if it returns early.
func runBackground(ctx context.Context, logger *xlog.Logger, name string, run func(context.Context) error) {
	go func() {
		if err := run(ctx); err != nil {
			logger.Errorf("%s stopped: %v", name, err)
		}
	}()
}

func startServer(handler http.Handler, logger *xlog.Logger, disco *discovery.Discovery, cancel context.CancelFunc) {
	port := config.ControllerPort()
	addr := ":" + strconv.Itoa(port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		logger.Infof("controller listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()
	disco.Shutdown()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	} else {
		logger.Info("server shutdown complete")
	}
}
