package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/circuitbreaker"
	"github.com/ridgegate/ridgegate/internal/config"
	"github.com/ridgegate/ridgegate/internal/health"
	"github.com/ridgegate/ridgegate/internal/loadbalancer"
	"github.com/ridgegate/ridgegate/internal/logging"
	"github.com/ridgegate/ridgegate/internal/metrics"
	"github.com/ridgegate/ridgegate/internal/proxy"
	"github.com/ridgegate/ridgegate/internal/ratelimit"
	"github.com/ridgegate/ridgegate/internal/router"
	"github.com/ridgegate/ridgegate/internal/server"
	etcddriver "github.com/ridgegate/ridgegate/internal/store/driver/etcd"
	"github.com/ridgegate/ridgegate/internal/store/driver/memory"
	redisdriver "github.com/ridgegate/ridgegate/internal/store/driver/redis"
	"github.com/ridgegate/ridgegate/pkg/store"
)

var (
	configFile = flag.String("config", "config.yaml", "Configuration file path")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	Version   = "v1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("RidgeGate %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// The memory store serves both the durable and counter interfaces, so
	// single-node deployments need no external backends at all.
	mem := memory.New()

	durable, err := newDurableStore(cfg, mem)
	if err != nil {
		logger.Fatal("failed to initialize route storage", zap.Error(err))
	}
	defer durable.Close()

	counters, err := newCounterStore(cfg, mem)
	if err != nil {
		logger.Fatal("failed to initialize rate limit storage", zap.Error(err))
	}
	defer counters.Close()

	m := metrics.New()

	prober := router.NewHTTPProber(cfg.Routes.ProbePath, cfg.Routes.ProbeTimeout)
	routes := router.NewStore(durable, prober, &cfg.Routes, logger)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Points:    cfg.RateLimit.Points,
		Duration:  cfg.RateLimit.Duration,
		KeyPrefix: cfg.RateLimit.KeyPrefix,
	}, counters, logger)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
	}, logger)
	breakers.OnStateChange(func(serviceID string, state circuitbreaker.State) {
		m.SetBreakerState(serviceID, float64(state))
	})

	balancer := loadbalancer.NewRoundRobin(routes, logger)
	dispatcher := proxy.NewDispatcher(&cfg.Proxy, routes, limiter, breakers, balancer, m, logger)

	monitor := health.NewMonitor(&cfg.Health, dispatcher, durable, m, nil, logger)
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitor.Start(monitorCtx)

	handler := server.NewRouteHandler(routes, breakers, balancer, m, logger)
	srv := server.New(cfg, dispatcher, handler, monitor, m, logger)

	go func() {
		logger.Info("starting ridgegate",
			zap.String("version", Version),
			zap.String("address", cfg.Server.Address),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("ratelimit_storage", cfg.RateLimit.Storage))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	stopMonitor()
	monitor.Stop()
	logger.Info("stopped")
}

func newDurableStore(cfg *config.Config, mem *memory.Store) (store.Store, error) {
	switch cfg.Store.Driver {
	case "etcd":
		return etcddriver.New(&etcddriver.Config{
			Endpoints: cfg.Store.Etcd.Endpoints,
			Username:  cfg.Store.Etcd.Username,
			Password:  cfg.Store.Etcd.Password,
			Timeout:   cfg.Store.Etcd.Timeout,
			KeyPrefix: cfg.Store.KeyPrefix,
		})
	default:
		return mem, nil
	}
}

func newCounterStore(cfg *config.Config, mem *memory.Store) (store.AtomicStore, error) {
	switch cfg.RateLimit.Storage {
	case "redis":
		return redisdriver.New(&redisdriver.Config{
			Address:  cfg.RateLimit.Redis.Address,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
			Timeout:  cfg.RateLimit.Redis.Timeout,
		})
	default:
		return mem, nil
	}
}
