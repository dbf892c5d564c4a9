// Command orchestratord runs the orchestration core as an HTTP service:
// it loads configuration, wires the Health Store, Lifecycle Log, Agent
// Executor, Planning Strategy, and Plan Dispatcher together, and serves
// them behind the HTTP adapter until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/agentcore/orchestrator/agentproto"
	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/dispatcher"
	"github.com/agentcore/orchestrator/health"
	"github.com/agentcore/orchestrator/httpapi"
	"github.com/agentcore/orchestrator/lifecycle"
	"github.com/agentcore/orchestrator/planner"
	"github.com/agentcore/orchestrator/resilience"
	"github.com/agentcore/orchestrator/telemetry"
)

func main() {
	cfg, err := core.LoadConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, "agentcore-orchestrator")

	healthStore, lifecycleLog, closeStores, err := buildStores(cfg, logger)
	if err != nil {
		logger.Error("failed to build storage backends", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer closeStores()

	registry := agentproto.NewStaticRegistry(cfg.Agents.Executables)
	executor := agentproto.NewExecutor(registry)
	executor.SetLogger(logger)

	governor := resilience.NewGovernor(cfg.Concurrency.MaxInFlight)
	routes, keywords, defaultAgent := agentRouteTable(cfg.Agents.Executables)
	strategy := planner.NewTableStrategy(routes, keywords, defaultAgent, "handle")

	d := dispatcher.New(strategy, executor, healthStore, lifecycleLog, governor, cfg.Agents)
	d.SetLogger(logger)

	configWatcher, err := core.NewConfigWatcher(os.Getenv(core.EnvConfigDir), os.Getenv(core.EnvAppEnv), logger)
	if err != nil {
		logger.Error("failed to start config watcher", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	watchStop := make(chan struct{})
	if configWatcher != nil {
		defer configWatcher.Close()
		go configWatcher.Watch(watchStop, d.SetAgentsConfig)
	}

	sweeper := resilience.NewSweeper(lifecycleLog, cfg.Agents.Default.Cooldown)
	sweeper.SetLogger(logger)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweeper.Run(sweepCtx, cfg.Agents.Default.Timeout, cfg.Agents.Default.Timeout, sweepCtx.Done())

	var metricsHandler http.Handler
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Init(cfg.Telemetry)
		if err != nil {
			logger.Error("failed to initialize telemetry", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
		metricsHandler = provider.Registry().Handler()
	}

	authSecret := ""
	if cfg.Auth.Enabled {
		authSecret = cfg.Auth.SigningKey
	}
	router := httpapi.NewRouter(d, httpapi.Config{
		AuthSecret:     authSecret,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	if cfg.Address == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("orchestrator listening", map[string]interface{}{"address": addr})
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining in-flight dispatches", nil)
		stop()
		close(watchStop)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.Info("orchestrator stopped", nil)
}

// buildStores selects Redis-backed or in-memory implementations of the
// Health Store and Lifecycle Log per cfg.Redis.Enabled, matching the
// durability section's "falls back to in-memory for local development"
// rule.
func buildStores(cfg *core.Config, logger core.Logger) (health.Store, lifecycle.Log, func(), error) {
	if !cfg.Redis.Enabled {
		return health.NewMemoryStore(), lifecycle.NewMemoryLog(), func() {}, nil
	}

	healthClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.Redis.URL,
		DB:        core.RedisDBHealth,
		Namespace: "agentcore:health",
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	lifecycleClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.Redis.URL,
		DB:        core.RedisDBLifecycle,
		Namespace: "agentcore:lifecycle",
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	closeFn := func() {
		_ = healthClient.Close()
		_ = lifecycleClient.Close()
	}
	return health.NewRedisStore(healthClient), lifecycle.NewRedisLog(lifecycleClient), closeFn, nil
}

// agentRouteTable derives a keyword route table from the configured agent
// registry: each agent name doubles as the keyword that routes to it, and
// the alphabetically first agent becomes the fallback for messages that
// match no keyword. Building this from sorted names keeps the default
// deterministic across runs instead of depending on Go's randomized map
// iteration order.
func agentRouteTable(executables map[string]string) (routes map[string]string, keywords []string, defaultAgent string) {
	names := make([]string, 0, len(executables))
	for name := range executables {
		names = append(names, name)
	}
	sort.Strings(names)

	// TableStrategy lowercases Routes' keys internally but not the keyword
	// list it's handed, so keywords are lowercased here to keep the two in
	// sync regardless of the case agent names are configured with.
	keywords = make([]string, len(names))
	routes = make(map[string]string, len(names))
	for i, name := range names {
		keyword := strings.ToLower(name)
		keywords[i] = keyword
		routes[keyword] = name
	}
	if len(names) > 0 {
		defaultAgent = names[0]
	}
	return routes, keywords, defaultAgent
}
