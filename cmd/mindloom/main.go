package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mindloom/mindloom/config"
	"github.com/mindloom/mindloom/pkg/api"
	"github.com/mindloom/mindloom/pkg/api/handlers"
	"github.com/mindloom/mindloom/pkg/chain"
	"github.com/mindloom/mindloom/pkg/eventbus"
	"github.com/mindloom/mindloom/pkg/logger"
	"github.com/mindloom/mindloom/pkg/memory"
	"github.com/mindloom/mindloom/pkg/metrics"
	"github.com/mindloom/mindloom/pkg/provider"
	"github.com/mindloom/mindloom/pkg/provider/anthropic"
	"github.com/mindloom/mindloom/pkg/provider/extractive"
	"github.com/mindloom/mindloom/pkg/telemetry/tracing"
	"github.com/mindloom/mindloom/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting mindloom",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("Error shutting down tracing", "error", err)
		}
	}()

	// Initialize metrics manager
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Initialize storage backends for memory records and chains
	recordStore, chainStore, closeStores, err := openStores(cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeStores(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	// Memory service over the record store
	memOpts := []memory.Option{
		memory.WithLogger(log),
		memory.WithMetrics(metricsManager),
		memory.WithDecayTau(cfg.Memory.DecayTau),
	}
	memService := memory.NewService(recordStore, memOpts...)

	// Completion provider
	prov := buildProvider(cfg, log)

	// Event bus carrying chain lifecycle events
	bus := eventbus.NewMemoryBus()

	// Reasoning chain engine
	engine := chain.NewEngine(memService, chainStore, prov,
		chain.WithLogger(log),
		chain.WithMetrics(metricsManager),
		chain.WithPublisher(bus),
		chain.WithAgentID(cfg.App.Name),
	)

	chainCfg := chain.Config{
		TokenBudget:          cfg.Chain.TokenBudget,
		MinConfidence:        cfg.Chain.MinConfidence,
		MinProvenance:        cfg.Chain.MinProvenance,
		EnableSelfCorrection: cfg.Chain.EnableSelfCorrection,
		MaxIterations:        cfg.Chain.MaxIterations,
		EntropySamples:       cfg.Chain.EntropySamples,
	}

	// Websocket handler bridged to the event bus
	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	sub, err := bus.Subscribe(eventbus.SubjectAllChains, 256)
	if err != nil {
		log.Error("Failed to subscribe to chain events", "error", err)
		os.Exit(1)
	}
	defer sub.Close()
	go wsHandler.Pump(ctx, sub.C())
	defer wsHandler.Close()

	apiHandlers := &api.Handlers{
		Memory:    handlers.NewMemoryHandler(memService, log),
		Chain:     handlers.NewChainHandler(engine, chainStore, chainCfg, log),
		Verify:    handlers.NewVerifyHandler(metricsManager),
		Health:    handlers.NewHealthHandler(memService, version.Version),
		WebSocket: wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("mindloom is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
		"provider", cfg.Provider.Type,
	)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	log.Info("mindloom stopped gracefully")
}

// openStores builds the record and chain stores for the configured backend
// and returns a combined closer.
func openStores(cfg *config.Config, log logger.Logger) (memory.RecordStore, chain.ChainStore, func() error, error) {
	switch cfg.Storage.Type {
	case "badger":
		opts := badger.DefaultOptions(cfg.Storage.Badger.Path).
			WithSyncWrites(cfg.Storage.Badger.SyncWrites).
			WithValueLogFileSize(cfg.Storage.Badger.ValueLogFileSize).
			WithNumVersionsToKeep(cfg.Storage.Badger.NumVersionsToKeep).
			WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open badger at %s: %w", cfg.Storage.Badger.Path, err)
		}
		log.Info("Initialized Badger storage", "path", cfg.Storage.Badger.Path)

		recordStore, err := wrapCache(cfg, memory.NewBadgerStore(db))
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return recordStore, chain.NewBadgerChainStore(db), db.Close, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		log.Info("Initialized Redis storage", "address", cfg.Storage.Redis.Address)

		recordStore, err := wrapCache(cfg, memory.NewRedisStore(client, cfg.Storage.Redis.KeyPrefix))
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		return recordStore, chain.NewInMemoryChainStore(), client.Close, nil

	default:
		log.Info("Initialized in-memory storage")
		return memory.NewInMemoryStore(), chain.NewInMemoryChainStore(), func() error { return nil }, nil
	}
}

func wrapCache(cfg *config.Config, inner memory.RecordStore) (memory.RecordStore, error) {
	if !cfg.Memory.CacheEnabled {
		return inner, nil
	}
	cached, err := memory.NewCachedStore(inner, cfg.Memory.CacheMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("create record cache: %w", err)
	}
	return cached, nil
}

// buildProvider assembles the completion provider with timeout and rate
// limit middleware per configuration.
func buildProvider(cfg *config.Config, log logger.Logger) provider.Provider {
	var p provider.Provider
	switch cfg.Provider.Type {
	case "anthropic":
		p = anthropic.New(cfg.Provider.APIKey, cfg.Provider.Model)
		log.Info("Using Anthropic provider", "model", cfg.Provider.Model)
	default:
		p = extractive.New()
		log.Info("Using extractive provider")
	}

	if cfg.Provider.Timeout > 0 {
		p = provider.WithTimeout(p, cfg.Provider.Timeout)
	}
	if cfg.Provider.RateLimit > 0 {
		p = provider.WithRateLimit(p, cfg.Provider.RateLimit, cfg.Provider.Burst)
	}
	return p
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("mindloom - Grounded Reasoning Service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("mindloom - memory-grounded reasoning chains with verification\n\n")
	fmt.Printf("Usage: mindloom [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  mindloom                                  # Run with default config\n")
	fmt.Printf("  mindloom -config config.yaml              # Use specific config file\n")
	fmt.Printf("  mindloom -port 9090 -log-level debug      # Override specific options\n")
	fmt.Printf("  mindloom -version                         # Print version info\n")
}
