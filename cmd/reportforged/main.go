// Package main is the entry point for the reportforged binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/skywatchai/reportforge/pkg/config"
	"github.com/skywatchai/reportforge/pkg/engine"
	"github.com/skywatchai/reportforge/pkg/generation"
	"github.com/skywatchai/reportforge/pkg/logging"
	"github.com/skywatchai/reportforge/pkg/render"
	"github.com/skywatchai/reportforge/pkg/server"
	"github.com/skywatchai/reportforge/pkg/storage"
	"github.com/skywatchai/reportforge/pkg/telemetry"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error; overrides config)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Address = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: *prettyLogs || cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting reportforged", "config", *configPath)

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "reportforged",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	graphs, cleanupGraphs, err := pipelineSource(cfg, logger)
	if err != nil {
		logger.Error("Failed to load pipeline definition", "file", cfg.Pipeline.File, "error", err)
		os.Exit(1)
	}
	defer cleanupGraphs()

	store := storage.NewMemoryJobStore()
	metrics := telemetry.NewMetrics()
	generator := generation.NewOpenAIClient(generation.Config{
		BaseURL: cfg.Generation.BaseURL,
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.RequestTimeout,
	}, logger)

	orch := engine.NewOrchestrator(engine.OrchestratorConfig{
		Store:               store,
		Executor:            engine.NewStageExecutor(generator, logger),
		Renderer:            render.NewPDFRenderer(),
		Graphs:              graphs,
		Logger:              logger,
		Metrics:             metrics,
		JobTimeout:          cfg.Pipeline.JobTimeout,
		MaxConcurrentStages: cfg.Pipeline.MaxConcurrentStages,
		MaxConcurrentJobs:   cfg.Pipeline.MaxConcurrentJobs,
	})
	svc := server.NewService(store, orch, cfg.Generation.DefaultTemperature, logger)
	handler := otelhttp.NewHandler(server.NewHandler(svc, metrics, logger), "reportforge.api")

	srv := startServer(cfg, handler, logger)
	waitForShutdown(srv, shutdownTracing, logger)
}

// pipelineSource selects the built-in pipeline or the watched definition file.
func pipelineSource(cfg *config.Config, logger *slog.Logger) (engine.GraphSource, func(), error) {
	if cfg.Pipeline.File == "" {
		graph := engine.DefaultAstronomyPipeline()
		logger.Info("Using built-in pipeline", "pipeline", graph.Name, "stages", len(graph.Stages))
		return engine.StaticGraph(graph), func() {}, nil
	}

	provider, err := config.NewPipelineProvider(cfg.Pipeline.File, logger)
	if err != nil {
		return nil, nil, err
	}
	graph := provider.Current()
	logger.Info("Loaded pipeline definition", "file", cfg.Pipeline.File, "pipeline", graph.Name, "stages", len(graph.Stages))
	cleanup := func() {
		if err := provider.Close(); err != nil {
			logger.Error("Failed to close pipeline provider", "error", err)
		}
	}
	return provider, cleanup, nil
}

func startServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", cfg.Server.Address, "error", err)
		os.Exit(1)
	}

	// Log the actual resolved address (useful when addr is :0)
	logger.Info("Server listening", "addr", listener.Addr().String())

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return srv
}

func waitForShutdown(srv *http.Server, shutdownTracing func(context.Context) error, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Tracing shutdown error", "error", err)
	}
}
