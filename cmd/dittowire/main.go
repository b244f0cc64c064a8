package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/pkg/config"
	"github.com/marmos91/dittowire/pkg/dispatch"
	"github.com/marmos91/dittowire/pkg/server"
)

const usage = `DittoWire - length-prefixed binary request/response server

Usage:
  dittowire init [--config PATH] [--force]   Write a sample configuration file
  dittowire start [--config PATH]            Start the server (default command)

Flags:
`

func main() {
	command := "start"
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "init" || args[0] == "start") {
		command = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("dittowire", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittowire/config.yaml)")
	force := fs.Bool("force", false, "Overwrite an existing config file (init only)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	switch command {
	case "init":
		if err := runInit(*configPath, *force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := runStart(*configPath); err != nil {
			logger.Error("%v", err)
			os.Exit(1)
		}
	}
}

func runInit(configPath string, force bool) error {
	if configPath == "" {
		path, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		configPath = path
	} else if err := config.InitConfigToPath(configPath, force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	return nil
}

func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	fmt.Println("DittoWire - length-prefixed request/response server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Cancelled on SIGINT/SIGTERM to initiate graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsResult := config.InitializeMetrics(cfg)

	pool, err := config.CreateBufferPool(&cfg.BufferPool)
	if err != nil {
		return err
	}

	exec, err := config.CreateExecutor(&cfg.Executor)
	if err != nil {
		return err
	}

	config.RegisterResourceMetrics(pool, exec)

	routes, err := config.CreateRouter(&cfg.Handlers)
	if err != nil {
		return err
	}
	defer func() {
		if err := routes.Close(); err != nil {
			logger.Error("Failed to release handler resources: %v", err)
		}
	}()

	dispatcher := dispatch.New(routes.Router, exec, metricsResult.WireMetrics)

	srv := server.New(dispatcher, server.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})

	adapters, err := config.CreateAdapters(cfg, pool, metricsResult.WireMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	// Metrics HTTP server runs alongside and stops with the same context
	metricsDone := make(chan struct{})
	if metricsResult.Server != nil {
		go func() {
			defer close(metricsDone)
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	logger.Info("Server configuration:")
	logger.Info("  Wire port: %d", cfg.Adapters.Wire.Port)
	if cfg.Adapters.Wire.MaxConnections > 0 {
		logger.Info("  Max connections: %d", cfg.Adapters.Wire.MaxConnections)
	} else {
		logger.Info("  Max connections: unlimited")
	}
	logger.Info("  Max frame size: %d bytes", cfg.Adapters.Wire.MaxFrameSize)
	logger.Info("  Buffer pool: %d x %d bytes (min %d)",
		cfg.BufferPool.MaxPoolSize, cfg.BufferPool.BufferSize, cfg.BufferPool.MinPoolSize)
	logger.Info("  Max concurrent tasks: %d", cfg.Executor.MaxConcurrentTasks)
	logger.Info("  Routes: %v", routes.Router.Paths())
	logger.Info("Server is running. Press Ctrl+C to stop.")

	err = srv.Serve(ctx)
	stop()
	<-metricsDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
