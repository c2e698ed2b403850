// Package main is the entry point for sysmon. It loads configuration,
// builds the monitor, and samples at a fixed interval until interrupted,
// writing every snapshot to the output file and optionally publishing it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Guliveer/sysmon/internal/clock"
	"github.com/Guliveer/sysmon/internal/config"
	"github.com/Guliveer/sysmon/internal/models"
	"github.com/Guliveer/sysmon/internal/monitor"
	"github.com/Guliveer/sysmon/internal/output"
	"github.com/Guliveer/sysmon/internal/publisher"
	"github.com/Guliveer/sysmon/internal/scheduler"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	pidFlag      = pflag.IntP("pid", "p", config.NoPID, "Process id to sample (-1 samples the machine only)")
	intervalFlag = pflag.IntP("interval", "i", 1000, "Sampling interval in milliseconds")
	outputFlag   = pflag.StringP("output", "o", "", "Output file (.csv, .jsonl, .cbor, .txt; append .zst or .lz4 to compress)")
	formatFlag   = pflag.String("format", "", "Output format: csv, jsonl, cbor, kv (default: from the output file name)")
	publishFlag  = pflag.Bool("publish", false, "Publish snapshot fields on a ZeroMQ PUB socket")
	endpointFlag = pflag.String("endpoint", "", "ZeroMQ endpoint to bind when publishing")
	printFlag    = pflag.Bool("print", false, "Also print every snapshot to stdout")
	configPath   = pflag.String("config", "", "Path to configuration file (default: search standard locations)")
	writeConfig  = pflag.String("write-config", "", "Write the resolved configuration to this path and exit")
	logLevel     = pflag.String("log-level", "", "Log level: debug, info, warn, error")
	showVersion  = pflag.Bool("version", false, "Show version and exit")
)

func main() {
	pflag.Parse()

	if *showVersion {
		fmt.Printf("sysmon %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		if err := config.WriteConfig(cfg, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	logger := initLogger(cfg).With(zap.String("run_id", uuid.NewString()))
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting sysmon",
		zap.String("version", version),
		zap.Int("pid", cfg.Monitor.PID),
		zap.Duration("interval", cfg.Monitor.Interval.Duration))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Sampling failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("sysmon stopped")
}

// loadConfig layers the flags the user actually set over env, file,
// embedded and default configuration.
func loadConfig() (*config.Config, error) {
	flags := pflag.CommandLine
	cli := config.CLIOverrides{
		Output:   *outputFlag,
		Format:   *formatFlag,
		Endpoint: *endpointFlag,
		LogLevel: *logLevel,
	}
	if flags.Changed("pid") {
		cli.PID = pidFlag
	}
	if flags.Changed("interval") {
		d := time.Duration(*intervalFlag) * time.Millisecond
		cli.Interval = &d
	}
	if flags.Changed("publish") {
		cli.Publish = publishFlag
	}

	if flags.Changed("config") {
		return config.LoadLayered(cli, embeddedConfig, *configPath)
	}
	return config.LoadLayered(cli, embeddedConfig)
}

// run builds the monitor and its consumers and samples until ctx is
// cancelled. It fails only when an output cannot be opened.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	mon := monitor.New(ctx, monitor.Options{
		ProcRoot: cfg.Monitor.ProcFS,
		SysRoot:  cfg.Monitor.SysFS,
		Clock:    clock.New(),
		Logger:   logger,
	})
	defer func() {
		if cerr := mon.Close(); cerr != nil {
			logger.Warn("Failed to release collectors", zap.Error(cerr))
		}
	}()
	if cfg.Monitor.PID != config.NoPID {
		mon.SetPID(cfg.Monitor.PID)
	}

	sink, err := output.Create(cfg.Output.Path, cfg.OutputFormat(), logger.Named("output"))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sink.Close())
	}()

	sched := scheduler.New(mon, cfg.Monitor.Interval.Duration, logger.Named("scheduler"))
	sched.OnSnapshot(func(snap *models.Snapshot) {
		if err := sink.Write(snap); err != nil {
			logger.Error("Failed to write snapshot", zap.Error(err))
		}
	})

	if *printFlag {
		console := output.NewKVWriter(os.Stdout)
		sched.OnSnapshot(func(snap *models.Snapshot) {
			if err := console.Write(snap); err != nil {
				logger.Error("Failed to print snapshot", zap.Error(err))
			}
		})
	}

	if cfg.Publish.Enabled {
		pub, err := publisher.New(ctx, cfg.Publish.Endpoint, logger.Named("publisher"))
		if err != nil {
			return err
		}
		defer func() {
			sent, dropped := pub.Stats()
			logger.Info("Publisher stopped",
				zap.Uint64("sent", sent),
				zap.Uint64("dropped", dropped))
			if cerr := pub.Close(); cerr != nil {
				logger.Warn("Failed to close publisher", zap.Error(cerr))
			}
		}()
		logger.Info("Publishing snapshots", zap.String("endpoint", pub.Endpoint()))
		sched.OnSnapshot(pub.Publish)
	}

	logger.Info("sysmon running",
		zap.Int("cores", mon.Cores()),
		zap.String("output", sink.Path()))
	sched.Start(ctx)
	return nil
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Logs go to stderr so --print output on stdout stays parseable.
	cores := []zapcore.Core{zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
