// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/diskstream/broker"
	"github.com/bureau-foundation/diskstream/capture"
	"github.com/bureau-foundation/diskstream/lib/clock"
	"github.com/bureau-foundation/diskstream/lib/config"
	"github.com/bureau-foundation/diskstream/lib/daemon"
	"github.com/bureau-foundation/diskstream/lib/process"
	"github.com/bureau-foundation/diskstream/lib/service"
	"github.com/bureau-foundation/diskstream/lib/version"
)

// restartTimeout bounds how long restart waits for the old broker to
// release its lock.
const restartTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// invocation is the parsed command line.
type invocation struct {
	command     string
	config      *config.Config
	showVersion bool
	showHelp    bool
}

func run(args []string, stdout io.Writer) error {
	invocation, flagSet, err := parseArgs(args)
	if err != nil {
		return err
	}
	if invocation.showHelp {
		printHelp(stdout, flagSet)
		return nil
	}
	if invocation.showVersion {
		version.Fprint(stdout, "diskstream-broker")
		return nil
	}

	cfg := invocation.config
	switch invocation.command {
	case "run":
		return runBroker(cfg)
	case "stop":
		return stopBroker(stdout, cfg)
	case "restart":
		if err := stopBroker(stdout, cfg); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
		defer cancel()
		if err := daemon.WaitReleased(ctx, cfg.Daemon.LockFile, clock.Real(), 100*time.Millisecond); err != nil {
			return err
		}
		return runBroker(cfg)
	default:
		return fmt.Errorf("unknown command %q (want run, stop, or restart)", invocation.command)
	}
}

// parseArgs parses flags, loads the config file, and applies flag
// overrides. Only flags given explicitly override the file.
func parseArgs(args []string) (*invocation, *pflag.FlagSet, error) {
	var (
		configPath     string
		producerSocket string
		listenAddress  string
		adminSocket    string
		metricsAddress string
		captureDir     string
		lockFile       string
		logLevel       string
		logFormat      string
		logFile        string
		result         invocation
	)

	flagSet := pflag.NewFlagSet("diskstream-broker", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&producerSocket, "producer-socket", "", "Unix socket for hypervisor producers")
	flagSet.StringVar(&listenAddress, "listen", "", "TCP address for subscribers")
	flagSet.StringVar(&adminSocket, "admin-socket", "", "Unix socket for admin queries (empty disables)")
	flagSet.StringVar(&metricsAddress, "metrics-listen", "", "TCP address for Prometheus /metrics (empty disables)")
	flagSet.StringVar(&captureDir, "capture-dir", "", "record each producer's stream to a file in this directory")
	flagSet.StringVar(&lockFile, "lock-file", "", "lock file holding the running broker's PID")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.StringVar(&logFormat, "log-format", "", "json or text")
	flagSet.StringVar(&logFile, "log-file", "", "append logs to this file instead of stderr")
	flagSet.BoolVar(&result.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&result.showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if result.showHelp || result.showVersion {
		return &result, flagSet, nil
	}

	switch flagSet.NArg() {
	case 0:
		result.command = "run"
	case 1:
		result.command = flagSet.Arg(0)
	default:
		return nil, flagSet, fmt.Errorf("expected at most one command, got %v", flagSet.Args())
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, flagSet, fmt.Errorf("loading config: %w", err)
	}

	overrides := map[string]*string{
		"producer-socket": &cfg.Producer.SocketPath,
		"listen":          &cfg.Subscriber.ListenAddress,
		"admin-socket":    &cfg.Admin.SocketPath,
		"metrics-listen":  &cfg.Metrics.ListenAddress,
		"capture-dir":     &cfg.Capture.Directory,
		"lock-file":       &cfg.Daemon.LockFile,
		"log-level":       &cfg.Log.Level,
		"log-format":      &cfg.Log.Format,
		"log-file":        &cfg.Log.File,
	}
	flagSet.Visit(func(flag *pflag.Flag) {
		if target, ok := overrides[flag.Name]; ok {
			*target = flag.Value.String()
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, flagSet, fmt.Errorf("invalid config: %w", err)
	}
	result.config = cfg
	return &result, flagSet, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `diskstream-broker - relay disk-I/O telemetry from hypervisors to subscribers

USAGE
    diskstream-broker [flags] [run|stop|restart]

FLAGS
%s`, flagSet.FlagUsages())
}

// newLogger builds the process logger from cfg. The returned function
// closes the log file, if one was opened.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	output := stderr
	closeFile := func() error { return nil }
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		output = file
		closeFile = file.Close
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	return slog.New(handler), closeFile, nil
}

func runBroker(cfg *config.Config) error {
	logger, closeLog, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	lock, err := daemon.Acquire(cfg.Daemon.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("releasing lock file", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	logger.Info("starting diskstream-broker",
		"version", version.Info(),
		"pid", os.Getpid(),
		"lock_file", lock.Path(),
	)

	servers, err := newBrokerProcess(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	err = servers.serve(ctx)
	logger.Info("diskstream-broker stopped")
	return err
}

func stopBroker(stdout io.Writer, cfg *config.Config) error {
	pid, err := daemon.Stop(cfg.Daemon.LockFile)
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintln(stdout, "diskstream-broker is not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sent SIGTERM to diskstream-broker (PID: %d)\n", pid)
	return nil
}

// brokerProcess is the set of servers one broker runs.
type brokerProcess struct {
	broker  *broker.Broker
	ingest  *broker.IngestServer
	command *broker.CommandServer
	admin   *service.SocketServer
	metrics *service.HTTPServer
	logger  *slog.Logger
}

func newBrokerProcess(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*brokerProcess, error) {
	compression, err := capture.ParseCompression(cfg.Capture.Compression)
	if err != nil {
		return nil, err
	}

	core := broker.New(broker.Config{
		MaxPayloadBytes: cfg.Limits.MaxPayloadBytes,
		MaxChunkBytes:   cfg.Limits.MaxChunkBytes,
		SendTimeout:     cfg.Subscriber.SendTimeout,
		Clock:           clk,
		Logger:          logger,
	})

	servers := &brokerProcess{
		broker: core,
		ingest: broker.NewIngestServer(core, broker.IngestConfig{
			SocketPath:         cfg.Producer.SocketPath,
			BindRetryInterval:  cfg.Producer.BindRetryInterval,
			ReceiveBufferBytes: cfg.Producer.ReceiveBufferBytes,
			CaptureDirectory:   cfg.Capture.Directory,
			CaptureCompression: compression,
			Clock:              clk,
			Logger:             logger.With("server", "ingest"),
		}),
		command: broker.NewCommandServer(core, broker.CommandConfig{
			Address: cfg.Subscriber.ListenAddress,
			Logger:  logger.With("server", "command"),
		}),
		logger: logger,
	}

	if cfg.Admin.SocketPath != "" {
		servers.admin = service.NewSocketServer(cfg.Admin.SocketPath, logger.With("server", "admin"))
		core.RegisterActions(servers.admin)
	}
	if cfg.Metrics.ListenAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", core.MetricsHandler())
		servers.metrics = service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Metrics.ListenAddress,
			Handler: mux,
			Logger:  logger.With("server", "metrics"),
		})
	}
	return servers, nil
}

// serve runs every configured server until ctx is cancelled or one of
// them fails. A failure (such as the command port being taken) stops
// the rest and is returned.
func (p *brokerProcess) serve(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return p.ingest.Serve(groupCtx) })
	group.Go(func() error {
		if err := p.command.Serve(groupCtx); err != nil {
			return fmt.Errorf("command port: %w", err)
		}
		return nil
	})
	if p.admin != nil {
		group.Go(func() error {
			if err := p.admin.Serve(groupCtx); err != nil {
				return fmt.Errorf("admin socket: %w", err)
			}
			return nil
		})
	}
	if p.metrics != nil {
		group.Go(func() error {
			if err := p.metrics.Serve(groupCtx); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	return group.Wait()
}
