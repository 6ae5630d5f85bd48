package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/execmon/internal/config"
	"github.com/vinayprograms/execmon/internal/monitor"
	"github.com/vinayprograms/execmon/internal/state"
	"github.com/vinayprograms/execmon/internal/stream"
	"github.com/vinayprograms/execmon/internal/tui"
)

// shutdownGrace bounds how long to wait for the monitor after the view exits.
const shutdownGrace = 2 * time.Second

// runWatch monitors one event stream and returns the process exit code.
func runWatch(cmd WatchCmd, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	interactive := !cmd.Plain && isStdoutTerminal(stdout)
	logger, closeLog, err := setupLogging(cmd, stderr, interactive)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	src, closeSrc, err := openSource(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeSrc()

	telem, err := setupTelemetry(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer telem.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(cfg, monitor.WithExporter(telem), monitor.WithLogger(logger))
	summary, runErr := watch(ctx, mon, src, cfg, interactive, stdout, logger)

	if cmd.Snapshot != "" {
		if err := writeSnapshot(cmd.Snapshot, mon.Model().Snapshot()); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}

	fmt.Fprintln(stdout, summary.String())
	if summary.Status == state.StatusError {
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			fmt.Fprintf(stderr, "%s\n", summary.Diagnostic)
		}
		return 1
	}
	return 0
}

// watch runs the monitor and the chosen renderer side by side until the
// stream ends. Leaving the live view early cancels the monitor.
func watch(ctx context.Context, mon *monitor.Monitor, src stream.Source, cfg *config.Config, interactive bool, stdout io.Writer, logger *logging.Logger) (monitor.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !interactive {
		printer := tui.Plain(stdout, mon.Model())
		summary, err := mon.Run(ctx, src)
		printer.Close()
		return summary, err
	}

	type result struct {
		summary monitor.Summary
		err     error
	}
	results := make(chan result, 1)
	done := make(chan monitor.Summary, 1)
	go func() {
		s, err := mon.Run(ctx, src)
		done <- s
		results <- result{s, err}
	}()

	refresh := time.Duration(cfg.UI.RefreshMs) * time.Millisecond
	if err := tui.Run(ctx, mon.Model(), done, refresh); err != nil {
		logger.WithComponent("tui").Debug("view stopped", map[string]interface{}{
			"error": err.Error(),
		})
		cancel()
	}
	select {
	case r := <-results:
		return r.summary, r.err
	case <-time.After(shutdownGrace):
		// A blocking read (stdin) cannot observe cancellation.
		mon.Model().Fail("cancelled")
		return mon.Summary(), context.Canceled
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd WatchCmd) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cmd.Config != "" {
		cfg, err = config.LoadFile(cmd.Config)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.File != "" && cmd.File != "-" {
		cfg.Source.Path = cmd.File
	} else if cfg.Source.Path == "" {
		cfg.Source.Path = "-"
	}
	if cmd.Follow {
		cfg.Source.Follow = true
	}
	if cmd.NATSURL != "" {
		cfg.Source.NATSURL = cmd.NATSURL
	}
	if cmd.Subject != "" {
		cfg.Source.NATSSubject = cmd.Subject
	}
	return cfg, nil
}

// setupLogging creates the root logger every component derives from. The
// live view owns the terminal, so without a log file its logs are discarded.
func setupLogging(cmd WatchCmd, stderr io.Writer, interactive bool) (*logging.Logger, func(), error) {
	logger := logging.New()
	logger.SetLevel(parseLevel(cmd.LogLevel))

	switch {
	case cmd.LogFile != "":
		f, err := os.OpenFile(cmd.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		return logger, func() { f.Close() }, nil
	case interactive:
		logger.SetOutput(io.Discard)
	default:
		logger.SetOutput(stderr)
	}
	return logger, func() {}, nil
}

// parseLevel maps a --log-level value to a logger level. Unknown names are
// INFO.
func parseLevel(s string) logging.Level {
	switch level := logging.Level(strings.ToUpper(strings.TrimSpace(s))); level {
	case logging.LevelDebug, logging.LevelWarn, logging.LevelError:
		return level
	default:
		return logging.LevelInfo
	}
}

// openSource picks the event source from config: NATS when a URL is set,
// otherwise a file (optionally followed) or stdin.
func openSource(cfg *config.Config, logger *logging.Logger) (stream.Source, func(), error) {
	withLogger := stream.WithLogger(logger)
	if cfg.Source.NATSURL != "" {
		src, err := stream.NewNATSSource(cfg.Source.NATSURL, cfg.Source.NATSSubject, withLogger)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	}

	if cfg.Source.Path == "-" {
		return stream.NewReaderSource(os.Stdin, withLogger), func() {}, nil
	}

	if cfg.Source.Follow {
		src, err := stream.NewFollowSource(cfg.Source.Path, withLogger)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	}

	f, err := os.Open(cfg.Source.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return stream.NewReaderSource(f, withLogger), func() { f.Close() }, nil
}

// setupTelemetry creates the telemetry exporter.
func setupTelemetry(cfg *config.Config) (telemetry.Exporter, error) {
	if !cfg.Telemetry.Enabled {
		return telemetry.NewNoopExporter(), nil
	}
	telem, err := telemetry.NewExporter(cfg.Telemetry.Protocol, cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry exporter: %w", err)
	}
	return telem, nil
}

// writeSnapshot exports the final state as YAML.
func writeSnapshot(path string, snap state.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := snap.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// isStdoutTerminal reports whether w is a terminal.
func isStdoutTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
