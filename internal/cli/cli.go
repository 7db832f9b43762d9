// ============================================================================
// Spacetime CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the command line interface based on Cobra framework
//
// Command Structure:
//   spacetime                      # Root command
//   ├── run                        # Boot the host and run the scheduler
//   ├── modules                    # Boot the host and print module descriptors
//   │   └── --json                 # Print as JSON
//   ├── --config, -c               # Config file (YAML or TOML)
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// run Command:
//   1. Load config file and build the logger
//   2. Start tracing (if enabled)
//   3. Start Metrics HTTP server (if enabled)
//   4. Boot the host and run until SIGINT / SIGTERM
//
//   Examples:
//     ./spacetime run
//     ./spacetime run -c configs/default.toml
//
// Signal Handling:
//   SIGINT (Ctrl+C) and SIGTERM cancel the run context. The scheduler stops
//   between passes; parked tasks are discarded.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/spacetime-runtime/internal/config"
	"github.com/ChuLiYu/spacetime-runtime/internal/host"
	"github.com/ChuLiYu/spacetime-runtime/internal/logging"
	"github.com/ChuLiYu/spacetime-runtime/internal/metrics"
	"github.com/ChuLiYu/spacetime-runtime/internal/tracing"
)

const version = "0.1.0"

var configFile string

// BuildCLI assembles the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spacetime",
		Short: "Spacetime: a cooperative module runtime",
		Long: `Spacetime hosts isolated modules of reducers and typed tables:
- single-threaded cooperative task scheduler
- admin / standard access levels
- Prometheus metrics and OpenTelemetry tracing`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path (.yaml, .yml or .toml)")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildModulesCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the runtime and schedule the boot reducers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSystem(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	return cmd
}

func buildModulesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Boot the runtime without running it and list its modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showModules(cmd.OutOrStdout(), cmd.ErrOrStderr(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print module descriptors as JSON")
	return cmd
}

// setup loads the config and builds the process logger.
func setup(stderr io.Writer) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}, stderr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}

func runSystem(ctx context.Context, stdout, stderr io.Writer) error {
	cfg, logger, closer, err := setup(stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.Tracing.Enabled {
		if err := tracing.Init("spacetime", version, cfg.Tracing.Output); err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		defer func() {
			if err := tracing.Shutdown(context.Background()); err != nil {
				logger.Warn("Tracing shutdown failed", "error", err)
			}
		}()
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	if cfg.Metrics.Enabled {
		go func() {
			logger.Info("Starting metrics server", "port", cfg.Metrics.Port)
			if err := collector.StartServer(ctx, cfg.Metrics.Port); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	opts := host.Options{
		Output:   stdout,
		Recorder: collector,
		Logger:   logger,
	}
	if cfg.Input.Stdin {
		opts.Input = os.Stdin
	}

	h, err := host.Boot(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to boot host: %w", err)
	}

	logger.Info("System started", "config", configFile, "session", h.Registry().SessionID())
	if err := h.Run(ctx); err != nil {
		return err
	}
	logger.Info("System stopped. Goodbye!")
	return nil
}

func showModules(stdout, stderr io.Writer, asJSON bool) error {
	cfg, _, closer, err := setup(stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	// no input: the keyboard reducer is not seeded
	h, err := host.Boot(cfg, host.Options{})
	if err != nil {
		return fmt.Errorf("failed to boot host: %w", err)
	}
	infos, err := h.Modules()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	fmt.Fprintf(stdout, "Session: %s\n", h.Registry().SessionID())
	for _, info := range infos {
		fmt.Fprintf(stdout, "[%d] %s (%s)\n", info.ID, info.Name, info.AccessLevel)
		for _, r := range info.Reducers {
			fmt.Fprintf(stdout, "  ├─ reducer %d: %s\n", r.ID, r.Name)
		}
		for _, t := range info.Tables {
			fmt.Fprintf(stdout, "  └─ table %d: %s <%s> rows=%d\n", t.ID, t.Name, t.RowType, t.Rows)
		}
	}
	return nil
}
