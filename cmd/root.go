package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/punchclock/internal/attendance"
	"github.com/kozaktomas/punchclock/internal/config"
	"github.com/kozaktomas/punchclock/internal/database"
	"github.com/kozaktomas/punchclock/internal/extractor"
	"github.com/kozaktomas/punchclock/internal/location"
	"github.com/kozaktomas/punchclock/internal/logging"
	"github.com/kozaktomas/punchclock/internal/punch"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "punchclock",
	Short: "Face verified attendance punch clock",
	Long: `Punchclock identifies employees from face descriptors captured at a kiosk
and records their daily punch-in and punch-out in an attendance ledger.

Storage is PostgreSQL (pgvector), MariaDB/MySQL or an embedded SQLite file,
selected by the DATABASE_URL scheme.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file instead of .env")
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", envFile, err)
		}
		return
	}
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// app holds the wired runtime shared by the commands.
type app struct {
	backend database.Backend
	ledger  *attendance.Ledger
	coord   *punch.Coordinator
}

func (a *app) Close() error {
	return a.backend.Close()
}

// openApp opens storage and wires the ledger and coordinator. When
// withExtractor is set the descriptor extractor is initialised once.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withExtractor bool) (*app, error) {
	policy, err := attendance.NewPolicy(cfg.Policy.Attendance)
	if err != nil {
		return nil, fmt.Errorf("attendance policy: %w", err)
	}

	backend, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("storage ready", "driver", cfg.Database.Driver())

	resolver, err := location.New(cfg.Geocoder)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("geocoder: %w", err)
	}

	opts := []punch.Option{punch.WithResolver(resolver, cfg.Geocoder.Timeout)}
	if withExtractor && cfg.Extractor.URL != "" {
		client := extractor.New(cfg.Extractor.URL, cfg.Policy.Matching.DescriptorDim, cfg.Extractor.Timeout)
		if err := client.Init(ctx); err != nil {
			logger.Warn("descriptor extractor unavailable, image verification disabled", "error", err)
		} else {
			logger.Info("descriptor extractor ready", "url", cfg.Extractor.URL)
			opts = append(opts, punch.WithExtractor(client))
		}
	}

	ledger := attendance.NewLedger(backend.Attendance(), policy)
	return &app{
		backend: backend,
		ledger:  ledger,
		coord:   punch.NewCoordinator(backend.Employees(), ledger, cfg.Policy.Matching, opts...),
	}, nil
}
