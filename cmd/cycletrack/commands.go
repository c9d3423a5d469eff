package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cycle-tracker/internal/config"
	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/dailylog"
	"cycle-tracker/internal/database"
	"cycle-tracker/internal/logging"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/scheduler"
	"cycle-tracker/internal/share"
	"cycle-tracker/internal/storage"
	"cycle-tracker/internal/tracker"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cycletrack",
		Short:         "Track menstrual cycles and predict upcoming phases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env from the current directory when present.
			_ = godotenv.Load()
			return nil
		},
	}

	root.AddCommand(
		newPredictCmd(),
		newImportCmd(),
		newExportCmd(),
		newRestoreCmd(),
		newMetricsCleanupCmd(),
		newMaintenanceCmd(),
	)
	return root
}

// predictOutput is the JSON printed by the predict command.
type predictOutput struct {
	Prediction cycle.CyclePrediction `json:"prediction"`
	Analysis   cycle.Analysis        `json:"analysis"`
	Today      civil.Date            `json:"today"`
	Skipped    int                   `json:"skipped"`
}

func newPredictCmd() *cobra.Command {
	var (
		file  string
		today string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict from a JSON file of daily logs without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readLogInputs(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			day := cycle.Today(time.Now(), time.UTC)
			if today != "" {
				if day, err = cycle.ParseDate(today); err != nil {
					return fmt.Errorf("invalid --today: %w", err)
				}
			}

			logs, skipped := cycle.ParseLogs(inputs)
			return writeJSON(cmd.OutOrStdout(), predictOutput{
				Prediction: cycle.Predict(logs, day),
				Analysis:   cycle.Analyze(logs),
				Today:      day,
				Skipped:    skipped,
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "JSON file with logs, - for stdin")
	cmd.Flags().StringVar(&today, "today", "", "date to predict from (YYYY-MM-DD), defaults to today in UTC")
	return cmd
}

func newImportCmd() *cobra.Command {
	var user, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import daily logs for a user from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readLogInputs(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			logs, skipped := cycle.ParseLogs(inputs)

			return withEnv(cmd, func(ctx context.Context, env *environment) error {
				if err := env.tracker.ImportLogs(ctx, user, logs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d logs for %s (%d skipped).\n", len(logs), user, skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&file, "file", "-", "JSON file with logs, - for stdin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		user        string
		archive     bool
		keepHistory bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print a user's daily logs as JSON, or archive them with --archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, env *environment) error {
				logs, err := env.tracker.Logs(ctx, user)
				if err != nil {
					return err
				}
				if !archive {
					if logs == nil {
						logs = []cycle.DailyLog{}
					}
					return writeJSON(cmd.OutOrStdout(), logs)
				}

				snap, err := env.archive.Save(user, time.Now(), logs)
				if err != nil {
					return err
				}
				removed := 0
				if !keepHistory {
					if removed, err = env.archive.RemoveStaleVersions(user); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archived %d logs for %s at %s (%d older snapshots removed).\n",
					len(snap.Logs), user, snap.TakenAt.Format(time.RFC3339), removed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().BoolVar(&archive, "archive", false, "write a snapshot to ARCHIVE_PATH instead of stdout")
	cmd.Flags().BoolVar(&keepHistory, "keep-history", false, "keep older snapshots when archiving")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Import the latest archived snapshot for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, env *environment) error {
				snap, err := env.archive.Latest(user)
				if err != nil {
					return err
				}
				if err := env.tracker.ImportLogs(ctx, user, snap.Logs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %d logs for %s from %s.\n",
					len(snap.Logs), user, snap.TakenAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMetricsCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old prediction run records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			return withEnv(cmd, func(ctx context.Context, env *environment) error {
				affected, err := env.runs.Cleanup(ctx, days)
				if err != nil {
					return fmt.Errorf("cleanup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "keep records for the last N days")
	return cmd
}

func newMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Run the scheduled maintenance once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, env *environment) error {
				m := scheduler.NewMaintenance(env.runs, env.shares, env.cfg.MetricsRetentionDays, env.logger)
				report, err := m.RunMaintenance(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d prediction runs and %d expired revocations.\n",
					report.PredictionRunsRemoved, report.RevocationsPurged)
				return nil
			})
		},
	}
}

// environment is the wiring shared by commands that touch stored data.
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	tracker *tracker.Service
	runs    *metrics.Store
	shares  *share.Issuer
	archive *storage.LogArchive
}

func withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *environment) error) error {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	archive, err := storage.NewLogArchive(cfg.ArchivePath)
	if err != nil {
		return err
	}

	runs := metrics.NewStore(db.SQL)
	env := &environment{
		cfg:     cfg,
		logger:  logger,
		tracker: tracker.NewService(dailylog.NewRepository(db.SQL), runs, nil, logger, cfg.Location),
		runs:    runs,
		shares:  share.NewIssuer(cfg.ShareTokenSecret, cfg.ShareTokenTTL, db.SQL),
		archive: archive,
	}
	return fn(cmd.Context(), env)
}

// readLogInputs accepts either a bare JSON array of logs or an object with a
// "logs" array.
func readLogInputs(file string, stdin io.Reader) ([]cycle.LogInput, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}

	var inputs []cycle.LogInput
	if err := json.Unmarshal(data, &inputs); err == nil {
		return inputs, nil
	}

	var wrapped struct {
		Logs []cycle.LogInput `json:"logs"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse logs: %w", err)
	}
	return wrapped.Logs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
