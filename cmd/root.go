// Package cmd implements the reconcile CLI commands using cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ambre-sync/reconcile-core/internal/config"
	"github.com/ambre-sync/reconcile-core/internal/svcctx"
	"github.com/ambre-sync/reconcile-core/internal/taskqueue"
	"github.com/spf13/cobra"
)

var (
	versionStr   string
	dataDirFlag  string
	paramsFlag   string
	logFormat    string
	cmdStartTime time.Time

	queue *taskqueue.FIFO
)

// SetVersion sets the version string and enables --version.
func SetVersion(v string) {
	versionStr = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Offline-first multi-user reconciliation sync CLI",
	Long: `reconcile drives the offline-first reconciliation sync engine: push and
pull T_Reconciliation changes against the shared network store, inspect and
release the cross-process global lock, evaluate the rule engine, and
resolve DWINGS invoice links.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdStartTime = time.Now()
		configureLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		slog.Debug("command finished", "command", cmd.Name(), "duration", time.Since(cmdStartTime))
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "local data directory (overrides DataDirectory parameter)")
	rootCmd.PersistentFlags().StringVar(&paramsFlag, "params", "", "path to the JSON parameter table file (default: $HOME/.reconcile/params.json)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
}

func configureLogging() {
	level := slog.LevelInfo
	if os.Getenv("RECONCILE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}
}

// Execute runs the root command.
func Execute() {
	queue = taskqueue.NewFIFO()
	defer queue.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// paramsPath resolves the parameter table file location.
func paramsPath() string {
	if paramsFlag != "" {
		return paramsFlag
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "params.json"
	}
	return filepath.Join(home, ".reconcile", "params.json")
}

// loadParamTable reads the JSON parameter table the CLI uses as the
// default config.ParamTable, falling back to an empty table when the file
// is absent.
func loadParamTable() (config.MapParamTable, error) {
	params, err := loadJSONParamFile(paramsPath())
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		params[config.KeyDataDirectory] = dataDirFlag
	}
	return params, nil
}

// serviceContext builds the process-wide svcctx.Context used by every
// sync subcommand, backed by the CLI's flat-file referential loader.
func serviceContext(ctx context.Context) (*svcctx.Context, config.MapParamTable, error) {
	params, err := loadParamTable()
	if err != nil {
		return nil, nil, err
	}
	loader := newFileReferentialLoader(params)
	return svcctx.New(loader, true), params, nil
}
