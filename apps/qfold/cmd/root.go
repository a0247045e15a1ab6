package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/quatton/qfold/pkg/qsettings"
	"github.com/spf13/cobra"
)

type contextKey string

const appContextKey contextKey = "qfold.app"

// App is what every subcommand works with.
type App struct {
	Settings *qsettings.Settings
	Logger   *qlog.Logger
	Layout   qfs.Layout
}

var (
	cfgFile string
	verbose bool
	quiet   bool
	rootCmd = &cobra.Command{
		Use:   "qfold",
		Short: "Build, submit and evaluate AlphaFold3 TF/motif batches",
		Long: `qfold turns a table of transcription factors and binding motifs into
AlphaFold3 job descriptions, submits each job to the scheduler exactly once,
and parses scheduler accounting and AlphaFold3 confidence summaries into
comparison tables.

Typical flow:
  qfold build motifs --mode all_pairs
  qfold submit motifs --stage data
  qfold submit motifs --stage inference
  qfold parse motifs --store --upload
  qfold report motifs --summary column`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := qsettings.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := s.BindFlags(cmd.Flags(), flagKeys); err != nil {
				return err
			}

			level := qlog.ParseLevel(s.LogLevel)
			switch {
			case verbose:
				level = slog.LevelDebug
			case quiet:
				level = slog.LevelWarn
			}
			logger := qlog.NewLogger(level, os.Stderr)
			if used := s.ConfigFileUsed(); used != "" {
				logger.Debug("settings loaded", "file", used)
			}

			app := &App{
				Settings: s,
				Logger:   logger,
				Layout:   qfs.NewLayout(s.JobsRoot),
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appContextKey, app))
			return nil
		},
	}
)

// flagKeys maps settings keys to the flags that override them.
var flagKeys = map[string]string{
	qsettings.JobsRootKey:   "jobs-root",
	qsettings.BaseConfigKey: "base-config",
	qsettings.RecordsKey:    "records",
	qsettings.BackendKey:    "backend",
	qsettings.LogOrderKey:   "order",
	"motif_dir":             "motif-dir",
}

// GetApp retrieves the App from the command context.
func GetApp(cmd *cobra.Command) (*App, error) {
	app, ok := cmd.Context().Value(appContextKey).(*App)
	if !ok {
		return nil, errors.New("no app in context")
	}
	return app, nil
}

func mustApp(cmd *cobra.Command) *App {
	app, err := GetApp(cmd)
	exitIfError(err)
	return app
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitIfError(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (YAML). Searches: qfold.yaml, .qfold/config.yaml")
	rootCmd.PersistentFlags().String("jobs-root", "", "directory holding one directory per batch (overrides settings)")
	rootCmd.PersistentFlags().String("records", "", "records table (CSV with TF_Name, Sequence, Motif)")
	rootCmd.PersistentFlags().String("motif-dir", "", "directory of {Motif_ID}.txt weight matrices for records without a motif")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "log warnings and errors only")
}
