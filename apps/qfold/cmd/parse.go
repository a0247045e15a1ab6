package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/quatton/qfold/pkg/db"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qreport"
	"github.com/spf13/cobra"
)

var (
	parseFormat string
	parseOutput string
	parseStore  bool
	parseUpload bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <batch>",
	Short: "Extract wall time, peak memory and ipTM of every job",
	Long: `Scans the scheduler logs of each job of the batch, classifies them as the
cpu (data pipeline) or gpu (inference) phase, reads seff for wall-clock time
and peak memory, and reads the ipTM of the AlphaFold3 summary. Jobs still
running simply have fewer values.

When two logs of a job belong to the same phase the later one wins; --order
decides what later means (listing: file name order, mtime: modification time).

--store upserts the rows into Postgres (results.job_metrics) and --upload
archives logs, scripts, markers and summaries to S3.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := mustApp(cmd)
		batch := args[0]
		ctx := cmd.Context()

		if err := requireBatch(app, batch); err != nil {
			return err
		}

		parser, cache, err := newParser(app)
		if err != nil {
			return err
		}
		defer cache.Close()

		metrics, err := parser.ParseBatch(ctx, batch)
		if err != nil {
			return err
		}
		lengths := map[string]int{}
		if records, err := loadRecords(app); err == nil {
			lengths = qreport.ProteinLengths(records)
		} else {
			app.Logger.Debug("no protein lengths", "error", err)
		}
		rows := qreport.MetricsRows(metrics, lengths)

		if err := writeOutput(parseOutput, func(w io.Writer) error {
			if parseFormat == "json" {
				return qreport.WriteJSON(w, rows)
			}
			return qreport.WriteMetricsTSV(w, rows)
		}); err != nil {
			return err
		}

		if parseStore {
			if err := storeMetrics(ctx, app, batch, rows); err != nil {
				return err
			}
		}
		if parseUpload {
			if err := uploadBatch(ctx, app, batch); err != nil {
				return err
			}
		}
		if errs := metrics.Errors(); len(errs) > 0 {
			app.Logger.Warn("some logs could not be parsed", "count", len(errs))
		}
		return nil
	},
}

func storeMetrics(ctx context.Context, app *App, batch string, rows []qreport.MetricsRow) error {
	if app.Settings.DB.URL == "" {
		return qerr.Newf(qerr.CodeConfigError, "--store needs db.url (QFOLD_DB_URL)")
	}
	database, err := db.New(ctx, db.Config{URL: app.Settings.DB.URL})
	if err != nil {
		return err
	}
	defer database.Close()
	n, err := db.NewMetricsStore(database).Upsert(ctx, batch, rows)
	if err != nil {
		return err
	}
	app.Logger.Info("metrics stored", "batch", batch, "rows", n)
	return nil
}

func uploadBatch(ctx context.Context, app *App, batch string) error {
	if app.Settings.S3.Endpoint == "" {
		return qerr.Newf(qerr.CodeConfigError, "--upload needs s3.endpoint (QFOLD_S3_ENDPOINT)")
	}
	archiver, err := newArchiver(app)
	if err != nil {
		return err
	}
	if _, err := archiver.ArchiveBatch(ctx, batch); err != nil {
		return err
	}
	if parseOutput != "" && parseOutput != "-" {
		if _, err := archiver.ArchiveFile(ctx, batch, parseOutput); err != nil {
			return err
		}
	}
	return nil
}

// writeOutput writes to path, or stdout for "" and "-".
func writeOutput(path string, write func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return write(f)
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "tsv", "output format: tsv or json")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "write rows to this file (default stdout)")
	parseCmd.Flags().String("order", "", "which same-phase log wins: listing or mtime")
	parseCmd.Flags().BoolVar(&parseStore, "store", false, "upsert rows into Postgres")
	parseCmd.Flags().BoolVar(&parseUpload, "upload", false, "archive batch artifacts to S3")
}
