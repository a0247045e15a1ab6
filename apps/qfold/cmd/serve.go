package cmd

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/quatton/qfold/pkg/qapi"
	"github.com/quatton/qfold/pkg/qapi/config"
	"github.com/quatton/qfold/pkg/qapi/services"
	"github.com/quatton/qfold/pkg/qapi/services/iam"
	"github.com/quatton/qfold/pkg/qapi/services/report"
	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qjob"
	"github.com/quatton/qfold/pkg/qparse"
	"github.com/quatton/qfold/pkg/qreport"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve batch metrics and tables over HTTP",
	Long: `Starts the report API. It is configured from the environment (and .env in
development): PORT, QFOLD_JOBS_ROOT, QFOLD_RECORDS, QFOLD_LOG_ORDER,
VALKEY_URL, CACHE_TTL, AUTH_SECRET and AUTH_AUDIENCE. With AUTH_SECRET set
every /api route needs an HS256 bearer token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := mustApp(cmd)
		cfg, err := config.ValidateEnv()
		if err != nil {
			return err
		}
		cfg.Print(log.Printf)

		layout := qfs.NewLayout(cfg.JobsRoot)
		var (
			rows, labels []string
			lengths      map[string]int
		)
		if cfg.Records != "" {
			records, err := qjob.LoadRecordsFile(layout.Fs, cfg.Records)
			if err != nil {
				return err
			}
			rows, labels, lengths = qjob.TFOrder(records), qjob.Motifs(records), qreport.ProteinLengths(records)
		}

		order, err := qparse.ParseOrder(cfg.LogOrder)
		if err != nil {
			return err
		}
		cache, err := newAccountantCache(cfg.ValkeyURL, app.Logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		accountant := qparse.NewCachedAccountant(qparse.NewSeffAccountant(), cache, cfg.CacheTTL)
		parser := qparse.NewParser(layout, accountant, order, app.Logger)

		svcs := &services.Services{
			IAM:    iam.NewIAMService(cfg.AuthSecret, cfg.AuthAudience),
			Report: report.NewService(layout, parser, rows, labels, lengths),
		}
		api := qapi.NewApi()
		qapi.Mount(api.Api, svcs, app.Logger)

		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Printf("🚀 qfold reports starting on %s\n", addr)
		log.Printf("📚 OpenAPI docs: http://localhost%s/docs\n", addr)

		if err := http.ListenAndServe(addr, api.Router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
