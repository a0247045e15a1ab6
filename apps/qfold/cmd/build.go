package cmd

import (
	"fmt"

	"github.com/quatton/qfold/pkg/qjob"
	"github.com/spf13/cobra"
)

var (
	buildMode          string
	buildPadding       int
	buildSeeds         int
	buildProteinSource string
	buildMotifOrder    string
	buildDryRun        bool
	buildFetch         bool
	buildEnsemblURL    string
)

var buildCmd = &cobra.Command{
	Use:   "build <batch>",
	Short: "Write one AlphaFold3 job description per TF (and motif)",
	Long: `Reads the records table and writes {jobs_root}/{batch}/{job}/{job}.json
for every job of the batch.

Modes:
  single     one job per TF with its own motif (1 seed)
  all_pairs  every TF against every motif, jobs named {tf}_{index} (5 seeds)
  padded     one job per TF with its motif padded by --padding bases (5 seeds)

Records without a sequence or motif are reported and skipped. With
--protein-source, the protein of {source}/{tf}/{tf}_data.json (a finished
data-pipeline run) is reused and the job is written as {job}_data.json.

With --fetch-sequences, records without a sequence are looked up on Ensembl
REST by their DBID (ENSP...). Failed lookups are logged and the TF is skipped
as missing input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := mustApp(cmd)
		s := app.Settings

		mode, err := qjob.ParseMode(buildMode)
		if err != nil {
			return err
		}
		records, err := loadRecords(app)
		if err != nil {
			return err
		}
		if buildFetch {
			records, err = qjob.FillSequences(cmd.Context(), records, qjob.NewEnsemblFetcher(buildEnsemblURL), app.Logger)
			if err != nil {
				return err
			}
		}

		opts := qjob.BuildOptions{
			Batch:         args[0],
			Mode:          mode,
			Padding:       buildPadding,
			Seeds:         buildSeeds,
			ProteinSource: buildProteinSource,
		}
		if buildMotifOrder != "" {
			order, err := qjob.LoadRecordsFile(app.Layout.Fs, buildMotifOrder)
			if err != nil {
				return err
			}
			order, err = qjob.ResolveMotifs(app.Layout.Fs, order, s.MotifDir)
			if err != nil {
				return err
			}
			opts.MotifOrder = qjob.Motifs(order)
		}

		builder := qjob.NewBuilder(app.Layout, app.Logger)
		var report qjob.BuildReport
		if buildDryRun {
			report, err = builder.Plan(records, opts)
		} else {
			report, err = builder.Build(records, opts)
		}
		if err != nil {
			return err
		}

		for _, job := range report.Jobs {
			fmt.Println(job.Path)
		}
		return nil
	},
}

// loadRecords reads the records table and fills motifs from the weight
// matrices of motif_dir.
func loadRecords(app *App) ([]qjob.Record, error) {
	records, err := qjob.LoadRecordsFile(app.Layout.Fs, app.Settings.Records)
	if err != nil {
		return nil, err
	}
	return qjob.ResolveMotifs(app.Layout.Fs, records, app.Settings.MotifDir)
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildMode, "mode", "m", string(qjob.ModeAllPairs), "pairing mode: single, all_pairs or padded")
	buildCmd.Flags().IntVar(&buildPadding, "padding", 0, "flank width for padded mode")
	buildCmd.Flags().IntVar(&buildSeeds, "seeds", 0, "number of model seeds (0 uses the mode default)")
	buildCmd.Flags().StringVar(&buildProteinSource, "protein-source", "", "prior batch directory whose data-pipeline protein output is reused")
	buildCmd.Flags().StringVar(&buildMotifOrder, "motif-order", "", "records table whose motifs fix the all_pairs column order")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "print the jobs without writing them")
	buildCmd.Flags().BoolVar(&buildFetch, "fetch-sequences", false, "look up missing protein sequences on Ensembl")
	buildCmd.Flags().StringVar(&buildEnsemblURL, "ensembl-url", qjob.DefaultEnsemblURL, "Ensembl REST base URL")
}
