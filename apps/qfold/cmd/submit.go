package cmd

import (
	"context"
	"fmt"

	"github.com/quatton/qfold/pkg/qconf"
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qsubmit"
	"github.com/spf13/cobra"
)

var (
	submitStage  string
	submitSets   []string
	submitDryRun bool
	submitJobs   []string
)

var submitCmd = &cobra.Command{
	Use:   "submit <batch>",
	Short: "Submit every ready job of a batch exactly once",
	Long: `Classifies each job directory of the batch for the stage and submits the
ready ones. A job whose stage already ran (or was accepted by the backend) is
skipped; a job without its input is reported as not ready. Running the same
pass again is safe.

Stages:
  data       CPU data pipeline only ({job}.json)
  inference  GPU inference on the data-pipeline output ({job}_data.json)
  full       whatever is left in one GPU job

--set overrides base configuration keys and wins over the stage defaults.
Values are YAML typed: --set gpus=2 is a number, --set run_inference=false a
boolean. working_directory=D expands to output_dir, slurm_output and
slurm_error; phase=cpu|gpu to partition and run_inference.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := mustApp(cmd)

		stage, err := qsubmit.ParseStage(submitStage)
		if err != nil {
			return err
		}
		var overrides []qconf.Override
		for _, s := range submitSets {
			o, err := qconf.ParseOverride(s)
			if err != nil {
				return err
			}
			overrides = append(overrides, o)
		}

		base, err := qconf.LoadBase(app.Settings.BaseConfig)
		if err != nil {
			return err
		}

		opts, err := app.Settings.BackendOptions()
		if err != nil {
			return err
		}
		submitter, err := qsubmit.New(app.Settings.Backend, opts)
		if err != nil {
			return err
		}
		if c, ok := submitter.(interface{ Close() error }); ok {
			defer c.Close()
		}

		ctx := cmd.Context()
		if app.Settings.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, app.Settings.Timeout)
			defer cancel()
		}

		controller := qsubmit.NewController(app.Layout, base, submitter, app.Logger)
		report, err := controller.Run(ctx, args[0], qsubmit.Options{
			Stage:     stage,
			Overrides: overrides,
			DryRun:    submitDryRun,
			Jobs:      submitJobs,
		})
		if err != nil {
			return err
		}

		for _, o := range report.Outcomes {
			switch {
			case o.Err != nil:
				fmt.Printf("✗ %s: %v\n", o.Job, o.Err)
			case o.Submitted:
				fmt.Printf("✓ %s submitted (%s %s)\n", o.Job, o.Marker.Backend, o.Marker.SchedulerID)
			case o.State == qsubmit.StateReady:
				fmt.Printf("• %s ready, script %s\n", o.Job, o.Script)
			default:
				fmt.Printf("- %s %s: %s\n", o.Job, o.State, o.Reason)
			}
		}
		fmt.Printf("\n%d submitted, %d already submitted, %d not ready, %d failed\n",
			report.Submitted(), report.Count(qsubmit.StateAlreadySubmitted), report.Count(qsubmit.StateNotReady), len(report.Failed()))

		if failed := report.Failed(); len(failed) > 0 {
			return qerr.Newf(qerr.CodeSubmissionError, "%d of %d jobs failed", len(failed), len(report.Outcomes))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&submitStage, "stage", "s", string(qsubmit.StageFull), "stage to submit: data, inference or full")
	submitCmd.Flags().StringArrayVar(&submitSets, "set", nil, "override a configuration key (key=value, repeatable)")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "render and write scripts without submitting")
	submitCmd.Flags().StringSliceVar(&submitJobs, "job", nil, "only these jobs (repeatable)")
	submitCmd.Flags().String("base-config", "", "base scheduler configuration (YAML)")
	submitCmd.Flags().String("backend", "", "submission backend: slurm, local, docker or k8s")
}
