package cmd

import (
	"io"
	"sort"

	"github.com/quatton/qfold/pkg/qjob"
	"github.com/quatton/qfold/pkg/qreport"
	"github.com/spf13/cobra"
)

var (
	reportRows    []string
	reportSummary string
	reportCompare bool
	reportFormat  string
	reportOutput  string
)

var reportCmd = &cobra.Command{
	Use:   "report <batch> [batch...]",
	Short: "Pivot ipTM scores into a TF-by-motif table",
	Long: `Builds a table with one row per TF and one column per motif index from the
ipTM of every job named {tf}_{index}. Rows follow the records table (or
--rows), columns are labeled with the motifs of the records table.

--summary row|column prints the median and standard deviation of each row
or column instead of the table. --compare summarizes each batch over all of
its scores, e.g. to compare padding widths.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := mustApp(cmd)
		ctx := cmd.Context()

		var axis qreport.Axis
		if reportSummary != "" {
			a, err := qreport.ParseAxis(reportSummary)
			if err != nil {
				return err
			}
			axis = a
		}

		var rows, labels []string
		if records, err := loadRecords(app); err == nil {
			rows, labels = qjob.TFOrder(records), qjob.Motifs(records)
		} else {
			app.Logger.Debug("records unavailable, labeling columns by index", "error", err)
		}
		if len(reportRows) > 0 {
			rows = reportRows
		}

		parser, cache, err := newParser(app)
		if err != nil {
			return err
		}
		defer cache.Close()

		var batches []qreport.BatchScores
		for _, batch := range args {
			if err := requireBatch(app, batch); err != nil {
				return err
			}
			m, err := parser.ParseBatch(ctx, batch)
			if err != nil {
				return err
			}
			batches = append(batches, qreport.BatchScores{Batch: batch, Scores: m.IPTMScores()})
		}

		if reportCompare {
			groups := qreport.CompareBatches(batches)
			return writeOutput(reportOutput, func(w io.Writer) error {
				if reportFormat == "json" {
					return qreport.WriteJSON(w, groups)
				}
				return qreport.WriteSummaryTSV(w, groups)
			})
		}

		return writeOutput(reportOutput, func(w io.Writer) error {
			for i, b := range batches {
				order := rows
				if len(order) == 0 {
					order = primaries(b.Scores)
				}
				table, excluded := qreport.Pivot(b.Scores, order, labels)
				for _, ex := range excluded {
					app.Logger.Info("excluded from table", "batch", b.Batch, "job", ex.Job, "reason", ex.Reason)
				}
				if len(batches) > 1 && reportFormat != "json" {
					if i > 0 {
						if _, err := io.WriteString(w, "\n"); err != nil {
							return err
						}
					}
					if _, err := io.WriteString(w, "# "+b.Batch+"\n"); err != nil {
						return err
					}
				}
				if err := writeTable(w, b.Batch, table, axis); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func writeTable(w io.Writer, batch string, table *qreport.Table, axis qreport.Axis) error {
	switch {
	case axis != "" && reportFormat == "json":
		return qreport.WriteJSON(w, map[string]any{"batch": batch, "summary": table.Summarize(axis)})
	case axis != "":
		return qreport.WriteSummaryTSV(w, table.Summarize(axis).Groups)
	case reportFormat == "json":
		return qreport.WriteJSON(w, map[string]any{"batch": batch, "table": table})
	}
	return qreport.WriteTableTSV(w, table)
}

// primaries is the sorted set of row keys of scores, used when there is no
// records table to order rows by.
func primaries(scores map[string]float64) []string {
	seen := map[string]bool{}
	var out []string
	for name := range scores {
		if p, _, ok := qreport.ParseJobName(name); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringSliceVar(&reportRows, "rows", nil, "row order (comma separated TF names); default is the records table order")
	reportCmd.Flags().StringVar(&reportSummary, "summary", "", "summarize by row or column instead of printing the table")
	reportCmd.Flags().BoolVar(&reportCompare, "compare", false, "summarize each batch over all of its scores")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "tsv", "output format: tsv or json")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "write to this file (default stdout)")
	reportCmd.Flags().String("order", "", "which same-phase log wins: listing or mtime")
}

