package qreport

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/quatton/qfold/pkg/qjob"
	"github.com/quatton/qfold/pkg/qparse"
)

// MetricsRow is one phase of one job, flattened for tables and storage.
type MetricsRow struct {
	Job             string   `json:"job"`
	Phase           string   `json:"phase"`
	SchedulerJobID  string   `json:"scheduler_job_id,omitempty"`
	WallTimeMinutes float64  `json:"wall_time_minutes"`
	PeakMemoryGB    float64  `json:"peak_memory_gb"`
	ProteinLength   int      `json:"protein_length,omitempty"`
	IPTM            *float64 `json:"iptm,omitempty"`
}

// ProteinLengths maps TF names to the length of their protein sequence.
func ProteinLengths(records []qjob.Record) map[string]int {
	lengths := make(map[string]int, len(records))
	for _, r := range records {
		if r.Sequence != "" {
			lengths[r.TFName] = len(r.Sequence)
		}
	}
	return lengths
}

// MetricsRows flattens batch metrics into one row per recorded phase, cpu
// before gpu. A job with a score but no phase gets a single row with an
// empty phase. Protein lengths are looked up by job name, then by row key.
func MetricsRows(batch qparse.BatchMetrics, lengths map[string]int) []MetricsRow {
	var rows []MetricsRow
	for _, j := range batch.Jobs {
		length, ok := lengths[j.Job]
		if !ok {
			if primary, _, parsed := ParseJobName(j.Job); parsed {
				length = lengths[primary]
			}
		}
		var iptm *float64
		if v, ok := j.IPTM(); ok {
			iptm = &v
		}

		before := len(rows)
		for _, phase := range []qparse.Phase{qparse.PhaseCPU, qparse.PhaseGPU} {
			u, ok := j.Usage(phase)
			if !ok {
				continue
			}
			rows = append(rows, MetricsRow{
				Job:             j.Job,
				Phase:           string(phase),
				SchedulerJobID:  u.SchedulerJobID,
				WallTimeMinutes: u.WallTimeMinutes,
				PeakMemoryGB:    u.PeakMemoryGB,
				ProteinLength:   length,
				IPTM:            iptm,
			})
		}
		if len(rows) == before && iptm != nil {
			rows = append(rows, MetricsRow{Job: j.Job, ProteinLength: length, IPTM: iptm})
		}
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func newTSV(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func flush(cw *csv.Writer) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing tsv: %w", err)
	}
	return nil
}

// WriteTableTSV writes a header of column labels and one line per row.
// Missing scores are empty fields.
func WriteTableTSV(w io.Writer, t *Table) error {
	cw := newTSV(w)
	header := []string{""}
	for _, c := range t.Columns {
		header = append(header, c.Label)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for r, row := range t.Rows {
		line := []string{row}
		for c := range t.Columns {
			line = append(line, formatOptional(t.Cells[r][c]))
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	return flush(cw)
}

func WriteSummaryTSV(w io.Writer, groups []GroupStats) error {
	cw := newTSV(w)
	if err := cw.Write([]string{"key", "n", "median", "stddev"}); err != nil {
		return err
	}
	for _, g := range groups {
		if err := cw.Write([]string{g.Key, strconv.Itoa(g.N), formatFloat(g.Median), formatFloat(g.StdDev)}); err != nil {
			return err
		}
	}
	return flush(cw)
}

func WriteMetricsTSV(w io.Writer, rows []MetricsRow) error {
	cw := newTSV(w)
	if err := cw.Write([]string{"job", "phase", "scheduler_job_id", "wall_time_minutes", "peak_memory_gb", "protein_length", "iptm"}); err != nil {
		return err
	}
	for _, r := range rows {
		length := ""
		if r.ProteinLength > 0 {
			length = strconv.Itoa(r.ProteinLength)
		}
		line := []string{
			r.Job,
			r.Phase,
			r.SchedulerJobID,
			formatFloat(r.WallTimeMinutes),
			formatFloat(r.PeakMemoryGB),
			length,
			formatOptional(r.IPTM),
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	return flush(cw)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
