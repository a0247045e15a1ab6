package qjob

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qlog"
	"github.com/quatton/qfold/pkg/qseq"
	"github.com/spf13/afero"
)

// Record is one row of the TF table.
type Record struct {
	TFName   string
	Sequence string
	Motif    string
	MotifID  string
	DBID     string
}

const (
	colTFName   = "TF_Name"
	colSequence = "Sequence"
	colMotif    = "Motif"
	colMotifID  = "Motif_ID"
	colDBID     = "DBID"
)

// LoadRecords reads a CSV table with a header row. TF_Name, Sequence and
// Motif are required columns; Motif_ID and DBID are optional.
func LoadRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, qerr.Newf(qerr.CodeParseError, "records: empty table")
		}
		return nil, qerr.New(qerr.CodeParseError, fmt.Errorf("records header: %w", err))
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{colTFName, colSequence, colMotif} {
		if _, ok := idx[col]; !ok {
			return nil, qerr.Newf(qerr.CodeParseError, "records: missing column %s", col)
		}
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, qerr.New(qerr.CodeParseError, fmt.Errorf("records: %w", err))
		}
		records = append(records, Record{
			TFName:   field(row, colTFName),
			Sequence: field(row, colSequence),
			Motif:    strings.ToUpper(field(row, colMotif)),
			MotifID:  field(row, colMotifID),
			DBID:     field(row, colDBID),
		})
	}
	return records, nil
}

// LoadRecordsFile reads records from path on fs.
func LoadRecordsFile(fs afero.Fs, path string) ([]Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening records %s: %w", path, err)
	}
	defer f.Close()
	return LoadRecords(f)
}

// TFOrder returns the TF names in table order; it is the canonical row order
// of comparison tables.
func TFOrder(records []Record) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.TFName)
	}
	return names
}

// Motifs returns the motifs in table order, empty strings included so that
// indices stay stable.
func Motifs(records []Record) []string {
	motifs := make([]string, 0, len(records))
	for _, r := range records {
		motifs = append(motifs, r.Motif)
	}
	return motifs
}

// ResolveMotifs returns a copy of records where empty motifs are replaced by
// the consensus of {pwmDir}/{MotifID}.txt when that matrix exists.
func ResolveMotifs(fs afero.Fs, records []Record, pwmDir string) ([]Record, error) {
	out := make([]Record, len(records))
	copy(out, records)
	if pwmDir == "" {
		return out, nil
	}
	for i, r := range out {
		if r.Motif != "" || r.MotifID == "" {
			continue
		}
		f, err := fs.Open(filepath.Join(pwmDir, r.MotifID+".txt"))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		m, err := qseq.LoadWeightMatrix(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("motif %s: %w", r.MotifID, err)
		}
		out[i].Motif = qseq.Consensus(m)
	}
	return out, nil
}

// SequenceFetcher looks up a protein sequence in a remote database. ok is
// false when the database has no sequence for id.
type SequenceFetcher interface {
	FetchSequence(ctx context.Context, id string) (seq string, ok bool, err error)
}

// FillSequences returns a copy of records with empty sequences looked up by
// DBID (or TF name when DBID is empty). A failed lookup is logged and treated
// like an unavailable sequence: the record stays empty and the builder
// reports it as missing input. Only cancellation of ctx is returned.
func FillSequences(ctx context.Context, records []Record, fetcher SequenceFetcher, logger *qlog.Logger) ([]Record, error) {
	out := make([]Record, len(records))
	copy(out, records)
	if fetcher == nil {
		return out, nil
	}
	if logger == nil {
		logger = qlog.Discard()
	}
	for i, r := range out {
		if r.Sequence != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := r.DBID
		if id == "" {
			id = r.TFName
		}
		seq, ok, err := fetcher.FetchSequence(ctx, id)
		switch {
		case err != nil:
			logger.Warn("sequence lookup failed", "tf", r.TFName, "id", id, "error", err)
		case !ok:
			logger.Info("no sequence available", "tf", r.TFName, "id", id)
		default:
			out[i].Sequence = seq
		}
	}
	return out, nil
}
