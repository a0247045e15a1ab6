// Package report computes batch metrics and tables for the API.
package report

import (
	"context"
	"errors"

	"github.com/quatton/qfold/pkg/qfs"
	"github.com/quatton/qfold/pkg/qparse"
	"github.com/quatton/qfold/pkg/qreport"
	"github.com/spf13/afero"
)

var ErrBatchNotFound = errors.New("batch not found")

// Service reads batches under a jobs root on every request; the accounting
// cache behind the parser keeps repeated reads cheap.
type Service struct {
	layout   qfs.Layout
	parser   *qparse.Parser
	rowOrder []string
	labels   []string
	lengths  map[string]int
}

// NewService builds a report service. rowOrder and labels are the default
// table layout (TF order and motif sequences), lengths the protein length of
// each TF.
func NewService(layout qfs.Layout, parser *qparse.Parser, rowOrder, labels []string, lengths map[string]int) *Service {
	return &Service{layout: layout, parser: parser, rowOrder: rowOrder, labels: labels, lengths: lengths}
}

func (s *Service) parse(ctx context.Context, batch string) (qparse.BatchMetrics, error) {
	if batch == "" || batch == "." || batch == ".." {
		return qparse.BatchMetrics{}, ErrBatchNotFound
	}
	ok, err := afero.DirExists(s.layout.Fs, s.layout.BatchDir(batch))
	if err != nil {
		return qparse.BatchMetrics{}, err
	}
	if !ok {
		return qparse.BatchMetrics{}, ErrBatchNotFound
	}
	return s.parser.ParseBatch(ctx, batch)
}

// Metrics returns one row per job phase and the parse errors of the batch.
func (s *Service) Metrics(ctx context.Context, batch string) ([]qreport.MetricsRow, []error, error) {
	m, err := s.parse(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	return qreport.MetricsRows(m, s.lengths), m.Errors(), nil
}

// Table pivots the interface scores of a batch. An empty rows uses the
// default row order.
func (s *Service) Table(ctx context.Context, batch string, rows []string) (*qreport.Table, []qreport.Exclusion, error) {
	m, err := s.parse(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		rows = s.rowOrder
	}
	t, excluded := qreport.Pivot(m.IPTMScores(), rows, s.labels)
	return t, excluded, nil
}

func (s *Service) Summary(ctx context.Context, batch string, rows []string, axis qreport.Axis) (qreport.Summary, error) {
	t, _, err := s.Table(ctx, batch, rows)
	if err != nil {
		return qreport.Summary{}, err
	}
	return t.Summarize(axis), nil
}
