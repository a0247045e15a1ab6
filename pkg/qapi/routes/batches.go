package routes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qfold/pkg/qapi/schemas"
	"github.com/quatton/qfold/pkg/qapi/services/report"
	"github.com/quatton/qfold/pkg/qreport"
)

func splitRows(s string) []string {
	var rows []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rows = append(rows, r)
		}
	}
	return rows
}

func serviceError(err error) error {
	if errors.Is(err, report.ErrBatchNotFound) {
		return huma.Error404NotFound("batch not found")
	}
	return huma.Error500InternalServerError("failed to read batch", err)
}

func RegisterBatches(api huma.API, svc *report.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-batch-metrics",
		Method:      http.MethodGet,
		Path:        "/api/batches/{batch}/metrics",
		Summary:     "Per-phase usage and scores of a batch",
		Tags:        []string{TagBatches.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *schemas.BatchInput) (*schemas.MetricsResponse, error) {
		rows, errs, err := svc.Metrics(ctx, input.Batch)
		if err != nil {
			return nil, serviceError(err)
		}
		resp := &schemas.MetricsResponse{}
		resp.Body.Batch = input.Batch
		resp.Body.Rows = rows
		for _, e := range errs {
			resp.Body.Errors = append(resp.Body.Errors, e.Error())
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-batch-table",
		Method:      http.MethodGet,
		Path:        "/api/batches/{batch}/table",
		Summary:     "Interface scores pivoted by row and column",
		Tags:        []string{TagBatches.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *schemas.TableInput) (*schemas.TableResponse, error) {
		table, excluded, err := svc.Table(ctx, input.Batch, splitRows(input.Rows))
		if err != nil {
			return nil, serviceError(err)
		}
		resp := &schemas.TableResponse{}
		resp.Body.Batch = input.Batch
		resp.Body.Table = table
		resp.Body.Excluded = excluded
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-batch-summary",
		Method:      http.MethodGet,
		Path:        "/api/batches/{batch}/summary",
		Summary:     "Median and standard deviation of scores by row or column",
		Tags:        []string{TagBatches.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *schemas.SummaryInput) (*schemas.SummaryResponse, error) {
		axis, err := qreport.ParseAxis(input.Axis)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		summary, err := svc.Summary(ctx, input.Batch, splitRows(input.Rows), axis)
		if err != nil {
			return nil, serviceError(err)
		}
		resp := &schemas.SummaryResponse{}
		resp.Body.Batch = input.Batch
		resp.Body.Summary = summary
		return resp, nil
	})
}
