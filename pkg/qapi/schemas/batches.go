package schemas

import "github.com/quatton/qfold/pkg/qreport"

type BatchInput struct {
	Batch string `path:"batch" doc:"Batch name (a directory under the jobs root)"`
}

type TableInput struct {
	BatchInput
	Rows string `query:"rows" required:"false" doc:"Comma separated row order; defaults to the record order"`
}

type SummaryInput struct {
	TableInput
	Axis string `query:"axis" enum:"row,column" default:"row" doc:"Group by rows or columns"`
}

type MetricsResponse struct {
	Body struct {
		Batch  string               `json:"batch"`
		Rows   []qreport.MetricsRow `json:"rows" doc:"One row per job phase"`
		Errors []string             `json:"errors,omitempty" doc:"Per-job parse errors"`
	}
}

type TableResponse struct {
	Body struct {
		Batch    string              `json:"batch"`
		Table    *qreport.Table      `json:"table"`
		Excluded []qreport.Exclusion `json:"excluded,omitempty" doc:"Jobs left out of the table"`
	}
}

type SummaryResponse struct {
	Body struct {
		Batch   string          `json:"batch"`
		Summary qreport.Summary `json:"summary"`
	}
}
