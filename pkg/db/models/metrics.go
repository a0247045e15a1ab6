package models

import (
	"time"

	"github.com/uptrace/bun"
)

// JobMetric is one phase of one job of a batch. Phase is empty for a job
// that only has a confidence score.
type JobMetric struct {
	bun.BaseModel `bun:"table:results.job_metrics,alias:jm"`

	ID              int64    `bun:",pk,autoincrement"`
	Batch           string   `bun:",notnull"`
	Job             string   `bun:",notnull"`
	Phase           string   `bun:",notnull,default:''"`
	SchedulerJobID  string   `bun:",nullzero"`
	WallTimeMinutes float64  `bun:",notnull,default:0"`
	PeakMemoryGB    float64  `bun:"peak_memory_gb,notnull,default:0"`
	ProteinLength   int      `bun:",nullzero"`
	IPTM            *float64 `bun:"iptm"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
