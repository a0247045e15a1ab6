package db

import (
	"context"
	"fmt"
	"time"

	"github.com/quatton/qfold/pkg/db/models"
	"github.com/quatton/qfold/pkg/qreport"
	"github.com/uptrace/bun"
)

// MetricsStore keeps the parsed metrics of batches.
type MetricsStore struct {
	db *bun.DB
}

func NewMetricsStore(db *bun.DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// ToModels converts report rows of batch to database rows.
func ToModels(batch string, rows []qreport.MetricsRow) []models.JobMetric {
	out := make([]models.JobMetric, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.JobMetric{
			Batch:           batch,
			Job:             r.Job,
			Phase:           r.Phase,
			SchedulerJobID:  r.SchedulerJobID,
			WallTimeMinutes: r.WallTimeMinutes,
			PeakMemoryGB:    r.PeakMemoryGB,
			ProteinLength:   r.ProteinLength,
			IPTM:            r.IPTM,
		})
	}
	return out
}

// Upsert stores rows, replacing earlier values of the same (batch, job,
// phase). Re-parsing a batch is therefore safe.
func (s *MetricsStore) Upsert(ctx context.Context, batch string, rows []qreport.MetricsRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ms := ToModels(batch, rows)
	now := time.Now()
	for i := range ms {
		ms[i].UpdatedAt = now
	}
	_, err := s.db.NewInsert().
		Model(&ms).
		On("CONFLICT (batch, job, phase) DO UPDATE").
		Set("scheduler_job_id = EXCLUDED.scheduler_job_id").
		Set("wall_time_minutes = EXCLUDED.wall_time_minutes").
		Set("peak_memory_gb = EXCLUDED.peak_memory_gb").
		Set("protein_length = EXCLUDED.protein_length").
		Set("iptm = EXCLUDED.iptm").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("storing metrics of %s: %w", batch, err)
	}
	return len(ms), nil
}

// List returns the stored rows of batch ordered by job and phase.
func (s *MetricsStore) List(ctx context.Context, batch string) ([]models.JobMetric, error) {
	var ms []models.JobMetric
	err := s.db.NewSelect().
		Model(&ms).
		Where("batch = ?", batch).
		Order("job ASC", "phase ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing metrics of %s: %w", batch, err)
	}
	return ms, nil
}
