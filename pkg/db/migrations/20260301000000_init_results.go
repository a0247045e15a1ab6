package migrations

import (
	"context"
	"fmt"

	"github.com/quatton/qfold/pkg/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		if _, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS results").Exec(ctx); err != nil {
			return err
		}

		_, err := db.NewCreateTable().
			Model((*models.JobMetric)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewCreateIndex().
			Model((*models.JobMetric)(nil)).
			Index("results_job_metrics_batch_job_phase_idx").
			Unique().
			IfNotExists().
			Column("batch", "job", "phase").
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		if _, err := db.NewDropTable().Model((*models.JobMetric)(nil)).IfExists().Exec(ctx); err != nil {
			return err
		}
		_, err := db.NewRaw("DROP SCHEMA IF EXISTS results").Exec(ctx)
		return err
	})
}
