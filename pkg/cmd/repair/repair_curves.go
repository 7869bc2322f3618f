package repair

// rewrites stored curves carrying samples the comparator cannot use:
// samples outside the bucket range are dropped, duplicate buckets keep
// the first reading and the samples end up sorted by pct

import (
	"context"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/db/postgres"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
)

var dryRun bool

func NewRepairCurvesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curves",
		Short: "rewrites stored curves with out of range or duplicate samples",
		Run: func(cmd *cobra.Command, args []string) {
			repairCurves(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"only report what would be rewritten")
	return cmd
}

func repairCurves(ctx context.Context) {
	// wait for database
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	postgresAddr := utils.ExtractFromDBURL(config.DB)
	if err = utils.WaitForTCP(postgresAddr, timeout); err != nil {
		log.Fatal("database  not ready", log.ErrorField(err))
	}
	pool := postgres.InitWithUrl(config.DB)
	defer pool.Close()
	doRepairCurves(ctx, pool)
}

func doRepairCurves(ctx context.Context, pool *pgxpool.Pool) {
	type fix struct {
		id   uuid.UUID
		data model.FuelCurveData
	}
	updateErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"select id, data from fuel_curve order by record_stamp asc")
		if err != nil {
			return err
		}
		defer rows.Close()
		fixes := make([]fix, 0)
		for rows.Next() {
			var id uuid.UUID
			var data model.FuelCurveData
			if err := rows.Scan(&id, &data); err != nil {
				return err
			}
			cleaned, changed := normalizeSamples(data.Samples)
			if !changed {
				continue
			}
			log.Info("curve needs rewrite",
				log.String("id", id.String()),
				log.Int("samples", len(data.Samples)),
				log.Int("cleaned", len(cleaned)))
			data.Samples = cleaned
			fixes = append(fixes, fix{id: id, data: data})
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()
		if dryRun {
			log.Info("Dry run, nothing written", log.Int("curves", len(fixes)))
			return nil
		}
		var updated int64
		for i := range fixes {
			cmdTag, err := tx.Exec(ctx,
				"update fuel_curve set data=$1 where id=$2",
				fixes[i].data, fixes[i].id)
			if err != nil {
				return err
			}
			updated += cmdTag.RowsAffected()
		}
		log.Info("updated curves", log.Int64("updated", updated))
		return nil
	})
	if updateErr != nil {
		log.Error("error repairing curves", log.ErrorField(updateErr))
	}
}

// normalizeSamples returns a cleaned copy of samples. changed reports
// whether the input differed from the result.
func normalizeSamples(samples []model.FuelSample) ([]model.FuelSample, bool) {
	ret := make([]model.FuelSample, 0, len(samples))
	seen := map[int]bool{}
	changed := false
	for _, s := range samples {
		if s.Pct < 0 || s.Pct >= model.NumBuckets {
			changed = true
			continue
		}
		if seen[s.Pct] {
			changed = true
			continue
		}
		seen[s.Pct] = true
		ret = append(ret, s)
	}
	if !sort.SliceIsSorted(ret, func(i, j int) bool { return ret[i].Pct < ret[j].Pct }) {
		changed = true
		sort.Slice(ret, func(i, j int) bool { return ret[i].Pct < ret[j].Pct })
	}
	return ret, changed
}
