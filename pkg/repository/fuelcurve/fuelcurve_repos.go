//nolint:whitespace // can't make both editor and linter happy
package fuelcurve

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository"
)

func Create(
	ctx context.Context,
	conn repository.Querier,
	curve *model.DbFuelCurve,
) (*model.DbFuelCurve, error) {
	row := conn.QueryRow(ctx, `
	insert into fuel_curve (track_id, car_name, source, data)
	values ($1,$2,$3,$4)
	returning id,record_stamp
	`, curve.TrackID, curve.CarName, curve.Source, curve.Data)

	if err := row.Scan(&curve.ID, &curve.RecordStamp); err != nil {
		return nil, err
	}

	return curve, nil
}

func LoadById(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
) (*model.DbFuelCurve, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where id=$1", selector), id)
	var curve model.DbFuelCurve
	if err := scan(&curve, row); err != nil {
		return nil, err
	}
	return &curve, nil
}

// LoadLatestByKey returns the most recent curve for a track/car combination.
func LoadLatestByKey(
	ctx context.Context,
	conn repository.Querier,
	key model.FuelCurveKey,
) (*model.DbFuelCurve, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where track_id=$1 and car_name=$2 order by record_stamp desc",
			selector),
		key.TrackID, key.CarName)
	var curve model.DbFuelCurve
	if err := scan(&curve, row); err != nil {
		return nil, err
	}
	return &curve, nil
}

func LoadSummaries(
	ctx context.Context,
	conn repository.Querier,
) ([]*model.FuelCurveSummary, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s order by record_stamp desc", summarySelector))
	if err != nil {
		return nil, err
	}
	return collectSummaries(rows)
}

func LoadSummariesByTrack(
	ctx context.Context,
	conn repository.Querier,
	trackID int,
) ([]*model.FuelCurveSummary, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s where track_id=$1 order by record_stamp desc", summarySelector),
		trackID)
	if err != nil {
		return nil, err
	}
	return collectSummaries(rows)
}

func Update(
	ctx context.Context,
	conn repository.Querier,
	curve *model.DbFuelCurve,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"update fuel_curve set source=$1, data=$2 where id=$3",
		curve.Source, curve.Data, curve.ID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteById(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from fuel_curve where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// deletes all curves of a track, returns number of rows deleted.
func DeleteByTrack(
	ctx context.Context,
	conn repository.Querier,
	trackID int,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"delete from fuel_curve where track_id=$1", trackID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// deletes all curves of a track/car combination, returns number of rows deleted.
func DeleteByKey(
	ctx context.Context,
	conn repository.Querier,
	key model.FuelCurveKey,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"delete from fuel_curve where track_id=$1 and car_name=$2",
		key.TrackID, key.CarName)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func collectSummaries(rows pgx.Rows) ([]*model.FuelCurveSummary, error) {
	return pgx.CollectRows[*model.FuelCurveSummary](rows,
		func(row pgx.CollectableRow) (*model.FuelCurveSummary, error) {
			return pgx.RowToAddrOfStructByPos[model.FuelCurveSummary](row)
		})
}

// little helper
const selector = string(`
select id,track_id,car_name,source,record_stamp,data from fuel_curve
`)

// num_samples counts the buckets holding a real reading
const summarySelector = string(`
select id,track_id,car_name,source,record_stamp,
(select count(*) from jsonb_array_elements(data->'samples') s
 where s->>'fuel' is not null) as num_samples
from fuel_curve
`)

func scan(e *model.DbFuelCurve, row pgx.Row) error {
	return row.Scan(&e.ID, &e.TrackID, &e.CarName, &e.Source, &e.RecordStamp, &e.Data)
}
