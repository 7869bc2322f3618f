package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/fuelcurve"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/track"
)

type AdminService struct {
	pool   *pgxpool.Pool
	curves *CurveService
}

func InitAdminService(pool *pgxpool.Pool, curves *CurveService) *AdminService {
	adminService := AdminService{pool: pool, curves: curves}
	return &adminService
}

// DeleteTrack removes a track including all curves recorded on it.
func (s *AdminService) DeleteTrack(ctx context.Context, id int) error {
	stale := make([]model.FuelCurveKey, 0)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		summaries, err := fuelcurve.LoadSummariesByTrack(ctx, tx.Conn(), id)
		if err != nil {
			return err
		}
		stale = lo.Map(summaries,
			func(item *model.FuelCurveSummary, _ int) model.FuelCurveKey {
				return model.FuelCurveKey{TrackID: item.TrackID, CarName: item.CarName}
			})
		if _, err = fuelcurve.DeleteByTrack(ctx, tx.Conn(), id); err != nil {
			return err
		}
		_, err = track.DeleteById(ctx, tx.Conn(), id)
		return err
	})
	if err != nil {
		return err
	}
	for _, key := range stale {
		s.curves.Refresh(ctx, key)
	}
	return nil
}
