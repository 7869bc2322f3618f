//nolint:whitespace //can't make both the linter and editor happy :(
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/fuelcurve"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/track"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache/loadercache"
)

// CurveService stores and serves fuel curves. It acts as the curve source
// for live sessions, recent lookups are answered from a loader cache.
type CurveService struct {
	pool  *pgxpool.Pool
	cache cache.Cache[model.FuelCurveKey, model.FuelCurveData]
}

var _ fuel.Source = (*CurveService)(nil)

type CurveServiceOption func(*curveServiceConfig)

type curveServiceConfig struct {
	cacheTTL time.Duration
}

func WithCurveCacheTTL(ttl time.Duration) CurveServiceOption {
	return func(c *curveServiceConfig) {
		c.cacheTTL = ttl
	}
}

func InitCurveService(pool *pgxpool.Pool, opts ...CurveServiceOption) *CurveService {
	cfg := &curveServiceConfig{cacheTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}
	curveService := CurveService{pool: pool}
	curveService.cache = loadercache.New[model.FuelCurveKey, model.FuelCurveData](
		loadercache.WithLoader[model.FuelCurveKey, model.FuelCurveData](
			curveService.loadLatest),
		loadercache.WithExpiration[model.FuelCurveKey, model.FuelCurveData](
			cfg.cacheTTL))
	return &curveService
}

// IdealLap returns the reference lap for a track/car pair.
// Returns fuel.ErrCurveNotFound when no curve is stored for the key.
func (s *CurveService) IdealLap(
	ctx context.Context,
	key model.FuelCurveKey,
) (*model.FuelCurveData, error) {
	return s.cache.Get(ctx, key)
}

// Refresh drops the cached curve so the next lookup hits the database.
func (s *CurveService) Refresh(ctx context.Context, key model.FuelCurveKey) {
	s.cache.Invalidate(ctx, key)
}

func (s *CurveService) SaveCurve(
	ctx context.Context,
	req *SaveCurveRequest,
) (*model.DbFuelCurve, error) {
	entry := &model.DbFuelCurve{
		TrackID: req.TrackID,
		CarName: req.CarName,
		Source:  req.Source,
		Data:    req.Data,
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		trackEntry := &model.DbTrack{ID: req.TrackID}
		if req.TrackInfo != nil {
			trackEntry.Data = *req.TrackInfo
		} else {
			trackEntry.Data = model.TrackInfo{ID: req.TrackID}
		}
		if err := track.EnsureTrack(ctx, tx.Conn(), trackEntry); err != nil {
			return err
		}
		_, err := fuelcurve.Create(ctx, tx.Conn(), entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, model.FuelCurveKey{
		TrackID: req.TrackID, CarName: req.CarName,
	})
	return entry, nil
}

func (s *CurveService) GetCurveSummaries(
	ctx context.Context,
) ([]*model.FuelCurveSummary, error) {
	return fuelcurve.LoadSummaries(ctx, s.pool)
}

func (s *CurveService) GetCurveSummariesByTrack(
	ctx context.Context,
	trackID int,
) ([]*model.FuelCurveSummary, error) {
	return fuelcurve.LoadSummariesByTrack(ctx, s.pool, trackID)
}

func (s *CurveService) GetCurveById(
	ctx context.Context,
	id uuid.UUID,
) (*model.DbFuelCurve, error) {
	return fuelcurve.LoadById(ctx, s.pool, id)
}

func (s *CurveService) GetLatestCurve(
	ctx context.Context,
	key model.FuelCurveKey,
) (*model.DbFuelCurve, error) {
	return fuelcurve.LoadLatestByKey(ctx, s.pool, key)
}

func (s *CurveService) DeleteCurveById(ctx context.Context, id uuid.UUID) (int, error) {
	entry, err := fuelcurve.LoadById(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	num, err := fuelcurve.DeleteById(ctx, s.pool, id)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, model.FuelCurveKey{
		TrackID: entry.TrackID, CarName: entry.CarName,
	})
	return num, nil
}

func (s *CurveService) DeleteCurvesByKey(
	ctx context.Context,
	key model.FuelCurveKey,
) (int, error) {
	num, err := fuelcurve.DeleteByKey(ctx, s.pool, key)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, key)
	return num, nil
}

// loadLatest feeds the cache. The not-found translation keeps pgx out of
// the processing packages.
func (s *CurveService) loadLatest(
	ctx context.Context,
	key model.FuelCurveKey,
) (*model.FuelCurveData, error) {
	entry, err := fuelcurve.LoadLatestByKey(ctx, s.pool, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fuel.ErrCurveNotFound
		}
		return nil, err
	}
	return &entry.Data, nil
}
