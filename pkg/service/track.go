package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/track"
)

type TrackService struct {
	pool *pgxpool.Pool
}

func InitTrackService(pool *pgxpool.Pool) *TrackService {
	trackService := TrackService{pool: pool}
	return &trackService
}

func (s *TrackService) GetTracks(ctx context.Context) ([]*model.DbTrack, error) {
	return track.LoadAll(ctx, s.pool)
}

func (s *TrackService) GetTrack(ctx context.Context, id int) (*model.DbTrack, error) {
	return track.LoadById(ctx, s.pool, id)
}

func (s *TrackService) EnsureTrack(ctx context.Context, entry *model.DbTrack) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return track.EnsureTrack(ctx, tx.Conn(), entry)
	})
}

func (s *TrackService) UpdateTrack(ctx context.Context, entry *model.DbTrack) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := track.Update(ctx, tx.Conn(), entry)
		return err
	})
}
