//nolint:dupl,funlen,errcheck //ok for this test code
package fuelcurve_test

import (
	"context"
	"errors"
	"log"
	"reflect"
	"testing"

	"github.com/aarondl/opt/null"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/fuelcurve"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository/track"
	base "github.com/enduroplan/fueltrace-service-go/testsupport/basedata"
	tcpg "github.com/enduroplan/fueltrace-service-go/testsupport/tcpostgres"
)

func initTestDb() *pgxpool.Pool {
	pool := tcpg.SetupTestDb()
	tcpg.ClearAllTables(pool)
	return pool
}

func createSampleEntry(db *pgxpool.Pool) *model.DbFuelCurve {
	curve := base.SampleCurve()
	err := pgx.BeginFunc(context.Background(), db, func(tx pgx.Tx) error {
		if err := track.EnsureTrack(context.Background(), tx, base.SampleTrack()); err != nil {
			return err
		}
		_, err := fuelcurve.Create(context.Background(), tx, curve)
		return err
	})
	if err != nil {
		log.Fatalf("createSampleEntry: %v\n", err)
	}

	return curve
}

func TestCreate(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)

	assert.False(t, sample.ID.IsNil())
	assert.False(t, sample.RecordStamp.IsZero())
}

func TestLoadById(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	got, err := fuelcurve.LoadById(ctx, pool, sample.ID)
	assert.NoError(t, err)
	if !reflect.DeepEqual(got.Data, sample.Data) {
		t.Errorf("LoadById() data = %v, want %v", got.Data, sample.Data)
	}
	assert.Equal(t, sample.ID, got.ID)
}

func TestLoadLatestByKey(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	// second curve for the same key, backdated one day
	older := base.SampleCurve()
	older.Source = "older"
	_, err := fuelcurve.Create(ctx, pool, older)
	assert.NoError(t, err)
	_, err = pool.Exec(ctx,
		"update fuel_curve set record_stamp=record_stamp - interval '1 day' where id=$1",
		older.ID)
	assert.NoError(t, err)

	type args struct {
		key model.FuelCurveKey
	}
	tests := []struct {
		name       string
		args       args
		wantSource string
		wantErr    bool
	}{
		{
			name:       "latest of two",
			args:       args{key: model.FuelCurveKey{TrackID: sample.TrackID, CarName: sample.CarName}},
			wantSource: sample.Source,
		},
		{
			name:    "unknown key",
			args:    args{key: model.FuelCurveKey{TrackID: 9999, CarName: "nope"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fuelcurve.LoadLatestByKey(context.Background(), pool, tt.args.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadLatestByKey() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				assert.True(t, errors.Is(err, pgx.ErrNoRows))
				return
			}
			assert.Equal(t, tt.wantSource, got.Source)
		})
	}
}

func TestLoadSummaries(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	// sparse curve: one real reading, one null bucket
	sparse := &model.DbFuelCurve{
		TrackID: sample.TrackID,
		CarName: "BMW M4 GT3",
		Source:  "test",
		Data: model.FuelCurveData{Samples: []model.FuelSample{
			{Pct: 0, Fuel: null.From(80.0)},
			{Pct: 1, Fuel: null.Val[float64]{}},
		}},
	}
	_, err := fuelcurve.Create(ctx, pool, sparse)
	assert.NoError(t, err)

	got, err := fuelcurve.LoadSummaries(ctx, pool)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	numByCar := make(map[string]int)
	for _, v := range got {
		numByCar[v.CarName] = v.NumSamples
	}
	assert.Equal(t, 21, numByCar[sample.CarName])
	assert.Equal(t, 1, numByCar["BMW M4 GT3"])

	byTrack, err := fuelcurve.LoadSummariesByTrack(ctx, pool, sample.TrackID)
	assert.NoError(t, err)
	assert.Len(t, byTrack, 2)
	byTrack, err = fuelcurve.LoadSummariesByTrack(ctx, pool, 9999)
	assert.NoError(t, err)
	assert.Len(t, byTrack, 0)
}

func TestUpdate(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	sample.Source = "changed"
	sample.Data.LapTime = 99.9
	num, err := fuelcurve.Update(ctx, pool, sample)
	assert.NoError(t, err)
	assert.Equal(t, 1, num)

	got, err := fuelcurve.LoadById(ctx, pool, sample.ID)
	assert.NoError(t, err)
	assert.Equal(t, "changed", got.Source)
	assert.Equal(t, 99.9, got.Data.LapTime)
}

func TestDeleteById(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)

	num, err := fuelcurve.DeleteById(context.Background(), pool, sample.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, num)
	num, err = fuelcurve.DeleteById(context.Background(), pool, sample.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, num)
}

func TestDeleteByKey(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	// a second revision of the same key
	other := base.SampleCurve()
	_, err := fuelcurve.Create(ctx, pool, other)
	assert.NoError(t, err)

	num, err := fuelcurve.DeleteByKey(ctx, pool,
		model.FuelCurveKey{TrackID: sample.TrackID, CarName: sample.CarName})
	assert.NoError(t, err)
	assert.Equal(t, 2, num)
}
