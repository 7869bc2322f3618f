package basedata

import (
	"context"
	"log"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	curverepos "github.com/enduroplan/fueltrace-service-go/pkg/repository/fuelcurve"
	trackrepos "github.com/enduroplan/fueltrace-service-go/pkg/repository/track"
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2025-04-28T11:10:12Z")
	return t
}

func SampleTrack() *model.DbTrack {
	return &model.DbTrack{
		ID: 18,
		Data: model.TrackInfo{
			ID:        18,
			Name:      "testtrack",
			ShortName: "tt",
			Config:    "testconfig",
			Length:    5000,
			Pit:       model.PitInfo{Entry: 1, Exit: 2, LaneLength: 3},
		},
	}
}

// SampleCurveData contains a reading every 5 pct, starting at 52.0 liters
// and burning 2.5 liters over the lap.
func SampleCurveData() model.FuelCurveData {
	samples := make([]model.FuelSample, 0, 21)
	for pct := 0; pct <= 100; pct += 5 {
		samples = append(samples, model.FuelSample{
			Pct:  pct,
			Fuel: null.From(52.0 - 2.5*float64(pct)/100.0),
		})
	}
	return model.FuelCurveData{Samples: samples, LapTime: 108.5}
}

func SampleCurve() *model.DbFuelCurve {
	return &model.DbFuelCurve{
		TrackID: SampleTrack().ID,
		CarName: "Dallara P217",
		Source:  "test",
		Data:    SampleCurveData(),
	}
}

func CreateSampleCurve(db *pgxpool.Pool) *model.DbFuelCurve {
	ctx := context.Background()
	sampleCurve := SampleCurve()
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		if err := trackrepos.EnsureTrack(ctx, tx, SampleTrack()); err != nil {
			return err
		}
		_, err := curverepos.Create(ctx, tx, sampleCurve)
		return err
	})
	if err != nil {
		log.Fatalf("createSampleCurve: %v\n", err)
	}

	return sampleCurve
}
