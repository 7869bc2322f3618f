package model

import (
	"time"

	"github.com/aarondl/opt/null"
	"github.com/gofrs/uuid/v5"
)

// NumBuckets is the number of lap distance buckets of a fuel curve (pct 0-100).
const NumBuckets = 101

type (
	// FuelCurveKey identifies a fuel curve.
	FuelCurveKey struct {
		TrackID int    `json:"trackId"`
		CarName string `json:"carName"`
	}

	// FuelSample is one reading of a fuel curve. Fuel is null when no
	// measurement exists for the bucket.
	FuelSample struct {
		Pct  int               `json:"pct"`
		Fuel null.Val[float64] `json:"fuel"`
	}

	// FuelCurveData is the payload stored for a curve.
	FuelCurveData struct {
		Samples []FuelSample `json:"samples"`
		// lap time of the recorded reference lap (seconds), 0 if unknown
		LapTime float64 `json:"lapTime,omitempty"`
	}

	DbFuelCurve struct {
		ID          uuid.UUID     `json:"id"`
		TrackID     int           `json:"trackId"`
		CarName     string        `json:"carName"`
		Source      string        `json:"source"`
		RecordStamp time.Time     `json:"recordStamp"`
		Data        FuelCurveData `json:"data"`
	}

	// FuelCurveSummary is the list representation of a stored curve.
	FuelCurveSummary struct {
		ID          uuid.UUID `json:"id"`
		TrackID     int       `json:"trackId"`
		CarName     string    `json:"carName"`
		Source      string    `json:"source"`
		RecordStamp time.Time `json:"recordStamp"`
		NumSamples  int       `json:"numSamples"`
	}
)

func (k FuelCurveKey) Valid() bool {
	return k.TrackID > 0 && k.CarName != ""
}
