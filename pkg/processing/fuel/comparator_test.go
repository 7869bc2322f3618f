//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package fuel

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

type fakeSource struct {
	data  *model.FuelCurveData
	err   error
	block bool
}

func (f *fakeSource) IdealLap(ctx context.Context, key model.FuelCurveKey) (*model.FuelCurveData, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func sampleCurve() *model.FuelCurveData {
	return &model.FuelCurveData{Samples: []model.FuelSample{
		{Pct: 0, Fuel: null.From(50.0)},
		{Pct: 50, Fuel: null.From(30.0)},
	}}
}

func sampleKey() model.FuelCurveKey {
	return model.FuelCurveKey{TrackID: 18, CarName: "Dallara P217"}
}

func loadedComparator(t *testing.T, data *model.FuelCurveData) *Comparator {
	c := NewComparator(WithSource(&fakeSource{data: data}))
	outcome, err := c.LoadIdeal(context.Background(), sampleKey())
	if err != nil || outcome != OutcomeLoaded {
		t.Fatalf("LoadIdeal: outcome=%v err=%v", outcome, err)
	}
	return c
}

func TestBoundary_Crossed(t *testing.T) {
	tests := []struct {
		name string
		prev float64
		cur  float64
		want bool
	}{
		{name: "wrap around the line", prev: 95.0, cur: 3.0, want: true},
		{name: "normal progress near end", prev: 95.0, cur: 97.0, want: false},
		{name: "normal progress near start", prev: 3.0, cur: 5.0, want: false},
		{name: "prev not beyond end", prev: 89.0, cur: 3.0, want: false},
		{name: "cur not below start", prev: 95.0, cur: 10.0, want: false},
		{name: "exactly at thresholds", prev: 90.0, cur: 9.0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultBoundary().Crossed(tt.prev, tt.cur); got != tt.want {
				t.Errorf("Crossed(%v,%v) = %v, want %v", tt.prev, tt.cur, got, tt.want)
			}
		})
	}
}

func TestComparator_DeltaZeroAfterCrossing(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 42.0)
	c.UpdateLive(0.003, 41.8)

	delta, ok := c.Delta()
	assert.True(t, ok)
	assert.InDelta(t, 0.0, delta, 1e-9)
}

func TestComparator_DuplicateTickIdempotent(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 42.0)
	c.UpdateLive(0.02, 41.8)
	c.UpdateLive(0.02, 41.8)

	want := []model.FuelSample{{Pct: 2, Fuel: null.From(41.8)}}
	if !reflect.DeepEqual(want, c.LiveTrace()) {
		t.Errorf("live trace = %+v, want %+v", c.LiveTrace(), want)
	}
}

func TestComparator_SingleResetOnCrossing(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	for _, pct := range []float64{0.95, 0.97, 0.03, 0.03} {
		c.UpdateLive(pct, 40.0)
	}
	assert.Equal(t, 1, c.LapCount())
	startFuel, ok := c.LapStartFuel()
	assert.True(t, ok)
	assert.InDelta(t, 40.0, startFuel, 1e-9)
}

func TestComparator_BucketFirstWriteWins(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 48.0)
	c.UpdateLive(0.01, 48.0)
	c.UpdateLive(0.50, 40.0)
	c.UpdateLive(0.504, 39.5)

	want := []model.FuelSample{
		{Pct: 1, Fuel: null.From(48.0)},
		{Pct: 50, Fuel: null.From(40.0)},
	}
	if !reflect.DeepEqual(want, c.LiveTrace()) {
		t.Errorf("live trace = %+v, want %+v", c.LiveTrace(), want)
	}
}

func TestComparator_ResetKeepsIdeal(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 42.0)
	c.UpdateLive(0.01, 41.9)

	c.Reset()

	_, ok := c.Delta()
	assert.False(t, ok)
	assert.True(t, c.HasIdeal())
	assert.Empty(t, c.LiveTrace())
	_, ok = c.LapStartFuel()
	assert.False(t, ok)
}

func TestComparator_DeltaScenario(t *testing.T) {
	// ideal: 50.0 at bucket 0, 30.0 at bucket 50 -> idealUsed 20.0
	// live: lap start 48.0, at bucket 50 fuel 29.0 -> liveUsed 19.0
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 48.0)
	c.UpdateLive(0.001, 48.0)
	c.UpdateLive(0.50, 29.0)

	delta, ok := c.Delta()
	assert.True(t, ok)
	assert.InDelta(t, 1.0, delta, 1e-9)
}

func TestComparator_NotFoundClearsCurve(t *testing.T) {
	src := &fakeSource{data: sampleCurve()}
	c := NewComparator(WithSource(src))
	outcome, err := c.LoadIdeal(context.Background(), sampleKey())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeLoaded, outcome)
	assert.True(t, c.HasIdeal())

	src.data = nil
	src.err = ErrCurveNotFound
	outcome, err = c.LoadIdeal(context.Background(), sampleKey())
	assert.NoError(t, err)
	assert.Equal(t, OutcomeNoData, outcome)
	assert.False(t, c.HasIdeal())

	c.UpdateLive(0.95, 42.0)
	c.UpdateLive(0.01, 41.9)
	_, ok := c.Delta()
	assert.False(t, ok)
}

func TestComparator_LoadFailureKeepsCurve(t *testing.T) {
	src := &fakeSource{data: sampleCurve()}
	c := NewComparator(WithSource(src))
	if _, err := c.LoadIdeal(context.Background(), sampleKey()); err != nil {
		t.Fatalf("LoadIdeal: %v", err)
	}

	cause := errors.New("connection refused")
	src.err = cause
	outcome, err := c.LoadIdeal(context.Background(), sampleKey())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, cause)
	assert.True(t, c.HasIdeal())
	if !reflect.DeepEqual(sampleCurve().Samples, c.IdealTrace()) {
		t.Errorf("ideal trace = %+v, want %+v", c.IdealTrace(), sampleCurve().Samples)
	}
}

func TestComparator_LoadTimeout(t *testing.T) {
	c := NewComparator(
		WithSource(&fakeSource{block: true}),
		WithLoadTimeout(10*time.Millisecond))
	outcome, err := c.LoadIdeal(context.Background(), sampleKey())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.HasIdeal())
}

func TestComparator_InvalidTicksIgnored(t *testing.T) {
	nan := math.NaN()
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 42.0)
	c.UpdateLive(0.01, 41.9)

	before := c.LiveTrace()
	c.UpdateLive(nan, 40.0)
	c.UpdateLive(0.5, nan)
	c.UpdateLive(-0.1, 40.0)
	c.UpdateLive(1.5, 40.0)
	c.UpdateLive(0.5, -1.0)

	if !reflect.DeepEqual(before, c.LiveTrace()) {
		t.Errorf("live trace changed by invalid ticks: %+v", c.LiveTrace())
	}
	assert.Equal(t, 1, c.LapCount())
}

func TestComparator_NoSamplesBeforeFirstCrossing(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.2, 42.0)
	c.UpdateLive(0.3, 41.5)

	assert.Empty(t, c.LiveTrace())
	_, ok := c.Delta()
	assert.False(t, ok)
}

func TestComparator_UnavailableAtMissingBucket(t *testing.T) {
	c := loadedComparator(t, sampleCurve())
	c.UpdateLive(0.95, 48.0)
	c.UpdateLive(0.01, 48.0)
	c.UpdateLive(0.25, 45.0)

	_, ok := c.Delta()
	assert.False(t, ok)
}

func TestComparator_NullSampleUnavailable(t *testing.T) {
	data := &model.FuelCurveData{Samples: []model.FuelSample{
		{Pct: 0, Fuel: null.From(50.0)},
		{Pct: 50, Fuel: null.Val[float64]{}},
	}}
	c := loadedComparator(t, data)
	c.UpdateLive(0.95, 48.0)
	c.UpdateLive(0.01, 48.0)
	c.UpdateLive(0.50, 45.0)

	_, ok := c.Delta()
	assert.False(t, ok)
}
