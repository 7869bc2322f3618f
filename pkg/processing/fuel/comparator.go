package fuel

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/aarondl/opt/null"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

// lap boundary heuristic: a lap start is assumed when the previous reading
// was beyond LAP_END_PCT and the new one is below LAP_START_PCT.
// The values must stay as they are for compatibility with the recorded curves.
const (
	LAP_END_PCT   = 90.0
	LAP_START_PCT = 10.0

	defaultLoadTimeout = 10 * time.Second
)

type (
	// Boundary decides whether two consecutive lap distance readings (0-100
	// scale) wrap around the start/finish line.
	Boundary struct {
		EndPct   float64
		StartPct float64
	}

	// LoadOutcome is the result of LoadIdeal.
	LoadOutcome int

	// idealLap is the immutable form of a loaded curve. The samples array is
	// indexed by bucket, present marks buckets that exist in the source data.
	idealLap struct {
		samples [model.NumBuckets]null.Val[float64]
		present [model.NumBuckets]bool
		trace   []model.FuelSample
	}

	// Comparator tracks ideal vs live fuel consumption across a lap.
	// UpdateLive, Delta, Reset and the trace snapshots belong to a single
	// goroutine. LoadIdeal may run concurrently with them: the curve is
	// swapped with a single assignment, readers observe either the old or
	// the new curve.
	Comparator struct {
		boundary    Boundary
		source      Source
		loadTimeout time.Duration

		ideal atomic.Pointer[idealLap]

		live         []model.FuelSample
		lapStartFuel null.Val[float64]
		curPct       float64
		curFuel      float64
		hasCur       bool
		laps         int
	}

	Option func(c *Comparator)
)

const (
	// OutcomeLoaded: the stored curve was replaced.
	OutcomeLoaded LoadOutcome = iota
	// OutcomeNoData: no curve exists for the key, the stored curve was cleared.
	OutcomeNoData
	// OutcomeFailed: the fetch failed, prior state is untouched.
	OutcomeFailed
)

func (o LoadOutcome) String() string {
	switch o {
	case OutcomeLoaded:
		return "loaded"
	case OutcomeNoData:
		return "no-data"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

func DefaultBoundary() Boundary {
	return Boundary{EndPct: LAP_END_PCT, StartPct: LAP_START_PCT}
}

// Crossed reports a wrap around the line: prev near the end of the lap,
// cur near the start.
func (b Boundary) Crossed(prevPct, curPct float64) bool {
	return prevPct > b.EndPct && curPct < b.StartPct
}

func WithSource(src Source) Option {
	return func(c *Comparator) {
		c.source = src
	}
}

func WithBoundary(b Boundary) Option {
	return func(c *Comparator) {
		c.boundary = b
	}
}

func WithLoadTimeout(d time.Duration) Option {
	return func(c *Comparator) {
		c.loadTimeout = d
	}
}

func NewComparator(opts ...Option) *Comparator {
	ret := &Comparator{
		boundary:    DefaultBoundary(),
		loadTimeout: defaultLoadTimeout,
		live:        make([]model.FuelSample, 0, model.NumBuckets),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// LoadIdeal fetches the curve for key from the source and replaces the
// stored curve on success. A missing curve clears the stored one and
// reports OutcomeNoData without an error. Any other failure (including
// the load timeout) leaves the stored curve untouched. The live trace is
// never affected.
//
//nolint:whitespace // editor/linter issue
func (c *Comparator) LoadIdeal(ctx context.Context, key model.FuelCurveKey) (
	LoadOutcome, error,
) {
	if c.source == nil {
		return OutcomeFailed, ErrNoSource
	}
	ctx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()
	data, err := c.source.IdealLap(ctx, key)
	switch {
	case errors.Is(err, ErrCurveNotFound):
		c.ideal.Store(nil)
		return OutcomeNoData, nil
	case err != nil:
		return OutcomeFailed, err
	case data == nil:
		c.ideal.Store(nil)
		return OutcomeNoData, nil
	default:
		c.ideal.Store(newIdealLap(data))
		return OutcomeLoaded, nil
	}
}

// UpdateLive processes one telemetry reading. lapDistPct is a fraction of
// the lap (0..1), fuelLevel is liters. Malformed readings are ignored.
func (c *Comparator) UpdateLive(lapDistPct, fuelLevel float64) {
	if !validTick(lapDistPct, fuelLevel) {
		return
	}
	pct := lapDistPct * 100.0
	if c.hasCur && c.boundary.Crossed(c.curPct, pct) {
		c.live = make([]model.FuelSample, 0, model.NumBuckets)
		c.lapStartFuel = null.From(fuelLevel)
		c.laps++
	}
	c.curPct = pct
	c.curFuel = fuelLevel
	c.hasCur = true
	if c.lapStartFuel.IsNull() {
		return
	}
	bucket := int(math.Floor(pct))
	if bucket < 0 || bucket >= model.NumBuckets {
		return
	}
	idx := slices.IndexFunc(c.live, func(s model.FuelSample) bool {
		return s.Pct == bucket
	})
	if idx == -1 {
		c.live = append(c.live, model.FuelSample{Pct: bucket, Fuel: null.From(fuelLevel)})
	}
}

// Delta returns the fuel saved (positive) or over consumed (negative)
// compared to the ideal lap at the current position. ok is false while the
// comparison is unavailable: no curve loaded, no lap start seen yet or no
// usable ideal sample at the current bucket.
func (c *Comparator) Delta() (delta float64, ok bool) {
	lap := c.ideal.Load()
	if lap == nil || c.lapStartFuel.IsNull() || !c.hasCur {
		return 0, false
	}
	bucket := int(math.Floor(c.curPct))
	if bucket < 0 || bucket >= model.NumBuckets {
		return 0, false
	}
	if lap.samples[bucket].IsNull() || lap.samples[0].IsNull() {
		return 0, false
	}
	idealUsed := lap.samples[0].GetOrZero() - lap.samples[bucket].GetOrZero()
	liveUsed := c.lapStartFuel.GetOrZero() - c.curFuel
	return idealUsed - liveUsed, true
}

// Reset clears the live lap state. The loaded curve stays.
func (c *Comparator) Reset() {
	c.live = make([]model.FuelSample, 0, model.NumBuckets)
	c.lapStartFuel = null.Val[float64]{}
	c.curPct = 0
	c.curFuel = 0
	c.hasCur = false
}

// IdealTrace returns the loaded curve samples in bucket order, nil when no
// curve is loaded.
func (c *Comparator) IdealTrace() []model.FuelSample {
	lap := c.ideal.Load()
	if lap == nil {
		return nil
	}
	return slices.Clone(lap.trace)
}

// LiveTrace returns the samples of the lap in progress in insertion order.
func (c *Comparator) LiveTrace() []model.FuelSample {
	return slices.Clone(c.live)
}

func (c *Comparator) HasIdeal() bool {
	return c.ideal.Load() != nil
}

func (c *Comparator) LapStartFuel() (float64, bool) {
	if c.lapStartFuel.IsNull() {
		return 0, false
	}
	return c.lapStartFuel.GetOrZero(), true
}

// Current returns the last recorded position (0-100 scale) and fuel level.
func (c *Comparator) Current() (pct, fuel float64, ok bool) {
	if !c.hasCur {
		return 0, 0, false
	}
	return c.curPct, c.curFuel, true
}

// LapCount is the number of lap start crossings seen since creation.
func (c *Comparator) LapCount() int {
	return c.laps
}

func newIdealLap(data *model.FuelCurveData) *idealLap {
	ret := &idealLap{}
	for i := range data.Samples {
		s := data.Samples[i]
		if s.Pct < 0 || s.Pct >= model.NumBuckets {
			continue
		}
		ret.samples[s.Pct] = s.Fuel
		ret.present[s.Pct] = true
	}
	ret.trace = make([]model.FuelSample, 0, model.NumBuckets)
	for i := 0; i < model.NumBuckets; i++ {
		if ret.present[i] {
			ret.trace = append(ret.trace, model.FuelSample{Pct: i, Fuel: ret.samples[i]})
		}
	}
	return ret
}

func validTick(lapDistPct, fuelLevel float64) bool {
	if math.IsNaN(lapDistPct) || math.IsInf(lapDistPct, 0) {
		return false
	}
	if math.IsNaN(fuelLevel) || math.IsInf(fuelLevel, 0) {
		return false
	}
	return lapDistPct >= 0 && lapDistPct <= 1 && fuelLevel >= 0
}
