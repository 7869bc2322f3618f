package processing

import (
	"context"
	"sync"
	"time"

	"github.com/aarondl/opt/null"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
)

type (
	// Processor drives one comparison session. It serializes telemetry
	// ticks into the comparator and publishes a DeltaUpdate per tick.
	Processor struct {
		mutex      sync.Mutex
		comparator *fuel.Comparator
		sessionKey string
		deltaChan  chan<- model.DeltaUpdate
		last       *model.DeltaUpdate
		ticks      int
		l          *log.Logger
	}
	ProcessorOption func(p *Processor)
)

func WithComparator(c *fuel.Comparator) ProcessorOption {
	return func(p *Processor) {
		p.comparator = c
	}
}

func WithSessionKey(key string) ProcessorOption {
	return func(p *Processor) {
		p.sessionKey = key
	}
}

// WithDeltaChan sets the channel receiving one update per processed tick.
// The receiver must keep consuming, usually a broadcast server.
func WithDeltaChan(ch chan<- model.DeltaUpdate) ProcessorOption {
	return func(p *Processor) {
		p.deltaChan = ch
	}
}

func WithLogger(l *log.Logger) ProcessorOption {
	return func(p *Processor) {
		p.l = l
	}
}

func NewProcessor(opts ...ProcessorOption) *Processor {
	ret := &Processor{
		l: log.Default().Named("processing"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.comparator == nil {
		ret.comparator = fuel.NewComparator()
	}
	return ret
}

// Process handles one telemetry tick. Invalid ticks leave the comparator
// state alone but still produce an update based on the last valid state.
func (p *Processor) Process(t *model.TelemetryTick) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.comparator.UpdateLive(t.LapDistPct, t.FuelLevel)
	pct, fuelLevel, ok := p.comparator.Current()
	if !ok {
		p.l.Debug("tick before any valid reading, no update",
			log.String("sessionKey", p.sessionKey))
		return
	}
	upd := model.DeltaUpdate{
		SessionKey:  p.sessionKey,
		SessionTime: t.SessionTime,
		Pct:         pct,
		FuelLevel:   fuelLevel,
		Stamp:       time.Now(),
	}
	if v, lapOk := p.comparator.LapStartFuel(); lapOk {
		upd.LapStartFuel = null.From(v)
	}
	if d, deltaOk := p.comparator.Delta(); deltaOk {
		upd.Delta = null.From(d)
	}
	p.last = &upd
	p.ticks++
	if p.deltaChan != nil {
		p.deltaChan <- upd
	}
}

// LastUpdate returns a copy of the most recent update, nil before the
// first valid tick and after a reset.
func (p *Processor) LastUpdate() *model.DeltaUpdate {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.last == nil {
		return nil
	}
	ret := *p.last
	return &ret
}

func (p *Processor) TraceSnapshot() *model.TraceSnapshot {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return &model.TraceSnapshot{
		Ideal: p.comparator.IdealTrace(),
		Live:  p.comparator.LiveTrace(),
	}
}

// LoadCurve loads the ideal curve for key. Safe to call while ticks are
// being processed, the comparator swaps the curve atomically.
//
//nolint:whitespace // editor/linter issue
func (p *Processor) LoadCurve(ctx context.Context, key model.FuelCurveKey) (
	fuel.LoadOutcome, error,
) {
	return p.comparator.LoadIdeal(ctx, key)
}

// Reset clears the live lap state, the loaded curve stays.
func (p *Processor) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.comparator.Reset()
	p.last = nil
}

func (p *Processor) Ticks() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.ticks
}

func (p *Processor) LapCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.comparator.LapCount()
}
