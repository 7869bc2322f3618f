package session

import (
	"context"
	"sync"
	"time"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/broadcast"
)

// SessionProcessingData bundles everything a live comparison session
// needs: the processor, the channel it publishes into and the broadcast
// server fanning updates out to subscribers.
type SessionProcessingData struct {
	Session        *model.SessionInfo
	Processor      *processing.Processor
	DeltaBroadcast broadcast.BroadcastServer[model.DeltaUpdate]

	deltaChan chan model.DeltaUpdate
	mutex     sync.Mutex
	lastRx    time.Time
	closed    bool
}

//nolint:whitespace // editor/linter issue
func newSessionProcessingData(
	sess *model.SessionInfo,
	source fuel.Source,
) *SessionProcessingData {
	deltaChan := make(chan model.DeltaUpdate)
	ret := &SessionProcessingData{
		Session:   sess,
		deltaChan: deltaChan,
		lastRx:    time.Now(),
	}
	ret.Processor = processing.NewProcessor(
		processing.WithSessionKey(sess.Key),
		processing.WithComparator(fuel.NewComparator(fuel.WithSource(source))),
		processing.WithDeltaChan(deltaChan),
	)
	ret.DeltaBroadcast = broadcast.NewBroadcastServer(sess.Key, "delta", deltaChan)
	return ret
}

// ProcessTick feeds one telemetry tick into the processor and marks the
// session as active. Ticks arriving after Close are dropped.
func (d *SessionProcessingData) ProcessTick(t *model.TelemetryTick) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return
	}
	d.lastRx = time.Now()
	d.Processor.Process(t)
}

// LoadCurve (re)loads the ideal curve for the session.
//
//nolint:whitespace // editor/linter issue
func (d *SessionProcessingData) LoadCurve(ctx context.Context) (
	fuel.LoadOutcome, error,
) {
	return d.Processor.LoadCurve(ctx, d.Session.Curve)
}

func (d *SessionProcessingData) LastActivity() time.Time {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.lastRx
}

// Close shuts down the broadcast server. It waits for an in-flight tick
// to finish so the processor never publishes into a dead fan-out.
func (d *SessionProcessingData) Close() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.DeltaBroadcast.Close()
}
