package local

import (
	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
)

// DataRelay implementation based on the local SessionLookup. Used when
// no message broker is configured, single instance deployments.
type (
	LocalRelay struct {
		relay.EmptyRelay
		lookup *session.SessionLookup
		l      *log.Logger
	}
	Option func(*LocalRelay)
)

func NewLocalRelay(lookup *session.SessionLookup, opts ...Option) *LocalRelay {
	ret := &LocalRelay{
		lookup: lookup,
		l:      log.Default().Named("relay.local"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func WithLogger(arg *log.Logger) Option {
	return func(l *LocalRelay) {
		l.l = arg
	}
}

func (l *LocalRelay) PublishSessionRegistered(spd *session.SessionProcessingData) error {
	return nil
}

func (l *LocalRelay) PublishSessionUnregistered(sessionKey string) error {
	return nil
}

// this method is called when the watchdog detects a stale session and deletes it
func (l *LocalRelay) DeleteSessionCallback(sessionKey string) {
	l.l.Debug("DeleteSessionCallback", log.String("sessionKey", sessionKey))
}

func (l *LocalRelay) LiveSessions() []*model.SessionInfo {
	return l.lookup.GetSessions()
}

func (l *LocalRelay) GetSession(sessionKey string) (*model.SessionInfo, error) {
	spd, err := l.lookup.GetSession(sessionKey)
	if err != nil {
		return nil, relay.ErrSessionNotFound
	}
	return spd.Session, nil
}

func (l *LocalRelay) LastDelta(sessionKey string) (*model.DeltaUpdate, error) {
	spd, err := l.lookup.GetSession(sessionKey)
	if err != nil {
		return nil, relay.ErrSessionNotFound
	}
	return spd.Processor.LastUpdate(), nil
}

//nolint:whitespace // false positive
func (l *LocalRelay) SubscribeDeltaData(sessionKey string) (
	d <-chan model.DeltaUpdate,
	q chan<- struct{},
	err error,
) {
	spd, err := l.lookup.GetSession(sessionKey)
	if err != nil {
		return nil, nil, relay.ErrSessionNotFound
	}
	sourceChan := spd.DeltaBroadcast.Subscribe()
	quitChan := make(chan struct{})

	go func() {
		l.l.Debug("deltaData waiting on quitChan", log.String("sessionKey", sessionKey))
		<-quitChan
		l.l.Debug("deltaData quitChan was closed", log.String("sessionKey", sessionKey))
		spd.DeltaBroadcast.CancelSubscription(sourceChan)
	}()

	return sourceChan, quitChan, nil
}

func (l *LocalRelay) Close() {
}
