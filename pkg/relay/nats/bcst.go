package nats

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/broadcast"
)

type (
	broadcastData[T any] struct {
		bs       broadcast.BroadcastServer[T]
		quitChan chan struct{}
		name     string
	}
	// sessionContainer mirrors one session of the cluster. The delta
	// broadcaster bridges the NATS delta subject to local subscribers.
	sessionContainer struct {
		info             *model.SessionInfo
		l                *log.Logger
		conn             *nats.Conn
		deltaBroadcaster *broadcastData[model.DeltaUpdate]
		mutex            sync.Mutex
		lastDelta        *model.DeltaUpdate
	}
)

//nolint:whitespace // editor/linter issue
func newSessionContainer(
	info *model.SessionInfo,
	conn *nats.Conn,
	l *log.Logger,
) *sessionContainer {
	ret := &sessionContainer{
		info: info,
		conn: conn,
		l:    l.Named("bcst"),
	}
	// eager setup, the subscription keeps lastDelta current even before
	// the first local subscriber shows up
	ret.deltaBroadcaster = createSessionBroadcaster[model.DeltaUpdate](
		"delta", info.Key, ret.l, conn, ret.storeLastDelta)
	return ret
}

func (sc *sessionContainer) storeLastDelta(upd model.DeltaUpdate) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.lastDelta = &upd
}

func (sc *sessionContainer) getLastDelta() *model.DeltaUpdate {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if sc.lastDelta == nil {
		return nil
	}
	ret := *sc.lastDelta
	return &ret
}

func (sc *sessionContainer) close() {
	if sc.deltaBroadcaster != nil {
		close(sc.deltaBroadcaster.quitChan)
	}
}

//nolint:whitespace // editor/linter issue
func (sc *sessionContainer) createDeltaChannels() (
	dataChan <-chan model.DeltaUpdate,
	quitChan chan struct{},
) {
	dataChan = sc.deltaBroadcaster.bs.Subscribe()
	quitChan = make(chan struct{})

	go func() {
		sc.l.Debug("delta waiting on quitChan", log.String("sessionKey", sc.info.Key))
		<-quitChan
		sc.l.Debug("delta quitChan was closed", log.String("sessionKey", sc.info.Key))
		// the broadcaster may be already closed if the session was unregistered
		sc.deltaBroadcaster.bs.CancelSubscription(dataChan)
	}()
	return dataChan, quitChan
}

// we have one broadcaster per session which subscribes to the nats subject.
// we distribute it within this instance via our own broadcast server
//
//nolint:whitespace,funlen // false positive
func createSessionBroadcaster[T any](
	name, sessionKey string,
	l *log.Logger,
	c *nats.Conn,
	observe func(T),
) *broadcastData[T] {
	dataChan := make(chan T)
	quitChan := make(chan struct{})
	bs := broadcast.NewBroadcastServer(sessionKey, fmt.Sprintf("nats.%s", name), dataChan)
	var err error
	var sub *nats.Subscription
	subj := fmt.Sprintf("%s.%s", name, sessionKey)
	if sub, err = c.Subscribe(subj, func(msg *nats.Msg) {
		// decode into a fresh value, callbacks may run concurrently
		var item T
		if uErr := json.Unmarshal(msg.Data, &item); uErr != nil {
			l.Error("error unmarshalling data",
				log.String("name", name),
				log.ErrorField(uErr))
			return
		}
		if observe != nil {
			observe(item)
		}
		l.Debug("received data",
			log.String("name", name), log.String("sessionKey", sessionKey))
		dataChan <- item
	}); err != nil {
		l.Error("error subscribing to data", log.String("name", name), log.ErrorField(err))
		return nil
	}
	go func() {
		l.Debug("waiting on quitChan",
			log.String("name", name), log.String("sessionKey", sessionKey))
		<-quitChan
		l.Debug("quit received for nats subscr",
			log.String("name", name), log.String("sessionKey", sessionKey))
		bs.Close()

		if sub != nil && sub.IsValid() {
			if err := sub.Unsubscribe(); err != nil {
				l.Debug("error unsubscribing",
					log.String("sub", sub.Subject),
					log.ErrorField(err))
			} else {
				l.Debug("unsubscribed",
					log.String("sub", sub.Subject),
				)
			}
		}
	}()
	return &broadcastData[T]{
		bs:       bs,
		quitChan: quitChan,
		name:     name,
	}
}
