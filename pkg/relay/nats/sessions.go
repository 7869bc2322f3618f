package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

type (
	// GlobalSessions keeps the cluster wide session registry in the NATS
	// KV store. Instances that start later read it to serve data for
	// sessions that were registered before they came up.
	GlobalSessions struct {
		kv       jetstream.KeyValue
		sessions map[string]*model.SessionInfo
		mutex    sync.Mutex
		l        *log.Logger
		rev      uint64
	}

	sessionLookupTransfer struct{}
)

//nolint:whitespace // editor/linter issue
func (s sessionLookupTransfer) ToBinary(input map[string]*model.SessionInfo) (
	[]byte, error,
) {
	return json.Marshal(input)
}

//nolint:whitespace // editor/linter issue
func (s sessionLookupTransfer) FromBinary(data []byte) (
	map[string]*model.SessionInfo, error,
) {
	ret := make(map[string]*model.SessionInfo)
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func NewGlobalSessions(kv jetstream.KeyValue, l *log.Logger) (*GlobalSessions, error) {
	ret := &GlobalSessions{
		kv:       kv,
		mutex:    sync.Mutex{},
		sessions: make(map[string]*model.SessionInfo),
		l:        l,
	}
	if err := ret.setupListener(); err != nil {
		return nil, err
	}
	return ret, nil
}

//nolint:whitespace // editor/linter issue
func (g *GlobalSessions) CurrentLiveSessions() (
	lookup map[string]*model.SessionInfo,
	err error,
) {
	var kve jetstream.KeyValueEntry
	if kve, err = g.kv.Get(context.Background(), "sessions"); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return map[string]*model.SessionInfo{}, nil
		}
		return nil, err
	}
	conv := sessionLookupTransfer{}
	if lookup, err = conv.FromBinary(kve.Value()); err == nil {
		return lookup, nil
	} else {
		return nil, err
	}
}

// register watcher on kv store
func (g *GlobalSessions) setupListener() error {
	w, err := g.kv.Watch(context.Background(), "sessions")
	if err != nil {
		return err
	}
	go func() {
		conv := sessionLookupTransfer{}
		for kve := range w.Updates() {
			if kve == nil {
				g.l.Debug("watchSessionData nil")
				continue
			}
			g.l.Debug("watchSessionData",
				log.Int("value-len", len(kve.Value())),
				log.String("op", kve.Operation().String()),
				log.Uint64("rev", kve.Revision()),
			)
			g.rev = kve.Revision()
			var incomingData map[string]*model.SessionInfo
			if incomingData, err = conv.FromBinary(kve.Value()); err == nil {
				g.mutex.Lock()
				g.sessions = incomingData
				g.mutex.Unlock()
				g.l.Debug("sessions updated", log.Any("sessions", incomingData))
			} else {
				g.l.Error("error unmarshalling session data", log.ErrorField(err))
			}
		}
		g.l.Debug("sessionData watch done")
	}()
	return nil
}

// called when this instance is processing a session
func (g *GlobalSessions) RegisterSession(s *model.SessionInfo) {
	g.l.Debug("RegisterSession", log.String("key", s.Key))
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.sessions[s.Key] = s
	g.store()
}

// called on the processing instance when the session is removed
func (g *GlobalSessions) UnregisterSession(sessionKey string) {
	g.l.Debug("UnregisterSession", log.String("key", sessionKey))
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.sessions, sessionKey)
	g.store()
}

// store writes the registry, callers hold the mutex. The first write
// creates the key, later writes use the revision for optimistic locking.
func (g *GlobalSessions) store() {
	data, err := sessionLookupTransfer{}.ToBinary(g.sessions)
	if err != nil {
		g.l.Error("error marshaling session data", log.ErrorField(err))
		return
	}
	var rev uint64
	if g.rev == 0 {
		rev, err = g.kv.Put(context.Background(), "sessions", data)
	} else {
		rev, err = g.kv.Update(context.Background(), "sessions", data, g.rev)
	}
	if err != nil {
		g.l.Error("error writing session data", log.ErrorField(err))
	} else {
		g.l.Debug("session data written", log.Uint64("rev", rev))
		g.rev = rev
	}
}
