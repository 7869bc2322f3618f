package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
)

var ErrSessionNotFound = errors.New("session not found")

type (
	Option func(*SessionLookup)
	// SessionLookup is the registry of live comparison sessions. A
	// watchdog removes sessions that stopped receiving telemetry.
	SessionLookup struct {
		mutex         sync.RWMutex
		lookup        map[string]*SessionProcessingData
		staleDuration time.Duration
		checkInterval time.Duration
		onEvict       func(sessionKey string)
		ctx           context.Context
		cancel        context.CancelFunc
		l             *log.Logger
	}
)

// WithStaleDuration controls how long a session may stay silent before
// the watchdog removes it.
func WithStaleDuration(d time.Duration) Option {
	return func(s *SessionLookup) {
		s.staleDuration = d
	}
}

func WithCheckInterval(d time.Duration) Option {
	return func(s *SessionLookup) {
		s.checkInterval = d
	}
}

// WithEvictCallback is called with the session key after the watchdog
// removed a stale session.
func WithEvictCallback(cb func(sessionKey string)) Option {
	return func(s *SessionLookup) {
		s.onEvict = cb
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(s *SessionLookup) {
		s.l = arg
	}
}

func NewSessionLookup(opts ...Option) *SessionLookup {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &SessionLookup{
		lookup:        make(map[string]*SessionProcessingData),
		staleDuration: 1 * time.Minute,
		checkInterval: 10 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
		l:             log.Default().Named("session"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	go ret.watchdog()
	return ret
}

// AddSession registers a new session. Adding a key that is already
// registered returns the existing entry untouched.
//
//nolint:whitespace // editor/linter issue
func (s *SessionLookup) AddSession(
	sess *model.SessionInfo,
	source fuel.Source,
) *SessionProcessingData {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if existing, ok := s.lookup[sess.Key]; ok {
		return existing
	}
	spd := newSessionProcessingData(sess, source)
	s.lookup[sess.Key] = spd
	s.l.Info("session registered",
		log.String("sessionKey", sess.Key),
		log.Int("trackId", sess.Curve.TrackID),
		log.String("carName", sess.Curve.CarName))
	return spd
}

func (s *SessionLookup) GetSession(key string) (*SessionProcessingData, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if ret, ok := s.lookup[key]; ok {
		return ret, nil
	}
	return nil, ErrSessionNotFound
}

func (s *SessionLookup) GetSessions() []*model.SessionInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ret := make([]*model.SessionInfo, 0, len(s.lookup))
	for _, v := range s.lookup {
		ret = append(ret, v.Session)
	}
	return ret
}

// RemoveSession closes and removes the session. The evict callback is
// reserved for the watchdog, explicit removals notify their own peers.
func (s *SessionLookup) RemoveSession(key string) {
	s.mutex.Lock()
	spd, ok := s.lookup[key]
	if ok {
		delete(s.lookup, key)
	}
	s.mutex.Unlock()
	if ok {
		spd.Close()
		s.l.Info("session removed", log.String("sessionKey", key))
	}
}

func (s *SessionLookup) Clear() {
	s.mutex.Lock()
	old := s.lookup
	s.lookup = make(map[string]*SessionProcessingData)
	s.mutex.Unlock()
	for _, spd := range old {
		spd.Close()
	}
}

// Close stops the watchdog and shuts down all sessions.
func (s *SessionLookup) Close() {
	s.cancel()
	s.Clear()
}

func (s *SessionLookup) watchdog() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.evictStale()
		}
	}
}

func (s *SessionLookup) evictStale() {
	deadline := time.Now().Add(-s.staleDuration)
	stale := make([]*SessionProcessingData, 0)
	s.mutex.Lock()
	for key, spd := range s.lookup {
		if spd.LastActivity().Before(deadline) {
			delete(s.lookup, key)
			stale = append(stale, spd)
		}
	}
	s.mutex.Unlock()
	for _, spd := range stale {
		s.l.Info("evicting stale session",
			log.String("sessionKey", spd.Session.Key),
			log.Time("lastActivity", spd.LastActivity()))
		spd.Close()
		if s.onEvict != nil {
			s.onEvict(spd.Session.Key)
		}
	}
}
