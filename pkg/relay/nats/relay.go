package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
)

type (
	// NatsRelay distributes session lifecycle and delta updates across
	// cluster members. Each instance mirrors the sessions of all members
	// and can serve live subscribers for any of them.
	NatsRelay struct {
		relay.EmptyRelay
		ctx  context.Context
		conn *nats.Conn
		// holds sessions over all cluster members
		sessions map[string]*sessionContainer
		// holds sessions processed by the local cluster member
		localSessions  map[string]*localSessionBinding
		l              *log.Logger
		mutex          sync.Mutex
		onUnregisterCB func(sessionKey string)
		subRegister    *nats.Subscription
		subUnregister  *nats.Subscription
		kv             jetstream.KeyValue
		globalSessions *GlobalSessions
	}
	Option func(*NatsRelay)

	localSessionBinding struct {
		spd          *session.SessionProcessingData
		deltaChan    <-chan model.DeltaUpdate
		telemetrySub *nats.Subscription
	}
)

func NewNatsRelay(conn *nats.Conn, opts ...Option) (*NatsRelay, error) {
	ret := &NatsRelay{
		conn:          conn,
		ctx:           context.Background(),
		sessions:      make(map[string]*sessionContainer),
		localSessions: make(map[string]*localSessionBinding),
		l:             log.Default().Named("relay.nats"),
		mutex:         sync.Mutex{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	if err := ret.setupSubscriptions(); err != nil {
		return nil, err
	}
	if err := ret.setupKV(); err != nil {
		return nil, err
	}
	if err := ret.setupGlobalSessions(); err != nil {
		return nil, err
	}

	return ret, nil
}

func WithContext(ctx context.Context) Option {
	return func(n *NatsRelay) {
		n.ctx = ctx
	}
}

func WithLogger(l *log.Logger) Option {
	return func(n *NatsRelay) {
		n.l = l
	}
}

func (n *NatsRelay) Close() {
	n.conn.Close()
}

// this method is called when the watchdog detects a stale session and deletes it
//
//nolint:errcheck // by design
func (n *NatsRelay) DeleteSessionCallback(sessionKey string) {
	n.PublishSessionUnregistered(sessionKey)
}

func (n *NatsRelay) SetOnUnregisterCB(cb func(sessionKey string)) {
	n.onUnregisterCB = cb
}

// PublishSessionRegistered announces the session to the cluster and
// binds the local processing pipeline to the relay: delta updates are
// forwarded to the delta subject, incoming telemetry from the telemetry
// subject is fed into the processor.
func (n *NatsRelay) PublishSessionRegistered(spd *session.SessionProcessingData) error {
	data, err := json.Marshal(spd.Session)
	if err != nil {
		return err
	}
	sessionKey := spd.Session.Key
	n.mutex.Lock()
	defer n.mutex.Unlock()

	telemetrySub, err := n.conn.Subscribe(
		fmt.Sprintf("telemetry.%s", sessionKey),
		func(msg *nats.Msg) {
			var tick model.TelemetryTick
			if uErr := json.Unmarshal(msg.Data, &tick); uErr != nil {
				n.l.Error("error unmarshalling telemetry",
					log.String("sessionKey", sessionKey),
					log.ErrorField(uErr))
				return
			}
			spd.ProcessTick(&tick)
		})
	if err != nil {
		return err
	}
	binding := &localSessionBinding{
		spd:          spd,
		deltaChan:    spd.DeltaBroadcast.Subscribe(),
		telemetrySub: telemetrySub,
	}
	n.localSessions[sessionKey] = binding
	go func() {
		for upd := range binding.deltaChan {
			sendData, _ := json.Marshal(upd)
			//nolint:errcheck // by design
			n.conn.Publish(fmt.Sprintf("delta.%s", sessionKey), sendData)
		}
		n.l.Debug("delta channel closed", log.String("sessionKey", sessionKey))
	}()
	n.globalSessions.RegisterSession(spd.Session)
	return n.conn.Publish("session.registered", data)
}

func (n *NatsRelay) PublishSessionUnregistered(sessionKey string) error {
	n.globalSessions.UnregisterSession(sessionKey)
	return n.conn.Publish("session.unregistered", []byte(sessionKey))
}

// PublishTelemetry sends one tick to the instance processing the session.
func PublishTelemetry(conn *nats.Conn, sessionKey string, t *model.TelemetryTick) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return conn.Publish(fmt.Sprintf("telemetry.%s", sessionKey), data)
}

func (n *NatsRelay) LiveSessions() []*model.SessionInfo {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	sessions := make([]*model.SessionInfo, 0, len(n.sessions))
	for _, sc := range n.sessions {
		sessions = append(sessions, sc.info)
	}
	return sessions
}

func (n *NatsRelay) GetSession(sessionKey string) (*model.SessionInfo, error) {
	if sc, err := n.getSession(sessionKey); err != nil {
		return nil, err
	} else {
		return sc.info, nil
	}
}

func (n *NatsRelay) LastDelta(sessionKey string) (*model.DeltaUpdate, error) {
	if sc, err := n.getSession(sessionKey); err != nil {
		return nil, err
	} else {
		return sc.getLastDelta(), nil
	}
}

//nolint:whitespace // false positive
func (n *NatsRelay) SubscribeDeltaData(sessionKey string) (
	<-chan model.DeltaUpdate,
	chan<- struct{},
	error,
) {
	if sc, err := n.getSession(sessionKey); err != nil {
		return nil, nil, err
	} else {
		dataChan, quitChan := sc.createDeltaChannels()
		return dataChan, quitChan, nil
	}
}

//nolint:whitespace // false positive
func (n *NatsRelay) getSession(sessionKey string) (
	*sessionContainer, error,
) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if ret, ok := n.sessions[sessionKey]; ok {
		return ret, nil
	}
	return nil, relay.ErrSessionNotFound
}

func (n *NatsRelay) setupSubscriptions() error {
	var err error
	if n.subRegister, err = n.conn.Subscribe("session.registered",
		func(msg *nats.Msg) { n.handleIncomingSessionRegistered(msg) },
	); err != nil {
		return err
	}
	if n.subUnregister, err = n.conn.Subscribe("session.unregistered",
		func(msg *nats.Msg) { n.handleIncomingSessionUnregistered(msg) },
	); err != nil {
		return err
	}
	return nil
}

func (n *NatsRelay) handleIncomingSessionRegistered(msg *nats.Msg) {
	var sess model.SessionInfo
	if uErr := json.Unmarshal(msg.Data, &sess); uErr != nil {
		n.l.Error("error unmarshalling session.registered", log.ErrorField(uErr))
		return
	}
	n.l.Debug("received session registered", log.String("sessionKey", sess.Key))
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, ok := n.sessions[sess.Key]; ok {
		return
	}
	n.sessions[sess.Key] = newSessionContainer(&sess, n.conn, n.l)
}

func (n *NatsRelay) handleIncomingSessionUnregistered(msg *nats.Msg) {
	sessionKey := string(msg.Data)
	n.l.Debug("received session unregistered", log.String("sessionKey", sessionKey))
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.onUnregisterCB != nil {
		n.onUnregisterCB(sessionKey)
	}

	// cleanup broadcasters for the mirrored session
	if sc, ok := n.sessions[sessionKey]; ok {
		sc.close()
	}
	delete(n.sessions, sessionKey)

	// cleanup the local processing binding
	if binding, ok := n.localSessions[sessionKey]; ok {
		if binding.telemetrySub.IsValid() {
			//nolint:errcheck // by design
			binding.telemetrySub.Unsubscribe()
		}
		binding.spd.DeltaBroadcast.CancelSubscription(binding.deltaChan)
	}
	delete(n.localSessions, sessionKey)
}

func (n *NatsRelay) setupKV() error {
	var js jetstream.JetStream
	var err error
	if js, err = jetstream.New(n.conn); err != nil {
		return err
	}
	n.kv, err = js.CreateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket: "fueltrace",
		TTL:    time.Hour * 24,
	})
	return err
}

// this will load all live sessions from the NATS KV store and add them to the
// session map. This is called during startup and ensures this instance can
// provide data for all live sessions
func (n *NatsRelay) setupGlobalSessions() (err error) {
	if n.globalSessions, err = NewGlobalSessions(n.kv, n.l.Named("global")); err != nil {
		return err
	}
	var curSessions map[string]*model.SessionInfo
	if curSessions, err = n.globalSessions.CurrentLiveSessions(); err != nil {
		return err
	}
	for k, v := range curSessions {
		n.sessions[k] = newSessionContainer(v, n.conn, n.l)
	}
	return nil
}
