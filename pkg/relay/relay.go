package relay

import (
	"errors"
	"fmt"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
)

type (
	// PublishRelay is the interface for announcing session lifecycle
	// changes to other cluster members.
	PublishRelay interface {
		// handles the registration of a new session
		PublishSessionRegistered(spd *session.SessionProcessingData) error
		// handles the unregistration of a session
		PublishSessionUnregistered(sessionKey string) error
	}

	DataRelay interface {
		PublishRelay
		// all live sessions known to the cluster
		LiveSessions() []*model.SessionInfo

		// returns the session data for the given key
		GetSession(sessionKey string) (*model.SessionInfo, error)

		// most recent delta update of the session, nil when none was seen yet
		LastDelta(sessionKey string) (*model.DeltaUpdate, error)

		// subscribe to delta updates
		// the returned channel is the provider for outgoing live messages
		SubscribeDeltaData(sessionKey string) (
			dataChan <-chan model.DeltaUpdate,
			quitChan chan<- struct{},
			err error,
		)

		// called when the watchdog removed a stale session
		DeleteSessionCallback(sessionKey string)

		// performs cleanup
		Close()
	}

	EmptyRelay struct{}
)

var ErrSessionNotFound = errors.New("session not found")

func (e EmptyRelay) PublishSessionRegistered(spd *session.SessionProcessingData) error {
	return fmt.Errorf("PublishSessionRegistered not implemented")
}

func (e EmptyRelay) PublishSessionUnregistered(sessionKey string) error {
	return fmt.Errorf("PublishSessionUnregistered not implemented")
}

func (e EmptyRelay) GetSession(sessionKey string) (*model.SessionInfo, error) {
	return nil, fmt.Errorf("GetSession not implemented")
}

func (e EmptyRelay) LastDelta(sessionKey string) (*model.DeltaUpdate, error) {
	return nil, fmt.Errorf("LastDelta not implemented")
}

//nolint:whitespace // false positive
func (e EmptyRelay) SubscribeDeltaData(sessionKey string) (
	d <-chan model.DeltaUpdate,
	q chan<- struct{},
	err error,
) {
	return nil, nil, fmt.Errorf("SubscribeDeltaData not implemented")
}

func (e EmptyRelay) LiveSessions() []*model.SessionInfo {
	return nil
}

func (e EmptyRelay) DeleteSessionCallback(sessionKey string) {
}

func (e EmptyRelay) Close() {
}
