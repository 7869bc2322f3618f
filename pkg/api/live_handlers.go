package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/enduroplan/fueltrace-service-go/log"
)

// To let browser based strategy tools follow any session the upgrader
// accepts all origins. Write access is guarded by token auth.
var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// handleLiveDeltas streams delta updates over a websocket until the
// session ends or the peer goes away.
func (s *apiServer) handleLiveDeltas(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	dataChan, quitChan, err := s.relay.SubscribeDeltaData(key)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the request
		s.log.Error("websocket upgrade failed", log.ErrorField(err))
		close(quitChan)
		return
	}
	s.log.Debug("live delta stream opened", log.String("sessionKey", key))
	go func() {
		// drain control frames, a read error means the peer went away
		for {
			if _, _, rdErr := conn.NextReader(); rdErr != nil {
				conn.Close()
				return
			}
		}
	}()
	for d := range dataChan {
		if s.debugWire {
			s.log.Debug("send delta", log.String("sessionKey", key))
		}
		if wErr := conn.WriteJSON(d); wErr != nil {
			break
		}
	}
	close(quitChan)
	conn.Close()
	s.log.Debug("live delta stream closed", log.String("sessionKey", key))
}
