package client

import (
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

var addr string

func NewClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "commands to watch a running server",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr",
		"http://localhost:8080",
		"API server address")
	cmd.AddCommand(NewLiveDeltaCmd())
	return cmd
}

func NewLiveDeltaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live sessionKey",
		Short: "receives live delta updates of a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			liveDeltaData(args[0])
		},
	}
	return cmd
}

func liveDeltaData(sessionKey string) {
	logger := log.DevLogger(
		os.Stderr,
		log.DebugLevel,
		log.WithCaller(true),
		log.AddCallerSkip(1))
	log.ResetDefault(logger)

	wsURL := toWebsocketURL(addr) + "/api/v1/sessions/" + sessionKey + "/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Error("could not connect live stream", log.ErrorField(err))
		return
	}
	defer conn.Close()

	for {
		var upd model.DeltaUpdate
		if err := conn.ReadJSON(&upd); err != nil {
			log.Info("stream closed", log.ErrorField(err))
			return
		}
		log.Debug("got delta",
			log.Float64("sessionTime", upd.SessionTime),
			log.Float64("pct", upd.Pct),
			log.Float64("fuel", upd.FuelLevel),
			log.Float64("delta", upd.Delta.GetOrZero()))
	}
}

func toWebsocketURL(httpURL string) string {
	u := strings.TrimSuffix(httpURL, "/")
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}
