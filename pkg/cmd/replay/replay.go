package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/api"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	natsrelay "github.com/enduroplan/fueltrace-service-go/pkg/relay/nats"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
)

var (
	speed      int
	addr       string
	token      string
	sessionKey string
	trackID    int
	carName    string
	viaHTTP    bool
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay file",
		Short: "replays a recorded telemetry file against a running server",
		Long: `Reads a telemetry recording (one JSON tick per line), registers a
comparison session on the server and publishes the ticks at recorded
pace. By default ticks are published on NATS like a live provider,
--via-http posts them to the provider HTTP endpoint instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args[0])
		},
	}
	cmd.Flags().IntVar(&speed, "speed", 1,
		"Recording speed (0 means: go as fast as possible)")
	cmd.Flags().StringVar(&addr, "addr",
		"http://localhost:8080",
		"API server address")
	cmd.Flags().StringVarP(&token, "token", "t", "", "authentication token")
	cmd.Flags().StringVar(&sessionKey, "key", "",
		"session key to use for replay (default: random)")
	cmd.Flags().IntVar(&trackID, "track-id", 0, "track id of the recording")
	cmd.Flags().StringVar(&carName, "car-name", "",
		"car name used to pick the reference curve")
	cmd.Flags().BoolVar(&viaHTTP, "via-http", false,
		"post ticks to the provider HTTP endpoint instead of NATS")
	//nolint:errcheck // by design
	cmd.MarkFlagRequired("track-id")
	//nolint:errcheck // by design
	cmd.MarkFlagRequired("car-name")
	return cmd
}

func runReplay(ctx context.Context, fileName string) error {
	logger := log.GetFromContext(ctx).Named("replay")
	in, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer in.Close()

	if sessionKey == "" {
		sessionKey = uuid.New().String()
	}
	r := &replayTask{
		ctx:    ctx,
		log:    logger,
		client: &http.Client{Timeout: 10 * time.Second},
		base:   strings.TrimSuffix(addr, "/") + "/api/v1",
	}
	if !viaHTTP {
		nc, err := nats.Connect(config.NatsURL, nats.Name("fueltrace-replay"))
		if err != nil {
			return err
		}
		defer nc.Close()
		r.nc = nc
	}

	if err := r.registerSession(); err != nil {
		return err
	}
	logger.Info("Session registered", log.String("key", sessionKey))

	sendErr := r.sendTicks(in)
	if err := r.unregisterSession(); err != nil {
		logger.Error("Error unregistering session", log.ErrorField(err))
	} else {
		logger.Info("Session unregistered", log.String("key", sessionKey))
	}
	return sendErr
}

type replayTask struct {
	ctx    context.Context
	log    *log.Logger
	client *http.Client
	base   string
	nc     *nats.Conn
}

func (r *replayTask) registerSession() error {
	buf, err := json.Marshal(&service.RegisterSessionRequest{
		SessionKey: sessionKey,
		TrackID:    trackID,
		CarName:    carName,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost,
		r.base+"/sessions", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	withToken(req.Header)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register session: %w", responseError(resp))
	}
	var reg api.RegisterSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return err
	}
	r.log.Debug("Register response",
		log.String("key", reg.Session.Key),
		log.String("curveState", reg.CurveState))
	return nil
}

// sendTicks publishes the recording tick by tick, sleeping between ticks
// according to the recorded session time and the requested speed.
func (r *replayTask) sendTicks(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	lastTs := -1.0
	line := 0
	sent := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var tick model.TelemetryTick
		if err := json.Unmarshal(raw, &tick); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if lastTs >= 0 {
			delta := time.Duration((tick.SessionTime - lastTs) * float64(time.Second))
			if delta > 0 && speed > 0 {
				wait := time.Duration(int(delta.Nanoseconds()) / speed)
				r.log.Debug("Sleeping",
					log.Float64("sessionTime", tick.SessionTime),
					log.Duration("delta", delta),
					log.Duration("wait", wait))
				time.Sleep(wait)
			}
		}
		lastTs = tick.SessionTime
		if err := r.publish(&tick); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	r.log.Info("Replay finished", log.Int("ticks", sent))
	return nil
}

func (r *replayTask) publish(tick *model.TelemetryTick) error {
	if r.nc != nil {
		return natsrelay.PublishTelemetry(r.nc, sessionKey, tick)
	}
	return r.postTick(tick)
}

func (r *replayTask) postTick(tick *model.TelemetryTick) error {
	buf, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost,
		fmt.Sprintf("%s/sessions/%s/telemetry", r.base, sessionKey),
		bytes.NewReader(buf))
	if err != nil {
		return err
	}
	withToken(req.Header)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("post telemetry: %w", responseError(resp))
	}
	return nil
}

func (r *replayTask) unregisterSession() error {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodDelete,
		fmt.Sprintf("%s/sessions/%s", r.base, sessionKey), nil)
	if err != nil {
		return err
	}
	withToken(req.Header)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

func withToken(h http.Header) {
	h.Set("api-token", token)
	h.Set("x-client-version", api.RequiredClientVersion)
}

// responseError surfaces the server side error message when there is one.
func responseError(resp *http.Response) error {
	var apiErr api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
	}
	return errors.New(resp.Status)
}
