//nolint:thelper,lll,funlen,errcheck,dupl // ok for tests
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay/local"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache/loadercache"
)

const (
	testAdminToken    = "admin-test-token"
	providerAKey      = "provider-a-key"
	providerBKey      = "provider-b-key"
	testClientVersion = "v0.4.0"
)

// stubSource is an in-memory CurveSource for tests without a database.
type stubSource struct {
	mutex     sync.Mutex
	data      *model.FuelCurveData
	err       error
	refreshed int
}

func (s *stubSource) IdealLap(ctx context.Context, key model.FuelCurveKey) (*model.FuelCurveData, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *stubSource) Refresh(ctx context.Context, key model.FuelCurveKey) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.refreshed++
}

func (s *stubSource) setErr(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.err = err
}

func (s *stubSource) refreshCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.refreshed
}

func sampleCurveData() *model.FuelCurveData {
	return &model.FuelCurveData{Samples: []model.FuelSample{
		{Pct: 0, Fuel: null.From(52.0)},
		{Pct: 50, Fuel: null.From(50.75)},
		{Pct: 100, Fuel: null.From(49.5)},
	}}
}

func testProviderCache() cache.Cache[string, model.DbProvider] {
	known := map[string]*model.DbProvider{
		utils.HashAPIKey(providerAKey): {Name: "providerA", Active: true},
		utils.HashAPIKey(providerBKey): {Name: "providerB", Active: true},
	}
	return loadercache.New[string, model.DbProvider](
		loadercache.WithLoader[string, model.DbProvider](
			func(ctx context.Context, keyHash string) (*model.DbProvider, error) {
				if p, ok := known[keyHash]; ok {
					return p, nil
				}
				return nil, cache.ErrCacheMiss
			}))
}

func newTestServer(t *testing.T, source CurveSource) (*httptest.Server, *session.SessionLookup) {
	lookup := session.NewSessionLookup()
	t.Cleanup(lookup.Close)
	pe, err := permission.NewOpaPermissionEvaluator()
	assert.NoError(t, err)
	srv := NewServer(
		WithSessionLookup(lookup),
		WithRelay(local.NewLocalRelay(lookup)),
		WithCurveSource(source),
		WithPermissionEvaluator(pe),
		WithAuthMiddleware(auth.NewMiddleware(
			auth.WithAdminToken(testAdminToken),
			auth.WithProviderCache(testProviderCache()))),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, lookup
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		assert.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, ts.URL+path, rdr)
	assert.NoError(t, err)
	req.Header.Set("x-client-version", testClientVersion)
	if token != "" {
		req.Header.Set("api-token", token)
	}
	resp, err := ts.Client().Do(req)
	assert.NoError(t, err)
	return resp
}

func readJSON[T any](t *testing.T, resp *http.Response) *T {
	defer resp.Body.Close()
	var ret T
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return &ret
}

func registerSession(t *testing.T, ts *httptest.Server, key, token string) *RegisterSessionResponse {
	resp := doJSON(t, ts, http.MethodPost, "/api/v1/sessions", token,
		&service.RegisterSessionRequest{
			SessionKey: key, TrackID: 18, CarName: "Dallara P217",
		})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	return readJSON[RegisterSessionResponse](t, resp)
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})
	resp := doJSON(t, ts, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := readJSON[HealthResponse](t, resp)
	assert.Equal(t, "ok", got.Status)
}

func TestServer_ClientVersionGate(t *testing.T) {
	assert.True(t, CheckClientVersion("v0.3.0"))
	assert.True(t, CheckClientVersion("0.4.1"))
	assert.False(t, CheckClientVersion("v0.2.9"))
	assert.False(t, CheckClientVersion(""))

	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, ts.URL+"/api/v1/sessions", strings.NewReader("{}"))
	assert.NoError(t, err)
	req.Header.Set("api-token", testAdminToken)
	req.Header.Set("x-client-version", "v0.1.0")
	resp, err := ts.Client().Do(req)
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_RegisterSession(t *testing.T) {
	source := &stubSource{data: sampleCurveData()}
	ts, lookup := newTestServer(t, source)

	resp := doJSON(t, ts, http.MethodPost, "/api/v1/sessions", "",
		&service.RegisterSessionRequest{TrackID: 18, CarName: "Dallara P217"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions", providerAKey,
		&service.RegisterSessionRequest{TrackID: 0, CarName: ""})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	got := registerSession(t, ts, "s1", providerAKey)
	assert.Equal(t, "s1", got.Session.Key)
	assert.Equal(t, "providerA", got.Session.Owner)
	assert.Equal(t, "loaded", got.CurveState)
	_, err := lookup.GetSession("s1")
	assert.NoError(t, err)

	// re-registering the key returns the running session untouched
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions", providerAKey,
		&service.RegisterSessionRequest{SessionKey: "s1", TrackID: 18, CarName: "Dallara P217"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	dup := readJSON[RegisterSessionResponse](t, resp)
	assert.Equal(t, "s1", dup.Session.Key)
	assert.Empty(t, dup.CurveState)
	assert.Len(t, lookup.GetSessions(), 1)

	// a key is generated when none was sent
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions", providerAKey,
		&service.RegisterSessionRequest{TrackID: 18, CarName: "Dallara P217"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	gen := readJSON[RegisterSessionResponse](t, resp)
	assert.NotEmpty(t, gen.Session.Key)
}

func TestServer_RegisterSessionCurveOutcomes(t *testing.T) {
	source := &stubSource{data: sampleCurveData()}
	ts, _ := newTestServer(t, source)

	// session starts even when no curve is stored for the key
	source.setErr(fuel.ErrCurveNotFound)
	got := registerSession(t, ts, "s-nodata", providerAKey)
	assert.Equal(t, "no-data", got.CurveState)

	// or when the store is unreachable
	source.setErr(assert.AnError)
	got = registerSession(t, ts, "s-failed", providerAKey)
	assert.Equal(t, "failed", got.CurveState)
}

func TestServer_SessionList(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})

	resp := doJSON(t, ts, http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	empty := readJSON[[]*model.SessionInfo](t, resp)
	assert.Len(t, *empty, 0)

	registerSession(t, ts, "s1", providerAKey)

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	one := readJSON[[]*model.SessionInfo](t, resp)
	assert.Len(t, *one, 1)
	assert.Equal(t, "s1", (*one)[0].Key)

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/s1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sess := readJSON[model.SessionInfo](t, resp)
	assert.Equal(t, 18, sess.Curve.TrackID)

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/unknown", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_TelemetryFlow(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})
	registerSession(t, ts, "s1", providerAKey)

	// no tick processed yet
	resp := doJSON(t, ts, http.MethodGet, "/api/v1/sessions/s1/delta", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	postTick := func(key string, token string, tick *model.TelemetryTick) int {
		r := doJSON(t, ts, http.MethodPost, "/api/v1/sessions/"+key+"/telemetry", token, tick)
		r.Body.Close()
		return r.StatusCode
	}
	assert.Equal(t, http.StatusAccepted,
		postTick("s1", providerAKey, &model.TelemetryTick{SessionTime: 10, LapDistPct: 0.95, FuelLevel: 41.0}))
	assert.Equal(t, http.StatusAccepted,
		postTick("s1", providerAKey, &model.TelemetryTick{SessionTime: 15, LapDistPct: 0.05, FuelLevel: 40.9}))
	assert.Equal(t, http.StatusAccepted,
		postTick("s1", providerAKey, &model.TelemetryTick{SessionTime: 60, LapDistPct: 0.50, FuelLevel: 38.5}))

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/s1/delta", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	upd := readJSON[model.DeltaUpdate](t, resp)
	assert.Equal(t, "s1", upd.SessionKey)
	assert.InDelta(t, 50.0, upd.Pct, 1e-9)
	assert.InDelta(t, 40.9, upd.LapStartFuel.GetOrZero(), 1e-9)
	// ideal used 1.25, live used 2.4
	assert.InDelta(t, -1.15, upd.Delta.GetOrZero(), 1e-9)

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/s1/trace", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	trace := readJSON[model.TraceSnapshot](t, resp)
	assert.Len(t, trace.Ideal, 3)
	assert.Len(t, trace.Live, 2)

	// foreign provider may not feed the session
	assert.Equal(t, http.StatusForbidden,
		postTick("s1", providerBKey, &model.TelemetryTick{SessionTime: 61, LapDistPct: 0.51, FuelLevel: 38.4}))
	// unknown session
	assert.Equal(t, http.StatusNotFound,
		postTick("nope", providerAKey, &model.TelemetryTick{SessionTime: 62, LapDistPct: 0.52, FuelLevel: 38.3}))
	// without permission the lookup result is not revealed
	assert.Equal(t, http.StatusForbidden,
		postTick("nope", "", &model.TelemetryTick{SessionTime: 63, LapDistPct: 0.53, FuelLevel: 38.2}))
}

func TestServer_ResetSession(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})
	registerSession(t, ts, "s1", providerAKey)

	resp := doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/telemetry", providerAKey,
		&model.TelemetryTick{SessionTime: 10, LapDistPct: 0.95, FuelLevel: 41.0})
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/reset", providerBKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/reset", providerAKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/s1/delta", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_ReloadCurve(t *testing.T) {
	source := &stubSource{data: sampleCurveData()}
	ts, _ := newTestServer(t, source)
	registerSession(t, ts, "s1", providerAKey)

	resp := doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/curve", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	source.setErr(assert.AnError)
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/curve", providerAKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	source.setErr(fuel.ErrCurveNotFound)
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/curve", providerAKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got := readJSON[CurveStateResponse](t, resp)
	assert.Equal(t, "no-data", got.CurveState)

	source.setErr(nil)
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/curve", providerAKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got = readJSON[CurveStateResponse](t, resp)
	assert.Equal(t, "loaded", got.CurveState)

	// each reload drops the cached entry first
	assert.Equal(t, 3, source.refreshCount())
}

func TestServer_UnregisterSession(t *testing.T) {
	ts, lookup := newTestServer(t, &stubSource{data: sampleCurveData()})
	registerSession(t, ts, "s1", providerAKey)

	resp := doJSON(t, ts, http.MethodDelete, "/api/v1/sessions/s1", providerBKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/sessions/s1", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/sessions/s1", providerAKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err := lookup.GetSession("s1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// admins may remove foreign sessions
	registerSession(t, ts, "s2", providerAKey)
	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/sessions/s2", testAdminToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_UnregisterAllSessions(t *testing.T) {
	ts, lookup := newTestServer(t, &stubSource{data: sampleCurveData()})
	registerSession(t, ts, "s1", providerAKey)
	registerSession(t, ts, "s2", providerAKey)

	resp := doJSON(t, ts, http.MethodDelete, "/api/v1/sessions", providerAKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/sessions", testAdminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	removed := readJSON[[]*model.SessionInfo](t, resp)
	assert.Len(t, *removed, 2)
	assert.Len(t, lookup.GetSessions(), 0)
}

func TestServer_LiveDeltaStream(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})
	registerSession(t, ts, "s1", providerAKey)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/s1/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	if conn == nil {
		t.Fatal("no websocket connection")
	}
	defer conn.Close()

	// let the stream loop attach before the first tick
	time.Sleep(100 * time.Millisecond)

	post := doJSON(t, ts, http.MethodPost, "/api/v1/sessions/s1/telemetry", providerAKey,
		&model.TelemetryTick{SessionTime: 10, LapDistPct: 0.25, FuelLevel: 40.0})
	post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)

	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var upd model.DeltaUpdate
	assert.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, "s1", upd.SessionKey)
	assert.InDelta(t, 25.0, upd.Pct, 1e-9)

	// unknown sessions are rejected during the handshake
	badURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/nope/live"
	_, badResp, err := websocket.DefaultDialer.Dial(badURL, nil)
	assert.Error(t, err)
	if badResp != nil {
		assert.Equal(t, http.StatusNotFound, badResp.StatusCode)
		badResp.Body.Close()
	}
}

func TestServer_CurveEndpointValidation(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})

	resp := doJSON(t, ts, http.MethodPost, "/api/v1/curves", "",
		&service.SaveCurveRequest{TrackID: 18, CarName: "Dallara P217"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/api/v1/curves", providerAKey,
		&service.SaveCurveRequest{TrackID: 0, CarName: ""})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad := &service.SaveCurveRequest{
		TrackID: 18, CarName: "Dallara P217",
		Data: model.FuelCurveData{Samples: []model.FuelSample{
			{Pct: model.NumBuckets, Fuel: null.From(50.0)},
		}},
	}
	resp = doJSON(t, ts, http.MethodPost, "/api/v1/curves", providerAKey, bad)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// deleting curves is not a provider operation
	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/curves?trackId=18&carName=Dallara+P217", providerAKey, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/curves/not-a-uuid", testAdminToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AdminOnlyEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{data: sampleCurveData()})
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"provider list needs admin", http.MethodGet, "/api/v1/providers", providerAKey, http.StatusForbidden},
		{"provider create anonymous", http.MethodPost, "/api/v1/providers", "", http.StatusForbidden},
		{"provider name required", http.MethodPost, "/api/v1/providers", testAdminToken, http.StatusBadRequest},
		{"provider id malformed", http.MethodDelete, "/api/v1/providers/xyz", testAdminToken, http.StatusBadRequest},
		{"track update needs admin", http.MethodPut, "/api/v1/tracks/18", providerAKey, http.StatusForbidden},
		{"track delete anonymous", http.MethodDelete, "/api/v1/tracks/18", "", http.StatusForbidden},
		{"track id malformed", http.MethodPut, "/api/v1/tracks/abc", testAdminToken, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, ts, tt.method, tt.path, tt.token, map[string]string{})
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
