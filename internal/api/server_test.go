package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/samplecentring-core/internal/audit"
	"github.com/nerrad567/samplecentring-core/internal/camera"
	"github.com/nerrad567/samplecentring-core/internal/centring"
	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/config"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/database"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/logging"
	"github.com/nerrad567/samplecentring-core/migrations"
)

const testBase = "/mxcube/api/v0.1/samplecentring"

type testRig struct {
	srv      *Server
	sim      *diffractometer.Simulator
	cam      *diffractometer.SimulatedCamera
	relay    *camera.Relay
	snapDir  string
	journal  *audit.Recorder
	handler  http.Handler
	shutdown func()
}

type rigOption func(*Deps)

func withJournal(t *testing.T) rigOption {
	return func(d *Deps) {
		ctx := context.Background()
		db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
		require.NoError(t, db.Migrate(ctx, migrations.FS))
		d.Journal = audit.NewRecorder(audit.NewSQLiteRepository(db.DB), logging.Nop())
	}
}

// newTestRig builds a server on a simulated rig and camera.
func newTestRig(t *testing.T, opts ...rigOption) *testRig {
	t.Helper()

	sim := diffractometer.NewSimulator()
	cam := diffractometer.NewSimulatedCamera(sim, 50, 75)
	relay := camera.NewRelay(2 * time.Second)
	cam.SetFrameHandler(relay.Publish)
	snapDir := filepath.Join(t.TempDir(), "snapshots")

	svc := centring.NewService(centring.Deps{
		Rig:       sim,
		Camera:    cam,
		Relay:     relay,
		Snapshots: camera.NewSnapshotWriter(snapDir),
	})

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			BasePath: "/mxcube/api/v0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			CORS:     config.CORSConfig{AllowedOrigins: []string{"http://localhost:8090"}},
		},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:  logging.Nop(),
		Service: svc,
		Version: "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)
	sim.SetEventHandler(srv.HandleEvent)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)

	tr := &testRig{
		srv:     srv,
		sim:     sim,
		cam:     cam,
		relay:   relay,
		snapDir: snapDir,
		journal: deps.Journal,
		handler: srv.Handler(),
	}
	tr.shutdown = func() {
		cancel()
		relay.Stop()
		cam.Stop(context.Background()) //nolint:errcheck // Test cleanup
	}
	t.Cleanup(tr.shutdown)
	return tr
}

func (tr *testRig) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

func assertBody(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, want, w.Body.String())
}

// ─── Health, metrics, middleware ───────────────────────────────────

func TestHealth(t *testing.T) {
	tr := newTestRig(t)

	w := tr.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return assert.AnError }

func TestHealth_Degraded(t *testing.T) {
	tr := newTestRig(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{"mqtt": failingCheck{}}
	})

	w := tr.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
	assert.Contains(t, w.Body.String(), `"mqtt"`)
}

func TestRequestID(t *testing.T) {
	tr := newTestRig(t)

	w := tr.do(http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	assert.Equal(t, "client-123", w.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	tr := newTestRig(t)

	req := httptest.NewRequest(http.MethodOptions, testBase+"/omega/move", nil)
	req.Header.Set("Origin", "http://localhost:8090")
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:8090", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	tr := newTestRig(t)
	w := tr.do(http.MethodGet, testBase+"/centring/pos1/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_CountsFailuresByKind(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/omega/move?newpos=abc", nil), bodyFalse)
	assertBody(t, tr.do(http.MethodPut, testBase+"/chi/move?newpos=1", nil), bodyFalse)
	assertBody(t, tr.do(http.MethodPut, testBase+"/omega/move?newpos=10", nil), bodyTrue)

	w := tr.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `samplecentring_hardware_errors_total{kind="malformed_input"} 1`)
	assert.Contains(t, body, `samplecentring_hardware_errors_total{kind="invalid_motor_id"} 1`)
	assert.Contains(t, body, `samplecentring_commands_total{action="motor.move",outcome="ok"} 1`)
	assert.Contains(t, body, `samplecentring_commands_total{action="motor.move",outcome="failed"} 2`)
	assert.Contains(t, body, `route="/mxcube/api/v0.1/samplecentring/{id}/move"`)
}

// ─── Motors ────────────────────────────────────────────────────────

func TestMoveMotor(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/Omega/move?newpos=45.5", nil), bodyTrue)
	assert.InDelta(t, 45.5, tr.sim.Motor("omega"), 1e-9)
}

func TestMoveBacklight(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/backlight/move?newpos=1", nil), bodyTrue)
	assert.Equal(t, 1.0, tr.sim.Light())

	assertBody(t, tr.do(http.MethodPut, testBase+"/backlight/move?newpos=0", nil), bodyTrue)
	assert.Equal(t, 0.0, tr.sim.Light())

	assertBody(t, tr.do(http.MethodPut, testBase+"/backlight/move?newpos=in", nil), bodyFalse)
}

func TestMoveZoom(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/zoom/move?newpos="+url.QueryEscape("Zoom 4"), nil), bodyTrue)

	w := tr.do(http.MethodGet, testBase+"/zoom/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st diffractometer.MotorStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, diffractometer.ZoomStatusUnknown, st.Status)
	assert.Equal(t, "Zoom 4", st.Position)

	assertBody(t, tr.do(http.MethodPut, testBase+"/zoom/move?newpos="+url.QueryEscape("Zoom 99"), nil), bodyFalse)
}

func TestStatus(t *testing.T) {
	tr := newTestRig(t)

	w := tr.do(http.MethodGet, testBase+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	for _, name := range []string{"Kappa", "Omega", "Phi", "Zoom", "Light"} {
		require.Contains(t, status, name)
		assert.Contains(t, status[name], "Status")
		assert.Contains(t, status[name], "position")
	}
}

func TestHardwareOffline_AnswersFalse(t *testing.T) {
	tr := newTestRig(t)
	tr.sim.SetOffline(true)
	tr.cam.SetOffline(true)

	tests := []struct {
		method, target string
	}{
		{http.MethodPut, testBase + "/omega/move?newpos=1"},
		{http.MethodGet, testBase + "/status"},
		{http.MethodGet, testBase + "/omega/status"},
		{http.MethodPut, testBase + "/centring/startauto"},
		{http.MethodPut, testBase + "/centring/start3click"},
		{http.MethodPut, testBase + "/centring/pos1/save"},
		{http.MethodPut, testBase + "/snapshot"},
		{http.MethodGet, testBase + "/camera/subscribe"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := tr.do(tt.method, tt.target, nil)
			assertBody(t, w, bodyFalse)
			assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		})
	}
}

// ─── Centring ──────────────────────────────────────────────────────

func TestSaveRenameMoveDelete(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/x/save", nil), "pos1")
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/x/save", nil), "pos2")

	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/pos1/rename?newname=loop", nil), bodyTrue)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/pos1/rename?newname=again", nil), bodyTrue)

	w := tr.do(http.MethodGet, testBase+"/centring", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []centring.CentredPosition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "loop", list[0].Name)
	assert.Equal(t, "pos2", list[1].Name)

	require.NoError(t, tr.sim.MoveMotor(context.Background(), diffractometer.RoleOmega, 123))
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/loop/move", nil), bodyTrue)
	assert.InDelta(t, list[0].MotorPositions["omega"], tr.sim.Motor("omega"), 1e-9)

	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/missing/move", nil), bodyFalse)

	assertBody(t, tr.do(http.MethodDelete, testBase+"/centring/loop/delete", nil), bodyTrue)
	assertBody(t, tr.do(http.MethodDelete, testBase+"/centring/loop/delete", nil), bodyTrue)
	assert.Equal(t, 1, tr.srv.svc.Positions().Len())
}

func TestRenamePosition_EmptyName(t *testing.T) {
	tr := newTestRig(t)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/x/save", nil), "pos1")

	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/pos1/rename?newname=", nil), bodyTrue)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/pos1/rename", nil), bodyTrue)

	list := tr.srv.svc.Positions().List()
	require.Len(t, list, 1)
	assert.Equal(t, "", list[0].Name)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/pos1/move", nil), bodyFalse)
}

func TestGetCentring_Stub(t *testing.T) {
	tr := newTestRig(t)
	assertBody(t, tr.do(http.MethodGet, testBase+"/centring/anything", nil), bodyTrue)
}

func TestPostClick_KeepsLastThree(t *testing.T) {
	tr := newTestRig(t)

	for i := 1; i <= 4; i++ {
		form := url.Values{"PosX": {strings.Repeat("1", i)}, "PosY": {"2.5"}}
		assertBody(t, tr.do(http.MethodPost, testBase+"/centring/point", strings.NewReader(form.Encode())), bodyTrue)
	}
	assertBody(t, tr.do(http.MethodPost, testBase+"/centring/point",
		strings.NewReader(url.Values{"PosX": {"x"}, "PosY": {"1"}}.Encode())), bodyFalse)

	w := tr.do(http.MethodGet, testBase+"/centring/clicks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var clicks []centring.Click
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clicks))
	assert.Equal(t, []centring.Click{{X: 11, Y: 2.5}, {X: 111, Y: 2.5}, {X: 1111, Y: 2.5}}, clicks)
}

func TestThreeClickCentring(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/start3click", nil), bodyTrue)
	for i := 0; i < 3; i++ {
		pos := url.QueryEscape(`{"x":320,"y":240}`)
		assertBody(t, tr.do(http.MethodPut, testBase+"/centring/click?clickPos="+pos, nil), bodyTrue)
	}
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/click?clickPos=notjson", nil), bodyFalse)
}

func TestStartAuto(t *testing.T) {
	tr := newTestRig(t)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/startauto", nil), bodyTrue)

	tr.sim.SetAutoCentringFails(true)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/startauto", nil), bodyFalse)
}

// ─── Camera ────────────────────────────────────────────────────────

func TestSnapshot(t *testing.T) {
	tr := newTestRig(t)

	assertBody(t, tr.do(http.MethodPut, testBase+"/snapshot", nil), bodyTrue)

	entries, err := os.ReadDir(tr.snapDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}-\d{2}:\d{2}:\d{2}_sample\.jpg$`, entries[0].Name())
}

func TestCameraStream_MultipartUntilUnsubscribe(t *testing.T) {
	tr := newTestRig(t)
	ts := httptest.NewServer(tr.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + testBase + "/camera/subscribe")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, `multipart/x-mixed-replace; boundary="!>"`, resp.Header.Get("Content-Type"))

	// Read two complete parts.
	var buf bytes.Buffer
	chunk := make([]byte, 32<<10)
	deadline := time.Now().Add(5 * time.Second)
	for bytes.Count(buf.Bytes(), []byte(partTrailer)) < 2 {
		require.True(t, time.Now().Before(deadline), "timed out waiting for frames")
		n, err := resp.Body.Read(chunk)
		buf.Write(chunk[:n])
		require.NoError(t, err)
	}
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(partHeader+"\xff\xd8")), "part starts with header then JPEG SOI")

	unsub, err := http.Get(ts.URL + testBase + "/camera/unsubscribe")
	require.NoError(t, err)
	body, _ := io.ReadAll(unsub.Body) //nolint:errcheck // checked via content
	unsub.Body.Close()
	assert.Equal(t, bodyTrue, string(body))

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end after unsubscribe")
	}
	assert.False(t, tr.cam.Running())
}

// stopFailingCamera is a simulated camera whose Stop always fails.
type stopFailingCamera struct {
	*diffractometer.SimulatedCamera
}

func (c stopFailingCamera) Stop(ctx context.Context) error {
	_ = c.SimulatedCamera.Stop(ctx) //nolint:errcheck // Test double
	return diffractometer.ErrHardwareUnavailable
}

func TestCameraUnsubscribe_StopFailureStillTrue(t *testing.T) {
	sim := diffractometer.NewSimulator()
	cam := stopFailingCamera{diffractometer.NewSimulatedCamera(sim, 50, 75)}
	relay := camera.NewRelay(2 * time.Second)
	t.Cleanup(relay.Stop)
	cam.SetFrameHandler(relay.Publish)
	svc := centring.NewService(centring.Deps{
		Rig:       sim,
		Camera:    cam,
		Relay:     relay,
		Snapshots: camera.NewSnapshotWriter(t.TempDir()),
	})
	tr := newTestRig(t, func(d *Deps) { d.Service = svc })

	sub, err := svc.SubscribeCamera(context.Background())
	require.NoError(t, err)

	assertBody(t, tr.do(http.MethodGet, testBase+"/camera/unsubscribe", nil), bodyTrue)
	assert.Equal(t, 0, relay.Stats().Subscribers)
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, camera.ErrClosed)

	body := tr.do(http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `samplecentring_hardware_errors_total{kind="hardware_unavailable"} 1`)
	assert.Contains(t, body, `samplecentring_commands_total{action="camera.unsubscribe",outcome="failed"} 1`)
}

func TestCameraWebSocket_BinaryFrames(t *testing.T) {
	tr := newTestRig(t)
	ts := httptest.NewServer(tr.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + testBase + "/camera/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.True(t, bytes.HasPrefix(data, []byte{0xff, 0xd8}))
}

// ─── Events hub ────────────────────────────────────────────────────

func TestEventsWebSocket_RelaysHardwareAndRegistryEvents(t *testing.T) {
	tr := newTestRig(t)
	ts := httptest.NewServer(tr.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + testBase + "/events?channels=motor.moved,centring.saved"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return tr.srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	assertBody(t, tr.do(http.MethodPut, testBase+"/phi/move?newpos=3", nil), bodyTrue)
	assertBody(t, tr.do(http.MethodPut, testBase+"/centring/x/save", nil), "pos1")

	var got []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for len(got) < 2 {
		var msg EventMessage
		require.NoError(t, conn.ReadJSON(&msg))
		got = append(got, msg.Channel)
	}
	assert.Equal(t, []string{diffractometer.EventMotorMoved, EventPositionSaved}, got)
}

func TestEventsWebSocket_SubscribeOp(t *testing.T) {
	tr := newTestRig(t)
	ts := httptest.NewServer(tr.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + testBase + "/events?channels=centring.saved"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "subscribe", "id": "1", "channels": []string{"motor.*"}}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ack EventMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, msgAck, ack.Type)
	assert.Equal(t, "1", ack.ID)

	assertBody(t, tr.do(http.MethodPut, testBase+"/omega/move?newpos=10", nil), bodyTrue)

	// A move reports MOVING, the new position, then READY.
	var channels []string
	var lastSeq uint64
	for len(channels) < 3 {
		var ev EventMessage
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, msgEvent, ev.Type)
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
		channels = append(channels, ev.Channel)
	}
	assert.Equal(t, []string{
		diffractometer.EventMotorState,
		diffractometer.EventMotorMoved,
		diffractometer.EventMotorState,
	}, channels)
}

func TestHub_BroadcastRespectsChannels(t *testing.T) {
	hub := NewHub(logging.Nop())

	all := newEventClient(nil, parseChannels(""))
	moves := newEventClient(nil, parseChannels("motor.moved"))
	centring := newEventClient(nil, parseChannels("centring.*"))
	hub.add(all)
	hub.add(moves)
	hub.add(centring)
	assert.Equal(t, 3, hub.ClientCount())

	hub.Broadcast(diffractometer.EventMotorState, map[string]any{"state": "READY"})
	hub.Broadcast(EventPositionSaved, map[string]string{"name": "pos1"})

	require.Len(t, all.queue, 2)
	msg := <-all.queue
	var ev EventMessage
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, diffractometer.EventMotorState, ev.Channel)
	assert.Equal(t, uint64(1), ev.Seq)

	assert.Empty(t, moves.queue)
	require.Len(t, centring.queue, 1)

	hub.remove(all)
	hub.remove(moves)
	hub.remove(centring)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_FullQueueDropsEvents(t *testing.T) {
	hub := NewHub(logging.Nop())
	slow := newEventClient(nil, parseChannels(""))
	hub.add(slow)

	for i := 0; i < clientQueueSize+5; i++ {
		hub.Broadcast(diffractometer.EventMotorMoved, nil)
	}
	assert.Equal(t, uint64(5), hub.Dropped())
	assert.Equal(t, uint64(5), slow.dropped.Load())
}

func TestChannelFilter(t *testing.T) {
	f := parseChannels(" motor.* , centring.saved ")
	assert.True(t, f.matches("motor.moved"))
	assert.True(t, f.matches("centring.saved"))
	assert.False(t, f.matches("centring.deleted"))
	assert.False(t, f.matches("motorized"))

	f.drop([]string{"motor.*"})
	assert.False(t, f.matches("motor.moved"))
}

// ─── Journal ───────────────────────────────────────────────────────

func TestJournal_Disabled(t *testing.T) {
	tr := newTestRig(t)
	w := tr.do(http.MethodGet, testBase+"/journal", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJournal_RecordsCommands(t *testing.T) {
	tr := newTestRig(t, withJournal(t))

	assertBody(t, tr.do(http.MethodPut, testBase+"/omega/move?newpos=7", nil), bodyTrue)
	assertBody(t, tr.do(http.MethodPut, testBase+"/omega/move?newpos=bad", nil), bodyFalse)
	tr.journal.Close() // flush

	w := tr.do(http.MethodGet, testBase+"/journal?action=motor.move", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result audit.ListResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, 2, result.Total)

	outcomes := map[string]string{}
	for _, e := range result.Entries {
		assert.Equal(t, "omega", e.Target)
		assert.NotEmpty(t, e.RequestID)
		outcomes[e.Params["newpos"].(string)] = e.Outcome + "/" + e.ErrorKind
	}
	assert.Equal(t, map[string]string{
		"7":   audit.OutcomeOK + "/",
		"bad": audit.OutcomeFailed + "/" + centring.KindMalformedInput,
	}, outcomes)

	w = tr.do(http.MethodGet, testBase+"/journal?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
