package livefeed

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

type recorder struct {
	mu     sync.Mutex
	events []map[string]any
}

func (r *recorder) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.events = append(r.events, m)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i], _ = e["type"].(string)
	}
	return out
}

func (r *recorder) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func fixedDisplay(out Broadcaster) *Display {
	d := NewDisplay(out)
	d.now = func() time.Time { return time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC) }
	return d
}

func TestDisplay_BroadcastsTypedEvents(t *testing.T) {
	rec := &recorder{}
	d := fixedDisplay(rec)

	d.OnLifecycle(workout.EventStarted)
	assert.Equal(t, "Started", rec.last()["event"])
	assert.Equal(t, "Running", rec.last()["state"])
	assert.Equal(t, "2024-03-01T07:00:00Z", rec.last()["ts"])

	assert.False(t, d.OnSpeedSample(4), "the live feed never ends a phase")
	assert.Equal(t, "2:05", rec.last()["split"])

	d.OnStrokeRate(24)
	d.OnHeartRate(142)
	d.OnHeartRate(pm5.HeartRateNotAvailable)
	assert.EqualValues(t, 142, rec.last()["value"])

	seconds := 600.0
	d.OnPhaseConfigured(&seconds, nil)
	assert.EqualValues(t, 600, rec.last()["duration_seconds"])
	assert.Nil(t, rec.last()["distance_meters"])

	d.OnStatusText("PAUSED", workout.ColorRed)
	assert.Equal(t, "red", rec.last()["color"])

	d.OnProgressPercent(40)
	d.OnPhaseProgress(workout.PhaseProgress{Phase: "Warm-up", Kind: workout.GoalDuration, ElapsedSeconds: 240, Remaining: 360, SplitSeconds: 125})
	d.OnHeartbeatTick()

	assert.Equal(t, []string{
		"lifecycle", "speed", "stroke_rate", "heart_rate", "phase", "status", "progress", "phase_progress", "heartbeat",
	}, rec.types())
}

func TestDisplay_Snapshot(t *testing.T) {
	d := fixedDisplay(&recorder{})
	assert.Equal(t, "Idle", d.Snapshot().State)

	d.OnLifecycle(workout.EventStarted)
	d.OnLifecycle(workout.EventPaused)
	d.OnSpeedSample(5)
	d.OnStrokeRate(28)
	d.OnHeartRate(150)
	d.OnHeartRate(pm5.HeartRateNotAvailable)
	meters := 500.0
	d.OnPhaseConfigured(nil, &meters)

	s := d.Snapshot()
	assert.Equal(t, "Paused", s.State)
	assert.Equal(t, 5.0, s.SpeedMps)
	assert.Equal(t, "1:40", s.Split)
	assert.Equal(t, 28, s.StrokeRate)
	assert.Equal(t, 150, s.HeartRate, "keeps the last reading without a belt")
	assert.Equal(t, 500.0, s.Remaining)
	assert.Equal(t, 0, s.Progress)

	d.OnLifecycle(workout.EventStopped)
	assert.Equal(t, "Ended", d.Snapshot().State)
}

func TestHub_DeliversBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	NewDisplay(hub).OnStrokeRate(31)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Value
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, EventStrokeRate, ev.Type)
	assert.Equal(t, 31, ev.Value)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	hub := NewHub(quietLogger())
	// Run is not started, so nothing drains the queue.
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		hub.BroadcastJSON(map[string]int{"i": i})
	}
	assert.EqualValues(t, 5, hub.Dropped())
}

func TestServer_Endpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(quietLogger())
	go hub.Run(ctx)
	display := fixedDisplay(hub)
	display.OnStrokeRate(22)

	srv := NewServer("127.0.0.1:0", hub, display, func() map[string]any {
		return map[string]any{"rower": "connected"}
	}, quietLogger())
	require.NoError(t, srv.Start())
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		assert.NoError(t, srv.Shutdown(shutdownCtx))
	}()

	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(base + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status struct {
		Name    string   `json:"name"`
		Rower   string   `json:"rower"`
		Clients int      `json:"clients"`
		Workout Snapshot `json:"workout"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "smart-rower", status.Name)
	assert.Equal(t, "connected", status.Rower)
	assert.Equal(t, 22, status.Workout.StrokeRate)
}

func TestNewServer_NilArguments(t *testing.T) {
	hub := NewHub(quietLogger())
	d := NewDisplay(hub)
	assert.Panics(t, func() { NewServer(":0", hub, d, nil, nil) })
	assert.Panics(t, func() { NewServer(":0", nil, d, nil, quietLogger()) })
	assert.Panics(t, func() { NewHub(nil) })
	assert.Panics(t, func() { NewDisplay(nil) })
}
