package rower

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

type fakeConnector struct {
	mu          sync.Mutex
	err         error
	connects    int
	disconnects int
}

func (c *fakeConnector) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.err
}

func (c *fakeConnector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConnector) State() LinkState {
	return LinkState{Connected: true, Name: "PM5 430000001", Address: "AA:BB:CC:00:00:01"}
}

func (c *fakeConnector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, c.disconnects
}

type recordingStatus struct {
	mu    sync.Mutex
	lines []StatusText
}

func (r *recordingStatus) OnStatusText(text string, color workout.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, StatusText{Text: text, Color: color})
}

func (r *recordingStatus) has(st StatusText) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l == st {
			return true
		}
	}
	return false
}

type fakeScreen struct {
	mu     sync.Mutex
	states []bool
}

func (s *fakeScreen) SetScreenOn(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, on)
}

func (s *fakeScreen) last() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return false, false
	}
	return s.states[len(s.states)-1], true
}

type orchestratorHarness struct {
	*managerHarness
	link   *fakeConnector
	status *recordingStatus
	screen *fakeScreen
	orch   *Orchestrator

	mu    sync.Mutex
	idles int
}

func newOrchestratorHarness(t *testing.T, linkErr error, idleScreenOff time.Duration) *orchestratorHarness {
	t.Helper()
	h := &orchestratorHarness{
		managerHarness: newManagerHarness(t, 5*time.Second),
		link:           &fakeConnector{err: linkErr},
		status:         &recordingStatus{},
		screen:         &fakeScreen{},
	}
	h.orch = NewOrchestrator(OrchestratorArgs{
		Link:          h.link,
		Workouts:      h.wm,
		Status:        h.status,
		Screen:        h.screen,
		Store:         h.store,
		IdleScreenOff: idleScreenOff,
		Logger:        quietLogger(),
	})
	h.orch.ListenToIdle(h.onIdle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("orchestrator did not stop")
		}
	})
	return h
}

func (h *orchestratorHarness) onIdle() {
	h.mu.Lock()
	h.idles++
	h.mu.Unlock()
}

func (h *orchestratorHarness) idleCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idles
}

func (h *orchestratorHarness) waitForStage(stage Stage) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.wm.Status().Stage == stage
	}, 2*time.Second, 5*time.Millisecond, "stage %s", stage)
}

func TestOrchestrator_RunsRequestedWorkout(t *testing.T) {
	h := newOrchestratorHarness(t, nil, 0)

	require.Eventually(t, func() bool {
		return h.status.has(StatusText{Text: StatusWaiting})
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.request("Easy", f(1), nil))
	h.waitForStage(StageActive)
	assert.True(t, h.status.has(StatusText{Text: StatusConnected, Color: workout.ColorGreen}))
	assert.True(t, h.status.has(StatusText{Text: StatusStartRowing}))
	assert.Equal(t, "AA:BB:CC:00:00:01", h.store.PreferredRower())
	assert.NotEmpty(t, h.prog.programmed(), "first phase programmed on start")

	h.wm.Abort()

	require.Eventually(t, func() bool {
		return h.status.has(StatusText{Text: StatusWorkoutDone})
	}, 2*time.Second, 5*time.Millisecond)
	h.waitForStage(StageIdle)
	connects, disconnects := h.link.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, 1, h.idleCount())
	require.Len(t, h.store.History(), 1)

	// Ready for the next request.
	require.NoError(t, h.request("Normal", nil, f(1000)))
	h.waitForStage(StageActive)
}

func TestOrchestrator_NoRowerAbortsRequest(t *testing.T) {
	h := newOrchestratorHarness(t, bt.ErrDeviceNotFound, 0)

	require.NoError(t, h.request("Intense", f(20), nil))

	require.Eventually(t, func() bool {
		return h.status.has(StatusText{Text: StatusNoRower, Color: workout.ColorRed})
	}, 2*time.Second, 5*time.Millisecond)
	h.waitForStage(StageIdle)
	require.Eventually(t, func() bool { return h.idleCount() == 1 }, time.Second, 5*time.Millisecond)

	_, disconnects := h.link.counts()
	assert.Zero(t, disconnects)
	assert.Empty(t, h.store.History(), "nothing was rowed")
	assert.Empty(t, h.prog.programmed())
}

func TestOrchestrator_ResetsAbortBeforeConnect(t *testing.T) {
	h := newOrchestratorHarness(t, errors.New("unused"), 0)

	// Aborted before or while connecting; either way the loop brings the
	// manager back to Idle.
	require.NoError(t, h.wm.RequestWorkout("Easy", f(1), nil))
	h.wm.Abort()
	h.waitForStage(StageIdle)
}

func TestOrchestrator_BlanksIdleScreen(t *testing.T) {
	h := newOrchestratorHarness(t, nil, 100*time.Millisecond)

	require.Eventually(t, func() bool {
		on, ok := h.screen.last()
		return ok && !on
	}, time.Second, 5*time.Millisecond, "screen turns off while waiting")

	h.orch.Wake()
	require.Eventually(t, func() bool {
		on, ok := h.screen.last()
		return ok && on
	}, time.Second, time.Millisecond, "wake turns it back on")

	require.Eventually(t, func() bool {
		on, _ := h.screen.last()
		return !on
	}, time.Second, 5*time.Millisecond, "and the timer restarts")

	require.NoError(t, h.request("Easy", f(1), nil))
	h.waitForStage(StageActive)
	on, _ := h.screen.last()
	assert.True(t, on, "a request wakes the screen")
}

func TestNewOrchestrator_PanicsOnMissingCollaborators(t *testing.T) {
	h := newManagerHarness(t, time.Second)
	assert.PanicsWithValue(t, "Orchestrator: logger cannot be nil", func() {
		NewOrchestrator(OrchestratorArgs{Link: &fakeConnector{}, Workouts: h.wm})
	})
	assert.Panics(t, func() {
		NewOrchestrator(OrchestratorArgs{Workouts: h.wm, Logger: quietLogger()})
	})
	assert.Panics(t, func() {
		NewOrchestrator(OrchestratorArgs{Link: &fakeConnector{}, Workouts: h.wm, Logger: quietLogger()})
	})
}
