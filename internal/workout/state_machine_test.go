package workout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

// machineIn returns a machine in state whose last transition happened at t0.
func machineIn(t *testing.T, state State, maxPause time.Duration) *StateMachine {
	t.Helper()
	m := NewStateMachine(maxPause, t0)
	switch state {
	case StateRunning:
		m.Update(1, t0)
	case StatePaused:
		m.Update(1, t0)
		m.Update(0, t0)
	case StateEnded:
		m.Abort(t0)
	}
	require.Equal(t, state, m.State())
	return m
}

func TestStateMachine_TransitionTable(t *testing.T) {
	const maxPause = 5 * time.Second

	tests := []struct {
		name      string
		from      State
		speed     float64
		now       time.Time
		wantState State
		wantEvent Event
		wantSince time.Time
	}{
		{name: "idle stopped", from: StateIdle, speed: 0, now: at(1), wantState: StateIdle, wantEvent: EventNone, wantSince: t0},
		{name: "idle moving", from: StateIdle, speed: 2, now: at(1), wantState: StateRunning, wantEvent: EventStarted, wantSince: at(1)},
		{name: "running stopped", from: StateRunning, speed: 0, now: at(1), wantState: StatePaused, wantEvent: EventPaused, wantSince: at(1)},
		{name: "running moving", from: StateRunning, speed: 2, now: at(1), wantState: StateRunning, wantEvent: EventNone, wantSince: t0},
		{name: "paused stopped within limit", from: StatePaused, speed: 0, now: at(4.9), wantState: StatePaused, wantEvent: EventNone, wantSince: t0},
		{name: "paused stopped at limit", from: StatePaused, speed: 0, now: at(5), wantState: StateEnded, wantEvent: EventStopped, wantSince: at(5)},
		{name: "paused moving", from: StatePaused, speed: 2, now: at(100), wantState: StateRunning, wantEvent: EventResumed, wantSince: at(100)},
		{name: "ended stopped", from: StateEnded, speed: 0, now: at(1), wantState: StateEnded, wantEvent: EventStopped, wantSince: t0},
		{name: "ended moving", from: StateEnded, speed: 2, now: at(1), wantState: StateEnded, wantEvent: EventStopped, wantSince: t0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := machineIn(t, tt.from, maxPause)

			assert.Equal(t, tt.wantEvent, m.Update(tt.speed, tt.now))
			assert.Equal(t, tt.wantState, m.State())
			assert.Equal(t, tt.wantSince, m.Since())
		})
	}
}

func TestStateMachine_PauseSequence(t *testing.T) {
	speeds := []float64{0, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0}

	type emitted struct {
		at    int
		event Event
	}

	tests := []struct {
		name  string
		start State
		want  []emitted
	}{
		{
			name:  "from running",
			start: StateRunning,
			want:  []emitted{{0, EventPaused}, {3, EventResumed}, {5, EventPaused}, {10, EventStopped}},
		},
		{
			name:  "from idle",
			start: StateIdle,
			want:  []emitted{{3, EventStarted}, {5, EventPaused}, {10, EventStopped}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := machineIn(t, tt.start, 5*time.Second)

			var got []emitted
			for i, speed := range speeds {
				if e := m.Update(speed, at(float64(i))); e != EventNone {
					got = append(got, emitted{i, e})
				}
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, StateEnded, m.State())
		})
	}
}

func TestStateMachine_PauseCountdown(t *testing.T) {
	m := machineIn(t, StatePaused, 2*time.Second)
	assert.Equal(t, 500*time.Millisecond, m.PausedFor(at(0.5)))
	assert.Equal(t, 1500*time.Millisecond, m.PauseCountdown(at(0.5)))

	m.Update(1, at(1))
	assert.Zero(t, m.PausedFor(at(2)))
	assert.Equal(t, 2*time.Second, m.PauseCountdown(at(2)))
}

func TestStateMachine_ResetAndAbort(t *testing.T) {
	m := machineIn(t, StateRunning, time.Minute)

	m.Abort(at(3))
	assert.Equal(t, StateEnded, m.State())
	assert.Equal(t, at(3), m.Since())

	m.Abort(at(4))
	assert.Equal(t, at(3), m.Since(), "second abort keeps the original end time")

	m.Reset(at(5))
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, EventStarted, m.Update(1, at(6)))
}

func TestStateMachine_DefaultMaxPause(t *testing.T) {
	assert.Equal(t, DefaultMaxPause, NewStateMachine(0, t0).MaxPause())
	assert.Equal(t, 2*time.Second, NewStateMachine(2*time.Second, t0).MaxPause())
}

func TestStateAndEventStrings(t *testing.T) {
	assert.Equal(t, "Paused", StatePaused.String())
	assert.Equal(t, "Resumed", EventResumed.String())
	assert.Equal(t, "NextPhase", AdvanceNextPhase.String())
}
