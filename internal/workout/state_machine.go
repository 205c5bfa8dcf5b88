package workout

import "time"

// DefaultMaxPause is how long a rower may stop before the workout ends.
const DefaultMaxPause = 5 * time.Minute

// State is the lifecycle of a rowing session.
type State int

const (
	StateIdle    State = iota // Waiting for the first stroke
	StateRunning              // Flywheel moving
	StatePaused               // Stopped, pause timer running
	StateEnded                // Terminal until Reset
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// Event is the transition reported by StateMachine.Update.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventPaused
	EventResumed
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventStarted:
		return "Started"
	case EventPaused:
		return "Paused"
	case EventResumed:
		return "Resumed"
	case EventStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type speedClass int

const (
	speedZero speedClass = iota
	speedMoving
	numSpeedClasses
)

func classify(speedMps float64) speedClass {
	if speedMps > 0 {
		return speedMoving
	}
	return speedZero
}

type transition struct {
	next  State
	event Event
	// timed transitions only fire once the pause has lasted maxPause
	timed bool
}

var transitions = [...][numSpeedClasses]transition{
	StateIdle: {
		speedZero:   {next: StateIdle, event: EventNone},
		speedMoving: {next: StateRunning, event: EventStarted},
	},
	StateRunning: {
		speedZero:   {next: StatePaused, event: EventPaused},
		speedMoving: {next: StateRunning, event: EventNone},
	},
	StatePaused: {
		speedZero:   {next: StateEnded, event: EventStopped, timed: true},
		speedMoving: {next: StateRunning, event: EventResumed},
	},
	StateEnded: {
		speedZero:   {next: StateEnded, event: EventStopped},
		speedMoving: {next: StateEnded, event: EventStopped},
	},
}

// StateMachine tracks Idle/Running/Paused/Ended from the speed stream.
// It is not safe for concurrent use; Session serializes access.
type StateMachine struct {
	state    State
	since    time.Time
	maxPause time.Duration
}

// NewStateMachine starts Idle at now. A non-positive maxPause means
// DefaultMaxPause.
func NewStateMachine(maxPause time.Duration, now time.Time) *StateMachine {
	if maxPause <= 0 {
		maxPause = DefaultMaxPause
	}
	return &StateMachine{state: StateIdle, since: now, maxPause: maxPause}
}

// Update feeds one speed sample. Ended keeps reporting EventStopped without
// moving since.
func (m *StateMachine) Update(speedMps float64, now time.Time) Event {
	t := transitions[m.state][classify(speedMps)]
	if t.timed && now.Sub(m.since) < m.maxPause {
		return EventNone
	}
	if t.next != m.state {
		m.state = t.next
		m.since = now
	}
	return t.event
}

// Reset returns to Idle for a new phase.
func (m *StateMachine) Reset(now time.Time) {
	m.state = StateIdle
	m.since = now
}

// Abort ends the session immediately.
func (m *StateMachine) Abort(now time.Time) {
	if m.state == StateEnded {
		return
	}
	m.state = StateEnded
	m.since = now
}

// State, Since and MaxPause expose the current state, when it was entered
// and the pause limit.
func (m *StateMachine) State() State            { return m.state }
func (m *StateMachine) Since() time.Time        { return m.since }
func (m *StateMachine) MaxPause() time.Duration { return m.maxPause }

// PausedFor is how long the current pause has lasted, zero when not paused.
func (m *StateMachine) PausedFor(now time.Time) time.Duration {
	if m.state != StatePaused {
		return 0
	}
	return now.Sub(m.since)
}

// PauseCountdown is the time left before a pause ends the session. It is
// negative once the limit has passed but no sample has arrived yet.
func (m *StateMachine) PauseCountdown(now time.Time) time.Duration {
	return m.maxPause - m.PausedFor(now)
}
