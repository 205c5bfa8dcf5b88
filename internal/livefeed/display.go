package livefeed

import (
	"strings"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

// Broadcaster is the part of Hub the display needs.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Snapshot is the latest value of everything the display has seen. It backs
// the status endpoint so a client that just connected can draw a full
// screen before the next events arrive.
type Snapshot struct {
	State        string  `json:"state"`
	SpeedMps     float64 `json:"speed_mps"`
	Split        string  `json:"split"`
	StrokeRate   int     `json:"stroke_rate"`
	HeartRate    int     `json:"heart_rate"`
	Status       string  `json:"status"`
	Progress     int     `json:"progress_percent"`
	Phase        string  `json:"phase,omitempty"`
	PhaseElapsed float64 `json:"phase_elapsed_seconds"`
	PhaseMeters  float64 `json:"phase_distance_meters"`
	Remaining    float64 `json:"phase_remaining"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// Display broadcasts every Session callback as a typed event. It never asks
// for a phase to end early.
type Display struct {
	out Broadcaster
	now func() time.Time

	mu   sync.Mutex
	snap Snapshot
}

var _ workout.Display = (*Display)(nil)

func NewDisplay(out Broadcaster) *Display {
	if out == nil {
		panic("LiveFeedDisplay: broadcaster cannot be nil")
	}
	return &Display{out: out, now: time.Now, snap: Snapshot{State: workout.StateIdle.String()}}
}

// Snapshot returns a copy of the latest values.
func (d *Display) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

func (d *Display) update(t EventType, fn func(s *Snapshot)) Event {
	now := d.now()
	d.mu.Lock()
	fn(&d.snap)
	d.snap.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	d.mu.Unlock()
	return newEvent(t, now)
}

func mmss(seconds float64) string {
	return strings.TrimSpace(workout.MMSS(seconds))
}

func lifecycleState(e workout.Event) workout.State {
	switch e {
	case workout.EventStarted, workout.EventResumed:
		return workout.StateRunning
	case workout.EventPaused:
		return workout.StatePaused
	case workout.EventStopped:
		return workout.StateEnded
	default:
		return workout.StateIdle
	}
}

func (d *Display) OnLifecycle(event workout.Event) {
	state := lifecycleState(event).String()
	ev := d.update(EventLifecycle, func(s *Snapshot) { s.State = state })
	d.out.BroadcastJSON(Lifecycle{Event: ev, Name: event.String(), State: state})
}

func (d *Display) OnHeartbeatTick() {
	d.out.BroadcastJSON(newEvent(EventHeartbeat, d.now()))
}

func (d *Display) OnSpeedSample(speedMps float64) bool {
	split := workout.SplitSeconds(speedMps)
	text := mmss(split)
	ev := d.update(EventSpeed, func(s *Snapshot) {
		s.SpeedMps = speedMps
		s.Split = text
	})
	d.out.BroadcastJSON(Speed{Event: ev, SpeedMps: speedMps, SplitSeconds: split, Split: text})
	return false
}

func (d *Display) OnStrokeRate(spm int) {
	ev := d.update(EventStrokeRate, func(s *Snapshot) { s.StrokeRate = spm })
	d.out.BroadcastJSON(Value{Event: ev, Value: spm})
}

// OnHeartRate skips readings without a paired belt.
func (d *Display) OnHeartRate(bpm int) {
	if bpm == pm5.HeartRateNotAvailable {
		return
	}
	ev := d.update(EventHeartRate, func(s *Snapshot) { s.HeartRate = bpm })
	d.out.BroadcastJSON(Value{Event: ev, Value: bpm})
}

func (d *Display) OnStatusText(text string, color workout.Color) {
	ev := d.update(EventStatus, func(s *Snapshot) { s.Status = text })
	d.out.BroadcastJSON(Status{Event: ev, Text: text, Color: string(color)})
}

func (d *Display) OnPhaseConfigured(durationLeft, distanceLeft *float64) {
	ev := d.update(EventPhase, func(s *Snapshot) {
		s.Progress = 0
		s.PhaseElapsed = 0
		s.PhaseMeters = 0
		switch {
		case durationLeft != nil:
			s.Remaining = *durationLeft
		case distanceLeft != nil:
			s.Remaining = *distanceLeft
		}
	})
	d.out.BroadcastJSON(PhaseConfigured{Event: ev, DurationSeconds: durationLeft, DistanceMeters: distanceLeft})
}

func (d *Display) OnProgressPercent(percent int) {
	ev := d.update(EventProgress, func(s *Snapshot) { s.Progress = percent })
	d.out.BroadcastJSON(Value{Event: ev, Value: percent})
}

func (d *Display) OnPhaseProgress(p workout.PhaseProgress) {
	ev := d.update(EventPhaseProgress, func(s *Snapshot) {
		s.Phase = p.Phase
		s.PhaseElapsed = p.ElapsedSeconds
		s.PhaseMeters = p.DistanceMeters
		s.Remaining = p.Remaining
	})
	d.out.BroadcastJSON(PhaseProgress{
		Event:          ev,
		Phase:          p.Phase,
		Kind:           p.Kind.String(),
		ElapsedSeconds: p.ElapsedSeconds,
		DistanceMeters: p.DistanceMeters,
		Remaining:      p.Remaining,
		Split:          mmss(p.SplitSeconds),
	})
}
