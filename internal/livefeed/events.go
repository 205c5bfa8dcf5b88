// Package livefeed streams the running workout to WebSocket clients, such as
// a tablet next to the rower or a coach's laptop.
package livefeed

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventLifecycle     EventType = "lifecycle"
	EventHeartbeat     EventType = "heartbeat"
	EventSpeed         EventType = "speed"
	EventStrokeRate    EventType = "stroke_rate"
	EventHeartRate     EventType = "heart_rate"
	EventStatus        EventType = "status"
	EventPhase         EventType = "phase"
	EventProgress      EventType = "progress"
	EventPhaseProgress EventType = "phase_progress"
)

// Event is the envelope shared by every event.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

func newEvent(t EventType, now time.Time) Event {
	return Event{Type: t, TS: now.UTC().Format(time.RFC3339Nano)}
}

type Lifecycle struct {
	Event
	Name  string `json:"event"`
	State string `json:"state"`
}

type Speed struct {
	Event
	SpeedMps     float64 `json:"speed_mps"`
	SplitSeconds float64 `json:"split_seconds"`
	Split        string  `json:"split"`
}

// Value carries a single integer reading: stroke rate, heart rate or
// progress percent.
type Value struct {
	Event
	Value int `json:"value"`
}

type Status struct {
	Event
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// PhaseConfigured announces a new phase goal. Exactly one of the two is set.
type PhaseConfigured struct {
	Event
	DurationSeconds *float64 `json:"duration_seconds"`
	DistanceMeters  *float64 `json:"distance_meters"`
}

type PhaseProgress struct {
	Event
	Phase          string  `json:"phase"`
	Kind           string  `json:"kind"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	DistanceMeters float64 `json:"distance_meters"`
	Remaining      float64 `json:"remaining"`
	Split          string  `json:"split"`
}
