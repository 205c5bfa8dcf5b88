// Package shadow keeps the rower's cloud device shadow in sync with the
// workout lifecycle. A voice assistant writes the desired workout into the
// shadow; the rower receives the difference on the delta topic, starts or
// aborts the workout and reports back.
package shadow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

const (
	IntensityIdle      = "Idle"
	IntensityAbort     = "Abort"
	IntensityScheduled = "Scheduled"
)

// WorkoutIntensities are the labels that start a workout from Idle.
var WorkoutIntensities = []string{
	"Easy",
	"Normal",
	"Intense",
	"Interval",
	"Cardio",
	"Strength",
	IntensityScheduled,
	workout.TestProgram,
}

func isWorkoutIntensity(s string) bool {
	for _, w := range WorkoutIntensities {
		if w == s {
			return true
		}
	}
	return false
}

// State is the workout request held in the shadow. Duration is in minutes,
// distance in meters; at most one is expected to be set.
type State struct {
	Intensity string   `json:"intensity"`
	Duration  *float64 `json:"duration"`
	Distance  *float64 `json:"distance"`
}

func IdleState() State {
	return State{Intensity: IntensityIdle}
}

func (s State) IsIdle() bool {
	return s.Intensity == IntensityIdle
}

func (s State) String() string {
	out := s.Intensity
	if s.Duration != nil {
		out += fmt.Sprintf(" %g min", *s.Duration)
	}
	if s.Distance != nil {
		out += fmt.Sprintf(" %g m", *s.Distance)
	}
	return out
}

// Document is the body of a shadow update.
type Document struct {
	State DocumentState `json:"state"`
}

type DocumentState struct {
	Reported *State `json:"reported,omitempty"`
	Desired  *State `json:"desired,omitempty"`
}

// ReportedAndDesired builds the update that acknowledges s: once reported
// and desired agree, the service stops sending a delta.
func ReportedAndDesired(s State) Document {
	r, d := s, s
	return Document{State: DocumentState{Reported: &r, Desired: &d}}
}

// DesiredOnly builds the update a remote controller sends to request s.
func DesiredOnly(s State) Document {
	d := s
	return Document{State: DocumentState{Desired: &d}}
}

func UpdateTopic(thing string) string {
	return "$aws/things/" + thing + "/shadow/update"
}

func DeltaTopic(thing string) string {
	return UpdateTopic(thing) + "/delta"
}

var ErrBadDelta = errors.New("shadow: malformed delta")

// Delta is the changed part of the desired state. A nil field was not part
// of the delta; a field set to null arrives as a present but nil value.
type Delta struct {
	Intensity   *string
	Duration    *float64
	HasDuration bool
	Distance    *float64
	HasDistance bool
}

// ParseDelta decodes a delta message. Only the state object is read.
func ParseDelta(payload []byte) (Delta, error) {
	var msg struct {
		State map[string]json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Delta{}, fmt.Errorf("%w: %v", ErrBadDelta, err)
	}
	if msg.State == nil {
		return Delta{}, fmt.Errorf("%w: no state object", ErrBadDelta)
	}

	var d Delta
	if raw, ok := msg.State["intensity"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Delta{}, fmt.Errorf("%w: intensity: %v", ErrBadDelta, err)
		}
		d.Intensity = &s
	}
	if raw, ok := msg.State["duration"]; ok {
		v, err := optionalNumber(raw)
		if err != nil {
			return Delta{}, fmt.Errorf("%w: duration: %v", ErrBadDelta, err)
		}
		d.Duration, d.HasDuration = v, true
	}
	if raw, ok := msg.State["distance"]; ok {
		v, err := optionalNumber(raw)
		if err != nil {
			return Delta{}, fmt.Errorf("%w: distance: %v", ErrBadDelta, err)
		}
		d.Distance, d.HasDistance = v, true
	}
	return d, nil
}

func optionalNumber(raw json.RawMessage) (*float64, error) {
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
