// Package intent turns voice assistant requests into the desired shadow
// state of the rower.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/shadow"
)

var (
	ErrUnknownIntent  = errors.New("intent: unknown intent")
	ErrUnknownRequest = errors.New("intent: unexpected request type")
)

const (
	DefaultIntensity = "Normal"
	MinRaceMeters    = 1000
	// FreeRowMinutes bounds a "just row" session, which has no goal of its
	// own.
	FreeRowMinutes = 60

	cardTitlePrefix = "My Rower - "
)

// Intent names understood by Interpret.
const (
	WorkoutTime               = "WorkoutTime"
	WorkoutDistanceMeters     = "WorkoutDistanceMeters"
	WorkoutDistanceKilometers = "WorkoutDistanceKilometers"
	JustRow                   = "JustRow"
	ScheduledWorkout          = "ScheduledWorkout"
	PauseWorkout              = "PauseWorkout"
	ResumeWorkout             = "ResumeWorkout"
	StopWorkout               = "StopWorkout"
	Help                      = "AMAZON.HelpIntent"
)

// Slot names.
const (
	SlotIntensity     = "Intensity"
	SlotTotalTime     = "TotalTime"
	SlotTotalDistance = "TotalDistance"
)

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots,omitempty"`
}

func (i Intent) slot(name string) (string, bool) {
	s, ok := i.Slots[name]
	if !ok || s.Value == "" {
		return "", false
	}
	return s.Value, true
}

// Result is what to say back and, when Desired is set, the shadow state to
// request.
type Result struct {
	Title      string
	Speech     string
	Desired    *shadow.State
	EndSession bool
}

func done(title, speech string, desired *shadow.State) Result {
	return Result{Title: title, Speech: speech, Desired: desired, EndSession: true}
}

func ask(title, speech string) Result {
	return Result{Title: title, Speech: speech}
}

func desired(intensity string, duration, distance *float64) *shadow.State {
	return &shadow.State{Intensity: intensity, Duration: duration, Distance: distance}
}

// ISO8601ToMinutes reads the minutes out of a duration such as "PT1H30M".
// Hours count sixty minutes; every other designator, seconds and days
// included, is dropped.
func ISO8601ToMinutes(duration string) int {
	minutes, val := 0, 0
	for _, c := range duration {
		switch {
		case c >= '0' && c <= '9':
			val = val*10 + int(c-'0')
			continue
		case c == 'H':
			minutes += val * 60
		case c == 'M':
			minutes += val
		}
		val = 0
	}
	return minutes
}

// Interpret maps one intent onto a response. Unknown intents still produce
// an apology along with ErrUnknownIntent.
func Interpret(in Intent) (Result, error) {
	switch in.Name {
	case Help:
		return helpResult(""), nil
	case WorkoutTime:
		return startTimed(in), nil
	case WorkoutDistanceMeters:
		return startDistance(in, 1), nil
	case WorkoutDistanceKilometers:
		return startDistance(in, 1000), nil
	case JustRow:
		return done("Workout", "Starting a free workout.",
			desired(DefaultIntensity, minutes(FreeRowMinutes), nil)), nil
	case ScheduledWorkout:
		return done("Workout", "Starting today's scheduled workout.", desired("Scheduled", nil, nil)), nil
	case PauseWorkout:
		return done("Workout", "Pausing your workout.", desired("Pause", nil, nil)), nil
	case ResumeWorkout:
		return done("Workout", "Resuming your paused workout.", desired("Resume", nil, nil)), nil
	case StopWorkout:
		return done("Workout", "Stopping your workout.", desired(shadow.IntensityAbort, nil, nil)), nil
	default:
		return done("Sorry", "Sorry. Your rower doesn't know how to do that.", nil),
			fmt.Errorf("%w: %q", ErrUnknownIntent, in.Name)
	}
}

func minutes(v float64) *float64 { return &v }

func intensity(in Intent) string {
	if v, ok := in.slot(SlotIntensity); ok {
		return capitalize(v)
	}
	return DefaultIntensity
}

// capitalize matches spoken slot values ("easy") to intensity labels.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func startTimed(in Intent) Result {
	raw, ok := in.slot(SlotTotalTime)
	mins := ISO8601ToMinutes(raw)
	if !ok || mins <= 0 {
		return ask("Duration", "Sorry, but I do not understand how long a workout you want. "+
			"What workout or race would you like to start?")
	}
	level := intensity(in)
	return done("Workout", fmt.Sprintf("Starting a %s %d minutes workout", level, mins),
		desired(level, minutes(float64(mins)), nil))
}

func startDistance(in Intent, unitMeters int) Result {
	raw, ok := in.slot(SlotTotalDistance)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if !ok || err != nil {
		return ask("Distance", "Sorry, but I do not understand how long a race you want. "+
			"What workout or race would you like to start?")
	}
	meters := n * unitMeters
	if meters < MinRaceMeters {
		return ask("Too Short", fmt.Sprintf("A %d meters race is too short. ", meters)+
			"Tell me again what workout or race you would like to start?")
	}
	level := intensity(in)
	m := float64(meters)
	return done("Workout", fmt.Sprintf("Starting a %s %d meters race", level, meters), desired(level, nil, &m))
}

func helpResult(prefix string) Result {
	return ask("Help", prefix+
		"I can connect and monitor a workout on your rowing machine. "+
		"Just ask me to start an easy, normal, or intense 30 minutes or 3000 meters workout. "+
		"You can also ask me to pause, resume, or stop a workout in progress.")
}

// Request is the part of an assistant request envelope that matters here.
type Request struct {
	Type   string  `json:"type"`
	Intent *Intent `json:"intent,omitempty"`
}

// ParseEnvelope reads {"request": {...}} as sent by the assistant.
func ParseEnvelope(data []byte) (Request, error) {
	var env struct {
		Request Request `json:"request"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Request{}, fmt.Errorf("failed to parse request: %w", err)
	}
	if env.Request.Type == "" {
		return Request{}, errors.New("request type missing")
	}
	return env.Request, nil
}

func Handle(req Request) (Result, error) {
	switch req.Type {
	case "LaunchRequest":
		return ask("Workout", "What workout would you like to start?"), nil
	case "IntentRequest":
		if req.Intent == nil {
			return done("Sorry", "Sorry. Something went wrong", nil), errors.New("intent request without intent")
		}
		return Interpret(*req.Intent)
	case "SessionEndedRequest":
		return Result{EndSession: true}, nil
	default:
		return done("Sorry", "Sorry. Something went wrong", nil), fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
}

type OutputSpeech struct {
	Type string `json:"type"`
	SSML string `json:"ssml"`
}

type Card struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Response struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Card             *Card         `json:"card,omitempty"`
	ShouldEndSession bool          `json:"shouldEndSession"`
}

// Response renders r in the assistant's response format.
func (r Result) Response() Response {
	resp := Response{ShouldEndSession: r.EndSession}
	if r.Speech != "" {
		resp.OutputSpeech = &OutputSpeech{Type: "SSML", SSML: "<speak>" + r.Speech + "</speak>"}
	}
	if r.Title != "" {
		resp.Card = &Card{Type: "Simple", Title: cardTitlePrefix + r.Title, Content: r.Speech}
	}
	return resp
}
