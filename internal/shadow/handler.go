package shadow

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
)

// WorkoutController starts and aborts workouts on behalf of the shadow.
type WorkoutController interface {
	RequestWorkout(intensity string, durationMinutes, distanceMeters *float64) error
	Abort()
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Handler applies shadow deltas to the workout controller and reports the
// resulting state.
//
// From Idle, a workout intensity starts a workout when the controller
// accepts it. Abort is honored in any state and returns to Idle. Everything
// else, including Pause and Resume, is acknowledged without effect.
type Handler struct {
	thing     string
	workouts  WorkoutController
	publisher Publisher
	logger    *log.Logger

	mu         sync.Mutex
	state      State
	stateEvent *events.ChannelEvent[State]
}

func NewHandler(thing string, workouts WorkoutController, publisher Publisher, logger *log.Logger) *Handler {
	if logger == nil {
		panic("ShadowHandler: logger cannot be nil")
	}
	if workouts == nil {
		panic("ShadowHandler: workouts cannot be nil")
	}
	if publisher == nil {
		panic("ShadowHandler: publisher cannot be nil")
	}
	return &Handler{
		thing:      thing,
		workouts:   workouts,
		publisher:  publisher,
		logger:     logger,
		state:      IdleState(),
		stateEvent: events.NewChannelEvent[State](true),
	}
}

func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) IsIdle() bool {
	return h.State().IsIdle()
}

// ListenToState receives the state after every change.
func (h *Handler) ListenToState(ch chan<- State) func() {
	return h.stateEvent.Listen(ch)
}

// GoIdle resets the shadow to Idle and reports it.
func (h *Handler) GoIdle() error {
	h.mu.Lock()
	h.state = IdleState()
	s := h.state
	h.mu.Unlock()

	h.stateEvent.Notify(s)
	return h.report(s)
}

// HandleDelta applies one delta message. Malformed messages are rejected
// without touching the state.
func (h *Handler) HandleDelta(payload []byte) error {
	delta, err := ParseDelta(payload)
	if err != nil {
		return err
	}
	h.logger.Printf("ShadowHandler: delta %s", payload)

	h.mu.Lock()
	if delta.HasDuration {
		h.state.Duration = delta.Duration
	}
	if delta.HasDistance {
		h.state.Distance = delta.Distance
	}
	current := h.state
	h.mu.Unlock()

	if delta.Intensity != nil {
		h.transition(current, *delta.Intensity)
	}

	if h.IsIdle() {
		return h.GoIdle()
	}
	s := h.State()
	h.stateEvent.Notify(s)
	return h.report(s)
}

func (h *Handler) transition(current State, next string) {
	if current.IsIdle() && isWorkoutIntensity(next) {
		if err := h.workouts.RequestWorkout(next, current.Duration, current.Distance); err != nil {
			h.logger.Printf("ShadowHandler: workout %q rejected: %v", next, err)
			return
		}
		h.mu.Lock()
		h.state.Intensity = next
		h.mu.Unlock()
		h.logger.Printf("ShadowHandler: workout %s accepted", h.State())
		return
	}

	if next == IntensityAbort {
		h.logger.Println("ShadowHandler: abort requested")
		h.workouts.Abort()
		h.mu.Lock()
		h.state = IdleState()
		h.mu.Unlock()
		return
	}

	h.logger.Printf("ShadowHandler: ignoring %q while %q", next, current.Intensity)
}

func (h *Handler) report(s State) error {
	payload, err := json.Marshal(ReportedAndDesired(s))
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(UpdateTopic(h.thing), payload); err != nil {
		return fmt.Errorf("failed to report shadow state: %w", err)
	}
	return nil
}
