package workout

import (
	"fmt"
	"time"
)

// AdvanceKind tells the caller what to do after a sample.
type AdvanceKind int

const (
	AdvanceNone      AdvanceKind = iota // Keep going
	AdvanceNextPhase                    // Program the machine for Phase
	AdvanceAborted                      // Session is over
)

func (k AdvanceKind) String() string {
	switch k {
	case AdvanceNone:
		return "None"
	case AdvanceNextPhase:
		return "NextPhase"
	case AdvanceAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

type AdvanceSignal struct {
	Kind  AdvanceKind
	Phase Phase // set for AdvanceNextPhase
}

// Totals accumulates over every phase of the session.
type Totals struct {
	ElapsedSeconds  float64
	DistanceMeters  float64
	PhasesStarted   int
	PhasesCompleted int
}

// Session runs a phase plan against the sample stream. It is driven from a
// single goroutine; nothing in it is synchronized.
type Session struct {
	display Display
	planner *Planner
	fsm     *StateMachine
	now     func() time.Time

	queue    PhasePlan
	current  Phase
	hasPhase bool
	goal     Goal // effective goal of current

	durationAccum float64
	distanceAccum float64
	lastSampleAt  time.Time
	totals        Totals
}

// NewSession reports to display and plans with planner. A maxPause of zero
// means DefaultMaxPause.
func NewSession(display Display, planner *Planner, maxPause time.Duration) *Session {
	if display == nil {
		panic("Session: display cannot be nil")
	}
	if planner == nil {
		panic("Session: planner cannot be nil")
	}
	s := &Session{display: display, planner: planner, now: time.Now}
	s.fsm = NewStateMachine(maxPause, s.now())
	return s
}

// SetClock replaces the clock used by calls that take no timestamp.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
	s.fsm.Reset(now())
}

// CreatePhases plans a new workout and replaces the queue. On error the
// previous plan and state are left untouched.
func (s *Session) CreatePhases(intensity string, durationMinutes, distanceMeters *float64) (PhasePlan, error) {
	plan, err := s.planner.CreatePhases(intensity, durationMinutes, distanceMeters)
	if err != nil {
		return nil, err
	}
	s.queue = append(PhasePlan(nil), plan...)
	s.current = Phase{}
	s.hasPhase = false
	s.goal = Goal{}
	s.totals = Totals{}
	s.resetAccumulators()
	s.fsm.Reset(s.now())
	return plan, nil
}

func (s *Session) resetAccumulators() {
	s.durationAccum = 0
	s.distanceAccum = 0
	s.lastSampleAt = s.now()
}

// StartNextPhase pops the next phase. It returns false, with no side
// effects, when the queue is empty.
func (s *Session) StartNextPhase() (Phase, bool) {
	if len(s.queue) == 0 {
		return Phase{}, false
	}
	phase := s.queue[0]
	s.queue = s.queue[1:]

	s.current = phase
	s.hasPhase = true
	s.goal = phase.EffectiveGoal()
	if s.goal.Value < 0 {
		s.goal.Value = 0
	}
	s.totals.PhasesStarted++
	s.resetAccumulators()
	s.fsm.Reset(s.now())

	left := s.goal.Value
	switch s.goal.Kind {
	case GoalDuration:
		s.display.OnPhaseConfigured(&left, nil)
	case GoalDistance:
		s.display.OnPhaseConfigured(nil, &left)
	}
	s.display.OnStatusText(phase.Name, ColorDefault)
	s.display.OnProgressPercent(0)
	return phase, true
}

// Update processes one sample and reports whether the caller should move to
// another phase or stop.
func (s *Session) Update(speedMps float64, strokeRate, heartRate int, now time.Time) AdvanceSignal {
	s.display.OnHeartbeatTick()

	before := s.fsm.State()
	if before == StateEnded {
		return AdvanceSignal{Kind: AdvanceAborted}
	}
	frozen := before != StateRunning

	event := s.fsm.Update(speedMps, now)
	switch event {
	case EventStarted, EventResumed:
		s.lastSampleAt = now
		s.display.OnStatusText("", ColorDefault)
		s.display.OnLifecycle(event)
	case EventPaused:
		s.lastSampleAt = now
		s.display.OnLifecycle(event)
		s.display.OnStatusText("PAUSED", ColorRed)
	case EventStopped:
		s.display.OnLifecycle(event)
		s.display.OnStatusText("Done!", ColorDefault)
	}

	skip := s.display.OnSpeedSample(speedMps)
	if s.fsm.State() == StateRunning {
		s.display.OnStrokeRate(strokeRate)
	}

	complete := false
	if !frozen && speedMps > 0 {
		complete = s.advance(speedMps, now) || (skip && s.hasPhase)
	}

	s.display.OnHeartRate(heartRate)

	if s.fsm.State() == StatePaused {
		if countdown := s.fsm.PauseCountdown(now); countdown >= 0 {
			secs := int(countdown / time.Second)
			s.display.OnStatusText(fmt.Sprintf("PAUSED %d:%02d...", secs/60, secs%60), ColorRed)
		}
	}

	if s.fsm.State() == StateEnded {
		return AdvanceSignal{Kind: AdvanceAborted}
	}
	if !complete {
		return AdvanceSignal{Kind: AdvanceNone}
	}

	s.totals.PhasesCompleted++
	if next, ok := s.StartNextPhase(); ok {
		return AdvanceSignal{Kind: AdvanceNextPhase, Phase: next}
	}
	s.end(now)
	return AdvanceSignal{Kind: AdvanceAborted}
}

// advance accumulates time and distance since the previous sample and
// reports whether the phase goal has been reached.
func (s *Session) advance(speedMps float64, now time.Time) bool {
	dt := now.Sub(s.lastSampleAt).Seconds()
	if dt < 0 {
		dt = 0
	}
	s.lastSampleAt = now

	s.durationAccum += dt
	s.distanceAccum += speedMps * dt
	s.totals.ElapsedSeconds += dt
	s.totals.DistanceMeters += speedMps * dt

	if !s.hasPhase {
		return false
	}

	accum := s.durationAccum
	if s.goal.Kind == GoalDistance {
		accum = s.distanceAccum
	}
	remaining := s.goal.Value - accum
	if remaining < 0 {
		remaining = 0
	}

	s.display.OnPhaseProgress(PhaseProgress{
		Phase:          s.current.Name,
		Kind:           s.goal.Kind,
		ElapsedSeconds: s.durationAccum,
		DistanceMeters: s.distanceAccum,
		Remaining:      remaining,
		SplitSeconds:   SplitSeconds(speedMps),
	})

	if s.goal.Value > 0 && accum <= s.goal.Value {
		s.display.OnProgressPercent(percent(accum, s.goal.Value))
	}
	return remaining == 0
}

func percent(accum, goal float64) int {
	p := int(accum * 100 / goal)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (s *Session) end(now time.Time) {
	if s.fsm.State() == StateEnded {
		return
	}
	s.fsm.Abort(now)
	s.hasPhase = false
	s.display.OnLifecycle(EventStopped)
	s.display.OnStatusText("Done!", ColorDefault)
}

// Abort ends the session now. The next Update returns AdvanceAborted.
func (s *Session) Abort() {
	s.queue = nil
	s.end(s.now())
}

// State is the workout state of the current phase.
func (s *Session) State() State {
	return s.fsm.State()
}

// CurrentPhase returns the phase being rowed, if any.
func (s *Session) CurrentPhase() (Phase, bool) {
	return s.current, s.hasPhase
}

// PendingPhases is the number of phases not yet started.
func (s *Session) PendingPhases() int {
	return len(s.queue)
}

// PhaseAccumulated returns the in-phase elapsed seconds and meters.
func (s *Session) PhaseAccumulated() (seconds, meters float64) {
	return s.durationAccum, s.distanceAccum
}

// Totals covers every phase rowed so far.
func (s *Session) Totals() Totals {
	return s.totals
}

// MaxPause is how long a pause lasts before the session ends.
func (s *Session) MaxPause() time.Duration {
	return s.fsm.MaxPause()
}
