package rower

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/shadow"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

// Stage is where a workout is in its life: requested, being rowed or done.
type Stage int

const (
	StageIdle    Stage = iota // No workout
	StagePlanned              // Phases created, waiting for the rower
	StageActive               // Phases running against the sample stream
	StageEnded                // Finished or aborted, waiting for Reset
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StagePlanned:
		return "Planned"
	case StageActive:
		return "Active"
	case StageEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

var (
	ErrWorkoutInProgress = errors.New("workout already in progress")
	ErrNoWorkoutPlanned  = errors.New("no workout planned")
	ErrShutdown          = errors.New("workout manager shut down")
)

// WorkoutStatus is a snapshot of the workout for the UI and the status
// endpoint.
type WorkoutStatus struct {
	Stage      Stage
	SessionID  string
	Intensity  string
	Plan       workout.PhasePlan
	Phase      workout.Phase
	PhaseIndex int // 1-based, 0 before the first phase
	State      workout.State
	Totals     workout.Totals
	StartedAt  time.Time
	// Samples counts the rower samples the workout has processed.
	Samples int
}

// SampleSource publishes rower samples.
type SampleSource interface {
	ListenToSamples(ch chan<- pm5.Sample) func()
}

// PhaseProgrammer sets the machine up for a phase.
type PhaseProgrammer interface {
	ProgramPhase(phase workout.Phase) error
}

type WorkoutManagerArgs struct {
	Session    *workout.Session
	Samples    SampleSource
	Programmer PhaseProgrammer
	// Store receives a history record per finished workout when set.
	Store  *Store
	Logger *log.Logger
	// Clock defaults to time.Now. It also becomes the session clock.
	Clock func() time.Time
}

type commandKind int

const (
	cmdRequest commandKind = iota
	cmdStart
	cmdAbort
	cmdReset
)

type workoutCommand struct {
	kind      commandKind
	intensity string
	duration  *float64
	distance  *float64
	reply     chan error
}

// WorkoutManager owns the workout session. Every session call happens on its
// goroutine, which serves commands and rower samples in arrival order.
type WorkoutManager struct {
	session    *workout.Session
	source     SampleSource
	programmer PhaseProgrammer
	store      *Store
	logger     *log.Logger
	now        func() time.Time

	// Loop-owned state
	stage      Stage
	sessionID  string
	intensity  string
	plan       workout.PhasePlan
	phase      workout.Phase
	phaseIndex int
	startedAt  time.Time
	samples    int

	mu          sync.RWMutex
	status      WorkoutStatus
	statusEvent *events.ChannelEvent[WorkoutStatus]

	cmdChan      chan workoutCommand
	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

var _ shadow.WorkoutController = (*WorkoutManager)(nil)

func NewWorkoutManager(args WorkoutManagerArgs) *WorkoutManager {
	if args.Logger == nil {
		panic("WorkoutManager: logger cannot be nil")
	}
	if args.Session == nil {
		panic("WorkoutManager: session cannot be nil")
	}
	if args.Samples == nil {
		panic("WorkoutManager: samples cannot be nil")
	}
	if args.Programmer == nil {
		panic("WorkoutManager: programmer cannot be nil")
	}
	now := args.Clock
	if now == nil {
		now = time.Now
	}
	args.Session.SetClock(now)

	wm := &WorkoutManager{
		session:     args.Session,
		source:      args.Samples,
		programmer:  args.Programmer,
		store:       args.Store,
		logger:      args.Logger,
		now:         now,
		status:      WorkoutStatus{Stage: StageIdle},
		statusEvent: events.NewChannelEvent[WorkoutStatus](true),
		cmdChan:     make(chan workoutCommand),
		doneChan:    make(chan struct{}),
	}

	go_func_utils.SafeGoWG(wm.logger, &wm.wg, wm.runWorkoutLoop)
	return wm
}

// RequestWorkout plans a workout. It fails when another workout is planned
// or running, or when the goal is invalid.
func (wm *WorkoutManager) RequestWorkout(intensity string, durationMinutes, distanceMeters *float64) error {
	return wm.send(workoutCommand{kind: cmdRequest, intensity: intensity, duration: durationMinutes, distance: distanceMeters})
}

// Start begins the planned workout with its first phase.
func (wm *WorkoutManager) Start() error {
	return wm.send(workoutCommand{kind: cmdStart})
}

// Abort ends a planned or running workout. It does nothing otherwise.
func (wm *WorkoutManager) Abort() {
	if err := wm.send(workoutCommand{kind: cmdAbort}); err != nil {
		wm.logger.Printf("WorkoutManager: abort: %v", err)
	}
}

// Reset returns an ended workout to Idle so a new one can be requested.
func (wm *WorkoutManager) Reset() {
	if err := wm.send(workoutCommand{kind: cmdReset}); err != nil {
		wm.logger.Printf("WorkoutManager: reset: %v", err)
	}
}

func (wm *WorkoutManager) send(cmd workoutCommand) error {
	cmd.reply = make(chan error, 1)
	select {
	case wm.cmdChan <- cmd:
	case <-wm.doneChan:
		return ErrShutdown
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-wm.doneChan:
		return ErrShutdown
	}
}

func (wm *WorkoutManager) Status() WorkoutStatus {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.status
}

func (wm *WorkoutManager) ListenToStatus(ch chan<- WorkoutStatus) func() {
	return wm.statusEvent.Listen(ch)
}

// Shutdown stops the loop. Safe to call multiple times.
func (wm *WorkoutManager) Shutdown() {
	wm.shutdownOnce.Do(func() {
		wm.logger.Printf("WorkoutManager: Shutting down")
		close(wm.doneChan)
		wm.wg.Wait()
		wm.logger.Printf("WorkoutManager: Shutdown complete")
	})
}

func (wm *WorkoutManager) runWorkoutLoop() {
	samples := make(chan pm5.Sample, 64)
	unlisten := wm.source.ListenToSamples(samples)
	defer unlisten()

	for {
		select {
		case <-wm.doneChan:
			wm.logger.Printf("WorkoutManager: Goroutine exiting")
			return

		case cmd := <-wm.cmdChan:
			err := wm.handleCommand(cmd)
			wm.publish()
			cmd.reply <- err

		case s := <-samples:
			if wm.stage != StageActive {
				continue
			}
			wm.handleSample(s)
			wm.publish()
		}
	}
}

func (wm *WorkoutManager) handleCommand(cmd workoutCommand) error {
	switch cmd.kind {
	case cmdRequest:
		if wm.stage != StageIdle {
			return ErrWorkoutInProgress
		}
		plan, err := wm.session.CreatePhases(cmd.intensity, cmd.duration, cmd.distance)
		if err != nil {
			return err
		}
		wm.stage = StagePlanned
		wm.sessionID = uuid.NewString()
		wm.intensity = cmd.intensity
		wm.plan = plan
		wm.phase = workout.Phase{}
		wm.phaseIndex = 0
		wm.startedAt = time.Time{}
		wm.samples = 0
		wm.logger.Printf("WorkoutManager: workout %s planned: %s, %d phases", wm.sessionID, cmd.intensity, len(plan))
		for i, p := range plan {
			wm.logger.Printf("WorkoutManager:   %d. %s", i+1, p)
		}
		return nil

	case cmdStart:
		if wm.stage != StagePlanned {
			return ErrNoWorkoutPlanned
		}
		wm.stage = StageActive
		wm.startedAt = wm.now()
		wm.logger.Printf("WorkoutManager: workout %s started", wm.sessionID)
		phase, ok := wm.session.StartNextPhase()
		if !ok {
			wm.finish()
			return nil
		}
		wm.enterPhase(phase)
		return nil

	case cmdAbort:
		switch wm.stage {
		case StagePlanned:
			wm.session.Abort()
			wm.stage = StageEnded
			wm.logger.Printf("WorkoutManager: workout %s aborted before starting", wm.sessionID)
		case StageActive:
			wm.logger.Printf("WorkoutManager: aborting workout %s", wm.sessionID)
			wm.session.Abort()
			wm.finish()
		}
		return nil

	case cmdReset:
		if wm.stage == StageEnded {
			wm.stage = StageIdle
			wm.logger.Printf("WorkoutManager: ready for a new workout")
		}
		return nil
	}
	return nil
}

func (wm *WorkoutManager) handleSample(s pm5.Sample) {
	wm.samples++
	signal := wm.session.Update(s.SpeedMps, s.StrokeRate, s.HeartRate, wm.now())
	switch signal.Kind {
	case workout.AdvanceNextPhase:
		wm.enterPhase(signal.Phase)
	case workout.AdvanceAborted:
		wm.finish()
	}
}

func (wm *WorkoutManager) enterPhase(phase workout.Phase) {
	wm.phase = phase
	wm.phaseIndex++
	wm.logger.Printf("WorkoutManager: phase %d/%d %s", wm.phaseIndex, len(wm.plan), phase)
	if err := wm.programmer.ProgramPhase(phase); err != nil {
		// Not fatal: the session tracks the goal on its own.
		wm.logger.Printf("WorkoutManager: %v", err)
	}
}

func (wm *WorkoutManager) finish() {
	wm.stage = StageEnded
	totals := wm.session.Totals()
	rec := HistoryRecord{
		ID:              wm.sessionID,
		Intensity:       wm.intensity,
		StartedAt:       wm.startedAt,
		EndedAt:         wm.now(),
		PhasesPlanned:   len(wm.plan),
		PhasesCompleted: totals.PhasesCompleted,
		ElapsedSeconds:  totals.ElapsedSeconds,
		DistanceMeters:  totals.DistanceMeters,
		Aborted:         totals.PhasesCompleted < len(wm.plan),
	}
	wm.logger.Printf("WorkoutManager: workout %s ended: %d/%d phases, %.0f m in %s",
		rec.ID, rec.PhasesCompleted, rec.PhasesPlanned, rec.DistanceMeters,
		(time.Duration(rec.ElapsedSeconds) * time.Second).String())
	if wm.store != nil {
		wm.store.AddRecord(rec)
	}
}

// publish must only be called from the loop goroutine.
func (wm *WorkoutManager) publish() {
	status := WorkoutStatus{
		Stage:      wm.stage,
		SessionID:  wm.sessionID,
		Intensity:  wm.intensity,
		Plan:       wm.plan,
		Phase:      wm.phase,
		PhaseIndex: wm.phaseIndex,
		State:      wm.session.State(),
		Totals:     wm.session.Totals(),
		StartedAt:  wm.startedAt,
		Samples:    wm.samples,
	}
	if wm.stage == StageIdle {
		status = WorkoutStatus{Stage: StageIdle}
	}

	wm.mu.Lock()
	changed := !sameStatus(wm.status, status)
	wm.status = status
	wm.mu.Unlock()

	if changed {
		wm.statusEvent.Notify(status)
	}
}

// sameStatus ignores the plan, which only changes together with the
// session id.
func sameStatus(a, b WorkoutStatus) bool {
	return a.Stage == b.Stage &&
		a.SessionID == b.SessionID &&
		a.Phase == b.Phase &&
		a.PhaseIndex == b.PhaseIndex &&
		a.State == b.State &&
		a.Totals == b.Totals &&
		a.Samples == b.Samples
}
