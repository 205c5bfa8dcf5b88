package rower

import (
	"context"
	"log"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

// DefaultStatusRefresh is how often the waiting message is redrawn.
const DefaultStatusRefresh = time.Minute

// statusPoll bounds how long a dropped status update can go unnoticed.
const statusPoll = time.Second

// RowerConnector is the part of RowerLink the orchestrator drives.
type RowerConnector interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() LinkState
}

// StatusSink shows the main status line.
type StatusSink interface {
	OnStatusText(text string, color workout.Color)
}

// ScreenSaver blanks and restores the display.
type ScreenSaver interface {
	SetScreenOn(on bool)
}

// OrchestratorArgs holds the collaborators of an Orchestrator. Store may be
// nil.
type OrchestratorArgs struct {
	Link     RowerConnector
	Workouts *WorkoutManager
	Status   StatusSink
	Screen   ScreenSaver
	Store    *Store
	// IdleScreenOff blanks the screen after waiting this long; 0 never blanks
	IdleScreenOff time.Duration
	StatusRefresh time.Duration
	Logger        *log.Logger
}

// Orchestrator runs the device lifecycle: wait for a workout request,
// connect to the rower, start the workout, wait for it to end and
// disconnect again.
type Orchestrator struct {
	link          RowerConnector
	workouts      *WorkoutManager
	status        StatusSink
	screen        ScreenSaver
	store         *Store
	idleEvent     *events.CallbackEvent[struct{}]
	idleScreenOff time.Duration
	statusRefresh time.Duration
	wakeChan      chan struct{}
	logger        *log.Logger
}

func NewOrchestrator(args OrchestratorArgs) *Orchestrator {
	if args.Logger == nil {
		panic("Orchestrator: logger cannot be nil")
	}
	if args.Link == nil || args.Workouts == nil {
		panic("Orchestrator: link and workouts cannot be nil")
	}
	if args.Status == nil || args.Screen == nil {
		panic("Orchestrator: status and screen cannot be nil")
	}
	if args.StatusRefresh <= 0 {
		args.StatusRefresh = DefaultStatusRefresh
	}
	return &Orchestrator{
		link:          args.Link,
		workouts:      args.Workouts,
		status:        args.Status,
		screen:        args.Screen,
		store:         args.Store,
		idleEvent:     events.NewCallbackEvent[struct{}](false),
		idleScreenOff: args.IdleScreenOff,
		statusRefresh: args.StatusRefresh,
		wakeChan:      make(chan struct{}, 1),
		logger:        args.Logger,
	}
}

// Wake restarts the screen-off timer.
func (o *Orchestrator) Wake() {
	select {
	case o.wakeChan <- struct{}{}:
	default:
	}
}

// ListenToIdle calls callback on the orchestrator goroutine after every
// workout, planned or rowed, is over.
func (o *Orchestrator) ListenToIdle(callback func()) func() {
	return o.idleEvent.Listen(func(struct{}) { callback() })
}

// Run loops until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ch := make(chan WorkoutStatus, 16)
	unregister := o.workouts.ListenToStatus(ch)
	defer unregister()

	for {
		if err := o.waitForRequest(ctx, ch); err != nil {
			return err
		}
		if err := o.runWorkout(ctx, ch); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) setStatus(text string, color workout.Color) {
	o.logger.Printf("Orchestrator: %s", text)
	o.status.OnStatusText(text, color)
}

func drain(ch <-chan WorkoutStatus) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (o *Orchestrator) waitForRequest(ctx context.Context, ch <-chan WorkoutStatus) error {
	o.setStatus(StatusWaiting, workout.ColorDefault)

	refresh := time.NewTicker(o.statusRefresh)
	defer refresh.Stop()
	poll := time.NewTicker(statusPoll)
	defer poll.Stop()

	var screenOff <-chan time.Time
	var screenTimer *time.Timer
	if o.idleScreenOff > 0 {
		screenTimer = time.NewTimer(o.idleScreenOff)
		defer screenTimer.Stop()
		screenOff = screenTimer.C
	}

	for {
		// Updates can be dropped, so the manager's own status is checked.
		switch o.workouts.Status().Stage {
		case StagePlanned:
			o.screen.SetScreenOn(true)
			return nil
		case StageEnded:
			// Aborted before the rower was connected.
			o.workouts.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-poll.C:
		case <-refresh.C:
			o.status.OnStatusText(StatusWaiting, workout.ColorDefault)
		case <-screenOff:
			o.logger.Println("Orchestrator: idle, turning the screen off")
			o.screen.SetScreenOn(false)
		case <-o.wakeChan:
			o.screen.SetScreenOn(true)
			if screenTimer != nil {
				screenTimer.Stop()
				screenTimer.Reset(o.idleScreenOff)
			}
		}
	}
}

func (o *Orchestrator) runWorkout(ctx context.Context, ch <-chan WorkoutStatus) error {
	o.setStatus(StatusConnecting, workout.ColorDefault)
	if err := o.link.Connect(ctx); err != nil {
		o.logger.Printf("Orchestrator: connect failed: %v", err)
		o.setStatus(StatusNoRower, workout.ColorRed)
		o.workouts.Abort()
		o.workouts.Reset()
		o.goIdle()
		return ctx.Err()
	}
	o.setStatus(StatusConnected, workout.ColorGreen)

	state := o.link.State()
	if o.store != nil && state.Address != "" {
		o.store.SetPreferredRower(state.Address)
	}

	if err := o.workouts.Start(); err != nil {
		// Aborted while connecting.
		o.logger.Printf("Orchestrator: workout not started: %v", err)
	} else {
		o.setStatus(StatusStartRowing, workout.ColorDefault)
	}

	err := o.waitForEnd(ctx, ch)

	o.setStatus(StatusDisconnecting, workout.ColorDefault)
	if dErr := o.link.Disconnect(); dErr != nil {
		o.logger.Printf("Orchestrator: %v", dErr)
	}
	o.workouts.Reset()
	o.goIdle()
	o.setStatus(StatusWorkoutDone, workout.ColorDefault)
	return err
}

// waitForEnd returns once the workout is no longer planned or running.
func (o *Orchestrator) waitForEnd(ctx context.Context, ch <-chan WorkoutStatus) error {
	poll := time.NewTicker(statusPoll)
	defer poll.Stop()

	for {
		switch o.workouts.Status().Stage {
		case StageEnded, StageIdle:
			drain(ch)
			return nil
		}
		select {
		case <-ctx.Done():
			o.workouts.Abort()
			return ctx.Err()
		case <-ch:
		case <-poll.C:
		}
	}
}

func (o *Orchestrator) goIdle() {
	o.idleEvent.Notify(struct{}{})
}
