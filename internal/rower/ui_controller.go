package rower

import (
	"fmt"
	"log"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/shadow"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

// ProgramEntry is one line of the Programs screen.
type ProgramEntry struct {
	Label     string
	Intensity string
	Duration  *float64 // minutes
	Distance  *float64 // meters
}

// LocalPrograms lists what can be started from the terminal: every shadow
// intensity as a timed workout, one distance workout, the registered
// programs and the test program.
func LocalPrograms(registered []string) []ProgramEntry {
	minutes := DefaultLocalMinutes
	meters := DefaultLocalMeters

	var entries []ProgramEntry
	for _, intensity := range shadow.WorkoutIntensities {
		if intensity == shadow.IntensityScheduled || intensity == workout.TestProgram {
			continue
		}
		entries = append(entries, ProgramEntry{
			Label:     fmt.Sprintf("%s, %g min", intensity, minutes),
			Intensity: intensity,
			Duration:  &minutes,
		})
	}
	entries = append(entries, ProgramEntry{
		Label:     fmt.Sprintf("Normal, %g m", meters),
		Intensity: "Normal",
		Distance:  &meters,
	})
	for _, name := range registered {
		entries = append(entries, ProgramEntry{Label: name, Intensity: name})
	}
	return append(entries, ProgramEntry{Label: workout.TestProgram, Intensity: workout.TestProgram})
}

// Waker restarts the idle screen timer.
type Waker interface {
	Wake()
}

// UIController handles UI events and coordinates with the UIModel
type UIController struct {
	model          *UIModel
	workoutManager *WorkoutManager
	planner        *workout.Planner
	store          *Store
	waker          Waker
	logger         *log.Logger
}

// NewUIController creates a new UIController. store and waker may be nil.
func NewUIController(model *UIModel, workoutManager *WorkoutManager, planner *workout.Planner, store *Store, waker Waker, logger *log.Logger) *UIController {
	if model == nil {
		panic("UIController: model cannot be nil")
	}
	if workoutManager == nil {
		panic("UIController: workoutManager cannot be nil")
	}
	if planner == nil {
		panic("UIController: planner cannot be nil")
	}
	if logger == nil {
		panic("UIController: logger cannot be nil")
	}
	return &UIController{
		model:          model,
		workoutManager: workoutManager,
		planner:        planner,
		store:          store,
		waker:          waker,
		logger:         logger,
	}
}

// OnEscapeKey handles when the Escape key is pressed
func (c *UIController) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

// OnKeyPress wakes a blanked screen.
func (c *UIController) OnKeyPress() {
	if c.waker != nil {
		c.waker.Wake()
	}
	c.model.SetScreenOn(true)
}

// OnModeChange handles when the user requests a mode change
func (c *UIController) OnModeChange(mode UIMode) {
	if info, ok := GetUIModeInfo(mode); ok {
		c.logger.Printf("Switching to %s mode", info.DisplayName)
	}
	c.model.SetMode(mode)
}

func (c *UIController) Programs() []ProgramEntry {
	return LocalPrograms(c.planner.Programs())
}

// OnProgramSelected requests the workout on line index of the Programs
// screen. The orchestrator connects to the rower once it is planned.
func (c *UIController) OnProgramSelected(index int) {
	programs := c.Programs()
	if index < 0 || index >= len(programs) {
		c.logger.Printf("Invalid program index: %d", index)
		return
	}
	p := programs[index]
	if err := c.workoutManager.RequestWorkout(p.Intensity, p.Duration, p.Distance); err != nil {
		c.logger.Printf("Workout %q not started: %v", p.Label, err)
		return
	}
	c.logger.Printf("Workout requested: %s", p.Label)
	c.model.SetMode(UIModeDashboard)
}

// AbortWorkout ends the planned or running workout.
func (c *UIController) AbortWorkout() {
	if st := c.workoutManager.Status().Stage; st != StagePlanned && st != StageActive {
		c.logger.Printf("No workout to abort")
		return
	}
	c.workoutManager.Abort()
}

// SkipPhase ends the current phase on the next stroke.
func (c *UIController) SkipPhase() {
	if c.workoutManager.Status().Stage != StageActive {
		c.logger.Printf("No running phase to skip")
		return
	}
	c.model.RequestSkipPhase()
}

// History returns the finished workouts, newest first.
func (c *UIController) History() []HistoryRecord {
	if c.store == nil {
		return nil
	}
	return c.store.History()
}

// Shutdown stops the workout manager
func (c *UIController) Shutdown() {
	c.workoutManager.Shutdown()
}
