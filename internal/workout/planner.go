package workout

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TestProgram is the intensity label of the built-in short test workout.
const TestProgram = "TestProgram"

// Warm-up and cool-down bracket every single-goal workout.
const (
	WarmUpName     = "Warm-up"
	CoolDownName   = "Cool-down"
	bracketMinutes = 2
)

var ErrGoalConfiguration = errors.New("invalid workout goal")

// GoalConfigurationError rejects a workout request whose goals are missing,
// conflicting or not positive.
type GoalConfigurationError struct {
	Workout string
	Phase   string
	Reason  string
}

func (e *GoalConfigurationError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%v: %q phase %q: %s", ErrGoalConfiguration, e.Workout, e.Phase, e.Reason)
	}
	return fmt.Sprintf("%v: %q: %s", ErrGoalConfiguration, e.Workout, e.Reason)
}

func (e *GoalConfigurationError) Unwrap() error {
	return ErrGoalConfiguration
}

// Scale converts user units into the units the session counts in. Debug runs
// shrink a minute to one second and a kilometer to ten meters.
type Scale struct {
	SecondsPerMinute   float64
	MetersPerKilometer float64
}

// DefaultScale counts real minutes and meters.
func DefaultScale() Scale {
	return Scale{SecondsPerMinute: 60, MetersPerKilometer: 1000}
}

// DebugScale rows a minute in one second and a kilometer in ten meters.
func DebugScale() Scale {
	return Scale{SecondsPerMinute: 1, MetersPerKilometer: 10}
}

func (s Scale) seconds(minutes float64) float64 {
	return minutes * s.SecondsPerMinute
}

func (s Scale) meters(meters float64) float64 {
	return meters * s.MetersPerKilometer / 1000
}

// PhaseSpec is a phase as a user writes it, in minutes and meters.
type PhaseSpec struct {
	Name            string   `toml:"name"`
	DurationMinutes *float64 `toml:"duration_minutes"`
	DistanceMeters  *float64 `toml:"distance_meters"`
	RestMinutes     float64  `toml:"rest_minutes"`
	Repeat          int      `toml:"repeat"`
}

// Program is a named multi-phase workout.
type Program struct {
	Name   string      `toml:"name"`
	Phases []PhaseSpec `toml:"phase"`
}

func minutes(v float64) *float64 { return &v }

var testProgram = Program{
	Name: TestProgram,
	Phases: []PhaseSpec{
		{Name: "Test Warm-up", DurationMinutes: minutes(0.5), Repeat: 1},
		{Name: "Test Program", DurationMinutes: minutes(0.5), RestMinutes: 0.25, Repeat: 3},
		{Name: "Test Cool-down", DurationMinutes: minutes(0.5), Repeat: 1},
	},
}

// Planner turns workout requests into phase plans.
type Planner struct {
	scale Scale

	mu       sync.RWMutex
	programs map[string]Program
}

// NewPlanner returns a planner with only the built-in presets registered.
func NewPlanner(scale Scale) *Planner {
	return &Planner{scale: scale, programs: make(map[string]Program)}
}

// Scale is the unit conversion applied to every plan.
func (p *Planner) Scale() Scale {
	return p.scale
}

// Register adds or replaces a named program after checking every phase.
func (p *Planner) Register(prog Program) error {
	if prog.Name == "" {
		return errors.New("program name cannot be empty")
	}
	if prog.Name == TestProgram {
		return fmt.Errorf("program name %q is reserved", TestProgram)
	}
	if len(prog.Phases) == 0 {
		return &GoalConfigurationError{Workout: prog.Name, Reason: "program has no phases"}
	}
	if _, err := p.build(prog); err != nil {
		return err
	}

	p.mu.Lock()
	p.programs[prog.Name] = prog
	p.mu.Unlock()
	return nil
}

// Programs returns the registered program names, sorted.
func (p *Planner) Programs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.programs))
	for name := range p.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreatePhases builds the plan for intensity. TestProgram and registered
// programs ignore the goal arguments; anything else needs exactly one of
// durationMinutes and distanceMeters and is bracketed by warm-up and
// cool-down.
func (p *Planner) CreatePhases(intensity string, durationMinutes, distanceMeters *float64) (PhasePlan, error) {
	if intensity == TestProgram {
		return p.build(testProgram)
	}

	p.mu.RLock()
	prog, ok := p.programs[intensity]
	p.mu.RUnlock()
	if ok {
		return p.build(prog)
	}

	main := PhaseSpec{DurationMinutes: durationMinutes, DistanceMeters: distanceMeters, Repeat: 1}
	switch {
	case durationMinutes != nil && distanceMeters != nil:
		return nil, &GoalConfigurationError{Workout: intensity, Reason: "both duration and distance given"}
	case durationMinutes == nil && distanceMeters == nil:
		return nil, &GoalConfigurationError{Workout: intensity, Reason: "neither duration nor distance given"}
	case distanceMeters != nil:
		main.Name = intensity + " Distance"
	default:
		main.Name = "Timed " + intensity
	}

	return p.build(Program{
		Name: intensity,
		Phases: []PhaseSpec{
			{Name: WarmUpName, DurationMinutes: minutes(bracketMinutes), Repeat: 1},
			main,
			{Name: CoolDownName, DurationMinutes: minutes(bracketMinutes), Repeat: 1},
		},
	})
}

func (p *Planner) build(prog Program) (PhasePlan, error) {
	plan := make(PhasePlan, 0, len(prog.Phases))
	for _, spec := range prog.Phases {
		phase, err := p.phase(spec)
		if err != nil {
			if gce, ok := err.(*GoalConfigurationError); ok {
				gce.Workout = prog.Name
			}
			return nil, err
		}
		plan = append(plan, phase)
	}
	return plan, nil
}

func (p *Planner) phase(spec PhaseSpec) (Phase, error) {
	repeat := spec.Repeat
	if repeat < 1 {
		repeat = 1
	}
	fail := func(reason string) (Phase, error) {
		return Phase{}, &GoalConfigurationError{Phase: spec.Name, Reason: reason}
	}

	switch {
	case spec.DurationMinutes != nil && spec.DistanceMeters != nil:
		return fail("both duration and distance given")
	case spec.DurationMinutes != nil:
		if *spec.DurationMinutes <= 0 {
			return fail(fmt.Sprintf("duration must be positive, got %g min", *spec.DurationMinutes))
		}
		if spec.RestMinutes < 0 {
			return fail(fmt.Sprintf("rest cannot be negative, got %g min", spec.RestMinutes))
		}
		return DurationPhase(spec.Name, p.scale.seconds(*spec.DurationMinutes), p.scale.seconds(spec.RestMinutes), repeat), nil
	case spec.DistanceMeters != nil:
		if *spec.DistanceMeters <= 0 {
			return fail(fmt.Sprintf("distance must be positive, got %g m", *spec.DistanceMeters))
		}
		return DistancePhase(spec.Name, p.scale.meters(*spec.DistanceMeters), repeat), nil
	default:
		return fail("neither duration nor distance given")
	}
}
