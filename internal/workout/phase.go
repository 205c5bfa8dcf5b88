package workout

import "fmt"

// GoalKind discriminates the two goal types a phase can have.
type GoalKind int

const (
	GoalDuration GoalKind = iota + 1 // Value in seconds
	GoalDistance                     // Value in meters
)

func (k GoalKind) String() string {
	switch k {
	case GoalDuration:
		return "duration"
	case GoalDistance:
		return "distance"
	default:
		return "none"
	}
}

// Goal is a phase target in seconds or meters depending on Kind.
type Goal struct {
	Kind  GoalKind
	Value float64
}

func (g Goal) String() string {
	switch g.Kind {
	case GoalDuration:
		return MMSS(g.Value)
	case GoalDistance:
		return fmt.Sprintf("%d m", int(g.Value))
	default:
		return "-"
	}
}

// Phase is one leg of a workout. Phases are values; the session never
// changes one after it is planned.
type Phase struct {
	Name        string
	Goal        Goal
	RestSeconds float64 // only added to duration goals
	RepeatCount int
}

// DurationPhase builds a timed phase. Rest is added to every repeat.
func DurationPhase(name string, seconds, restSeconds float64, repeat int) Phase {
	return Phase{
		Name:        name,
		Goal:        Goal{Kind: GoalDuration, Value: seconds},
		RestSeconds: restSeconds,
		RepeatCount: repeat,
	}
}

// DistancePhase builds a phase with a distance goal and no rest.
func DistancePhase(name string, meters float64, repeat int) Phase {
	return Phase{
		Name:        name,
		Goal:        Goal{Kind: GoalDistance, Value: meters},
		RepeatCount: repeat,
	}
}

func (p Phase) repeats() int {
	if p.RepeatCount < 1 {
		return 1
	}
	return p.RepeatCount
}

// EffectiveGoal flattens rest and repeats into one target: (duration+rest)
// times repeat for timed phases, distance times repeat otherwise.
func (p Phase) EffectiveGoal() Goal {
	n := float64(p.repeats())
	switch p.Goal.Kind {
	case GoalDuration:
		return Goal{Kind: GoalDuration, Value: (p.Goal.Value + p.RestSeconds) * n}
	case GoalDistance:
		return Goal{Kind: GoalDistance, Value: p.Goal.Value * n}
	default:
		return p.Goal
	}
}

func (p Phase) String() string {
	s := fmt.Sprintf("%s (%s", p.Name, p.Goal)
	if p.RestSeconds > 0 {
		s += " + " + MMSS(p.RestSeconds) + " rest"
	}
	if p.repeats() > 1 {
		s += fmt.Sprintf(" x%d", p.repeats())
	}
	return s + ")"
}

// PhasePlan is an ordered list of phases.
type PhasePlan []Phase

// TotalGoal sums the effective goals of one kind across the plan.
func (pp PhasePlan) TotalGoal(kind GoalKind) float64 {
	var total float64
	for _, p := range pp {
		if g := p.EffectiveGoal(); g.Kind == kind {
			total += g.Value
		}
	}
	return total
}
