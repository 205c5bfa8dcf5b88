package workout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(plan PhasePlan) []string {
	out := make([]string, len(plan))
	for i, p := range plan {
		out[i] = p.Name
	}
	return out
}

func effective(plan PhasePlan) []Goal {
	out := make([]Goal, len(plan))
	for i, p := range plan {
		out[i] = p.EffectiveGoal()
	}
	return out
}

func TestPlanner_TestProgram(t *testing.T) {
	plan, err := NewPlanner(DefaultScale()).CreatePhases(TestProgram, f(30), f(5000))
	require.NoError(t, err, "goal arguments are ignored")

	assert.Equal(t, []string{"Test Warm-up", "Test Program", "Test Cool-down"}, names(plan))
	assert.Equal(t, 3, plan[1].RepeatCount)
	assert.Equal(t, 1, plan[2].RepeatCount)
	assert.InDelta(t, 15.0, plan[1].RestSeconds, 1e-9)
	assert.Equal(t, []Goal{
		{Kind: GoalDuration, Value: 30},
		{Kind: GoalDuration, Value: 135},
		{Kind: GoalDuration, Value: 30},
	}, effective(plan))
	assert.InDelta(t, 195.0, plan.TotalGoal(GoalDuration), 1e-9)
}

func TestPlanner_SingleGoal(t *testing.T) {
	tests := []struct {
		name      string
		scale     Scale
		intensity string
		duration  *float64
		distance  *float64
		wantNames []string
		wantGoals []Goal
	}{
		{
			name:      "distance",
			scale:     DefaultScale(),
			intensity: "Easy",
			distance:  f(2000),
			wantNames: []string{"Warm-up", "Easy Distance", "Cool-down"},
			wantGoals: []Goal{{GoalDuration, 120}, {GoalDistance, 2000}, {GoalDuration, 120}},
		},
		{
			name:      "timed",
			scale:     DefaultScale(),
			intensity: "Intense",
			duration:  f(20),
			wantNames: []string{"Warm-up", "Timed Intense", "Cool-down"},
			wantGoals: []Goal{{GoalDuration, 120}, {GoalDuration, 1200}, {GoalDuration, 120}},
		},
		{
			name:      "debug distance",
			scale:     DebugScale(),
			intensity: "Normal",
			distance:  f(2000),
			wantNames: []string{"Warm-up", "Normal Distance", "Cool-down"},
			wantGoals: []Goal{{GoalDuration, 2}, {GoalDistance, 20}, {GoalDuration, 2}},
		},
		{
			name:      "debug timed",
			scale:     DebugScale(),
			intensity: "Cardio",
			duration:  f(30),
			wantNames: []string{"Warm-up", "Timed Cardio", "Cool-down"},
			wantGoals: []Goal{{GoalDuration, 2}, {GoalDuration, 30}, {GoalDuration, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlanner(tt.scale).CreatePhases(tt.intensity, tt.duration, tt.distance)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, names(plan))
			assert.Equal(t, tt.wantGoals, effective(plan))
			for _, p := range plan {
				assert.Equal(t, 1, p.RepeatCount)
				assert.Zero(t, p.RestSeconds)
			}
		})
	}
}

func TestPlanner_RejectsGoals(t *testing.T) {
	tests := []struct {
		name     string
		duration *float64
		distance *float64
	}{
		{name: "both", duration: f(20), distance: f(2000)},
		{name: "neither"},
		{name: "zero duration", duration: f(0)},
		{name: "negative distance", distance: f(-100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlanner(DefaultScale()).CreatePhases("Easy", tt.duration, tt.distance)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, ErrGoalConfiguration)
		})
	}
}

func TestPlanner_RegisteredPrograms(t *testing.T) {
	p := NewPlanner(DefaultScale())
	require.NoError(t, p.Register(program("Scheduled",
		timed("Warm-up", 5),
		PhaseSpec{Name: "4x500m", DistanceMeters: f(500), Repeat: 4},
		PhaseSpec{Name: "Intervals", DurationMinutes: f(1), RestMinutes: 1, Repeat: 5},
	)))
	require.NoError(t, p.Register(program("Easy", timed("Steady", 10))))

	assert.Equal(t, []string{"Easy", "Scheduled"}, p.Programs())

	plan, err := p.CreatePhases("Scheduled", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Goal{{GoalDuration, 300}, {GoalDistance, 2000}, {GoalDuration, 600}}, effective(plan))
	assert.Equal(t, "Intervals ( 1:00 +  1:00 rest x5)", plan[2].String())

	// A registered program shadows the generated plan for that intensity.
	plan, err = p.CreatePhases("Easy", f(20), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Steady"}, names(plan))
}

func TestPlanner_RegisterRejects(t *testing.T) {
	p := NewPlanner(DefaultScale())

	assert.Error(t, p.Register(program("", timed("A", 1))))
	assert.Error(t, p.Register(program(TestProgram, timed("A", 1))))
	assert.ErrorIs(t, p.Register(program("Empty")), ErrGoalConfiguration)

	err := p.Register(program("Bad", PhaseSpec{Name: "Both", DurationMinutes: f(1), DistanceMeters: f(100)}))
	var gce *GoalConfigurationError
	require.ErrorAs(t, err, &gce)
	assert.Equal(t, "Bad", gce.Workout)
	assert.Equal(t, "Both", gce.Phase)

	assert.Empty(t, p.Programs())
}

const programsTOML = `
[[program]]
name = "Scheduled"

  [[program.phase]]
  name = "Warm-up"
  duration_minutes = 2.0

  [[program.phase]]
  name = "4x500m"
  distance_meters = 500.0
  repeat = 4

[[program]]
name = "Pyramid"

  [[program.phase]]
  name = "Up"
  duration_minutes = 1.0
  rest_minutes = 0.5
  repeat = 3
`

func TestParsePrograms(t *testing.T) {
	programs, err := ParsePrograms([]byte(programsTOML))
	require.NoError(t, err)
	require.Len(t, programs, 2)

	assert.Equal(t, "Scheduled", programs[0].Name)
	require.Len(t, programs[0].Phases, 2)
	require.NotNil(t, programs[0].Phases[1].DistanceMeters)
	assert.InDelta(t, 500.0, *programs[0].Phases[1].DistanceMeters, 1e-9)
	assert.Nil(t, programs[0].Phases[1].DurationMinutes)
	assert.Equal(t, 4, programs[0].Phases[1].Repeat)
	assert.InDelta(t, 0.5, programs[1].Phases[0].RestMinutes, 1e-9)
}

func TestParsePrograms_Errors(t *testing.T) {
	_, err := ParsePrograms([]byte("[[program]]\nname = \"A\"\nspeed = 3\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = ParsePrograms([]byte("[[program]]\nname = \"A\"\n[[program]]\nname = \"A\"\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParsePrograms([]byte("[[program]\n"))
	assert.Error(t, err)
}

func TestPlanner_LoadPrograms(t *testing.T) {
	dir := t.TempDir()
	p := NewPlanner(DefaultScale())

	n, err := p.LoadPrograms(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Zero(t, n)

	path := filepath.Join(dir, "programs.toml")
	require.NoError(t, os.WriteFile(path, []byte(programsTOML), 0o644))
	n, err = p.LoadPrograms(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Pyramid", "Scheduled"}, p.Programs())

	plan, err := p.CreatePhases("Pyramid", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Goal{{GoalDuration, 270}}, effective(plan))
}
