package workout

// Color is a hint for status text. Displays map it to whatever they render.
type Color string

const (
	ColorDefault Color = ""
	ColorRed     Color = "red"
	ColorGreen   Color = "green"
)

// PhaseProgress is reported after every sample that advanced the current
// phase.
type PhaseProgress struct {
	Phase          string
	Kind           GoalKind
	ElapsedSeconds float64 // in this phase
	DistanceMeters float64 // in this phase
	Remaining      float64 // seconds or meters depending on Kind
	SplitSeconds   float64 // 500 m split at the current speed
}

// Display receives everything a Session wants shown. Calls arrive on the
// goroutine driving the Session and must not block.
type Display interface {
	OnLifecycle(event Event)
	OnHeartbeatTick()
	// OnSpeedSample returns true to end the current phase early.
	OnSpeedSample(speedMps float64) bool
	OnStrokeRate(spm int)
	// OnHeartRate receives pm5.HeartRateNotAvailable (255) when no belt is
	// paired; displays should keep their last value.
	OnHeartRate(bpm int)
	OnStatusText(text string, color Color)
	// OnPhaseConfigured passes the new phase goal; exactly one is non-nil.
	OnPhaseConfigured(durationLeft, distanceLeft *float64)
	OnProgressPercent(percent int)
	OnPhaseProgress(progress PhaseProgress)
}

// NopDisplay ignores everything. Embed it to implement part of Display.
type NopDisplay struct{}

func (NopDisplay) OnLifecycle(Event)               {}
func (NopDisplay) OnHeartbeatTick()                {}
func (NopDisplay) OnSpeedSample(float64) bool      { return false }
func (NopDisplay) OnStrokeRate(int)                {}
func (NopDisplay) OnHeartRate(int)                 {}
func (NopDisplay) OnStatusText(string, Color)      {}
func (NopDisplay) OnPhaseConfigured(_, _ *float64) {}
func (NopDisplay) OnProgressPercent(int)           {}
func (NopDisplay) OnPhaseProgress(PhaseProgress)   {}

// MultiDisplay fans every call out to several displays. A phase ends early
// if any of them asks for it.
type MultiDisplay []Display

func (m MultiDisplay) OnLifecycle(event Event) {
	for _, d := range m {
		d.OnLifecycle(event)
	}
}

func (m MultiDisplay) OnHeartbeatTick() {
	for _, d := range m {
		d.OnHeartbeatTick()
	}
}

func (m MultiDisplay) OnSpeedSample(speedMps float64) bool {
	skip := false
	for _, d := range m {
		if d.OnSpeedSample(speedMps) {
			skip = true
		}
	}
	return skip
}

func (m MultiDisplay) OnStrokeRate(spm int) {
	for _, d := range m {
		d.OnStrokeRate(spm)
	}
}

func (m MultiDisplay) OnHeartRate(bpm int) {
	for _, d := range m {
		d.OnHeartRate(bpm)
	}
}

func (m MultiDisplay) OnStatusText(text string, color Color) {
	for _, d := range m {
		d.OnStatusText(text, color)
	}
}

func (m MultiDisplay) OnPhaseConfigured(durationLeft, distanceLeft *float64) {
	for _, d := range m {
		d.OnPhaseConfigured(durationLeft, distanceLeft)
	}
}

func (m MultiDisplay) OnProgressPercent(percent int) {
	for _, d := range m {
		d.OnProgressPercent(percent)
	}
}

func (m MultiDisplay) OnPhaseProgress(progress PhaseProgress) {
	for _, d := range m {
		d.OnPhaseProgress(progress)
	}
}
