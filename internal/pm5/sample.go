package pm5

// HeartRateNotAvailable is reported when no heart rate belt is paired.
const HeartRateNotAvailable = 255

// Sample is the per-notification input to a workout session.
type Sample struct {
	SpeedMps   float64
	StrokeRate int
	HeartRate  int
}

func (s Sample) HasHeartRate() bool {
	return s.HeartRate != HeartRateNotAvailable
}

// SampleBuilder turns primary telemetry into samples. The PM5 stops its
// elapsed counter as soon as strokes stop while the speed field still holds
// the last stroke's value, so a repeated counter forces the speed to zero.
type SampleBuilder struct {
	lastElapsed int64 // -1 until the first packet
}

func NewSampleBuilder() *SampleBuilder {
	return &SampleBuilder{lastElapsed: -1}
}

func (b *SampleBuilder) Build(p PrimaryTelemetry) Sample {
	speed := p.SpeedMps()
	elapsed := int64(p.ElapsedCentis)
	if speed > 0 && elapsed == b.lastElapsed {
		speed = 0
	}
	b.lastElapsed = elapsed

	return Sample{
		SpeedMps:   speed,
		StrokeRate: int(p.StrokeRate),
		HeartRate:  int(p.HeartRate),
	}
}

// Reset forgets the last counter, for a new connection.
func (b *SampleBuilder) Reset() {
	b.lastElapsed = -1
}
