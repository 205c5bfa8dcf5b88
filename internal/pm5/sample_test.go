package pm5

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func primary(elapsed uint32, speedMilli uint16) PrimaryTelemetry {
	return PrimaryTelemetry{ElapsedCentis: elapsed, SpeedMilli: speedMilli, StrokeRate: 22, HeartRate: 140}
}

func TestSampleBuilder_StaleClock(t *testing.T) {
	b := NewSampleBuilder()

	tests := []struct {
		name    string
		in      PrimaryTelemetry
		wantMps float64
	}{
		{name: "first packet passes through", in: primary(100, 3500), wantMps: 3.5},
		{name: "clock advances", in: primary(200, 3600), wantMps: 3.6},
		{name: "clock frozen with speed", in: primary(200, 3600), wantMps: 0},
		{name: "still frozen", in: primary(200, 3600), wantMps: 0},
		{name: "clock frozen at zero speed", in: primary(200, 0), wantMps: 0},
		{name: "clock resumes", in: primary(250, 3000), wantMps: 3.0},
	}

	for _, tt := range tests {
		s := b.Build(tt.in)
		assert.InDelta(t, tt.wantMps, s.SpeedMps, 1e-9, tt.name)
		assert.Equal(t, 22, s.StrokeRate, tt.name)
		assert.Equal(t, 140, s.HeartRate, tt.name)
	}
}

func TestSampleBuilder_FirstPacketAtZeroElapsed(t *testing.T) {
	b := NewSampleBuilder()
	assert.InDelta(t, 2.0, b.Build(primary(0, 2000)).SpeedMps, 1e-9)
	assert.Zero(t, b.Build(primary(0, 2000)).SpeedMps)

	b.Reset()
	assert.InDelta(t, 2.0, b.Build(primary(0, 2000)).SpeedMps, 1e-9)
}

func TestSample_HasHeartRate(t *testing.T) {
	assert.True(t, Sample{HeartRate: 120}.HasHeartRate())
	assert.False(t, Sample{HeartRate: HeartRateNotAvailable}.HasHeartRate())
}
