package rower

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt/bttest"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/csafe"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newFakePM5() *bttest.FakeDevice {
	d := bttest.NewFakeDevice("AA:BB:CC:00:00:01", "PM5 431234567", -60, pm5.ServiceUUIDs()...)
	d.SetRead(pm5.CharUUIDSerialNumber, []byte("431234567\x00"))
	return d
}

func newTestLink(t *testing.T, devices ...*bttest.FakeDevice) (*RowerLink, *bttest.FakeCentral) {
	t.Helper()
	central := bttest.NewFakeCentral(devices...)
	link := NewRowerLink(central, RowerLinkConfig{
		Selector:       bt.Selector{Name: "PM5"},
		ScanTimeout:    200 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
	}, quietLogger())
	return link, central
}

func primary(elapsedCentis uint32, speedMilli uint16, spm, hr uint8) []byte {
	return pm5.PrimaryTelemetry{
		ElapsedCentis: elapsedCentis,
		SpeedMilli:    speedMilli,
		StrokeRate:    spm,
		HeartRate:     hr,
	}.Encode()
}

func TestRowerLink_ConnectSubscribesAndReadsSerial(t *testing.T) {
	dev := newFakePM5()
	link, central := newTestLink(t, bttest.NewFakeDevice("11:22:33:44:55:66", "HRM-Pro", -40), dev)

	require.NoError(t, link.Connect(context.Background()))
	assert.True(t, link.IsConnected())
	assert.False(t, central.IsScanning(), "scan stops once the rower is found")

	assert.Equal(t, LinkState{Connected: true, Name: "PM5 431234567", Address: dev.Address(), Serial: "431234567"}, link.State())
	for _, c := range pm5.NotifyCharacteristics() {
		assert.True(t, dev.Subscribed(c.UUID), c.DisplayName)
	}

	writes := dev.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, pm5.CharUUIDSendCSAFE, writes[0].CharUUID)
	assert.Equal(t, csafe.Frame(csafe.GetSerialCmd()), writes[0].Data)

	// A second Connect does not rescan.
	require.NoError(t, link.Connect(context.Background()))
	assert.Equal(t, 1, central.Scans())
}

func TestRowerLink_ConnectNoRower(t *testing.T) {
	link, _ := newTestLink(t, bttest.NewFakeDevice("11:22:33:44:55:66", "HRM-Pro", -40))

	err := link.Connect(context.Background())
	assert.ErrorIs(t, err, bt.ErrDeviceNotFound)
	assert.False(t, link.IsConnected())
}

func TestRowerLink_ConnectFailures(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		link, central := newTestLink(t, newFakePM5())
		central.ConnectErr = errors.New("le-connection-abort-by-local")
		assert.ErrorContains(t, link.Connect(context.Background()), "le-connection-abort-by-local")
	})

	t.Run("subscribe disconnects again", func(t *testing.T) {
		dev := newFakePM5()
		dev.NotifyErr = errors.New("att error")
		link, _ := newTestLink(t, dev)
		assert.ErrorContains(t, link.Connect(context.Background()), "Rowing Status 1")
		assert.False(t, dev.IsConnected())
		assert.False(t, link.IsConnected())
	})
}

func TestRowerLink_SamplesFromRowStatus1(t *testing.T) {
	dev := newFakePM5()
	link, _ := newTestLink(t, dev)
	require.NoError(t, link.Connect(context.Background()))

	samples := make(chan pm5.Sample, 8)
	defer link.ListenToSamples(samples)()

	require.NoError(t, dev.Notify(pm5.CharUUIDRowStatus1, primary(100, 4000, 24, 140)))
	// Elapsed counter did not move, so the stale speed is zeroed.
	require.NoError(t, dev.Notify(pm5.CharUUIDRowStatus1, primary(100, 4000, 24, 140)))
	// Short packets are dropped.
	require.NoError(t, dev.Notify(pm5.CharUUIDRowStatus1, []byte{0x01, 0x02}))

	assert.Equal(t, pm5.Sample{SpeedMps: 4, StrokeRate: 24, HeartRate: 140}, <-samples)
	assert.Equal(t, pm5.Sample{SpeedMps: 0, StrokeRate: 24, HeartRate: 140}, <-samples)
	assert.Empty(t, samples)
}

func TestRowerLink_StatusAndResponses(t *testing.T) {
	dev := newFakePM5()
	dev.SetRead(pm5.CharUUIDSerialNumber, nil)
	link, _ := newTestLink(t, dev)
	require.NoError(t, link.Connect(context.Background()))

	status := make(chan pm5.StatusTelemetry, 1)
	defer link.ListenToStatus(status)()
	require.NoError(t, dev.Notify(pm5.CharUUIDRowStatus, pm5.StatusTelemetry{RowingState: 1, DragFactor: 118}.Encode()))
	s := <-status
	assert.True(t, s.Rowing())
	assert.Equal(t, uint8(118), s.DragFactor)

	// Malformed responses are dropped.
	require.NoError(t, dev.Notify(pm5.CharUUIDGetCSAFE, []byte{0x00, 0x01}))
	assert.Empty(t, link.State().Serial)

	rsp := csafe.Frame([]byte{0x81, csafe.CmdGetSerial, 0x03, '4', '3', '1'})
	require.NoError(t, dev.Notify(pm5.CharUUIDGetCSAFE, rsp))
	assert.Equal(t, "431", link.State().Serial)
}

func TestRowerLink_SendCommandRequiresConnection(t *testing.T) {
	link, _ := newTestLink(t, newFakePM5())
	assert.ErrorIs(t, link.SendCommand(csafe.GoIdleCmd()), bt.ErrNotConnected)
	assert.ErrorIs(t, link.ProgramPhase(workout.DurationPhase("Warm-up", 120, 0, 1)), bt.ErrNotConnected)
}

func TestPhaseCommand(t *testing.T) {
	timed, err := PhaseCommand(workout.DurationPhase("Test Program", 30, 15, 3))
	require.NoError(t, err)
	twork, err := csafe.SetTimeWorkoutCmd(135 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, csafe.Commands(csafe.GoIdleCmd(), twork, csafe.SetProgramCmd(0), csafe.GoInUseCmd()), timed)

	distance, err := PhaseCommand(workout.DistancePhase("4x500m", 500, 4))
	require.NoError(t, err)
	horizontal, err := csafe.SetDistanceWorkoutCmd(2000)
	require.NoError(t, err)
	assert.Equal(t, csafe.Commands(csafe.GoIdleCmd(), horizontal, csafe.SetProgramCmd(0), csafe.GoInUseCmd()), distance)

	_, err = PhaseCommand(workout.DurationPhase("Empty", 0, 0, 1))
	assert.Error(t, err)
	_, err = PhaseCommand(workout.Phase{Name: "None"})
	assert.Error(t, err)
}

func TestRowerLink_ProgramPhaseAndDisconnect(t *testing.T) {
	dev := newFakePM5()
	link, _ := newTestLink(t, dev)
	require.NoError(t, link.Connect(context.Background()))

	states := make(chan LinkState, 4)
	defer link.ListenToState(states)()
	<-states // replayed connected state

	phase := workout.DistancePhase("Normal Distance", 5000, 1)
	require.NoError(t, link.ProgramPhase(phase))
	cmd, err := PhaseCommand(phase)
	require.NoError(t, err)
	writes := dev.Writes()
	assert.Equal(t, csafe.Frame(cmd), writes[len(writes)-1].Data)

	require.NoError(t, link.Disconnect())
	assert.False(t, dev.IsConnected())
	assert.False(t, dev.Subscribed(pm5.CharUUIDRowStatus1))
	assert.False(t, (<-states).Connected)

	require.NoError(t, link.Disconnect(), "disconnecting twice is harmless")
}

func TestNewRowerLink_NilArguments(t *testing.T) {
	assert.Panics(t, func() { NewRowerLink(bttest.NewFakeCentral(), RowerLinkConfig{}, nil) })
	assert.Panics(t, func() { NewRowerLink(nil, RowerLinkConfig{}, quietLogger()) })
}
