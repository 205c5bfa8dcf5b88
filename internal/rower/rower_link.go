package rower

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/csafe"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

const (
	DefaultScanTimeout    = 15 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// LinkState describes the rower connection.
type LinkState struct {
	Connected bool
	Name      string
	Address   string
	Serial    string
}

type RowerLinkConfig struct {
	Selector       bt.Selector
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// RowerLink owns the BLE connection to one PM5. It turns Rowing Status 1
// notifications into samples and writes CSAFE frames to the control
// characteristic.
type RowerLink struct {
	central bt.Central
	cfg     RowerLinkConfig
	logger  *log.Logger

	mu     sync.RWMutex
	device bt.Device
	name   string
	serial string

	// builder is only used from the Rowing Status 1 callback
	builderMu sync.Mutex
	builder   *pm5.SampleBuilder

	sampleEvent *events.ChannelEvent[pm5.Sample]
	statusEvent *events.ChannelEvent[pm5.StatusTelemetry]
	stateEvent  *events.ChannelEvent[LinkState]
}

func NewRowerLink(central bt.Central, cfg RowerLinkConfig, logger *log.Logger) *RowerLink {
	if logger == nil {
		panic("RowerLink: logger cannot be nil")
	}
	if central == nil {
		panic("RowerLink: central cannot be nil")
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = DefaultScanTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &RowerLink{
		central:     central,
		cfg:         cfg,
		logger:      logger,
		builder:     pm5.NewSampleBuilder(),
		sampleEvent: events.NewChannelEvent[pm5.Sample](false),
		statusEvent: events.NewChannelEvent[pm5.StatusTelemetry](true),
		stateEvent:  events.NewChannelEvent[LinkState](true),
	}
}

// Connect scans for a PM5 matching the selector, connects to it and
// subscribes to its notification streams. It is a no-op when already
// connected.
func (l *RowerLink) Connect(ctx context.Context) error {
	if l.IsConnected() {
		return nil
	}

	l.logger.Printf("RowerLink: scanning for %s", l.cfg.Selector)
	l.central.StartScan(nil)
	scanCtx, cancelScan := context.WithTimeout(ctx, l.cfg.ScanTimeout)
	dev, err := bt.FindDevice(scanCtx, l.central, l.cfg.Selector)
	cancelScan()
	if stopErr := l.central.StopScan(); stopErr != nil {
		l.logger.Printf("RowerLink: error stopping scan: %v", stopErr)
	}
	if err != nil {
		return err
	}

	deviceName := fmt.Sprintf("%s (%s)", dev.LocalName(), dev.Address())
	l.logger.Printf("RowerLink: connecting to %s", deviceName)

	connectCtx, cancelConnect := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancelConnect()
	if err := l.central.Connect(connectCtx, dev); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", deviceName, err)
	}

	serial := l.readSerial(dev)

	l.builderMu.Lock()
	l.builder.Reset()
	l.builderMu.Unlock()

	if err := l.subscribe(dev); err != nil {
		if dErr := l.central.Disconnect(dev); dErr != nil {
			l.logger.Printf("RowerLink: error disconnecting after failed subscribe: %v", dErr)
		}
		return err
	}

	l.mu.Lock()
	l.device = dev
	l.name = dev.LocalName()
	l.serial = serial
	l.mu.Unlock()
	l.emitState()
	l.logger.Printf("RowerLink: connected to %s, serial %q", deviceName, serial)

	// The response arrives on the CSAFE characteristic and is logged there.
	if err := l.SendCommand(csafe.GetSerialCmd()); err != nil {
		l.logger.Printf("RowerLink: serial number request failed: %v", err)
	}
	return nil
}

func (l *RowerLink) readSerial(dev bt.Device) string {
	raw, err := dev.ReadCharacteristic(pm5.SerialNumber.ServiceUUID, pm5.SerialNumber.UUID)
	if err != nil {
		l.logger.Printf("RowerLink: failed to read %s: %v", pm5.SerialNumber.DisplayName, err)
		return ""
	}
	return strings.TrimRight(string(raw), "\x00 ")
}

func (l *RowerLink) subscribe(dev bt.Device) error {
	streams := []struct {
		char   pm5.Characteristic
		handle func([]byte)
	}{
		{pm5.RowStatus1, l.onPrimary},
		{pm5.RowStatus, l.onStatus},
		{pm5.GetCSAFE, l.onResponse},
	}
	for _, s := range streams {
		if err := dev.EnableNotifications(s.char.ServiceUUID, s.char.UUID, s.handle); err != nil {
			return fmt.Errorf("failed to enable notifications for %s: %w", s.char.DisplayName, err)
		}
		l.logger.Printf("RowerLink: subscribed to %s", s.char.DisplayName)
	}
	return nil
}

func (l *RowerLink) onPrimary(buf []byte) {
	p, err := pm5.DecodePrimary(buf)
	if err != nil {
		l.logger.Printf("RowerLink: dropping %s packet: %v", pm5.RowStatus1.DisplayName, err)
		return
	}
	l.builderMu.Lock()
	sample := l.builder.Build(p)
	l.builderMu.Unlock()
	l.sampleEvent.Notify(sample)
}

func (l *RowerLink) onStatus(buf []byte) {
	s, err := pm5.DecodeStatus(buf)
	if err != nil {
		l.logger.Printf("RowerLink: dropping %s packet: %v", pm5.RowStatus.DisplayName, err)
		return
	}
	l.statusEvent.Notify(s)
}

func (l *RowerLink) onResponse(buf []byte) {
	rsp, ok := csafe.Unframe(buf)
	if !ok {
		l.logger.Printf("RowerLink: dropping malformed CSAFE response % X", buf)
		return
	}
	l.logger.Printf("RowerLink: CSAFE response %s", rsp)

	serial, ok := csafe.ParseSerialNumber(rsp)
	if !ok || serial == "" {
		return
	}
	l.mu.Lock()
	changed := l.serial != serial
	l.serial = serial
	l.mu.Unlock()
	if changed {
		l.emitState()
	}
}

// SendCommand frames cmd and writes it to the CSAFE command characteristic.
func (l *RowerLink) SendCommand(cmd []byte) error {
	dev := l.currentDevice()
	if dev == nil {
		return bt.ErrNotConnected
	}
	frame := csafe.Frame(cmd)
	if err := dev.WriteCharacteristic(pm5.SendCSAFE.ServiceUUID, pm5.SendCSAFE.UUID, frame); err != nil {
		return fmt.Errorf("failed to write CSAFE frame: %w", err)
	}
	return nil
}

// PhaseCommand builds the CSAFE command body that programs the machine for
// one phase: back to idle, the phase goal as a single-segment workout, the
// programmed-workout slot and in-use.
func PhaseCommand(phase workout.Phase) ([]byte, error) {
	goal := phase.EffectiveGoal()

	var (
		goalCmd []byte
		err     error
	)
	switch goal.Kind {
	case workout.GoalDuration:
		goalCmd, err = csafe.SetTimeWorkoutCmd(time.Duration(goal.Value * float64(time.Second)))
	case workout.GoalDistance:
		goalCmd, err = csafe.SetDistanceWorkoutCmd(int(goal.Value))
	default:
		err = fmt.Errorf("phase %q has no goal", phase.Name)
	}
	if err != nil {
		return nil, err
	}
	return csafe.Commands(
		csafe.GoIdleCmd(),
		goalCmd,
		csafe.SetProgramCmd(0),
		csafe.GoInUseCmd(),
	), nil
}

// ProgramPhase sends PhaseCommand for phase as one frame.
func (l *RowerLink) ProgramPhase(phase workout.Phase) error {
	cmd, err := PhaseCommand(phase)
	if err != nil {
		return fmt.Errorf("failed to program %s: %w", phase, err)
	}
	if err := l.SendCommand(cmd); err != nil {
		return err
	}
	l.logger.Printf("RowerLink: programmed %s", phase)
	return nil
}

// Disconnect drops the notification streams and the connection.
func (l *RowerLink) Disconnect() error {
	l.mu.Lock()
	dev := l.device
	l.device = nil
	l.mu.Unlock()
	if dev == nil {
		return nil
	}

	l.logger.Printf("RowerLink: disconnecting from %s", dev.LocalName())
	for _, c := range pm5.NotifyCharacteristics() {
		if err := dev.DisableNotifications(c.ServiceUUID, c.UUID); err != nil {
			l.logger.Printf("RowerLink: failed to disable notifications for %s: %v", c.DisplayName, err)
		}
	}
	err := l.central.Disconnect(dev)
	l.emitState()
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (l *RowerLink) currentDevice() bt.Device {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.device
}

func (l *RowerLink) IsConnected() bool {
	dev := l.currentDevice()
	return dev != nil && dev.IsConnected()
}

func (l *RowerLink) State() LinkState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := LinkState{Name: l.name, Serial: l.serial}
	if l.device != nil {
		s.Connected = l.device.IsConnected()
		s.Address = l.device.Address()
	}
	return s
}

func (l *RowerLink) emitState() {
	l.stateEvent.Notify(l.State())
}

// ListenToSamples receives one sample per Rowing Status 1 notification.
func (l *RowerLink) ListenToSamples(ch chan<- pm5.Sample) func() {
	return l.sampleEvent.Listen(ch)
}

func (l *RowerLink) ListenToStatus(ch chan<- pm5.StatusTelemetry) func() {
	return l.statusEvent.Listen(ch)
}

func (l *RowerLink) ListenToState(ch chan<- LinkState) func() {
	return l.stateEvent.Listen(ch)
}
