package rower

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/csafe"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
)

// DefaultMockInterval is how often the simulated PM5 notifies telemetry.
const DefaultMockInterval = 500 * time.Millisecond

const maxWrittenValues = 100

// WrittenValue records a CSAFE frame written by the app
type WrittenValue struct {
	Timestamp   time.Time `json:"timestamp"`
	Data        []byte    `json:"data"`
	DataHex     string    `json:"dataHex"`
	Description string    `json:"description"`
}

// MockPM5State represents the current state for the web API
type MockPM5State struct {
	SpeedMps       float64 `json:"speedMps"`
	StrokeRate     int     `json:"strokeRate"`
	HeartRate      int     `json:"heartRate"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	DistanceMeters float64 `json:"distanceMeters"`
	MachineState   string  `json:"machineState"`
	Connected      bool    `json:"connected"`
	Address        string  `json:"address"`
	LocalName      string  `json:"localName"`
}

// MockPM5Config holds configuration for creating a simulated PM5
type MockPM5Config struct {
	Address   string
	LocalName string
	Serial    string
	// Port of the HTTP control page; 0 disables it
	Port     int
	Interval time.Duration
}

// MockPM5 implements bt.Device as a PM5 rowing monitor. Telemetry comes from
// values set on its HTTP control page; CSAFE frames written to it are
// parsed, answered and kept for inspection.
type MockPM5 struct {
	logger   *log.Logger
	address  string
	name     string
	serial   string
	interval time.Duration

	mu            sync.RWMutex
	state         bt.DeviceState
	callbacks     map[string]func([]byte)
	speedMilli    uint16
	strokeRate    uint8
	heartRate     uint8
	elapsedCentis uint32
	distanceDm    uint32
	machineState  csafe.State
	toggle        bool

	writtenValues   []WrittenValue
	writtenValuesMu sync.RWMutex

	server    *http.Server
	port      int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

var _ bt.Device = (*MockPM5)(nil)

func NewMockPM5(logger *log.Logger, config MockPM5Config) *MockPM5 {
	if logger == nil {
		panic("MockPM5: logger cannot be nil")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultMockInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MockPM5{
		logger:       logger,
		address:      config.Address,
		name:         config.LocalName,
		serial:       config.Serial,
		interval:     config.Interval,
		state:        bt.Disconnected,
		callbacks:    make(map[string]func([]byte)),
		heartRate:    pm5.HeartRateNotAvailable,
		machineState: csafe.StateReady,
		port:         config.Port,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the telemetry loop and the control page.
func (m *MockPM5) Start() error {
	var err error
	m.startOnce.Do(func() {
		m.logger.Printf("MockPM5: Starting simulated rower %s (%s)", m.name, m.address)

		if m.port > 0 {
			var ln net.Listener
			ln, err = net.Listen("tcp", fmt.Sprintf(":%d", m.port))
			if err != nil {
				err = fmt.Errorf("MockPM5: failed to listen on port %d: %w", m.port, err)
				return
			}
			m.server = &http.Server{Handler: m.Handler()}
			go_func_utils.SafeGoWG(m.logger, &m.wg, func() {
				m.logger.Printf("MockPM5: Control page on http://localhost:%d", m.port)
				if serveErr := m.server.Serve(ln); !errors.Is(serveErr, http.ErrServerClosed) {
					m.logger.Printf("MockPM5: Web server error: %v", serveErr)
				}
			})
		}

		go_func_utils.SafeGoWG(m.logger, &m.wg, m.notifyLoop)
	})
	return err
}

func (m *MockPM5) Shutdown() {
	m.logger.Printf("MockPM5: Shutting down")
	m.cancel()

	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Printf("MockPM5: Error shutting down web server: %v", err)
		}
	}

	m.wg.Wait()
	m.logger.Printf("MockPM5: Shutdown complete")
}

func (m *MockPM5) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = bt.Connected
	} else {
		m.state = bt.Disconnected
		m.callbacks = make(map[string]func([]byte))
	}
	m.logger.Printf("MockPM5: State changed to %s", m.state)
}

// SetRowing sets the simulated stroke values. A zero speed stalls the
// elapsed counter the way a real PM5 does.
func (m *MockPM5) SetRowing(speedMps float64, strokeRate, heartRate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speedMilli = uint16(clampInt(int(speedMps*1000), 0, 0xFFFF))
	m.strokeRate = uint8(clampInt(strokeRate, 0, 0xFF))
	m.heartRate = uint8(clampInt(heartRate, 0, 0xFF))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// --- bt.Device ---

func (m *MockPM5) Address() string   { return m.address }
func (m *MockPM5) LocalName() string { return m.name }

func (m *MockPM5) RSSI() (int16, error) {
	return -50, nil
}

func (m *MockPM5) LastSeen() time.Time {
	return time.Now()
}

func (m *MockPM5) State() bt.DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockPM5) IsConnected() bool {
	return m.State() == bt.Connected
}

func (m *MockPM5) IsRecentlyScanned() bool {
	return true
}

func (m *MockPM5) WaitForConnection(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}
	return bt.ErrNotConnected
}

func charKey(serviceUUID, charUUID string) string {
	return serviceUUID + "_" + charUUID
}

func (m *MockPM5) EnableNotifications(serviceUUID, charUUID string, callback func(buf []byte)) error {
	if !m.hasNotifyChar(serviceUUID, charUUID) {
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUUID, charUUID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != bt.Connected {
		return bt.ErrNotConnected
	}
	m.callbacks[charKey(serviceUUID, charUUID)] = callback
	m.logger.Printf("MockPM5: Notifications enabled for %s", charUUID)
	return nil
}

func (m *MockPM5) DisableNotifications(serviceUUID, charUUID string) error {
	if !m.hasNotifyChar(serviceUUID, charUUID) {
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUUID, charUUID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, charKey(serviceUUID, charUUID))
	return nil
}

func (m *MockPM5) hasNotifyChar(serviceUUID, charUUID string) bool {
	for _, c := range pm5.NotifyCharacteristics() {
		if c.ServiceUUID == serviceUUID && c.UUID == charUUID {
			return true
		}
	}
	return false
}

func (m *MockPM5) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	if serviceUUID == pm5.SerialNumber.ServiceUUID && charUUID == pm5.SerialNumber.UUID {
		return []byte(m.serial), nil
	}
	return nil, fmt.Errorf("unknown service/characteristic: %s/%s", serviceUUID, charUUID)
}

func (m *MockPM5) WriteCharacteristic(serviceUUID, charUUID string, data []byte) error {
	if serviceUUID != pm5.SendCSAFE.ServiceUUID || charUUID != pm5.SendCSAFE.UUID {
		return fmt.Errorf("characteristic not writable: %s/%s", serviceUUID, charUUID)
	}
	if !m.IsConnected() {
		return bt.ErrNotConnected
	}
	m.handleCSAFE(data)
	return nil
}

func (m *MockPM5) WriteCharacteristicWithoutResponse(serviceUUID, charUUID string, data []byte) error {
	return m.WriteCharacteristic(serviceUUID, charUUID, data)
}

func (m *MockPM5) ServiceUUIDs() []string {
	return pm5.ServiceUUIDs()
}

func (m *MockPM5) HasServiceUUID(uuid string) bool {
	for _, u := range pm5.ServiceUUIDs() {
		if u == uuid {
			return true
		}
	}
	return false
}

// --- CSAFE ---

// handleCSAFE applies a command frame and answers on the response
// characteristic.
func (m *MockPM5) handleCSAFE(frame []byte) {
	cmds, err := csafe.ParseCommands(frame)
	description := describeCommands(cmds)
	if err != nil {
		description = fmt.Sprintf("%s (error: %v)", description, err)
		m.logger.Printf("MockPM5: Bad CSAFE frame % X: %v", frame, err)
	}
	m.recordWrite(frame, description)

	var records []csafe.CommandResponse
	m.mu.Lock()
	for _, c := range cmds {
		switch c.ID {
		case csafe.CmdGoIdle:
			m.machineState = csafe.StateIdle
		case csafe.CmdGoInUse:
			m.machineState = csafe.StateInUse
			m.elapsedCentis = 0
			m.distanceDm = 0
		case csafe.CmdGoReady:
			m.machineState = csafe.StateReady
		case csafe.CmdGoFinished:
			m.machineState = csafe.StateFinished
		case csafe.CmdGetSerial:
			records = append(records, csafe.CommandResponse{ID: c.ID, Data: []byte(m.serial)})
		case csafe.CmdGetStatus:
			records = append(records, csafe.CommandResponse{ID: c.ID})
		}
	}
	status := byte(m.machineState)
	if err != nil {
		status |= byte(csafe.PrevBad) << 4
	}
	m.toggle = !m.toggle
	if m.toggle {
		status |= 0x80
	}
	callback := m.callbacks[charKey(pm5.GetCSAFE.ServiceUUID, pm5.GetCSAFE.UUID)]
	m.mu.Unlock()

	if callback != nil {
		callback(csafe.ResponseFrame(status, records...))
	}
}

func describeCommands(cmds []csafe.CommandResponse) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		parts = append(parts, describeCommand(c))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

func describeCommand(c csafe.CommandResponse) string {
	switch c.ID {
	case csafe.CmdGoIdle:
		return "Go Idle"
	case csafe.CmdGoInUse:
		return "Go In Use"
	case csafe.CmdGoReady:
		return "Go Ready"
	case csafe.CmdGoFinished:
		return "Go Finished"
	case csafe.CmdGetSerial:
		return "Get Serial"
	case csafe.CmdGetStatus:
		return "Get Status"
	case csafe.CmdSetTWork:
		if len(c.Data) == 3 {
			return fmt.Sprintf("Set Time %d:%02d:%02d", c.Data[0], c.Data[1], c.Data[2])
		}
	case csafe.CmdSetHorizontal:
		if len(c.Data) == 3 {
			return fmt.Sprintf("Set Distance %d m", int(c.Data[0])|int(c.Data[1])<<8)
		}
	case csafe.CmdSetProgram:
		if len(c.Data) >= 1 {
			return fmt.Sprintf("Set Program %d", c.Data[0])
		}
	}
	return fmt.Sprintf("Command 0x%02X % X", c.ID, c.Data)
}

func (m *MockPM5) recordWrite(data []byte, description string) {
	m.writtenValuesMu.Lock()
	defer m.writtenValuesMu.Unlock()
	m.writtenValues = append(m.writtenValues, WrittenValue{
		Timestamp:   time.Now(),
		Data:        append([]byte(nil), data...),
		DataHex:     hex.EncodeToString(data),
		Description: description,
	})
	if len(m.writtenValues) > maxWrittenValues {
		m.writtenValues = m.writtenValues[len(m.writtenValues)-maxWrittenValues:]
	}
}

// WrittenValues returns a copy of the recorded writes, oldest first.
func (m *MockPM5) WrittenValues() []WrittenValue {
	m.writtenValuesMu.RLock()
	defer m.writtenValuesMu.RUnlock()
	writes := make([]WrittenValue, len(m.writtenValues))
	copy(writes, m.writtenValues)
	return writes
}

// --- Telemetry ---

func (m *MockPM5) notifyLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Tick(m.interval)
		}
	}
}

// Tick advances the simulation by dt and sends one Rowing Status and one
// Rowing Status 1 notification.
func (m *MockPM5) Tick(dt time.Duration) {
	m.mu.Lock()
	if m.speedMilli > 0 {
		m.elapsedCentis += uint32(dt / (10 * time.Millisecond))
		m.distanceDm += uint32(float64(m.speedMilli) / 100 * dt.Seconds())
	}
	var pace uint16
	if m.speedMilli > 0 {
		pace = uint16(clampInt(int(500/(float64(m.speedMilli)/1000)*100), 0, 0xFFFF))
	}
	primary := pm5.PrimaryTelemetry{
		ElapsedCentis: m.elapsedCentis,
		SpeedMilli:    m.speedMilli,
		StrokeRate:    m.strokeRate,
		HeartRate:     m.heartRate,
		PaceCentis:    pace,
		AvgPaceCentis: pace,
	}
	var rowingState uint8
	if m.speedMilli > 0 {
		rowingState = 1
	}
	status := pm5.StatusTelemetry{
		ElapsedCentis:      m.elapsedCentis,
		DistanceDecimeters: m.distanceDm,
		RowingState:        rowingState,
	}
	onPrimary := m.callbacks[charKey(pm5.RowStatus1.ServiceUUID, pm5.RowStatus1.UUID)]
	onStatus := m.callbacks[charKey(pm5.RowStatus.ServiceUUID, pm5.RowStatus.UUID)]
	m.mu.Unlock()

	if onStatus != nil {
		onStatus(status.Encode())
	}
	if onPrimary != nil {
		onPrimary(primary.Encode())
	}
}

// GetState returns a snapshot for the control page.
func (m *MockPM5) GetState() MockPM5State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MockPM5State{
		SpeedMps:       float64(m.speedMilli) / 1000,
		StrokeRate:     int(m.strokeRate),
		HeartRate:      int(m.heartRate),
		ElapsedSeconds: float64(m.elapsedCentis) / 100,
		DistanceMeters: float64(m.distanceDm) / 10,
		MachineState:   m.machineState.String(),
		Connected:      m.state == bt.Connected,
		Address:        m.address,
		LocalName:      m.name,
	}
}

// --- Web UI ---

// Handler serves the control page and its JSON API.
func (m *MockPM5) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/api/state", m.handleGetState)
	mux.HandleFunc("/api/set", m.handleSetValues)
	mux.HandleFunc("/api/writes", m.handleGetWrites)
	return mux
}

func (m *MockPM5) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, mockIndexHTML, m.name)
}

func (m *MockPM5) handleGetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.GetState()); err != nil {
		m.logger.Printf("MockPM5: Error encoding state: %v", err)
	}
}

func (m *MockPM5) handleSetValues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	current := m.GetState()
	q := r.URL.Query()
	speed, err := floatParam(q.Get("speedMps"), current.SpeedMps)
	if err != nil {
		http.Error(w, "invalid speedMps", http.StatusBadRequest)
		return
	}
	spm, err := intParam(q.Get("strokeRate"), current.StrokeRate)
	if err != nil {
		http.Error(w, "invalid strokeRate", http.StatusBadRequest)
		return
	}
	hr, err := intParam(q.Get("heartRate"), current.HeartRate)
	if err != nil {
		http.Error(w, "invalid heartRate", http.StatusBadRequest)
		return
	}
	m.SetRowing(speed, spm, hr)
	m.logger.Printf("MockPM5: Set speed=%.2f m/s spm=%d hr=%d", speed, spm, hr)

	w.WriteHeader(http.StatusOK)
}

func floatParam(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func (m *MockPM5) handleGetWrites(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.WrittenValues()); err != nil {
		m.logger.Printf("MockPM5: Error encoding writes: %v", err)
	}
}

const mockIndexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Mock PM5: %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; }
        .section { margin-bottom: 20px; padding: 10px; border: 1px solid #ccc; }
        label { display: inline-block; width: 120px; }
        input { width: 80px; }
        .write-entry { font-family: monospace; margin: 4px 0; }
        .write-time { color: #888; }
    </style>
</head>
<body>
    <h1>Mock PM5</h1>

    <div class="section">
        <h2>Current State</h2>
        <div id="state">Loading...</div>
    </div>

    <div class="section">
        <h2>Rowing</h2>
        <div><label>Speed:</label><input type="number" id="speed" min="0" max="8" step="0.1" value="4.0"> m/s</div>
        <div><label>Stroke rate:</label><input type="number" id="spm" min="0" max="60" value="24"> spm</div>
        <div><label>Heart rate:</label><input type="number" id="hr" min="0" max="255" value="255"> bpm (255 = no belt)</div>
        <button onclick="setValues()">Row</button>
        <button onclick="stopRowing()">Stop</button>
    </div>

    <div class="section">
        <h2>CSAFE frames (from app)</h2>
        <div id="writes">Loading...</div>
    </div>

    <script>
        function refreshState() {
            fetch('/api/state').then(r => r.json()).then(s => {
                document.getElementById('state').innerHTML =
                    s.localName + ' (' + s.address + ')<br>' +
                    'Connected: ' + s.connected + '<br>' +
                    'Machine: ' + s.machineState + '<br>' +
                    'Speed: ' + s.speedMps.toFixed(2) + ' m/s, ' + s.strokeRate + ' spm, HR ' + s.heartRate + '<br>' +
                    'Elapsed: ' + s.elapsedSeconds.toFixed(1) + ' s, ' + s.distanceMeters.toFixed(1) + ' m';
            });
        }
        function post(params) {
            fetch('/api/set?' + new URLSearchParams(params), {method: 'POST'}).then(refreshState);
        }
        function setValues() {
            post({
                speedMps: document.getElementById('speed').value,
                strokeRate: document.getElementById('spm').value,
                heartRate: document.getElementById('hr').value
            });
        }
        function stopRowing() {
            post({speedMps: 0, strokeRate: 0});
        }
        function refreshWrites() {
            fetch('/api/writes').then(r => r.json()).then(data => {
                const html = (data || []).map(w =>
                    '<div class="write-entry"><span class="write-time">' +
                    new Date(w.timestamp).toLocaleTimeString() + '</span> ' +
                    w.description + '<br>' + w.dataHex + '</div>'
                ).reverse().join('');
                document.getElementById('writes').innerHTML = html || 'No writes yet';
            });
        }
        refreshState();
        refreshWrites();
        setInterval(refreshState, 1000);
        setInterval(refreshWrites, 2000);
    </script>
</body>
</html>`

// MockCentral implements bt.Central with a single simulated PM5
type MockCentral struct {
	logger   *log.Logger
	pm5      *MockPM5
	mu       sync.RWMutex
	scanning bool

	scanDeviceListEvent   *events.ChannelEvent[[]bt.Device]
	connectedDevicesEvent *events.ChannelEvent[[]bt.Device]
}

var _ bt.Central = (*MockCentral)(nil)

func NewMockCentral(logger *log.Logger, rower *MockPM5) *MockCentral {
	if logger == nil {
		panic("MockCentral: logger cannot be nil")
	}
	if rower == nil {
		panic("MockCentral: rower cannot be nil")
	}
	return &MockCentral{
		logger:                logger,
		pm5:                   rower,
		scanDeviceListEvent:   events.NewChannelEvent[[]bt.Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]bt.Device](true),
	}
}

func (c *MockCentral) Enable() error {
	c.logger.Println("MockCentral: Enabling (the simulated PM5 appears when scanning)")
	if err := c.pm5.Start(); err != nil {
		return err
	}
	c.connectedDevicesEvent.Notify([]bt.Device{})
	return nil
}

func (c *MockCentral) StartScan([]string) {
	c.mu.Lock()
	c.scanning = true
	c.mu.Unlock()
	c.logger.Println("MockCentral: Scan started")
	c.scanDeviceListEvent.Notify(c.ScanDevices())
}

func (c *MockCentral) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scanning {
		return nil
	}
	c.scanning = false
	c.logger.Println("MockCentral: Scan stopped")
	return nil
}

func (c *MockCentral) IsScanning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scanning
}

func (c *MockCentral) Connect(ctx context.Context, device bt.Device) error {
	if device.Address() != c.pm5.Address() {
		return fmt.Errorf("MockCentral: unknown device %s", device.Address())
	}
	c.logger.Printf("MockCentral: Connecting to %s", device.LocalName())
	c.pm5.SetConnected(true)
	c.connectedDevicesEvent.Notify(c.ConnectedDevices())
	return nil
}

func (c *MockCentral) Disconnect(device bt.Device) error {
	if device.Address() != c.pm5.Address() {
		return fmt.Errorf("MockCentral: unknown device %s", device.Address())
	}
	c.pm5.SetConnected(false)
	c.connectedDevicesEvent.Notify(c.ConnectedDevices())
	return nil
}

func (c *MockCentral) ScanDevices() []bt.Device {
	return []bt.Device{c.pm5}
}

func (c *MockCentral) ConnectedDevices() []bt.Device {
	if c.pm5.IsConnected() {
		return []bt.Device{c.pm5}
	}
	return []bt.Device{}
}

func (c *MockCentral) ListenToDeviceList(ch chan<- []bt.Device) func() {
	return c.scanDeviceListEvent.Listen(ch)
}

func (c *MockCentral) ListenToConnectedDevices(ch chan<- []bt.Device) func() {
	return c.connectedDevicesEvent.Listen(ch)
}

func (c *MockCentral) Shutdown() {
	c.logger.Println("MockCentral: Shutting down")
	c.pm5.Shutdown()
}
