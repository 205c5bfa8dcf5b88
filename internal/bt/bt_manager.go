package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"

	"tinygo.org/x/bluetooth"
)

// Central is the BLE central role: scanning, connecting and publishing the
// device lists. The Bluetooth Manager and the simulated PM5 both implement it.
type Central interface {
	Enable() error
	StartScan(serviceFilter []string)
	StopScan() error
	IsScanning() bool
	Connect(ctx context.Context, device Device) error
	Disconnect(device Device) error
	ScanDevices() []Device
	ConnectedDevices() []Device
	ListenToDeviceList(ch chan<- []Device) func()
	ListenToConnectedDevices(ch chan<- []Device) func()
	Shutdown()
}

var _ Central = (*Manager)(nil)

const (
	DefaultStaleAfter = 10 * time.Second
	scanEmitInterval  = time.Second
)

type Manager struct {
	adapter    *bluetooth.Adapter
	staleAfter time.Duration
	logger     *log.Logger

	mu       sync.RWMutex
	devices  map[string]*device
	scanning bool

	scanCtx    context.Context
	scanCancel context.CancelFunc

	deviceListEvent       *events.ChannelEvent[[]Device]
	connectedDevicesEvent *events.ChannelEvent[[]Device]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager wraps adapter. Devices not seen for staleAfter drop out of the
// scan list; zero means DefaultStaleAfter.
func NewManager(adapter *bluetooth.Adapter, logger *log.Logger, staleAfter time.Duration) *Manager {
	if logger == nil {
		panic("Manager: logger cannot be nil")
	}
	if adapter == nil {
		panic("Manager: adapter cannot be nil")
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		adapter:               adapter,
		staleAfter:            staleAfter,
		logger:                logger,
		devices:               make(map[string]*device),
		deviceListEvent:       events.NewChannelEvent[[]Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]Device](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// lookup returns the device for address, creating it on first sight.
// Callers hold mu.
func (m *Manager) lookup(address bluetooth.Address) *device {
	key := address.String()
	d, ok := m.devices[key]
	if !ok {
		d = newDevice(m.logger, address, m.staleAfter)
		m.devices[key] = d
	}
	return d
}

func (m *Manager) Enable() error {
	m.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		m.mu.Lock()
		d := m.lookup(dev.Address)
		m.mu.Unlock()

		if connected {
			m.logger.Printf("Manager: device connected: %s", dev.Address.String())
			d.setConnection(&dev, Connected)
		} else {
			m.logger.Printf("Manager: device disconnected: %s", dev.Address.String())
			d.setConnection(nil, Disconnected)
		}
		m.emitConnectedDevices()
	})

	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}
	return nil
}

// StartScan scans until StopScan. With a non-empty filter, only devices
// advertising one of the service UUIDs are kept. A second call while
// scanning is ignored.
func (m *Manager) StartScan(serviceFilter []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filter := make(map[string]struct{}, len(serviceFilter))
	for _, u := range serviceFilter {
		filter[u] = struct{}{}
	}

	if m.scanning {
		m.logger.Println("Manager: scan already running")
		return
	}
	m.scanning = true
	m.scanCtx, m.scanCancel = context.WithCancel(m.ctx)
	scanCtx := m.scanCtx

	m.logger.Printf("Manager: starting scan (filter %v)", serviceFilter)

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		err := m.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if scanCtx.Err() != nil {
				return
			}
			if len(filter) > 0 && !advertisesAny(result, filter) {
				return
			}
			m.mu.Lock()
			d := m.lookup(result.Address)
			m.mu.Unlock()
			if d.observe(result, time.Now()) {
				m.logger.Printf("Manager: found %s (%s) [RSSI: %d]", d.LocalName(), d.Address(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("Manager: scan error: %v", err)
		}
	})

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(scanEmitInterval)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.forgetStale(time.Now())
				m.deviceListEvent.Notify(m.ScanDevices())
			}
		}
	})
}

func advertisesAny(result bluetooth.ScanResult, filter map[string]struct{}) bool {
	for _, u := range result.ServiceUUIDs() {
		if _, ok := filter[u.String()]; ok {
			return true
		}
	}
	return false
}

func (m *Manager) forgetStale(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, d := range m.devices {
		if d.IsConnected() || d.State() == Connecting {
			continue
		}
		if now.Sub(d.LastSeen()) > m.staleAfter {
			delete(m.devices, addr)
			m.logger.Printf("Manager: %s not seen for %v", addr, m.staleAfter)
		}
	}
}

func (m *Manager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return m.adapter.StopScan()
}

func (m *Manager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect connects to device and waits for the connect handler to confirm
// it, bounded by ctx.
func (m *Manager) Connect(ctx context.Context, dev Device) error {
	m.mu.RLock()
	d, ok := m.devices[dev.Address()]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown device %s", dev.Address())
	}

	m.logger.Printf("Manager: connecting to %s", d.Address())
	d.setState(Connecting)
	conn, err := m.adapter.Connect(d.address, bluetooth.ConnectionParams{})
	if err != nil {
		d.setState(Disconnected)
		return fmt.Errorf("failed to connect to %s: %w", d.Address(), err)
	}
	d.setConnection(&conn, Connected)
	m.emitConnectedDevices()

	return d.WaitForConnection(ctx)
}

func (m *Manager) Disconnect(dev Device) error {
	m.mu.RLock()
	d, ok := m.devices[dev.Address()]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown device %s", dev.Address())
	}
	conn := d.connection()
	if conn == nil {
		return nil
	}
	m.logger.Printf("Manager: disconnecting from %s", d.Address())
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", d.Address(), err)
	}
	d.setConnection(nil, Disconnected)
	m.emitConnectedDevices()
	return nil
}

func (m *Manager) ScanDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		if d.IsRecentlyScanned() {
			out = append(out, d)
		}
	}
	return out
}

func (m *Manager) ConnectedDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Device, 0)
	for _, d := range m.devices {
		if d.IsConnected() {
			out = append(out, d)
		}
	}
	return out
}

// ListenToDeviceList receives the scan list once per second while scanning.
func (m *Manager) ListenToDeviceList(ch chan<- []Device) func() {
	return m.deviceListEvent.Listen(ch)
}

func (m *Manager) ListenToConnectedDevices(ch chan<- []Device) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *Manager) emitConnectedDevices() {
	m.connectedDevicesEvent.Notify(m.ConnectedDevices())
}

// Shutdown disconnects everything, stops scanning and waits for the
// manager's goroutines.
func (m *Manager) Shutdown() {
	m.logger.Println("Manager: Shutting down")
	for _, d := range m.ConnectedDevices() {
		if err := m.Disconnect(d); err != nil {
			m.logger.Printf("Manager: %v", err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("Manager: error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("Manager: Shutdown complete")
}
