package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/safe_map"
	"tinygo.org/x/bluetooth"
)

type DeviceState int

const (
	Disconnected DeviceState = iota // 0
	Connecting                      // 1
	Connected                       // 2
)

func (s DeviceState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

var ErrNotConnected = errors.New("bt: device not connected")

// Device is a BLE peripheral seen by a scan. GATT operations need a
// connection and are serialized per device.
type Device interface {
	Address() string
	LocalName() string
	RSSI() (int16, error)
	LastSeen() time.Time
	State() DeviceState
	IsConnected() bool
	IsRecentlyScanned() bool
	WaitForConnection(ctx context.Context) error
	EnableNotifications(serviceUUID, charUUID string, callback func(buf []byte)) error
	DisableNotifications(serviceUUID, charUUID string) error
	ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error)
	WriteCharacteristic(serviceUUID, charUUID string, data []byte) error
	WriteCharacteristicWithoutResponse(serviceUUID, charUUID string, data []byte) error
	ServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
}

type device struct {
	address    bluetooth.Address
	staleAfter time.Duration
	logger     *log.Logger

	mu           sync.RWMutex
	lastSeen     time.Time
	scanResult   *bluetooth.ScanResult
	connected    *bluetooth.Device // nil unless connected
	state        DeviceState
	serviceUUIDs []string

	// gattMu serializes discovery, notification and write operations.
	gattMu          sync.Mutex
	services        *safe_map.SafeMap[string, *bluetooth.DeviceService]
	characteristics *safe_map.SafeMap[string, *bluetooth.DeviceCharacteristic]
	charsDiscovered *safe_map.SafeMap[string, bool]
	servicesFound   bool
}

func newDevice(logger *log.Logger, address bluetooth.Address, staleAfter time.Duration) *device {
	if logger == nil {
		panic("Device: logger cannot be nil")
	}
	if staleAfter <= 0 {
		panic("Device: staleAfter must be > 0")
	}
	return &device{
		address:         address,
		staleAfter:      staleAfter,
		logger:          logger,
		lastSeen:        time.Unix(0, 0),
		state:           Disconnected,
		services:        safe_map.NewSafeMap[string, *bluetooth.DeviceService](),
		characteristics: safe_map.NewSafeMap[string, *bluetooth.DeviceCharacteristic](),
		charsDiscovered: safe_map.NewSafeMap[string, bool](),
	}
}

func (d *device) Address() string {
	return d.address.String()
}

func (d *device) LocalName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult != nil {
		if name := d.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return "Unknown"
}

func (d *device) RSSI() (int16, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return 0, errors.New("no rssi available")
	}
	return d.scanResult.RSSI, nil
}

func (d *device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

func (d *device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *device) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected != nil
}

func (d *device) IsRecentlyScanned() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scanResult != nil && time.Since(d.lastSeen) <= d.staleAfter
}

func (d *device) ServiceUUIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.serviceUUIDs))
	copy(out, d.serviceUUIDs)
	return out
}

func (d *device) HasServiceUUID(uuid string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

// WaitForConnection polls until the connect handler has reported the device
// or ctx is done.
func (d *device) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if d.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection to %s: %w", d.Address(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (d *device) observe(result bluetooth.ScanResult, now time.Time) (first bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	first = d.scanResult == nil
	d.scanResult = &result
	d.lastSeen = now
	if first {
		uuids := result.ServiceUUIDs()
		d.serviceUUIDs = make([]string, 0, len(uuids))
		for _, u := range uuids {
			d.serviceUUIDs = append(d.serviceUUIDs, u.String())
		}
	}
	return first
}

func (d *device) setConnection(dev *bluetooth.Device, state DeviceState) {
	d.mu.Lock()
	d.connected = dev
	d.state = state
	d.mu.Unlock()

	if dev == nil {
		// A reconnect gets fresh handles.
		d.gattMu.Lock()
		d.services.Clear()
		d.characteristics.Clear()
		d.charsDiscovered.Clear()
		d.servicesFound = false
		d.gattMu.Unlock()
	}
}

func (d *device) setState(state DeviceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
}

func (d *device) connection() *bluetooth.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *device) EnableNotifications(serviceUUID, charUUID string, callback func(buf []byte)) error {
	d.gattMu.Lock()
	defer d.gattMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if err := char.EnableNotifications(callback); err != nil {
		return fmt.Errorf("failed to enable notifications on %s: %w", charUUID, err)
	}
	d.logger.Printf("Device: notifications enabled for %s", charUUID)
	return nil
}

func (d *device) DisableNotifications(serviceUUID, charUUID string) error {
	d.gattMu.Lock()
	defer d.gattMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if err := char.EnableNotifications(nil); err != nil {
		return fmt.Errorf("failed to disable notifications on %s: %w", charUUID, err)
	}
	d.logger.Printf("Device: notifications disabled for %s", charUUID)
	return nil
}

func (d *device) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	d.gattMu.Lock()
	defer d.gattMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 512)
	n, err := char.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", charUUID, err)
	}
	return buf[:n], nil
}

func (d *device) WriteCharacteristic(serviceUUID, charUUID string, data []byte) error {
	return d.write(serviceUUID, charUUID, data, true)
}

func (d *device) WriteCharacteristicWithoutResponse(serviceUUID, charUUID string, data []byte) error {
	return d.write(serviceUUID, charUUID, data, false)
}

func (d *device) write(serviceUUID, charUUID string, data []byte, withResponse bool) error {
	d.gattMu.Lock()
	defer d.gattMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if withResponse {
		_, err = writeWithResponse(char, data)
	} else {
		_, err = char.WriteWithoutResponse(data)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", charUUID, err)
	}
	return nil
}

// characteristic resolves a characteristic handle, discovering every service
// once and every characteristic of a service once. Discovering a single
// service again interrupts notifications already running on the PM5, so
// handles are cached. Callers hold gattMu.
func (d *device) characteristic(serviceUUID, charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	svcID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUUID, err)
	}
	charID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", charUUID, err)
	}
	svcKey := svcID.String()
	key := svcKey + "_" + charID.String()

	if char, ok := d.characteristics.Load(key); ok {
		return char, nil
	}

	if done, _ := d.charsDiscovered.Load(svcKey); !done {
		svc, err := d.service(svcID)
		if err != nil {
			return nil, err
		}
		d.logger.Printf("Device: discovering characteristics of %s", svcKey)
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %s: %w", svcKey, err)
		}
		for i := range chars {
			c := &chars[i]
			d.characteristics.Store(svcKey+"_"+c.UUID().String(), c)
		}
		d.charsDiscovered.Store(svcKey, true)
	}

	char, ok := d.characteristics.Load(key)
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", charID.String(), svcKey)
	}
	return char, nil
}

func (d *device) service(id bluetooth.UUID) (*bluetooth.DeviceService, error) {
	conn := d.connection()
	if conn == nil {
		return nil, ErrNotConnected
	}
	key := id.String()
	if svc, ok := d.services.Load(key); ok {
		return svc, nil
	}
	if !d.servicesFound {
		d.logger.Printf("Device: discovering services of %s", d.Address())
		svcs, err := conn.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}
		for i := range svcs {
			s := &svcs[i]
			d.services.Store(s.UUID().String(), s)
		}
		d.servicesFound = true
	}
	svc, ok := d.services.Load(key)
	if !ok {
		return nil, fmt.Errorf("service %s not found on device", key)
	}
	return svc, nil
}
