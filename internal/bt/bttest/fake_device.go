// Package bttest provides an in-memory bt.Device for tests.
package bttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
)

var _ bt.Device = (*FakeDevice)(nil)

type Write struct {
	ServiceUUID  string
	CharUUID     string
	Data         []byte
	WithResponse bool
}

// FakeDevice records GATT traffic keyed by characteristic UUID. Tests push
// notifications with Notify.
type FakeDevice struct {
	addr   string
	name   string
	rssi   int16
	uuids  []string
	mu     sync.Mutex
	state  bt.DeviceState
	reads  map[string][]byte
	notify map[string]func([]byte)
	writes []Write

	// Errors returned by the matching operations when set.
	ReadErr   error
	WriteErr  error
	NotifyErr error
}

func NewFakeDevice(addr, name string, rssi int16, serviceUUIDs ...string) *FakeDevice {
	return &FakeDevice{
		addr:   addr,
		name:   name,
		rssi:   rssi,
		uuids:  serviceUUIDs,
		reads:  make(map[string][]byte),
		notify: make(map[string]func([]byte)),
	}
}

func (d *FakeDevice) Address() string         { return d.addr }
func (d *FakeDevice) LocalName() string       { return d.name }
func (d *FakeDevice) RSSI() (int16, error)    { return d.rssi, nil }
func (d *FakeDevice) LastSeen() time.Time     { return time.Now() }
func (d *FakeDevice) IsRecentlyScanned() bool { return true }
func (d *FakeDevice) ServiceUUIDs() []string  { return d.uuids }

func (d *FakeDevice) HasServiceUUID(u string) bool {
	for _, s := range d.uuids {
		if s == u {
			return true
		}
	}
	return false
}

func (d *FakeDevice) State() bt.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *FakeDevice) IsConnected() bool {
	return d.State() == bt.Connected
}

func (d *FakeDevice) SetConnected(connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if connected {
		d.state = bt.Connected
	} else {
		d.state = bt.Disconnected
		d.notify = make(map[string]func([]byte))
	}
}

func (d *FakeDevice) WaitForConnection(ctx context.Context) error {
	if d.IsConnected() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *FakeDevice) EnableNotifications(_, charUUID string, callback func([]byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NotifyErr != nil {
		return d.NotifyErr
	}
	if d.state != bt.Connected {
		return bt.ErrNotConnected
	}
	d.notify[charUUID] = callback
	return nil
}

func (d *FakeDevice) DisableNotifications(_, charUUID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notify, charUUID)
	return nil
}

func (d *FakeDevice) SetRead(charUUID string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads[charUUID] = data
}

func (d *FakeDevice) ReadCharacteristic(_, charUUID string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	data, ok := d.reads[charUUID]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found", charUUID)
	}
	return data, nil
}

func (d *FakeDevice) WriteCharacteristic(serviceUUID, charUUID string, data []byte) error {
	return d.write(serviceUUID, charUUID, data, true)
}

func (d *FakeDevice) WriteCharacteristicWithoutResponse(serviceUUID, charUUID string, data []byte) error {
	return d.write(serviceUUID, charUUID, data, false)
}

func (d *FakeDevice) write(serviceUUID, charUUID string, data []byte, withResponse bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WriteErr != nil {
		return d.WriteErr
	}
	if d.state != bt.Connected {
		return bt.ErrNotConnected
	}
	d.writes = append(d.writes, Write{
		ServiceUUID:  serviceUUID,
		CharUUID:     charUUID,
		Data:         append([]byte(nil), data...),
		WithResponse: withResponse,
	})
	return nil
}

func (d *FakeDevice) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

func (d *FakeDevice) Subscribed(charUUID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.notify[charUUID]
	return ok
}

// Notify delivers buf to the characteristic's callback.
func (d *FakeDevice) Notify(charUUID string, buf []byte) error {
	d.mu.Lock()
	cb, ok := d.notify[charUUID]
	d.mu.Unlock()
	if !ok {
		return errors.New("bttest: no subscriber for " + charUUID)
	}
	cb(buf)
	return nil
}
