package bttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
)

var _ bt.Central = (*FakeCentral)(nil)

// FakeCentral advertises a fixed set of FakeDevices. StartScan publishes the
// device list once; tests can publish again with Announce.
type FakeCentral struct {
	mu       sync.Mutex
	devices  []*FakeDevice
	scanning bool
	scans    int

	// ConnectErr is returned by Connect when set.
	ConnectErr error

	deviceList *events.ChannelEvent[[]bt.Device]
	connected  *events.ChannelEvent[[]bt.Device]
}

func NewFakeCentral(devices ...*FakeDevice) *FakeCentral {
	return &FakeCentral{
		devices:    devices,
		deviceList: events.NewChannelEvent[[]bt.Device](true),
		connected:  events.NewChannelEvent[[]bt.Device](true),
	}
}

func (c *FakeCentral) Enable() error { return nil }

func (c *FakeCentral) StartScan([]string) {
	c.mu.Lock()
	c.scanning = true
	c.scans++
	c.mu.Unlock()
	c.Announce()
}

// Announce publishes the current scan list.
func (c *FakeCentral) Announce() {
	c.deviceList.Notify(c.ScanDevices())
}

func (c *FakeCentral) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanning = false
	return nil
}

func (c *FakeCentral) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// Scans counts StartScan calls.
func (c *FakeCentral) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}

func (c *FakeCentral) find(address string) (*FakeDevice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.devices {
		if d.Address() == address {
			return d, true
		}
	}
	return nil, false
}

func (c *FakeCentral) Connect(ctx context.Context, device bt.Device) error {
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	d, ok := c.find(device.Address())
	if !ok {
		return fmt.Errorf("unknown device %s", device.Address())
	}
	d.SetConnected(true)
	c.connected.Notify(c.ConnectedDevices())
	return d.WaitForConnection(ctx)
}

func (c *FakeCentral) Disconnect(device bt.Device) error {
	d, ok := c.find(device.Address())
	if !ok {
		return fmt.Errorf("unknown device %s", device.Address())
	}
	d.SetConnected(false)
	c.connected.Notify(c.ConnectedDevices())
	return nil
}

func (c *FakeCentral) ScanDevices() []bt.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bt.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

func (c *FakeCentral) ConnectedDevices() []bt.Device {
	out := make([]bt.Device, 0)
	for _, d := range c.ScanDevices() {
		if d.IsConnected() {
			out = append(out, d)
		}
	}
	return out
}

func (c *FakeCentral) ListenToDeviceList(ch chan<- []bt.Device) func() {
	return c.deviceList.Listen(ch)
}

func (c *FakeCentral) ListenToConnectedDevices(ch chan<- []bt.Device) func() {
	return c.connected.Listen(ch)
}

func (c *FakeCentral) Shutdown() {
	for _, d := range c.ConnectedDevices() {
		_ = c.Disconnect(d)
	}
	_ = c.StopScan()
}
