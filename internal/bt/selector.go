package bt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrDeviceNotFound = errors.New("bt: no matching device found")

// Selector picks a device out of a scan list. Address wins when set;
// otherwise the advertised name must contain Name.
type Selector struct {
	Address string
	Name    string
}

func (s Selector) Matches(d Device) bool {
	if s.Address != "" {
		return strings.EqualFold(d.Address(), s.Address)
	}
	if s.Name == "" {
		return false
	}
	return strings.Contains(d.LocalName(), s.Name)
}

func (s Selector) String() string {
	if s.Address != "" {
		return "address " + s.Address
	}
	return fmt.Sprintf("name containing %q", s.Name)
}

// Select returns the best match in devices: the strongest signal, ties
// broken by address so the choice is stable.
func (s Selector) Select(devices []Device) (Device, bool) {
	var matches []Device
	for _, d := range devices {
		if s.Matches(d) {
			matches = append(matches, d)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	sort.Slice(matches, func(i, j int) bool {
		ri, _ := matches[i].RSSI()
		rj, _ := matches[j].RSSI()
		if ri != rj {
			return ri > rj
		}
		return matches[i].Address() < matches[j].Address()
	})
	return matches[0], true
}

// DeviceLister publishes scan lists.
type DeviceLister interface {
	ListenToDeviceList(ch chan<- []Device) func()
}

// FindDevice waits for a scan list containing a device matching sel. It
// returns ErrDeviceNotFound when ctx ends first. Scanning must already be
// running.
func FindDevice(ctx context.Context, lister DeviceLister, sel Selector) (Device, error) {
	ch := make(chan []Device, 1)
	unregister := lister.ListenToDeviceList(ch)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, sel)
		case devices := <-ch:
			if d, ok := sel.Select(devices); ok {
				return d, nil
			}
		}
	}
}
