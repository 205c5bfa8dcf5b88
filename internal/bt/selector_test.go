package bt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt/bttest"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
)

type eventLister struct {
	event *events.ChannelEvent[[]bt.Device]
}

func (l eventLister) ListenToDeviceList(ch chan<- []bt.Device) func() {
	return l.event.Listen(ch)
}

func TestSelector_Matches(t *testing.T) {
	pm5 := bttest.NewFakeDevice("C4:11:22:33:44:55", "PM5 430123456", -60)
	watch := bttest.NewFakeDevice("AA:00:00:00:00:01", "Forerunner", -40)

	tests := []struct {
		name string
		sel  bt.Selector
		dev  bt.Device
		want bool
	}{
		{name: "name fragment", sel: bt.Selector{Name: "PM5"}, dev: pm5, want: true},
		{name: "name mismatch", sel: bt.Selector{Name: "PM5"}, dev: watch, want: false},
		{name: "address case insensitive", sel: bt.Selector{Address: "c4:11:22:33:44:55"}, dev: pm5, want: true},
		{name: "address wins over name", sel: bt.Selector{Address: "AA:00:00:00:00:01", Name: "PM5"}, dev: pm5, want: false},
		{name: "empty selector", sel: bt.Selector{}, dev: pm5, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Matches(tt.dev))
		})
	}
}

func TestSelector_SelectStrongestSignal(t *testing.T) {
	far := bttest.NewFakeDevice("C4:00:00:00:00:02", "PM5 2", -80)
	near := bttest.NewFakeDevice("C4:00:00:00:00:03", "PM5 3", -50)
	tieA := bttest.NewFakeDevice("C4:00:00:00:00:01", "PM5 1", -50)

	d, ok := bt.Selector{Name: "PM5"}.Select([]bt.Device{far, near, tieA})
	require.True(t, ok)
	assert.Equal(t, "C4:00:00:00:00:01", d.Address())

	_, ok = bt.Selector{Name: "Bike"}.Select([]bt.Device{far, near})
	assert.False(t, ok)
}

func TestFindDevice(t *testing.T) {
	lister := eventLister{event: events.NewChannelEvent[[]bt.Device](true)}
	pm5 := bttest.NewFakeDevice("C4:11:22:33:44:55", "PM5 430123456", -60)

	lister.event.Notify([]bt.Device{bttest.NewFakeDevice("AA:00:00:00:00:01", "Forerunner", -40)})

	done := make(chan bt.Device, 1)
	go func() {
		d, err := bt.FindDevice(context.Background(), lister, bt.Selector{Name: "PM5"})
		if err == nil {
			done <- d
		}
	}()

	require.Eventually(t, func() bool { return lister.event.ListenerCount() == 1 }, time.Second, time.Millisecond)

	// Scan lists are published repeatedly, so a list sent while the finder
	// is still busy with the previous one is simply superseded.
	deadline := time.After(time.Second)
	for found := false; !found; {
		lister.event.Notify([]bt.Device{pm5})
		select {
		case d := <-done:
			assert.Equal(t, pm5.Address(), d.Address())
			found = true
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("device not found")
		}
	}
	require.Eventually(t, func() bool { return lister.event.ListenerCount() == 0 }, time.Second, time.Millisecond)
}

func TestFindDevice_Timeout(t *testing.T) {
	lister := eventLister{event: events.NewChannelEvent[[]bt.Device](true)}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bt.FindDevice(ctx, lister, bt.Selector{Name: "PM5"})
	assert.ErrorIs(t, err, bt.ErrDeviceNotFound)
	assert.ErrorContains(t, err, `name containing "PM5"`)
}

func TestDeviceState_String(t *testing.T) {
	assert.Equal(t, "Connecting", bt.Connecting.String())
	assert.Equal(t, "Unknown", bt.DeviceState(42).String())
}
