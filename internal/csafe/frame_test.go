package csafe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	tests := []struct {
		name string
		cmd  []byte
		want []byte
	}{
		{
			name: "single byte checksum equals byte",
			cmd:  []byte{0x94},
			want: []byte{0xF1, 0x94, 0x94, 0xF2},
		},
		{
			name: "empty command",
			cmd:  nil,
			want: []byte{0xF1, 0x00, 0xF2},
		},
		{
			name: "start flag is stuffed",
			cmd:  []byte{0xF1},
			want: []byte{0xF1, 0xF3, 0x01, 0xF2, 0xF2},
		},
		{
			name: "all control bytes stuffed",
			cmd:  []byte{0xF0, 0xF2, 0xF3},
			want: []byte{0xF1, 0xF3, 0x00, 0xF3, 0x02, 0xF3, 0x03, 0xF2, 0xF2},
		},
		{
			name: "long command",
			cmd:  []byte{0x24, 0x02, 0x00, 0x00},
			want: []byte{0xF1, 0x24, 0x02, 0x00, 0x00, 0x26, 0xF2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Frame(tt.cmd))
		})
	}
}

func TestFrame_ValidatesStrictly(t *testing.T) {
	for _, cmd := range [][]byte{{0x94}, {0xF0, 0x01, 0xF3}, {0x20, 0x03, 0x00, 0x1E, 0x00}} {
		assert.NoError(t, Validate(Frame(cmd)), "% X", cmd)
	}
}

func TestUnframe_RoundTrip(t *testing.T) {
	// A synthesized response: status, then one (id, len, payload) record.
	frame := Frame([]byte{0x01, 0x94, 0x03, 'a', 'b', 'c'})

	rsp, ok := Unframe(frame)
	require.True(t, ok)
	assert.Equal(t, byte(0x01), rsp.Status)
	require.Len(t, rsp.Commands, 1)
	assert.Equal(t, CommandResponse{ID: 0x94, Data: []byte("abc")}, rsp.Commands[0])
}

func TestUnframe_Destuffs(t *testing.T) {
	frame := Frame([]byte{0x81, 0x10, 0x02, 0xF0, 0xF3, 0xA0, 0x01, 0x07})

	rsp, ok := Unframe(frame)
	require.True(t, ok)
	assert.Equal(t, []CommandResponse{
		{ID: 0x10, Data: []byte{0xF0, 0xF3}},
		{ID: 0xA0, Data: []byte{0x07}},
	}, rsp.Commands)
}

func TestUnframe_Truncated(t *testing.T) {
	// The second record claims five bytes but only one is present.
	frame := []byte{0xF1, 0x01, 0x94, 0x01, 0x41, 0x80, 0x05, 0x42, 0x00, 0xF2}

	rsp, ok := Unframe(frame)
	require.True(t, ok)
	assert.Equal(t, []CommandResponse{{ID: 0x94, Data: []byte{0x41}}}, rsp.Commands)
}

func TestUnframe_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "nil", frame: nil},
		{name: "start flag only", frame: []byte{0xF1}},
		{name: "wrong start flag", frame: []byte{0xF0, 0x01, 0x00, 0xF2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsp, ok := Unframe(tt.frame)
			assert.False(t, ok)
			assert.Nil(t, rsp)
		})
	}
}

func TestUnframe_StatusOnly(t *testing.T) {
	rsp, ok := Unframe(Frame([]byte{0x85}))
	require.True(t, ok)
	assert.Equal(t, StateInUse, rsp.State())
	assert.Empty(t, rsp.Commands)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		sentinel error
		protocol bool
	}{
		{name: "empty", frame: nil, sentinel: ErrNoStartFlag},
		{name: "no start flag", frame: []byte{0x94, 0x94, 0xF2}, sentinel: ErrNoStartFlag},
		{name: "too short", frame: []byte{0xF1, 0xF2}, sentinel: ErrTruncated},
		{name: "missing stop flag", frame: []byte{0xF1, 0x94, 0x94, 0x00}, protocol: true},
		{name: "bad checksum", frame: []byte{0xF1, 0x94, 0x95, 0xF2}, protocol: true},
		{name: "unstuffed control byte", frame: []byte{0xF1, 0xF0, 0xF0, 0xF2}, protocol: true},
		{name: "dangling stuff flag", frame: []byte{0xF1, 0xF3, 0xF3, 0xF2}, protocol: true},
		{name: "bad stuffed value", frame: []byte{0xF1, 0xF3, 0x07, 0xF4, 0xF2}, protocol: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.frame)
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			}
			assert.Equal(t, tt.protocol, IsProtocolError(err))
		})
	}
}

func TestStatusByte(t *testing.T) {
	tests := []struct {
		status byte
		state  State
		prev   PrevFrameStatus
		toggle bool
	}{
		{status: 0x01, state: StateReady, prev: PrevOK},
		{status: 0x85, state: StateInUse, prev: PrevOK, toggle: true},
		{status: 0x26, state: StatePause, prev: PrevBad},
		{status: 0xB9, state: StateOffline, prev: PrevNotReady, toggle: true},
		{status: 0x12, state: StateIdle, prev: PrevReject},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.state, StatusState(tt.status), "0x%02X", tt.status)
		assert.Equal(t, tt.prev, StatusPrevFrame(tt.status), "0x%02X", tt.status)
		assert.Equal(t, tt.toggle, FrameToggle(tt.status), "0x%02X", tt.status)
	}
	assert.Equal(t, "InUse", StateInUse.String())
	assert.Equal(t, "Unknown", State(0x0F).String())
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0x00), Checksum(nil))
	assert.Equal(t, byte(0x94), Checksum([]byte{0x94}))
	assert.Equal(t, byte(0x00), Checksum([]byte{0x5A, 0x5A}))
	assert.Equal(t, byte(0x07), Checksum([]byte{0x01, 0x02, 0x04}))
}
