package csafe

// Frame control bytes.
const (
	ExtendedStartFlag = 0xF0
	StartFlag         = 0xF1
	StopFlag          = 0xF2
	StuffFlag         = 0xF3

	// MinFrameSize is start flag, checksum and stop flag around an empty body.
	MinFrameSize = 3
)

// Short commands carry no data.
const (
	CmdGetStatus  = 0x80
	CmdReset      = 0x81
	CmdGoIdle     = 0x82
	CmdGoHaveID   = 0x83
	CmdGoInUse    = 0x85
	CmdGoFinished = 0x86
	CmdGoReady    = 0x87
	CmdBadID      = 0x88

	CmdGetVersion    = 0x91
	CmdGetID         = 0x92
	CmdGetUnits      = 0x93
	CmdGetSerial     = 0x94
	CmdGetOdometer   = 0x9B
	CmdGetTWork      = 0xA0
	CmdGetHorizontal = 0xA1
	CmdGetCalories   = 0xA3
	CmdGetProgram    = 0xA4
	CmdGetPace       = 0xA6
	CmdGetCadence    = 0xA7
	CmdGetUserInfo   = 0xAB
	CmdGetHRCur      = 0xB0
	CmdGetPower      = 0xB4
)

// Long commands are followed by a length byte and that many data bytes.
const (
	CmdSetTWork      = 0x20
	CmdSetHorizontal = 0x21
	CmdSetCalories   = 0x23
	CmdSetProgram    = 0x24
	CmdSetPower      = 0x34
)

// UnitMeters is the CSAFE unit specifier for distances in meters.
const UnitMeters = 0x24

// State is the machine state reported in the low nibble of a status byte.
type State byte

const (
	StateError    State = 0x00
	StateReady    State = 0x01
	StateIdle     State = 0x02
	StateHaveID   State = 0x03
	StateInUse    State = 0x05
	StatePause    State = 0x06
	StateFinished State = 0x07
	StateManual   State = 0x08
	StateOffline  State = 0x09
)

func (s State) String() string {
	switch s {
	case StateError:
		return "Error"
	case StateReady:
		return "Ready"
	case StateIdle:
		return "Idle"
	case StateHaveID:
		return "HaveID"
	case StateInUse:
		return "InUse"
	case StatePause:
		return "Pause"
	case StateFinished:
		return "Finished"
	case StateManual:
		return "Manual"
	case StateOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// PrevFrameStatus reports how the machine handled the previous frame
// (bits 4-5 of the status byte).
type PrevFrameStatus byte

const (
	PrevOK       PrevFrameStatus = 0
	PrevReject   PrevFrameStatus = 1
	PrevBad      PrevFrameStatus = 2
	PrevNotReady PrevFrameStatus = 3
)

func (p PrevFrameStatus) String() string {
	switch p {
	case PrevOK:
		return "ok"
	case PrevReject:
		return "rejected"
	case PrevBad:
		return "bad"
	default:
		return "not ready"
	}
}
