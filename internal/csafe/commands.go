package csafe

import (
	"fmt"
	"strings"
	"time"
)

func GetStatusCmd() []byte  { return []byte{CmdGetStatus} }
func GetSerialCmd() []byte  { return []byte{CmdGetSerial} }
func GoIdleCmd() []byte     { return []byte{CmdGoIdle} }
func GoInUseCmd() []byte    { return []byte{CmdGoInUse} }
func GoReadyCmd() []byte    { return []byte{CmdGoReady} }
func GoFinishedCmd() []byte { return []byte{CmdGoFinished} }

// longCmd builds [id, len(data), data...].
func longCmd(id byte, data ...byte) []byte {
	cmd := make([]byte, 0, len(data)+2)
	cmd = append(cmd, id, byte(len(data)))
	return append(cmd, data...)
}

// SetTimeWorkoutCmd programs a timed workout. The machine takes hours,
// minutes and seconds; durations are truncated to whole seconds and capped
// just under 256 hours.
func SetTimeWorkoutCmd(d time.Duration) ([]byte, error) {
	if d <= 0 {
		return nil, fmt.Errorf("csafe: workout duration must be positive, got %s", d)
	}
	secs := int(d / time.Second)
	hours := secs / 3600
	if hours > 255 {
		return nil, fmt.Errorf("csafe: workout duration %s too long", d)
	}
	return longCmd(CmdSetTWork, byte(hours), byte(secs/60%60), byte(secs%60)), nil
}

// SetDistanceWorkoutCmd programs a distance workout in meters.
func SetDistanceWorkoutCmd(meters int) ([]byte, error) {
	if meters <= 0 || meters > 0xFFFF {
		return nil, fmt.Errorf("csafe: workout distance must be in 1..65535 meters, got %d", meters)
	}
	return longCmd(CmdSetHorizontal, byte(meters), byte(meters>>8), UnitMeters), nil
}

// SetProgramCmd selects a stored program; 0 is the programmed workout set
// with SetTimeWorkoutCmd or SetDistanceWorkoutCmd.
func SetProgramCmd(program byte) []byte {
	return longCmd(CmdSetProgram, program, 0x00)
}

// Commands concatenates several commands into one frame body.
func Commands(cmds ...[]byte) []byte {
	var out []byte
	for _, c := range cmds {
		out = append(out, c...)
	}
	return out
}

// ParseSerialNumber returns the ASCII serial number from a GetSerial record.
func ParseSerialNumber(rsp *Response) (string, bool) {
	rec, ok := rsp.Find(CmdGetSerial)
	if !ok {
		return "", false
	}
	return strings.TrimRight(string(rec.Data), "\x00 "), true
}
