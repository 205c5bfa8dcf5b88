package csafe

import "fmt"

// CommandResponse is one (id, data) record of a response frame.
type CommandResponse struct {
	ID   byte
	Data []byte
}

// Response is a parsed response frame.
type Response struct {
	Status   byte
	Commands []CommandResponse
}

// Find returns the first record for command id.
func (r *Response) Find(id byte) (CommandResponse, bool) {
	if r == nil {
		return CommandResponse{}, false
	}
	for _, c := range r.Commands {
		if c.ID == id {
			return c, true
		}
	}
	return CommandResponse{}, false
}

// State returns the machine state carried by the status byte.
func (r *Response) State() State {
	return StatusState(r.Status)
}

func (r *Response) String() string {
	s := fmt.Sprintf("status=0x%02X(%s)", r.Status, StatusState(r.Status))
	for _, c := range r.Commands {
		s += fmt.Sprintf(" [0x%02X % X]", c.ID, c.Data)
	}
	return s
}

// StatusState extracts the machine state from a status byte.
func StatusState(status byte) State {
	return State(status & 0x0F)
}

// StatusPrevFrame extracts the previous-frame status from a status byte.
func StatusPrevFrame(status byte) PrevFrameStatus {
	return PrevFrameStatus((status >> 4) & 0x03)
}

// FrameToggle is the bit the machine flips on every response frame.
func FrameToggle(status byte) bool {
	return status&0x80 != 0
}

// Checksum XORs data together.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// Frame wraps cmd in start and stop flags, stuffs control bytes and appends
// the checksum of the stuffed body.
func Frame(cmd []byte) []byte {
	frame := make([]byte, 0, len(cmd)+MinFrameSize+4)
	frame = append(frame, StartFlag)
	for _, b := range cmd {
		if b >= ExtendedStartFlag && b <= StuffFlag {
			frame = append(frame, StuffFlag, b-ExtendedStartFlag)
		} else {
			frame = append(frame, b)
		}
	}
	frame = append(frame, Checksum(frame[1:]), StopFlag)
	return frame
}

// Unframe parses a response frame. It reports false when the frame is empty,
// does not begin with the start flag or has no status byte. A body that runs
// out of bytes part way through a record yields the records completed so far.
func Unframe(frame []byte) (*Response, bool) {
	if len(frame) < 2 || frame[0] != StartFlag {
		return nil, false
	}

	rsp := &Response{Status: frame[1]}
	end := len(frame) - 2 // checksum and stop flag
	i := 2
	for i < end {
		id := frame[i]
		i++
		n := int(frame[i])
		i++

		data := make([]byte, 0, n)
		for j := 0; j < n; j++ {
			if i >= len(frame)-1 {
				return rsp, true
			}
			b := frame[i]
			i++
			if b == StuffFlag {
				if i >= len(frame) {
					return rsp, true
				}
				b = frame[i] + ExtendedStartFlag
				i++
			}
			data = append(data, b)
		}
		rsp.Commands = append(rsp.Commands, CommandResponse{ID: id, Data: data})
	}
	return rsp, true
}

// Validate runs the strict structural checks Unframe skips: flags, minimum
// length, a legal stuffing sequence and the checksum.
func Validate(frame []byte) error {
	if len(frame) == 0 || frame[0] != StartFlag {
		return ErrNoStartFlag
	}
	if len(frame) < MinFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrTruncated, len(frame))
	}
	last := len(frame) - 1
	if frame[last] != StopFlag {
		return &ProtocolError{Offset: last, Reason: fmt.Sprintf("expected stop flag, got 0x%02X", frame[last])}
	}

	body := frame[1 : last-1]
	for i, b := range body {
		switch {
		case b == StartFlag || b == StopFlag || b == ExtendedStartFlag:
			return &ProtocolError{Offset: i + 1, Reason: fmt.Sprintf("unstuffed control byte 0x%02X", b)}
		case b == StuffFlag:
			if i+1 >= len(body) || body[i+1] > StuffFlag-ExtendedStartFlag {
				return &ProtocolError{Offset: i + 1, Reason: "invalid stuffing sequence"}
			}
		}
	}

	if got, want := frame[last-1], Checksum(body); got != want {
		return &ProtocolError{Offset: last - 1, Reason: fmt.Sprintf("checksum mismatch: got 0x%02X, expected 0x%02X", got, want)}
	}
	return nil
}

// destuff returns the body between the start flag and the checksum with
// stuffed bytes restored. frame must have passed Validate.
func destuff(frame []byte) []byte {
	body := frame[1 : len(frame)-2]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b == StuffFlag {
			i++
			b = body[i] + ExtendedStartFlag
		}
		out = append(out, b)
	}
	return out
}

// ParseCommands decodes a command frame the way the machine does. Short
// commands (0x80 and up) carry no data; long commands carry a length byte.
func ParseCommands(frame []byte) ([]CommandResponse, error) {
	if err := Validate(frame); err != nil {
		return nil, err
	}
	body := destuff(frame)

	var cmds []CommandResponse
	for i := 0; i < len(body); {
		id := body[i]
		i++
		if id >= CmdGetStatus {
			cmds = append(cmds, CommandResponse{ID: id})
			continue
		}
		if i >= len(body) {
			return cmds, &ProtocolError{Offset: i, Reason: fmt.Sprintf("missing length for command 0x%02X", id)}
		}
		n := int(body[i])
		i++
		if i+n > len(body) {
			return cmds, &ProtocolError{Offset: i, Reason: fmt.Sprintf("command 0x%02X wants %d bytes, %d left", id, n, len(body)-i)}
		}
		cmds = append(cmds, CommandResponse{ID: id, Data: append([]byte(nil), body[i:i+n]...)})
		i += n
	}
	return cmds, nil
}

// ResponseFrame builds the frame a machine sends back: the status byte
// followed by one (id, length, data) record per command.
func ResponseFrame(status byte, records ...CommandResponse) []byte {
	body := []byte{status}
	for _, r := range records {
		body = append(body, r.ID, byte(len(r.Data)))
		body = append(body, r.Data...)
	}
	return Frame(body)
}
