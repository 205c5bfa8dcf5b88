// Package csafe implements the CSAFE framing used to program and query a
// Concept2 PM5 over its BLE control characteristics.
//
// # Frame layout
//
//	[0xF1][stuffed command bytes...][XOR checksum][0xF2]
//
// The four control values 0xF0..0xF3 never appear inside a frame body: each
// one is replaced by the escape marker 0xF3 followed by (value - 0xF0). The
// checksum is the XOR of every byte emitted after the start flag.
//
// A response frame carries a status byte followed by per-command records:
//
//	[0xF1][STATUS][ID][LEN][DATA...]...[ID][LEN][DATA...][CHECKSUM][0xF2]
//
// # Usage
//
//	frame := csafe.Frame(csafe.GetSerialCmd())
//	// write frame to the sendCSAFE characteristic, then on notification:
//	rsp, ok := csafe.Unframe(payload)
//	if ok {
//	    serial, _ := csafe.ParseSerialNumber(rsp)
//	}
//
// Unframe never fails on a truncated body: it returns the records decoded
// before the bytes ran out. Use Validate for a strict check when the caller
// wants to log why a notification looked wrong.
package csafe
