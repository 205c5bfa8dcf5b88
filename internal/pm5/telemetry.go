package pm5

import (
	"errors"
	"fmt"
	"time"
)

var ErrShortPacket = errors.New("pm5: packet too short")

const (
	// PrimaryMinSize covers everything up to the rest time; the trailing
	// machine type byte is optional.
	PrimaryMinSize  = 16
	PrimarySize     = 17
	StatusMinSize   = 19
	centisPerSecond = 100
)

// PrimaryTelemetry is the Rowing Status 1 notification (0x0032).
type PrimaryTelemetry struct {
	ElapsedCentis  uint32 // 0.01 s
	SpeedMilli     uint16 // 0.001 m/s
	StrokeRate     uint8  // strokes/min
	HeartRate      uint8  // bpm, 255 when no sensor
	PaceCentis     uint16 // 0.01 s per 500 m
	AvgPaceCentis  uint16
	RestDistance   uint16 // m
	RestTimeCentis uint32
	ErgMachineType uint8
	HasMachineType bool
}

func (p PrimaryTelemetry) SpeedMps() float64 {
	return float64(p.SpeedMilli) / 1000
}

func (p PrimaryTelemetry) Elapsed() time.Duration {
	return centis(p.ElapsedCentis)
}

func (p PrimaryTelemetry) RestTime() time.Duration {
	return centis(p.RestTimeCentis)
}

// StatusTelemetry is the Rowing General Status notification (0x0031).
type StatusTelemetry struct {
	ElapsedCentis      uint32
	DistanceDecimeters uint32 // 0.1 m
	WorkoutType        uint8
	IntervalType       uint8
	WorkoutState       uint8
	RowingState        uint8
	StrokeState        uint8
	TotalWorkDistance  uint32 // m
	WorkoutDuration    uint32 // 0.01 s or m depending on DurationType
	DurationType       uint8
	DragFactor         uint8
}

func (s StatusTelemetry) Elapsed() time.Duration {
	return centis(s.ElapsedCentis)
}

func (s StatusTelemetry) DistanceMeters() float64 {
	return float64(s.DistanceDecimeters) / 10
}

// Rowing reports whether the flywheel is moving.
func (s StatusTelemetry) Rowing() bool {
	return s.RowingState == 1
}

func centis(c uint32) time.Duration {
	return time.Duration(c) * time.Second / centisPerSecond
}

// reader walks a little-endian buffer. Reads past the end yield zero and
// leave ok false.
type reader struct {
	buf    []byte
	offset int
	ok     bool
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf, ok: true}
}

func (r *reader) u8() uint8 {
	if r.offset+1 > len(r.buf) {
		r.ok = false
		r.offset++
		return 0
	}
	v := r.buf[r.offset]
	r.offset++
	return v
}

func (r *reader) u16() uint16 {
	if r.offset+2 > len(r.buf) {
		r.ok = false
		r.offset += 2
		return 0
	}
	v := uint16(r.buf[r.offset]) | uint16(r.buf[r.offset+1])<<8
	r.offset += 2
	return v
}

// u24 reads the PM5 split counter: a low 16-bit word followed by the high
// byte, combined as high*65536 + low.
func (r *reader) u24() uint32 {
	lo := r.u16()
	hi := r.u8()
	return uint32(hi)<<16 | uint32(lo)
}

// DecodePrimary decodes a Rowing Status 1 notification.
func DecodePrimary(buf []byte) (PrimaryTelemetry, error) {
	if len(buf) < PrimaryMinSize {
		return PrimaryTelemetry{}, fmt.Errorf("%w: row status 1 needs %d bytes, got %d", ErrShortPacket, PrimaryMinSize, len(buf))
	}

	r := newReader(buf)
	p := PrimaryTelemetry{
		ElapsedCentis:  r.u24(),
		SpeedMilli:     r.u16(),
		StrokeRate:     r.u8(),
		HeartRate:      r.u8(),
		PaceCentis:     r.u16(),
		AvgPaceCentis:  r.u16(),
		RestDistance:   r.u16(),
		RestTimeCentis: r.u24(),
	}
	p.ErgMachineType = r.u8()
	p.HasMachineType = r.ok
	return p, nil
}

// DecodeStatus decodes a Rowing General Status notification.
func DecodeStatus(buf []byte) (StatusTelemetry, error) {
	if len(buf) < StatusMinSize {
		return StatusTelemetry{}, fmt.Errorf("%w: row status needs %d bytes, got %d", ErrShortPacket, StatusMinSize, len(buf))
	}

	r := newReader(buf)
	return StatusTelemetry{
		ElapsedCentis:      r.u24(),
		DistanceDecimeters: r.u24(),
		WorkoutType:        r.u8(),
		IntervalType:       r.u8(),
		WorkoutState:       r.u8(),
		RowingState:        r.u8(),
		StrokeState:        r.u8(),
		TotalWorkDistance:  r.u24(),
		WorkoutDuration:    r.u24(),
		DurationType:       r.u8(),
		DragFactor:         r.u8(),
	}, nil
}
