package pm5

// writer appends little-endian fields.
type writer []byte

func (w *writer) u8(v uint8)   { *w = append(*w, v) }
func (w *writer) u16(v uint16) { *w = append(*w, byte(v), byte(v>>8)) }
func (w *writer) u24(v uint32) { *w = append(*w, byte(v), byte(v>>8), byte(v>>16)) }

// Encode builds the notification payload, the inverse of DecodePrimary. The
// simulated rower uses it.
func (p PrimaryTelemetry) Encode() []byte {
	w := make(writer, 0, PrimarySize)
	w.u24(p.ElapsedCentis)
	w.u16(p.SpeedMilli)
	w.u8(p.StrokeRate)
	w.u8(p.HeartRate)
	w.u16(p.PaceCentis)
	w.u16(p.AvgPaceCentis)
	w.u16(p.RestDistance)
	w.u24(p.RestTimeCentis)
	if p.HasMachineType {
		w.u8(p.ErgMachineType)
	}
	return w
}

func (s StatusTelemetry) Encode() []byte {
	w := make(writer, 0, StatusMinSize)
	w.u24(s.ElapsedCentis)
	w.u24(s.DistanceDecimeters)
	w.u8(s.WorkoutType)
	w.u8(s.IntervalType)
	w.u8(s.WorkoutState)
	w.u8(s.RowingState)
	w.u8(s.StrokeState)
	w.u24(s.TotalWorkDistance)
	w.u24(s.WorkoutDuration)
	w.u8(s.DurationType)
	w.u8(s.DragFactor)
	return w
}
