//go:build !darwin && !windows

package bt

type gattWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

// writeWithResponse falls back to a command write. The BlueZ and HCI
// backends only expose WriteWithoutResponse; the PM5 control
// characteristic accepts both.
func writeWithResponse(c gattWriter, data []byte) (int, error) {
	return c.WriteWithoutResponse(data)
}
