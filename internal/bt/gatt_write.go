//go:build darwin || windows

package bt

type gattWriter interface {
	Write(p []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
}

func writeWithResponse(c gattWriter, data []byte) (int, error) {
	return c.Write(data)
}
