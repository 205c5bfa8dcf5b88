package csafe

import (
	"errors"
	"fmt"
)

var (
	ErrNoStartFlag = errors.New("csafe: missing start flag")
	ErrTruncated   = errors.New("csafe: truncated frame")
)

// ProtocolError describes a structurally complete frame that failed a
// strict check.
type ProtocolError struct {
	// Offset is the byte position the check failed at
	Offset int
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("csafe: %s at offset %d", e.Reason, e.Offset)
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
