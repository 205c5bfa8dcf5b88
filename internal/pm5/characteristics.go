package pm5

import "fmt"

// PM5 GATT services. Every PM5 UUID differs only in the 16-bit field after
// the "ce06" prefix.
const (
	ServiceUUIDDeviceInfo = "ce060010-43e5-11e4-916c-0800200c9a66"
	ServiceUUIDControl    = "ce060020-43e5-11e4-916c-0800200c9a66"
	ServiceUUIDRowing     = "ce060030-43e5-11e4-916c-0800200c9a66"
)

const (
	CharUUIDSerialNumber = "ce060012-43e5-11e4-916c-0800200c9a66"
	CharUUIDSendCSAFE    = "ce060021-43e5-11e4-916c-0800200c9a66"
	CharUUIDGetCSAFE     = "ce060022-43e5-11e4-916c-0800200c9a66"
	CharUUIDRowStatus    = "ce060031-43e5-11e4-916c-0800200c9a66"
	CharUUIDRowStatus1   = "ce060032-43e5-11e4-916c-0800200c9a66"
)

// UUID builds the full UUID for a 16-bit PM5 identifier such as 0x0032.
func UUID(short uint16) string {
	return fmt.Sprintf("ce06%04x-43e5-11e4-916c-0800200c9a66", short)
}

// CharacteristicMode defines how we interact with a characteristic
type CharacteristicMode int

const (
	ModeNotify CharacteristicMode = iota // Subscribe to notifications
	ModeRead                             // One-time read
	ModeWrite                            // Write commands
)

type CharacteristicID string

const (
	CharSerialNumber CharacteristicID = "serial_number"
	CharSendCSAFE    CharacteristicID = "send_csafe"
	CharGetCSAFE     CharacteristicID = "get_csafe"
	CharRowStatus    CharacteristicID = "row_status"
	CharRowStatus1   CharacteristicID = "row_status_1"
)

// Characteristic ties a PM5 characteristic to its service and access mode.
type Characteristic struct {
	ID          CharacteristicID
	DisplayName string
	ServiceUUID string
	UUID        string
	Mode        CharacteristicMode
}

var (
	SerialNumber = Characteristic{
		ID:          CharSerialNumber,
		DisplayName: "Serial Number",
		ServiceUUID: ServiceUUIDDeviceInfo,
		UUID:        CharUUIDSerialNumber,
		Mode:        ModeRead,
	}
	SendCSAFE = Characteristic{
		ID:          CharSendCSAFE,
		DisplayName: "CSAFE Command",
		ServiceUUID: ServiceUUIDControl,
		UUID:        CharUUIDSendCSAFE,
		Mode:        ModeWrite,
	}
	GetCSAFE = Characteristic{
		ID:          CharGetCSAFE,
		DisplayName: "CSAFE Response",
		ServiceUUID: ServiceUUIDControl,
		UUID:        CharUUIDGetCSAFE,
		Mode:        ModeNotify,
	}
	RowStatus = Characteristic{
		ID:          CharRowStatus,
		DisplayName: "Rowing Status",
		ServiceUUID: ServiceUUIDRowing,
		UUID:        CharUUIDRowStatus,
		Mode:        ModeNotify,
	}
	RowStatus1 = Characteristic{
		ID:          CharRowStatus1,
		DisplayName: "Rowing Status 1",
		ServiceUUID: ServiceUUIDRowing,
		UUID:        CharUUIDRowStatus1,
		Mode:        ModeNotify,
	}
)

// AllCharacteristics lists every characteristic the link uses.
var AllCharacteristics = []Characteristic{
	SerialNumber,
	SendCSAFE,
	GetCSAFE,
	RowStatus,
	RowStatus1,
}

// NotifyCharacteristics returns the characteristics that push notifications.
func NotifyCharacteristics() []Characteristic {
	var result []Characteristic
	for _, c := range AllCharacteristics {
		if c.Mode == ModeNotify {
			result = append(result, c)
		}
	}
	return result
}

// ServiceUUIDs returns the distinct services, in first-use order.
func ServiceUUIDs() []string {
	seen := make(map[string]bool)
	var result []string
	for _, c := range AllCharacteristics {
		if !seen[c.ServiceUUID] {
			seen[c.ServiceUUID] = true
			result = append(result, c.ServiceUUID)
		}
	}
	return result
}
