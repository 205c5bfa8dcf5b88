package rower

// UIMode represents the current UI mode/screen
type UIMode int

const (
	UIModeDashboard UIMode = iota // Live rowing metrics
	UIModePrograms                // Program list, start a workout locally
	UIModeHistory                 // Finished workouts
)

// UIModeInfo contains display information for a UI mode
type UIModeInfo struct {
	Mode        UIMode
	DisplayName string
	KeyBinding  rune // The number key to activate this mode (1-9)
}

// AllUIModes defines all available UI modes in order
var AllUIModes = []UIModeInfo{
	{Mode: UIModeDashboard, DisplayName: "Dashboard", KeyBinding: '1'},
	{Mode: UIModePrograms, DisplayName: "Programs", KeyBinding: '2'},
	{Mode: UIModeHistory, DisplayName: "History", KeyBinding: '3'},
}

// GetUIModeByKey returns the mode for a given key binding
func GetUIModeByKey(key rune) (UIMode, bool) {
	for _, info := range AllUIModes {
		if info.KeyBinding == key {
			return info.Mode, true
		}
	}
	return 0, false
}

// GetUIModeInfo returns the info for a given mode
func GetUIModeInfo(mode UIMode) (UIModeInfo, bool) {
	for _, info := range AllUIModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return UIModeInfo{}, false
}

// Main-loop status lines shown on the dashboard.
const (
	StatusWaiting       = "Waiting for workout request..."
	StatusConnecting    = "Connecting to PM5..."
	StatusNoRower       = "No PM5 rower found"
	StatusConnected     = "Connected"
	StatusStartRowing   = "Start rowing!"
	StatusDisconnecting = "Disconnecting..."
	StatusWorkoutDone   = "Workout done."
)

// Default minutes and meters for workouts started from the Programs screen.
const (
	DefaultLocalMinutes = 30.0
	DefaultLocalMeters  = 5000.0
)
