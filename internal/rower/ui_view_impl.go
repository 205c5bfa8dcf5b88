package rower

// UIViewImpl defines the interface for framework-specific UI implementations
type UIViewImpl interface {
	// Initialize is called after construction to set up framework-specific widgets
	Initialize(controller *UIController)

	// SetupKeyboardHandlers sets up keyboard event handlers
	SetupKeyboardHandlers(controller *UIController)

	// Run starts the UI framework and blocks until it exits
	Run() error

	// Stop stops the UI framework
	Stop()

	// Draw refreshes/redraws the UI
	Draw() error

	// --- Mode Management ---

	SetMode(mode UIMode)
	GetCurrentMode() UIMode

	// SetScreenOn blanks the whole screen when on is false
	SetScreenOn(on bool)

	// --- Log View (shared across modes) ---

	GetLogViewHeight() int
	ClearLogView()
	WriteLogLine(line string) error

	// --- Dashboard Mode ---

	UpdateMetrics(metrics Metrics)
	UpdateStatusText(status StatusText)
	UpdateLinkState(state LinkState)
	UpdateWorkoutStatus(status WorkoutStatus)

	// --- Programs and History Modes ---

	SetProgramList(programs []ProgramEntry)
	SetHistory(records []HistoryRecord)
}
