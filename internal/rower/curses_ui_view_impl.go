package rower

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

// Page names for tview.Pages
const (
	pageDashboard = "dashboard"
	pagePrograms  = "programs"
	pageHistory   = "history"
)

// CursesUIViewImpl implements UIViewImpl using tview (curses-based terminal UI)
type CursesUIViewImpl struct {
	logger      *log.Logger
	app         *tview.Application
	currentMode UIMode
	screenOn    atomic.Bool

	// Root container that holds all pages
	pages *tview.Pages

	// Shared components (visible in all modes)
	logView  *tview.TextView
	mainFlex *tview.Flex // Main layout: mode content on left, logs on right
	blank    *tview.Box

	// Dashboard mode components
	dashboardFlex *tview.Flex
	statusPanel   *tview.TextView
	metricsPanel  *tview.TextView
	workoutPanel  *tview.TextView
	metrics       Metrics
	statusText    StatusText
	linkState     LinkState
	workoutStatus WorkoutStatus

	// Programs mode components
	programsFlex   *tview.Flex
	programList    *tview.List
	programDetails *tview.TextView
	programs       []ProgramEntry

	// History mode components
	historyTable *tview.Table
}

func NewCursesUIView(logger *log.Logger, app *tview.Application) *CursesUIViewImpl {
	if logger == nil {
		panic("CursesUIView: logger cannot be nil")
	}
	ui := &CursesUIViewImpl{
		logger:      logger,
		app:         app,
		currentMode: UIModeDashboard,
		metrics:     Metrics{HeartRate: pm5.HeartRateNotAvailable},
	}
	ui.screenOn.Store(true)
	return ui
}

// Initialize sets up the tview widgets
func (ui *CursesUIViewImpl) Initialize(controller *UIController) {
	// No SetChangedFunc with app.Draw(): it hangs during shutdown when log
	// lines keep arriving after the app stopped. BaseUIView draws instead.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	ui.pages = tview.NewPages()

	ui.initDashboardMode()
	ui.initProgramsMode(controller)
	ui.initHistoryMode()

	ui.pages.AddPage(pageDashboard, ui.dashboardFlex, true, true)
	ui.pages.AddPage(pagePrograms, ui.programsFlex, true, false)
	ui.pages.AddPage(pageHistory, ui.historyTable, true, false)

	ui.mainFlex = tview.NewFlex().
		AddItem(ui.pages, 0, 3, true).
		AddItem(ui.logView, 0, 2, false)

	ui.blank = tview.NewBox().SetBackgroundColor(tcell.ColorBlack)
}

func (ui *CursesUIViewImpl) initDashboardMode() {
	help := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	help.SetText("[yellow]1[white] Dashboard  |  [yellow]2[white] Programs  |  [yellow]3[white] History  |  [yellow]S[white] Skip phase  |  [yellow]A[white] Abort  |  [yellow]Esc[white] Quit")

	ui.statusPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	ui.statusPanel.SetBorder(true).SetTitle(" Status ")

	ui.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.metricsPanel.SetBorder(true).SetTitle(" Rowing ")

	ui.workoutPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.workoutPanel.SetBorder(true).SetTitle(" Workout ")

	ui.renderStatus()
	ui.renderMetrics()
	ui.renderWorkout()

	panels := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(ui.metricsPanel, 0, 1, false).
		AddItem(ui.workoutPanel, 0, 1, false)

	ui.dashboardFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(help, 1, 0, false).
		AddItem(ui.statusPanel, 3, 0, false).
		AddItem(panels, 0, 1, true)
}

func (ui *CursesUIViewImpl) initProgramsMode(controller *UIController) {
	ui.programList = tview.NewList().
		ShowSecondaryText(false).
		SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
			ui.logger.Printf("UI: Program selected: index=%d, name=%s", index, mainText)
			controller.OnProgramSelected(index)
		}).
		SetChangedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
			ui.renderProgramDetails(index)
		})
	ui.programList.SetBorder(true).SetTitle(" Programs ")

	ui.programDetails = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.programDetails.SetBorder(true).SetTitle(" Details ")
	ui.renderProgramDetails(-1)

	ui.programsFlex = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(ui.programList, 0, 1, true).
		AddItem(ui.programDetails, 0, 1, false)
}

func (ui *CursesUIViewImpl) initHistoryMode() {
	ui.historyTable = tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)
	ui.historyTable.SetBorder(true).SetTitle(" History ")
}

// SetProgramList populates the Programs list, keeping the selection.
func (ui *CursesUIViewImpl) SetProgramList(programs []ProgramEntry) {
	current := ui.programList.GetCurrentItem()
	ui.programs = programs
	ui.programList.Clear()
	for _, p := range programs {
		ui.programList.AddItem(p.Label, "", 0, nil)
	}
	if current >= 0 && current < len(programs) {
		ui.programList.SetCurrentItem(current)
	}
	if len(programs) > 0 {
		ui.renderProgramDetails(ui.programList.GetCurrentItem())
	}
}

func (ui *CursesUIViewImpl) renderProgramDetails(index int) {
	if ui.programDetails == nil {
		return
	}
	if index < 0 || index >= len(ui.programs) {
		ui.programDetails.SetText("\n  Select a program.\n\n  [gray]Press Enter to request it.[white]\n")
		return
	}
	p := ui.programs[index]
	var b strings.Builder
	fmt.Fprintf(&b, "\n  [yellow]%s[white]\n\n", p.Label)
	fmt.Fprintf(&b, "  [gray]Intensity:[white] %s\n", p.Intensity)
	if p.Duration != nil {
		fmt.Fprintf(&b, "  [gray]Duration:[white]  %g min\n", *p.Duration)
	}
	if p.Distance != nil {
		fmt.Fprintf(&b, "  [gray]Distance:[white]  %g m\n", *p.Distance)
	}
	b.WriteString("\n  [green]Press Enter to request this workout[white]\n")
	ui.programDetails.SetText(b.String())
}

// SetHistory fills the History table, newest first.
func (ui *CursesUIViewImpl) SetHistory(records []HistoryRecord) {
	ui.historyTable.Clear()
	for col, title := range []string{"Started", "Workout", "Phases", "Time", "Distance", ""} {
		ui.historyTable.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	if len(records) == 0 {
		ui.historyTable.SetCell(1, 0, tview.NewTableCell("No workouts yet").SetTextColor(tcell.ColorGray))
		return
	}
	for i, r := range records {
		row := i + 1
		result := "done"
		if r.Aborted {
			result = "aborted"
		}
		cells := []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Intensity,
			fmt.Sprintf("%d/%d", r.PhasesCompleted, r.PhasesPlanned),
			strings.TrimSpace(workout.MMSS(r.ElapsedSeconds)),
			fmt.Sprintf("%.0f m", r.DistanceMeters),
			result,
		}
		for col, text := range cells {
			ui.historyTable.SetCell(row, col, tview.NewTableCell(text).SetExpansion(1))
		}
	}
}

// SetMode switches the UI to the specified mode
func (ui *CursesUIViewImpl) SetMode(mode UIMode) {
	if ui.currentMode == mode {
		return
	}
	ui.currentMode = mode

	switch mode {
	case UIModeDashboard:
		ui.pages.SwitchToPage(pageDashboard)
	case UIModePrograms:
		ui.pages.SwitchToPage(pagePrograms)
	case UIModeHistory:
		ui.pages.SwitchToPage(pageHistory)
	}
	ui.setFocusForCurrentMode()
}

// GetCurrentMode returns the currently active UI mode
func (ui *CursesUIViewImpl) GetCurrentMode() UIMode {
	return ui.currentMode
}

// SetScreenOn swaps the root for a black box while the screen is off.
func (ui *CursesUIViewImpl) SetScreenOn(on bool) {
	if ui.screenOn.Swap(on) == on {
		return
	}
	if on {
		ui.app.SetRoot(ui.mainFlex, true)
		ui.setFocusForCurrentMode()
	} else {
		ui.app.SetRoot(ui.blank, true)
	}
}

func (ui *CursesUIViewImpl) setFocusForCurrentMode() {
	switch ui.currentMode {
	case UIModePrograms:
		ui.app.SetFocus(ui.programList)
	case UIModeHistory:
		ui.app.SetFocus(ui.historyTable)
	default:
		ui.app.SetFocus(ui.dashboardFlex)
	}
}

// SetupKeyboardHandlers sets up keyboard event handlers
func (ui *CursesUIViewImpl) SetupKeyboardHandlers(controller *UIController) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// The first key on a blanked screen only wakes it.
		wasOff := !ui.screenOn.Load()
		controller.OnKeyPress()
		if wasOff {
			return nil
		}

		if event.Key() == tcell.KeyEscape {
			controller.OnEscapeKey()
			return nil
		}

		if event.Key() != tcell.KeyRune {
			return event
		}
		if mode, ok := GetUIModeByKey(event.Rune()); ok {
			controller.OnModeChange(mode)
			return nil
		}
		switch event.Rune() {
		case 'a', 'A':
			controller.AbortWorkout()
			return nil
		case 's', 'S':
			if ui.currentMode == UIModeDashboard {
				controller.SkipPhase()
				return nil
			}
		}
		return event
	})
}

// GetLogViewHeight returns the visible height of the log view
func (ui *CursesUIViewImpl) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

// ClearLogView clears the log view
func (ui *CursesUIViewImpl) ClearLogView() {
	ui.logView.Clear()
}

// WriteLogLine writes a line to the log view
func (ui *CursesUIViewImpl) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, tview.Escape(line))
	return err
}

// Draw refreshes/redraws the UI
func (ui *CursesUIViewImpl) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *CursesUIViewImpl) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	ui.app.SetRoot(ui.mainFlex, true)
	ui.setFocusForCurrentMode()
	return ui.app.Run()
}

// Stop stops the UI framework
func (ui *CursesUIViewImpl) Stop() {
	ui.app.Stop()
}

func (ui *CursesUIViewImpl) UpdateMetrics(metrics Metrics) {
	ui.metrics = metrics
	ui.renderMetrics()
}

func (ui *CursesUIViewImpl) UpdateStatusText(status StatusText) {
	ui.statusText = status
	ui.renderStatus()
}

func (ui *CursesUIViewImpl) UpdateLinkState(state LinkState) {
	ui.linkState = state
	ui.renderStatus()
}

func (ui *CursesUIViewImpl) UpdateWorkoutStatus(status WorkoutStatus) {
	ui.workoutStatus = status
	ui.renderWorkout()
}

func colorTag(c workout.Color) string {
	if c == workout.ColorDefault {
		return "[white]"
	}
	return "[" + string(c) + "]"
}

func (ui *CursesUIViewImpl) renderStatus() {
	link := "[gray]PM5 not connected[white]"
	if ui.linkState.Connected {
		link = fmt.Sprintf("[green]%s[white]", tview.Escape(ui.linkState.Name))
		if ui.linkState.Serial != "" {
			link += fmt.Sprintf(" [gray]#%s[white]", tview.Escape(ui.linkState.Serial))
		}
	}
	text := ui.statusText.Text
	if text == "" {
		text = StatusWaiting
	}
	ui.statusPanel.SetText(fmt.Sprintf("%s%s[white]  |  %s", colorTag(ui.statusText.Color), tview.Escape(text), link))
}

func (ui *CursesUIViewImpl) renderMetrics() {
	m := ui.metrics
	var b strings.Builder

	beat := " "
	if m.Heartbeat {
		beat = "[red]*[white]"
	}
	fmt.Fprintf(&b, "\n  %s %s\n\n", beat, stateLabel(m.State))

	split := "--:--"
	if m.SplitSeconds > 0 {
		split = strings.TrimSpace(workout.MMSS(m.SplitSeconds))
	}
	fmt.Fprintf(&b, "  [gray]Split /500m:[white] [yellow]%s[white]\n", split)
	fmt.Fprintf(&b, "  [gray]Speed:[white]       [yellow]%.2f[white] m/s\n", m.SpeedMps)
	fmt.Fprintf(&b, "  [gray]Stroke rate:[white] [yellow]%d[white] spm\n", m.StrokeRate)
	if m.HeartRate == pm5.HeartRateNotAvailable || m.HeartRate <= 0 {
		b.WriteString("  [gray]Heart rate:[white]  [gray]--[white]\n")
	} else {
		fmt.Fprintf(&b, "  [gray]Heart rate:[white]  [yellow]%d[white] bpm\n", m.HeartRate)
	}

	b.WriteString("\n")
	switch m.GoalKind {
	case workout.GoalDuration:
		fmt.Fprintf(&b, "  [gray]Remaining:[white]   [yellow]%s[white]\n", strings.TrimSpace(workout.MMSS(m.Remaining)))
	case workout.GoalDistance:
		fmt.Fprintf(&b, "  [gray]Remaining:[white]   [yellow]%.0f[white] m\n", m.Remaining)
	}
	fmt.Fprintf(&b, "  [gray]Phase:[white]       %s  %.0f m\n", strings.TrimSpace(workout.MMSS(m.PhaseElapsed)), m.PhaseMeters)
	fmt.Fprintf(&b, "  %s %d%%\n", progressBar(m.Progress, 20), m.Progress)

	ui.metricsPanel.SetText(b.String())
}

func stateLabel(s workout.State) string {
	switch s {
	case workout.StateRunning:
		return "[green]Rowing[white]"
	case workout.StatePaused:
		return "[yellow]Paused[white]"
	case workout.StateEnded:
		return "[gray]Ended[white]"
	default:
		return "[gray]Idle[white]"
	}
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[green]" + strings.Repeat("#", filled) + "[gray]" + strings.Repeat(".", width-filled) + "[white]"
}

func (ui *CursesUIViewImpl) renderWorkout() {
	st := ui.workoutStatus
	var b strings.Builder

	switch st.Stage {
	case StageIdle:
		b.WriteString("\n  [gray]No workout requested[white]\n\n")
		b.WriteString("  Ask the voice assistant for a workout\n  or pick one under Programs (press 2).\n")
		ui.workoutPanel.SetText(b.String())
		return
	case StagePlanned:
		fmt.Fprintf(&b, "\n  [yellow]%s[white] [gray](waiting for rower)[white]\n\n", tview.Escape(st.Intensity))
	case StageActive:
		fmt.Fprintf(&b, "\n  [yellow]%s[white]\n\n", tview.Escape(st.Intensity))
	case StageEnded:
		fmt.Fprintf(&b, "\n  [yellow]%s[white] [gray](finished)[white]\n\n", tview.Escape(st.Intensity))
	}

	if !st.StartedAt.IsZero() {
		fmt.Fprintf(&b, "  [gray]Started:[white]  %s\n", st.StartedAt.Local().Format(time.Kitchen))
	}
	fmt.Fprintf(&b, "  [gray]Total:[white]    %s  %.0f m\n\n",
		strings.TrimSpace(workout.MMSS(st.Totals.ElapsedSeconds)), st.Totals.DistanceMeters)

	for i, phase := range st.Plan {
		marker := "  "
		color := "[gray]"
		switch {
		case i+1 == st.PhaseIndex && st.Stage == StageActive:
			marker = "> "
			color = "[yellow]"
		case i+1 <= st.Totals.PhasesCompleted:
			color = "[green]"
		}
		fmt.Fprintf(&b, "  %s%s%d. %s[white]\n", marker, color, i+1, tview.Escape(phase.String()))
	}

	ui.workoutPanel.SetText(b.String())
}
