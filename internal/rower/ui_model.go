package rower

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/events"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/pm5"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

// UIState holds the current state of the UI that views need to render
type UIState struct {
	Mode UIMode
	// ScreenOn is false while the idle screen saver blanks the dashboard
	ScreenOn bool
}

// Metrics is the latest value of every dashboard reading.
type Metrics struct {
	State        workout.State
	SpeedMps     float64
	SplitSeconds float64
	StrokeRate   int
	HeartRate    int // pm5.HeartRateNotAvailable without a belt
	Progress     int
	GoalKind     workout.GoalKind
	Remaining    float64 // seconds or meters, see GoalKind
	PhaseElapsed float64
	PhaseMeters  float64
	// Heartbeat flips on every sample so the view can blink an indicator
	Heartbeat bool
}

// StatusText is the dashboard's one-line status.
type StatusText struct {
	Text  string
	Color workout.Color
}

// LinkStateSource publishes rower connection changes.
type LinkStateSource interface {
	ListenToState(ch chan<- LinkState) func()
}

// WorkoutStatusSource publishes workout status changes.
type WorkoutStatusSource interface {
	ListenToStatus(ch chan<- WorkoutStatus) func()
}

// UIModel is the terminal UI's state. It is also the session's display, so
// every session callback lands here and is fanned out to the view.
type UIModel struct {
	logEvent              *events.ChannelEvent[string]
	closeApplicationEvent *events.ChannelEvent[struct{}]
	uiStateEvent          *events.ChannelEvent[UIState]
	uiState               UIState
	metricsEvent          *events.ChannelEvent[Metrics]
	metrics               Metrics
	statusTextEvent       *events.ChannelEvent[StatusText]
	statusText            StatusText
	linkStateEvent        *events.ChannelEvent[LinkState]
	linkState             LinkState
	workoutStatusEvent    *events.ChannelEvent[WorkoutStatus]
	workoutStatus         WorkoutStatus
	skipRequested         atomic.Bool
	logLines              []string
	logMu                 sync.RWMutex
	mu                    sync.RWMutex
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	logger                *log.Logger
}

var _ workout.Display = (*UIModel)(nil)

const maxLogLines = 1000

// NewUIModel follows link right away. The workout manager is attached later
// with FollowWorkouts because its session reports to the model.
func NewUIModel(link LinkStateSource, logger *log.Logger, uiLogChan <-chan string) *UIModel {
	if logger == nil {
		panic("UIModel: logger cannot be nil")
	}
	if uiLogChan == nil {
		panic("UIModel: uiLogChan cannot be nil")
	}
	if link == nil {
		panic("UIModel: link cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	model := &UIModel{
		logEvent:              events.NewChannelEvent[string](false),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		uiStateEvent:          events.NewChannelEvent[UIState](true),
		uiState:               UIState{Mode: UIModeDashboard, ScreenOn: true},
		metricsEvent:          events.NewChannelEvent[Metrics](true),
		metrics:               Metrics{HeartRate: pm5.HeartRateNotAvailable},
		statusTextEvent:       events.NewChannelEvent[StatusText](true),
		linkStateEvent:        events.NewChannelEvent[LinkState](true),
		workoutStatusEvent:    events.NewChannelEvent[WorkoutStatus](true),
		logLines:              make([]string, 0, maxLogLines),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}

	go_func_utils.SafeGoWG(logger, &model.wg, func() { model.listenToLink(ctx, link) })
	go_func_utils.SafeGoWG(logger, &model.wg, func() { model.readFromLogChannel(ctx, uiLogChan) })

	return model
}

// FollowWorkouts mirrors the status of workouts into the model.
func (m *UIModel) FollowWorkouts(workouts WorkoutStatusSource) {
	if workouts == nil {
		panic("UIModel: workouts cannot be nil")
	}
	go_func_utils.SafeGoWG(m.logger, &m.wg, func() { m.listenToWorkouts(m.ctx, workouts) })
}

// Shutdown stops all goroutines and waits for them to finish
func (m *UIModel) Shutdown() {
	m.logger.Println("UIModel: Shutting down")
	m.cancel()
	m.wg.Wait()
	m.logger.Println("UIModel: Shutdown complete")
}

func (m *UIModel) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *UIModel) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *UIModel) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

func (m *UIModel) ListenToUIState(ch chan<- UIState) func() {
	return m.uiStateEvent.Listen(ch)
}

func (m *UIModel) GetUIState() UIState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uiState
}

// SetMode updates the current UI mode and notifies listeners
func (m *UIModel) SetMode(mode UIMode) {
	m.updateUIState(func(s *UIState) { s.Mode = mode })
}

// SetScreenOn blanks or restores the screen.
func (m *UIModel) SetScreenOn(on bool) {
	m.updateUIState(func(s *UIState) { s.ScreenOn = on })
}

func (m *UIModel) updateUIState(fn func(s *UIState)) {
	m.mu.Lock()
	before := m.uiState
	fn(&m.uiState)
	state := m.uiState
	m.mu.Unlock()

	if state != before {
		m.uiStateEvent.Notify(state)
	}
}

func (m *UIModel) ListenToMetrics(ch chan<- Metrics) func() {
	return m.metricsEvent.Listen(ch)
}

func (m *UIModel) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

func (m *UIModel) updateMetrics(fn func(mt *Metrics)) {
	m.mu.Lock()
	fn(&m.metrics)
	metrics := m.metrics
	m.mu.Unlock()

	m.metricsEvent.Notify(metrics)
}

func (m *UIModel) ListenToStatusText(ch chan<- StatusText) func() {
	return m.statusTextEvent.Listen(ch)
}

func (m *UIModel) GetStatusText() StatusText {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusText
}

// SetStatusText replaces the status line. The orchestrator and the session
// both write it.
func (m *UIModel) SetStatusText(text string, color workout.Color) {
	st := StatusText{Text: text, Color: color}
	m.mu.Lock()
	m.statusText = st
	m.mu.Unlock()

	m.statusTextEvent.Notify(st)
}

func (m *UIModel) ListenToLinkState(ch chan<- LinkState) func() {
	return m.linkStateEvent.Listen(ch)
}

func (m *UIModel) GetLinkState() LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.linkState
}

func (m *UIModel) ListenToWorkoutStatus(ch chan<- WorkoutStatus) func() {
	return m.workoutStatusEvent.Listen(ch)
}

func (m *UIModel) GetWorkoutStatus() WorkoutStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workoutStatus
}

// RequestSkipPhase asks the session to end the current phase on the next
// moving sample.
func (m *UIModel) RequestSkipPhase() {
	m.skipRequested.Store(true)
	m.logger.Println("UIModel: skip phase requested")
}

// --- workout.Display ---

func (m *UIModel) OnLifecycle(event workout.Event) {
	var state workout.State
	switch event {
	case workout.EventStarted, workout.EventResumed:
		state = workout.StateRunning
	case workout.EventPaused:
		state = workout.StatePaused
	case workout.EventStopped:
		state = workout.StateEnded
		m.skipRequested.Store(false)
	default:
		return
	}
	m.logger.Printf("UIModel: workout %s", event)
	m.updateMetrics(func(mt *Metrics) { mt.State = state })
}

func (m *UIModel) OnHeartbeatTick() {
	m.updateMetrics(func(mt *Metrics) { mt.Heartbeat = !mt.Heartbeat })
}

// OnSpeedSample reports a pending skip request. The session only acts on it
// while rowing, so the request stays pending until the phase changes.
func (m *UIModel) OnSpeedSample(speedMps float64) bool {
	m.updateMetrics(func(mt *Metrics) {
		mt.SpeedMps = speedMps
		mt.SplitSeconds = workout.SplitSeconds(speedMps)
	})
	return m.skipRequested.Load()
}

func (m *UIModel) OnStrokeRate(spm int) {
	m.updateMetrics(func(mt *Metrics) { mt.StrokeRate = spm })
}

func (m *UIModel) OnHeartRate(bpm int) {
	if bpm == pm5.HeartRateNotAvailable {
		return
	}
	m.updateMetrics(func(mt *Metrics) { mt.HeartRate = bpm })
}

func (m *UIModel) OnStatusText(text string, color workout.Color) {
	m.SetStatusText(text, color)
}

func (m *UIModel) OnPhaseConfigured(durationLeft, distanceLeft *float64) {
	m.skipRequested.Store(false)
	m.updateMetrics(func(mt *Metrics) {
		mt.State = workout.StateIdle
		mt.Progress = 0
		mt.PhaseElapsed = 0
		mt.PhaseMeters = 0
		switch {
		case durationLeft != nil:
			mt.GoalKind = workout.GoalDuration
			mt.Remaining = *durationLeft
		case distanceLeft != nil:
			mt.GoalKind = workout.GoalDistance
			mt.Remaining = *distanceLeft
		}
	})
}

func (m *UIModel) OnProgressPercent(percent int) {
	m.updateMetrics(func(mt *Metrics) { mt.Progress = percent })
}

func (m *UIModel) OnPhaseProgress(p workout.PhaseProgress) {
	m.updateMetrics(func(mt *Metrics) {
		mt.GoalKind = p.Kind
		mt.Remaining = p.Remaining
		mt.PhaseElapsed = p.ElapsedSeconds
		mt.PhaseMeters = p.DistanceMeters
	})
}

// readFromLogChannel reads log lines from the channel and populates logLines
func (m *UIModel) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}

			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *UIModel) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(m.logLines) {
		n = len(m.logLines)
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

func (m *UIModel) listenToLink(ctx context.Context, link LinkStateSource) {
	ch := make(chan LinkState, 4)
	unregister := link.ListenToState(ch)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-ch:
			m.mu.Lock()
			m.linkState = state
			m.mu.Unlock()
			m.linkStateEvent.Notify(state)
		}
	}
}

func (m *UIModel) listenToWorkouts(ctx context.Context, workouts WorkoutStatusSource) {
	ch := make(chan WorkoutStatus, 16)
	unregister := workouts.ListenToStatus(ch)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case status := <-ch:
			m.mu.Lock()
			m.workoutStatus = status
			m.mu.Unlock()
			m.workoutStatusEvent.Notify(status)
		}
	}
}
