package rower

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"
)

// BaseUIView contains the base logic shared by all UI implementations
type BaseUIView struct {
	uiViewImpl   UIViewImpl
	uiModel      *UIModel
	uiController *UIController
	context      context.Context
	cancelFunc   context.CancelFunc
	waitGroup    sync.WaitGroup
	logger       *log.Logger
}

// NewBaseUIViewArg holds the arguments for creating a new BaseUIView
type NewBaseUIViewArg struct {
	UIViewImpl   UIViewImpl
	UIModel      *UIModel
	UIController *UIController
	Logger       *log.Logger
}

// NewBaseUIView creates a new BaseUIView with the given implementation
func NewBaseUIView(args NewBaseUIViewArg) *BaseUIView {
	if args.Logger == nil {
		panic("BaseUIView: logger cannot be nil")
	}
	if args.UIViewImpl == nil {
		panic("BaseUIView: UIViewImpl cannot be nil")
	}
	if args.UIModel == nil {
		panic("BaseUIView: UIModel cannot be nil")
	}
	if args.UIController == nil {
		panic("BaseUIView: UIController cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())

	base := &BaseUIView{
		uiViewImpl:   args.UIViewImpl,
		uiModel:      args.UIModel,
		uiController: args.UIController,
		context:      ctx,
		cancelFunc:   cancel,
		logger:       args.Logger,
	}

	args.UIViewImpl.Initialize(args.UIController)
	args.UIViewImpl.SetupKeyboardHandlers(args.UIController)

	state := args.UIModel.GetUIState()
	args.UIViewImpl.SetMode(state.Mode)
	args.UIViewImpl.SetScreenOn(state.ScreenOn)
	args.UIViewImpl.SetProgramList(args.UIController.Programs())
	args.UIViewImpl.SetHistory(args.UIController.History())

	go_func_utils.SafeGoWG(base.logger, &base.waitGroup, base.monitorLogResize)
	base.updateLogDisplay()

	base.setupEventListeners()

	return base
}

// listenAndDraw runs apply for every value published on an event and then
// redraws.
func listenAndDraw[T any](base *BaseUIView, listen func(chan<- T) func(), apply func(T)) {
	ch := make(chan T, 1)
	unregister := listen(ch)
	go_func_utils.SafeGoWG(base.logger, &base.waitGroup, func() {
		defer unregister()
		for {
			select {
			case <-base.context.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				apply(v)
				base.draw()
			}
		}
	})
}

func (base *BaseUIView) setupEventListeners() {
	view := base.uiViewImpl

	listenAndDraw(base, base.uiModel.ListenToLog, func(string) {
		base.updateLogDisplay()
	})
	listenAndDraw(base, base.uiModel.ListenToUIState, func(state UIState) {
		view.SetMode(state.Mode)
		view.SetScreenOn(state.ScreenOn)
		switch state.Mode {
		case UIModePrograms:
			// Programs can be registered after start-up
			view.SetProgramList(base.uiController.Programs())
		case UIModeHistory:
			view.SetHistory(base.uiController.History())
		}
	})
	listenAndDraw(base, base.uiModel.ListenToMetrics, view.UpdateMetrics)
	listenAndDraw(base, base.uiModel.ListenToStatusText, view.UpdateStatusText)
	listenAndDraw(base, base.uiModel.ListenToLinkState, view.UpdateLinkState)
	listenAndDraw(base, base.uiModel.ListenToWorkoutStatus, func(status WorkoutStatus) {
		view.UpdateWorkoutStatus(status)
		if status.Stage == StageEnded {
			view.SetHistory(base.uiController.History())
		}
	})

	// The close request stops the UI once and needs no redraw.
	closeChan := make(chan struct{}, 1)
	closeUnregister := base.uiModel.ListenToCloseApplication(closeChan)
	go_func_utils.SafeGoWG(base.logger, &base.waitGroup, func() {
		defer closeUnregister()
		select {
		case <-base.context.Done():
		case <-closeChan:
			view.Stop()
		}
	})
}

func (base *BaseUIView) draw() {
	if err := base.uiViewImpl.Draw(); err != nil {
		base.logger.Printf("BaseUIView: Error drawing: %v", err)
	}
}

func (base *BaseUIView) updateLogDisplay() {
	height := base.uiViewImpl.GetLogViewHeight()
	if height <= 0 {
		return
	}

	logLines := base.uiModel.GetLogTail(height)

	base.uiViewImpl.ClearLogView()
	for _, line := range logLines {
		if err := base.uiViewImpl.WriteLogLine(line); err != nil {
			base.logger.Printf("BaseUIView: Error writing to log view: %v", err)
		}
	}
}

func (base *BaseUIView) monitorLogResize() {
	var lastHeight int
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-base.context.Done():
			return
		case <-ticker.C:
			height := base.uiViewImpl.GetLogViewHeight()
			if height != lastHeight && height > 0 {
				lastHeight = height
				base.updateLogDisplay()
				base.draw()
			}
		}
	}
}

// Shutdown stops all goroutines and waits for them to finish
func (base *BaseUIView) Shutdown() {
	base.logger.Println("BaseUIView: Shutting down")
	base.cancelFunc()
	base.waitGroup.Wait()
	base.logger.Println("BaseUIView: Shutdown complete")
}

// Run starts the UI and blocks until it exits
func (base *BaseUIView) Run() error {
	return base.uiViewImpl.Run()
}
