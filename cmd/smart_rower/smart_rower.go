package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/bt"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/config"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/go_func_utils"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/livefeed"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/logging"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/rower"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/shadow"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/workout"
)

const (
	mockAddress = "00:11:22:33:44:50"
	mockSerial  = "430000001"

	shutdownTimeout = 5 * time.Second
)

func main() {
	fs := pflag.NewFlagSet("smart_rower", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smart_rower: %v\n", err)
		os.Exit(2)
	}

	logs, err := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	must("open log", err)
	defer logs.Close()
	logger := logs.Logger

	if cfg.File != "" {
		logger.Printf("Main: config loaded from %s", cfg.File)
	}
	if cfg.Debug {
		logger.Println("Main: debug timescale, one second per minute")
	}

	store := rower.NewStore(config.Dir(), logger)

	var central bt.Central
	if cfg.Mock.Enabled {
		simulated := rower.NewMockPM5(logger, rower.MockPM5Config{
			Address:   mockAddress,
			LocalName: "PM5 " + mockSerial + " Row",
			Serial:    mockSerial,
			Port:      cfg.Mock.Port,
		})
		central = rower.NewMockCentral(logger, simulated)
	} else {
		central = bt.NewManager(bluetooth.DefaultAdapter, logger, 0)
	}
	must("enable BLE stack", central.Enable())

	address := cfg.Rower.Address
	if address == "" && store.PreferredRower() != "" {
		logger.Printf("Main: last used rower was %s", store.PreferredRower())
	}
	link := rower.NewRowerLink(central, rower.RowerLinkConfig{
		Selector:       bt.Selector{Address: address, Name: cfg.Rower.NamePrefix},
		ScanTimeout:    cfg.Rower.ScanTimeout,
		ConnectTimeout: cfg.Rower.ConnectTimeout,
	}, logger)

	planner := workout.NewPlanner(workout.Scale{
		SecondsPerMinute:   cfg.Workout.SecondsPerMinute,
		MetersPerKilometer: cfg.Workout.MetersPerKilometer,
	})
	n, err := planner.LoadPrograms(cfg.Workout.ProgramsFile)
	if err != nil {
		logger.Printf("Main: %v", err)
	} else if n > 0 {
		logger.Printf("Main: %d programs loaded from %s", n, cfg.Workout.ProgramsFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := rower.NewUIModel(link, logger, logs.Lines())
	displays := workout.MultiDisplay{model}

	var (
		hub         *livefeed.Hub
		feedDisplay *livefeed.Display
	)
	if cfg.LiveFeed.Enabled {
		hub = livefeed.NewHub(logger)
		go_func_utils.SafeGo(logger, func() { hub.Run(ctx) })
		feedDisplay = livefeed.NewDisplay(hub)
		displays = append(displays, feedDisplay)
	}

	session := workout.NewSession(displays, planner, cfg.Workout.MaxPause)
	wm := rower.NewWorkoutManager(rower.WorkoutManagerArgs{
		Session:    session,
		Samples:    link,
		Programmer: link,
		Store:      store,
		Logger:     logger,
	})
	model.FollowWorkouts(wm)

	var (
		shadowClient  *shadow.Client
		shadowHandler *shadow.Handler
	)
	onIdle := func() {}
	if cfg.Shadow.Enabled {
		shadowClient, err = shadow.NewClient(shadow.Options{
			Broker:   cfg.Shadow.Broker,
			ClientID: cfg.Shadow.ClientID,
			CAFile:   cfg.Shadow.CAFile,
			CertFile: cfg.Shadow.CertFile,
			KeyFile:  cfg.Shadow.KeyFile,
			QoS:      byte(cfg.Shadow.QoS),
		}, logger)
		must("create shadow client", err)
		shadowHandler = shadow.NewHandler(cfg.Shadow.Thing, wm, shadowClient, logger)
		must("subscribe to shadow deltas", shadowClient.SubscribeDeltas(cfg.Shadow.Thing, shadowHandler))
		onIdle = func() {
			if err := shadowHandler.GoIdle(); err != nil {
				logger.Printf("Main: shadow: %v", err)
			}
		}
	}

	var feed *livefeed.Server
	if hub != nil {
		feed = livefeed.NewServer(cfg.LiveFeed.Bind, hub, feedDisplay, func() map[string]any {
			status := map[string]any{
				"rower":   link.State(),
				"workout": wm.Status(),
			}
			if shadowHandler != nil {
				status["shadow"] = shadowHandler.State()
			}
			return status
		}, logger)
		must("start live feed", feed.Start())
	}

	idleScreenOff := cfg.Workout.IdleScreenOff
	if cfg.Debug {
		idleScreenOff = time.Duration(float64(idleScreenOff) * cfg.Workout.SecondsPerMinute / 60)
	}
	orchestrator := rower.NewOrchestrator(rower.OrchestratorArgs{
		Link:          link,
		Workouts:      wm,
		Status:        displays,
		Screen:        model,
		Store:         store,
		IdleScreenOff: idleScreenOff,
		Logger:        logger,
	})
	orchestrator.ListenToIdle(onIdle)
	controller := rower.NewUIController(model, wm, planner, store, orchestrator, logger)

	app := tview.NewApplication()
	view := rower.NewBaseUIView(rower.NewBaseUIViewArg{
		UIViewImpl:   rower.NewCursesUIView(logger, app),
		UIModel:      model,
		UIController: controller,
		Logger:       logger,
	})

	var wg sync.WaitGroup
	go_func_utils.SafeGoWG(logger, &wg, func() {
		if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Main: orchestrator stopped: %v", err)
		}
	})

	if shadowClient != nil {
		go_func_utils.SafeGoWG(logger, &wg, func() {
			if err := shadowClient.Connect(ctx); err != nil {
				logger.Printf("Main: shadow: %v", err)
				return
			}
			onIdle()
		})
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go_func_utils.SafeGo(logger, func() {
		select {
		case sig := <-signals:
			logger.Printf("Main: received %s", sig)
			model.RequestCloseApplication()
		case <-ctx.Done():
		}
	})

	logger.Println("Main: starting UI")
	if err := view.Run(); err != nil {
		logger.Printf("Main: UI error: %v", err)
	}

	shutdown(logger, func() {
		signal.Stop(signals)
		cancel()
		wg.Wait()
		view.Shutdown()
		controller.Shutdown()
		if err := link.Disconnect(); err != nil {
			logger.Printf("Main: %v", err)
		}
		central.Shutdown()
		model.Shutdown()
		if shadowClient != nil {
			shadowClient.Disconnect()
		}
		if feed != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := feed.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Main: %v", err)
			}
		}
	})
}

// shutdown runs fn and gives up after shutdownTimeout so a stuck BLE stack
// cannot keep the process alive.
func shutdown(logger *log.Logger, fn func()) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		logger.Println("Main: shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Println("Main: shutdown timed out")
	}
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
