// rower_intent answers one voice assistant request. It reads the request
// envelope from --request or standard input, writes the assistant response
// to standard output and, when the request asks for a workout, publishes the
// desired state to the rower's shadow.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/lowaak/smart-rower/smart-rower-app/internal/config"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/intent"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/logging"
	"github.com/lowaak/smart-rower/smart-rower-app/internal/shadow"
)

const connectTimeout = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("rower_intent", pflag.ExitOnError)
	fs.StringP("config", "c", "", "Path to config TOML (default ~/"+config.AppDirName+"/"+config.FileName+")")
	requestFile := fs.StringP("request", "r", "", "Request envelope JSON file (default standard input)")
	dryRun := fs.Bool("dry-run", false, "Print the desired state instead of publishing it")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fail(err)
	}

	logs, err := logging.New(logging.Options{Prefix: "rower_intent ", Stderr: true})
	if err != nil {
		fail(err)
	}
	defer logs.Close()
	logger := logs.Logger

	data, err := readRequest(*requestFile)
	if err != nil {
		fail(err)
	}
	req, err := intent.ParseEnvelope(data)
	if err != nil {
		fail(err)
	}

	result, err := intent.Handle(req)
	if err != nil {
		logger.Printf("Intent: %v", err)
	}

	if result.Desired != nil {
		doc, err := json.Marshal(shadow.DesiredOnly(*result.Desired))
		if err != nil {
			fail(err)
		}
		if *dryRun {
			logger.Printf("Intent: would publish %s", doc)
		} else if err := publish(cfg.Shadow, doc, logger); err != nil {
			logger.Printf("Intent: %v", err)
			result = intent.Result{Title: "Sorry", Speech: "Sorry. I could not reach your rower", EndSession: true}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"version": "1.0", "response": result.Response()}); err != nil {
		fail(err)
	}
}

func readRequest(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func publish(cfg config.ShadowConfig, doc []byte, logger *log.Logger) error {
	client, err := shadow.NewClient(shadow.Options{
		Broker:         cfg.Broker,
		ClientID:       cfg.ClientID + "-intent",
		CAFile:         cfg.CAFile,
		CertFile:       cfg.CertFile,
		KeyFile:        cfg.KeyFile,
		QoS:            byte(cfg.QoS),
		ConnectTimeout: connectTimeout,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	logger.Printf("Intent: publishing %s", doc)
	return client.Publish(shadow.UpdateTopic(cfg.Thing), doc)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "rower_intent: %v\n", err)
	os.Exit(1)
}
