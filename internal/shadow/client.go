package shadow

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("shadow: not connected to broker")

const (
	operationTimeout  = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

type Options struct {
	Broker         string
	ClientID       string
	CAFile         string
	CertFile       string
	KeyFile        string
	QoS            byte
	ConnectTimeout time.Duration
}

// MessageHandler processes one message. It runs on the MQTT client's
// goroutine.
type MessageHandler func(topic string, payload []byte)

// Client is an MQTT connection with mutual TLS that restores its
// subscriptions after every reconnect.
type Client struct {
	client mqtt.Client
	qos    byte
	logger *log.Logger

	mu   sync.Mutex
	subs map[string]MessageHandler
}

var _ Publisher = (*Client)(nil)

func NewClient(opts Options, logger *log.Logger) (*Client, error) {
	if logger == nil {
		panic("ShadowClient: logger cannot be nil")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", opts.QoS)
	}
	tlsCfg, err := tlsConfig(opts)
	if err != nil {
		return nil, err
	}

	c := &Client{
		qos:    opts.QoS,
		logger: logger,
		subs:   make(map[string]MessageHandler),
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	o.SetAutoReconnect(true)
	o.SetMaxReconnectInterval(32 * time.Second)
	o.SetCleanSession(true)
	if opts.ConnectTimeout > 0 {
		o.SetConnectTimeout(opts.ConnectTimeout)
	}
	if tlsCfg != nil {
		o.SetTLSConfig(tlsCfg)
	}
	o.SetOnConnectHandler(c.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Printf("ShadowClient: connection lost: %v", err)
	})

	c.client = mqtt.NewClient(o)
	return c, nil
}

func tlsConfig(opts Options) (*tls.Config, error) {
	if opts.CAFile == "" && opts.CertFile == "" && opts.KeyFile == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}

	if opts.CertFile != "" || opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Connect blocks until the broker accepts the connection or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Println("ShadowClient: connecting")
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Println("ShadowClient: connected")
	c.mu.Lock()
	subs := make(map[string]MessageHandler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		if err := c.subscribe(client, topic, h); err != nil {
			c.logger.Printf("ShadowClient: %v", err)
		}
	}
}

// Subscribe registers h for topic, now if connected and again after every
// reconnect.
func (c *Client) Subscribe(topic string, h MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(c.client, topic, h)
}

func (c *Client) subscribe(client mqtt.Client, topic string, h MessageHandler) error {
	token := client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	c.logger.Printf("ShadowClient: subscribed to %s", topic)
	return nil
}

// SubscribeDeltas feeds the thing's delta topic into h.
func (c *Client) SubscribeDeltas(thing string, h *Handler) error {
	return c.Subscribe(DeltaTopic(thing), func(_ string, payload []byte) {
		if err := h.HandleDelta(payload); err != nil {
			c.logger.Printf("ShadowClient: %v", err)
		}
	})
}

func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.qos, false, payload)
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Println("ShadowClient: disconnected")
}
