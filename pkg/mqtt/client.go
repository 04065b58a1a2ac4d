package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
)

// Client publishes the engine's event feed (completed scans, device
// availability, permission state) to an MQTT broker for an external
// log viewer or automation to consume. Entirely optional; the capture
// engine runs the same with or without it.
type Client struct {
	client    mqtt.Client
	config    *config.MQTTConfig
	logger    *logrus.Logger
	connected bool
	mutex     sync.RWMutex
	willTopic string
}

// NewClient creates an MQTT client. willTopic receives "offline" as a
// retained will message when the connection drops.
func NewClient(cfg *config.MQTTConfig, logger *logrus.Logger) *Client {
	c := &Client{
		config:    cfg,
		logger:    logger,
		willTopic: cfg.TopicPrefix + "/bridge/availability",
	}

	c.client = mqtt.NewClient(c.buildClientOptions())
	return c
}

func (c *Client) buildClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.config.BrokerURL).
		SetClientID(c.config.ClientID).
		SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(60 * time.Second).
		SetConnectRetryInterval(2 * time.Second).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetWriteTimeout(5 * time.Second).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleDisconnect)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		if c.config.Password != "" {
			opts.SetPassword(c.config.Password)
		}
	}

	if c.config.IsSecure() {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: c.config.InsecureSkipVerify, // #nosec G402 - configurable for dev environments
		})
	}

	opts.SetWill(c.willTopic, "offline", c.config.QoS, true)

	return opts
}

// Start connects to the broker (implements the Service interface).
func (c *Client) Start() error {
	c.logger.Infof("Connecting to MQTT broker: %s", c.config.BrokerURL)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Stop publishes offline status and disconnects.
func (c *Client) Stop() error {
	if c.IsConnected() {
		_ = c.Publish(c.willTopic, "offline", true)
	}

	c.client.Disconnect(250)
	c.setConnected(false)
	c.logger.Info("Disconnected from MQTT broker")
	return nil
}

// PublishBarcode publishes a completed scan on the scanner's topic.
func (c *Client) PublishBarcode(scannerID, barcode string) error {
	return c.Publish(c.scannerTopic(scannerID, "barcode"), barcode, false)
}

// PublishAvailability publishes a scanner's connection state, retained
// so late subscribers see the current state.
func (c *Client) PublishAvailability(scannerID string, connected bool) error {
	payload := "offline"
	if connected {
		payload = "online"
	}
	return c.Publish(c.scannerTopic(scannerID, "availability"), payload, true)
}

// PublishInterceptState publishes whether keystroke suppression is
// actually in effect, so observe-only degradation is visible.
func (c *Client) PublishInterceptState(active bool) error {
	payload := "observe-only"
	if active {
		payload = "intercepting"
	}
	return c.Publish(c.config.TopicPrefix+"/intercept/state", payload, true)
}

func (c *Client) scannerTopic(scannerID, suffix string) string {
	return fmt.Sprintf("%s/scanner/%s/%s", c.config.TopicPrefix, scannerID, suffix)
}

// Publish publishes a message to the given topic.
func (c *Client) Publish(topic, payload string, retain bool) error {
	if !c.IsConnected() {
		c.logger.Debugf("MQTT not connected, cannot publish to %s", topic)
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, c.config.QoS, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Errorf("Failed to publish to %s: %v", topic, err)
		return err
	}

	return nil
}

// IsConnected reports whether the client is connected to the broker.
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connected && c.client.IsConnected()
}

func (c *Client) setConnected(connected bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connected = connected
}

func (c *Client) handleConnect(client mqtt.Client) {
	c.logger.Info("MQTT client connected")
	c.setConnected(true)

	if err := c.Publish(c.willTopic, "online", true); err != nil {
		c.logger.Errorf("Failed to publish online status: %v", err)
	}
}

func (c *Client) handleDisconnect(client mqtt.Client, err error) {
	c.logger.Errorf("MQTT connection lost: %v", err)
	c.logger.Info("MQTT client will attempt automatic reconnection...")
	c.setConnected(false)
}
