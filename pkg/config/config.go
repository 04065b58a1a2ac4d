package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Scanners   map[string]ScannerConfig `yaml:"scanners"`
	Dispatcher DispatcherConfig         `yaml:"dispatcher"`
	Intercept  InterceptConfig          `yaml:"intercept"`
	MQTT       MQTTConfig               `yaml:"mqtt"`
	Logging    LoggingConfig            `yaml:"logging"`
}

type ScannerIdentification struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Serial    string `yaml:"serial,omitempty"`
}

// Configured reports whether a specific vendor/product pair was given.
// When false the device matcher falls back to all keyboard-class
// devices (discovery mode).
func (i *ScannerIdentification) Configured() bool {
	return i.VendorID != 0 && i.ProductID != 0
}

type ScannerConfig struct {
	ID             string                `yaml:"id"`
	Name           string                `yaml:"name,omitempty"`
	Identification ScannerIdentification `yaml:"identification"`

	// Mode selects how the device is attached: "exclusive" claims the
	// input device so events never reach other applications, "shared"
	// opens a monitoring channel and relies on the interception hook
	// for suppression.
	Mode string `yaml:"mode,omitempty"`

	ScanTimeoutMs        int `yaml:"scan_timeout_ms,omitempty"`
	SuppressClearDelayMs int `yaml:"suppress_clear_delay_ms,omitempty"`
}

func (s *ScannerConfig) ScanTimeout() time.Duration {
	return time.Duration(s.ScanTimeoutMs) * time.Millisecond
}

func (s *ScannerConfig) SuppressClearDelay() time.Duration {
	return time.Duration(s.SuppressClearDelayMs) * time.Millisecond
}

type DispatcherConfig struct {
	// URLTemplate must contain one {barcode} substitution point. The
	// barcode is percent-encoded before substitution.
	URLTemplate string `yaml:"url_template"`

	// Browser is the command used to open the URL. Empty selects the
	// platform opener (xdg-open).
	Browser   string `yaml:"browser,omitempty"`
	QueueSize int    `yaml:"queue_size,omitempty"`
}

type InterceptConfig struct {
	// Enabled controls whether shared-mode scanners attempt to install
	// the system-wide interception hook at startup. When the hook
	// cannot be installed the engine degrades to observe-only.
	Enabled bool `yaml:"enabled"`
}

type MQTTConfig struct {
	Enabled            bool   `yaml:"enabled"`
	BrokerURL          string `yaml:"broker_url"`
	Username           string `yaml:"username,omitempty"`
	Password           string `yaml:"password,omitempty"`
	ClientID           string `yaml:"client_id"`
	TopicPrefix        string `yaml:"topic_prefix"`
	QoS                byte   `yaml:"qos"`
	KeepAlive          int    `yaml:"keep_alive"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (m *MQTTConfig) IsSecure() bool {
	return strings.HasPrefix(m.BrokerURL, "mqtts://") || strings.HasPrefix(m.BrokerURL, "wss://")
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	for id, scanner := range config.Scanners {
		scanner.ID = id
		config.Scanners[id] = scanner
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) setDefaults() {
	c.setScannerDefaults()
	c.setDispatcherDefaults()
	c.setMQTTDefaults()
	c.setLoggingDefaults()
}

func (c *Config) setScannerDefaults() {
	for id, scanner := range c.Scanners {
		if scanner.Mode == "" {
			scanner.Mode = "shared"
		}
		if scanner.ScanTimeoutMs == 0 {
			scanner.ScanTimeoutMs = 100
		}
		if scanner.SuppressClearDelayMs == 0 {
			scanner.SuppressClearDelayMs = 50
		}
		c.Scanners[id] = scanner
	}
}

func (c *Config) setDispatcherDefaults() {
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = 16
	}
}

func (c *Config) setMQTTDefaults() {
	if c.MQTT.BrokerURL == "" {
		c.MQTT.BrokerURL = "mqtt://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "scanlaunch"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "scanlaunch"
	}
	if c.MQTT.QoS == 0 {
		c.MQTT.QoS = 1
	}
	if c.MQTT.KeepAlive == 0 {
		c.MQTT.KeepAlive = 60
	}
}

func (c *Config) setLoggingDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if err := c.validateScanners(); err != nil {
		return err
	}
	if err := c.validateDispatcher(); err != nil {
		return err
	}
	if c.MQTT.Enabled {
		if err := c.validateMQTT(); err != nil {
			return err
		}
	}
	return c.validateLogging()
}

func (c *Config) validateScanners() error {
	if len(c.Scanners) == 0 {
		return fmt.Errorf("at least one scanner must be configured")
	}

	validModes := []string{"shared", "exclusive"}

	for id, scanner := range c.Scanners {
		mode := strings.ToLower(scanner.Mode)
		if !slices.Contains(validModes, mode) {
			return fmt.Errorf("scanners[%s].mode '%s' must be one of: %s",
				id, scanner.Mode, strings.Join(validModes, ", "))
		}
		if scanner.ScanTimeoutMs < 0 {
			return fmt.Errorf("scanners[%s].scan_timeout_ms must not be negative", id)
		}
		if scanner.SuppressClearDelayMs < 0 {
			return fmt.Errorf("scanners[%s].suppress_clear_delay_ms must not be negative", id)
		}
		// Vendor/product may both be absent: the matcher then targets
		// all keyboard-class devices. Half-configured pairs are the
		// only rejected shape.
		if (scanner.Identification.VendorID == 0) != (scanner.Identification.ProductID == 0) {
			return fmt.Errorf("scanners[%s].identification needs both vendor_id and product_id, or neither", id)
		}
	}
	return nil
}

func (c *Config) validateDispatcher() error {
	if c.Dispatcher.URLTemplate == "" {
		return fmt.Errorf("dispatcher.url_template is required")
	}
	if !strings.Contains(c.Dispatcher.URLTemplate, "{barcode}") {
		return fmt.Errorf("dispatcher.url_template must contain a {barcode} substitution point")
	}
	if c.Dispatcher.QueueSize < 1 {
		return fmt.Errorf("dispatcher.queue_size must be at least 1 (got %d)", c.Dispatcher.QueueSize)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}

	if _, err := url.Parse(c.MQTT.BrokerURL); err != nil {
		return fmt.Errorf("invalid mqtt.broker_url '%s': %w", c.MQTT.BrokerURL, err)
	}

	validSchemes := []string{"mqtt://", "mqtts://", "ws://", "wss://"}
	for _, scheme := range validSchemes {
		if strings.HasPrefix(c.MQTT.BrokerURL, scheme) {
			return c.validateMQTTParams()
		}
	}

	return fmt.Errorf("mqtt.broker_url '%s' must use one of: %s", c.MQTT.BrokerURL, strings.Join(validSchemes, ", "))
}

func (c *Config) validateMQTTParams() error {
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2 (got %d)", c.MQTT.QoS)
	}
	if c.MQTT.KeepAlive < 10 {
		return fmt.Errorf("mqtt.keep_alive must be at least 10 seconds (got %d)", c.MQTT.KeepAlive)
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLogLevels := []string{"debug", "info", "warn", "warning", "error", "fatal", "panic"}
	logLevel := strings.ToLower(c.Logging.Level)
	if !slices.Contains(validLogLevels, logLevel) {
		return fmt.Errorf("logging.level '%s' must be one of: %s",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"text", "json"}
	logFormat := strings.ToLower(c.Logging.Format)
	if !slices.Contains(validLogFormats, logFormat) {
		return fmt.Errorf("logging.format '%s' must be one of: %s",
			c.Logging.Format, strings.Join(validLogFormats, ", "))
	}

	return nil
}
