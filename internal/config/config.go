package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Patvscode/ARA6D/internal/feedback"
)

// Feedback source selection values for FEEDBACK_SOURCE.
const (
	SourceSerial = "serial"
	SourceI2C    = "i2c"
	SourceMock   = "mock"
)

// ChannelSpec is one entry of the encoder topology: the joint name plus the
// TCA9548A port the sensor sits behind. The channel ID is the entry's
// position in the configured list, which also fixes the field order of the
// wire frames.
type ChannelSpec struct {
	Name     string
	MuxIndex int
}

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDFeedback string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicFeedback  string
	TopicCalibrate string

	// Feedback source: "serial" (ESP32 link), "i2c" (sensors wired to the
	// host's own bus) or "mock" (no hardware)
	FeedbackSource string

	// Encoder serial link
	EncoderSerialPort string
	EncoderBaudRate   int

	// Encoder topology, in channel order
	EncoderChannels []ChannelSpec

	// Filtering and liveness. The *Per maps hold per-joint overrides keyed
	// by joint name (FILTER_ALPHA_J1=..., OFFLINE_TIMEOUT_MS_J1=...).
	FilterAlpha       float64
	FilterAlphaPer    map[string]float64
	OfflineTimeoutMS  int
	OfflineTimeoutPer map[string]int

	// Calibration
	RawScale        float64 // raw counts to degrees
	CalibrationFile string

	// Direct I2C source
	I2CBus              string // empty selects the first available bus
	MuxI2CAddr          uint16
	I2CSampleIntervalMS int

	// Timing
	ConsoleLogInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Motion controller (Moonraker / G-code)
	MoonrakerHost   string
	MoonrakerPort   int
	MoonrakerAPIKey string
	GCodeFeedRate   float64
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults pre-fills the values a bench setup usually wants, so a minimal
// config file only has to name the broker and the encoder topology.
func defaults() *Config {
	return &Config{
		MQTTClientIDFeedback: "ara6d-feedback-producer",
		MQTTClientIDConsole:  "ara6d-console",
		MQTTClientIDWeb:      "ara6d-web",
		MQTTClientIDDisplay:  "ara6d-display",

		TopicFeedback:  "arm/feedback/snapshot",
		TopicCalibrate: "arm/feedback/calibrate",

		FeedbackSource:    SourceSerial,
		EncoderSerialPort: "/dev/ttyUSB0",
		EncoderBaudRate:   115200,

		FilterAlpha:       0.25,
		FilterAlphaPer:    make(map[string]float64),
		OfflineTimeoutMS:  500,
		OfflineTimeoutPer: make(map[string]int),

		RawScale:        feedback.DefaultScale,
		CalibrationFile: "calibration.json",

		MuxI2CAddr:          0x70,
		I2CSampleIntervalMS: 20,

		ConsoleLogInterval: 500,
		WebServerPort:      8080,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 250,

		MoonrakerHost: "localhost",
		MoonrakerPort: 7125,
		GCodeFeedRate: 400,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FEEDBACK":
		c.MQTTClientIDFeedback = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_FEEDBACK":
		c.TopicFeedback = value
	case "TOPIC_CALIBRATE":
		c.TopicCalibrate = value

	// Feedback source
	case "FEEDBACK_SOURCE":
		switch value {
		case SourceSerial, SourceI2C, SourceMock:
			c.FeedbackSource = value
		default:
			return fmt.Errorf("FEEDBACK_SOURCE must be %q, %q or %q, got %q",
				SourceSerial, SourceI2C, SourceMock, value)
		}

	// Encoder serial link
	case "ENCODER_SERIAL_PORT":
		c.EncoderSerialPort = value
	case "ENCODER_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ENCODER_BAUD_RATE %q: %w", value, err)
		}
		c.EncoderBaudRate = rate

	// Topology
	case "ENCODER_CHANNELS":
		specs, err := parseChannels(value)
		if err != nil {
			return fmt.Errorf("invalid ENCODER_CHANNELS %q: %w", value, err)
		}
		c.EncoderChannels = specs

	// Filtering and liveness
	case "FILTER_ALPHA":
		alpha, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_ALPHA %q: %w", value, err)
		}
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("FILTER_ALPHA must be in (0, 1], got %g", alpha)
		}
		c.FilterAlpha = alpha
	case "OFFLINE_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid OFFLINE_TIMEOUT_MS %q: %w", value, err)
		}
		if ms <= 0 {
			return fmt.Errorf("OFFLINE_TIMEOUT_MS must be > 0, got %d", ms)
		}
		c.OfflineTimeoutMS = ms

	// Calibration
	case "RAW_SCALE":
		scale, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RAW_SCALE %q: %w", value, err)
		}
		if scale <= 0 {
			return fmt.Errorf("RAW_SCALE must be > 0, got %g", scale)
		}
		c.RawScale = scale
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Direct I2C source
	case "I2C_BUS":
		c.I2CBus = value
	case "MUX_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MUX_I2C_ADDR %q: %w", value, err)
		}
		c.MuxI2CAddr = uint16(addr)
	case "I2C_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid I2C_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.I2CSampleIntervalMS = interval

	// Timing
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Motion controller
	case "MOONRAKER_HOST":
		c.MoonrakerHost = value
	case "MOONRAKER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOONRAKER_PORT %q: %w", value, err)
		}
		c.MoonrakerPort = port
	case "MOONRAKER_API_KEY":
		c.MoonrakerAPIKey = value
	case "GCODE_FEED_RATE":
		feed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid GCODE_FEED_RATE %q: %w", value, err)
		}
		if feed <= 0 {
			return fmt.Errorf("GCODE_FEED_RATE must be > 0, got %g", feed)
		}
		c.GCodeFeedRate = feed

	default:
		// Per-joint overrides, e.g. FILTER_ALPHA_J3=0.5
		if joint, ok := strings.CutPrefix(key, "FILTER_ALPHA_"); ok {
			alpha, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, value, err)
			}
			if alpha <= 0 || alpha > 1 {
				return fmt.Errorf("%s must be in (0, 1], got %g", key, alpha)
			}
			c.FilterAlphaPer[joint] = alpha
			return nil
		}
		if joint, ok := strings.CutPrefix(key, "OFFLINE_TIMEOUT_MS_"); ok {
			ms, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, value, err)
			}
			if ms <= 0 {
				return fmt.Errorf("%s must be > 0, got %d", key, ms)
			}
			c.OfflineTimeoutPer[joint] = ms
			return nil
		}
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// parseChannels parses "J1:0,J2:1,..." into the ordered topology list.
func parseChannels(value string) ([]ChannelSpec, error) {
	var specs []ChannelSpec
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, port, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q is not NAME:MUX_PORT", entry)
		}
		mux, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil {
			return nil, fmt.Errorf("entry %q: mux port: %w", entry, err)
		}
		if mux < 0 || mux > 7 {
			return nil, fmt.Errorf("entry %q: mux port must be 0-7, got %d", entry, mux)
		}
		specs = append(specs, ChannelSpec{Name: strings.TrimSpace(name), MuxIndex: mux})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no channels listed")
	}
	return specs, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if len(c.EncoderChannels) == 0 {
		return fmt.Errorf("ENCODER_CHANNELS is required")
	}
	if c.FeedbackSource == SourceSerial && c.EncoderSerialPort == "" {
		return fmt.Errorf("ENCODER_SERIAL_PORT is required for FEEDBACK_SOURCE=serial")
	}
	for joint := range c.FilterAlphaPer {
		if !c.hasJoint(joint) {
			return fmt.Errorf("FILTER_ALPHA_%s refers to a joint not in ENCODER_CHANNELS", joint)
		}
	}
	for joint := range c.OfflineTimeoutPer {
		if !c.hasJoint(joint) {
			return fmt.Errorf("OFFLINE_TIMEOUT_MS_%s refers to a joint not in ENCODER_CHANNELS", joint)
		}
	}
	return nil
}

func (c *Config) hasJoint(name string) bool {
	for _, spec := range c.EncoderChannels {
		if spec.Name == name {
			return true
		}
	}
	return false
}

// Topology converts the configured channel list into the feedback package's
// types, applying the per-joint alpha and timeout overrides.
func (c *Config) Topology() ([]feedback.Channel, map[feedback.ChannelID]feedback.Params) {
	channels := make([]feedback.Channel, len(c.EncoderChannels))
	params := make(map[feedback.ChannelID]feedback.Params, len(c.EncoderChannels))

	for i, spec := range c.EncoderChannels {
		id := feedback.ChannelID(i)
		channels[i] = feedback.Channel{ID: id, MuxIndex: spec.MuxIndex, Name: spec.Name}

		alpha := c.FilterAlpha
		if v, ok := c.FilterAlphaPer[spec.Name]; ok {
			alpha = v
		}
		timeoutMS := c.OfflineTimeoutMS
		if v, ok := c.OfflineTimeoutPer[spec.Name]; ok {
			timeoutMS = v
		}
		params[id] = feedback.Params{
			Alpha:   alpha,
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		}
	}
	return channels, params
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
