package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by parachuted and parachutectl.
type Config struct {
	// DeviceName is the advertised BLE identity.
	DeviceName string `yaml:"device_name"`
	// Log configures logging.
	Log Log `yaml:"log"`
	// Hardware configures the actuator driver.
	Hardware Hardware `yaml:"hardware"`
	// Telemetry configures the sensor source and the refresh loop.
	Telemetry Telemetry `yaml:"telemetry"`
	// Peripheral configures the BLE peripheral.
	Peripheral Peripheral `yaml:"peripheral"`
	// GroundLink configures the gRPC ground link.
	GroundLink GroundLink `yaml:"ground_link"`
	// Metrics configures the Prometheus endpoint.
	Metrics Metrics `yaml:"metrics"`
	// MQTT configures the telemetry mirror.
	MQTT MQTT `yaml:"mqtt"`
	// Journal configures the flight journal.
	Journal Journal `yaml:"journal"`
}

// Log configures logging.
type Log struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level"`
	// File enables a size-rotated log file when set.
	File string `yaml:"file"`
	// MaxSizeMB is the rotation size of the log file.
	MaxSizeMB int `yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `yaml:"max_backups"`
	// MaxAgeDays is the retention of rotated files.
	MaxAgeDays int `yaml:"max_age_days"`
}

// Hardware configures the actuator driver.
type Hardware struct {
	// Driver selects the implementation: "gpio" or "sim".
	Driver string `yaml:"driver"`
	// DeployPin is the host pin name of the deployment MOSFET.
	DeployPin string `yaml:"deploy_pin"`
	// BuzzerPin is the host pin name of the alert buzzer.
	BuzzerPin string `yaml:"buzzer_pin"`
	// AlertToneHz is the buzzer frequency.
	AlertToneHz uint32 `yaml:"alert_tone_hz"`
	// AlertDuration is how long one alert pulse sounds.
	AlertDuration time.Duration `yaml:"alert_duration"`
	// WakeupIRQPath overrides the wake-reason attribute location.
	WakeupIRQPath string `yaml:"wakeup_irq_path"`
}

// Telemetry configures the sensor source and the refresh loop.
type Telemetry struct {
	// Source selects the implementation: "sysfs" or "sim".
	Source string `yaml:"source"`
	// PressureDevice is the IIO directory of the barometer.
	PressureDevice string `yaml:"pressure_device"`
	// AccelDevice is the IIO directory of the accelerometer.
	AccelDevice string `yaml:"accel_device"`
	// SeaLevelHPa is the reference pressure for altitude.
	SeaLevelHPa float64 `yaml:"sea_level_hpa"`
	// RefreshInterval is the publish period; it should match the sensor output data rate.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Peripheral configures the BLE peripheral.
type Peripheral struct {
	// Backend selects the BLE stack: "hci" or "disabled".
	Backend string `yaml:"backend"`
	// ReadvertiseInterval is the watchdog period that restarts advertising while idle.
	ReadvertiseInterval time.Duration `yaml:"readvertise_interval"`
}

// GroundLink configures the gRPC ground link.
type GroundLink struct {
	// ListenAddress enables the server when set (daemon side).
	ListenAddress string `yaml:"listen_address"`
	// ServerAddress is the dial target (CLI side).
	ServerAddress string `yaml:"server_address"`
	// TokenSecret enables HS256 bearer-token checks when set.
	TokenSecret string `yaml:"token_secret"`
	// TokenTTL is the lifetime of tokens minted by the CLI.
	TokenTTL time.Duration `yaml:"token_ttl"`
	// Timeout is the per-call timeout used by the CLI.
	Timeout time.Duration `yaml:"timeout"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// ListenAddress enables the /metrics endpoint when set.
	ListenAddress string `yaml:"listen_address"`
}

// MQTT configures the telemetry mirror.
type MQTT struct {
	// BrokerURL enables the mirror when set, e.g. tcp://ground:1883.
	BrokerURL string `yaml:"broker_url"`
	// TopicPrefix is the first topic level.
	TopicPrefix string `yaml:"topic_prefix"`
	// ClientID overrides the client id derived from the machine id.
	ClientID string `yaml:"client_id"`
	// QoS is the publish quality of service (0, 1 or 2).
	QoS byte `yaml:"qos"`
	// PublishInterval throttles telemetry publishes.
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// Journal configures the flight journal.
type Journal struct {
	// Path is the JSON-lines journal file.
	Path string `yaml:"path"`
	// Buffer is the number of pending records before new ones are dropped.
	Buffer int `yaml:"buffer"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "safety-parachute.yaml"

	// DefaultDeviceName is the advertised BLE identity.
	DefaultDeviceName = "Safety Parachute System"

	// DefaultJournalFilename is the default flight journal location.
	DefaultJournalFilename = "parachute-journal.jsonl"

	// DefaultTimeout is the default duration for ground-link calls.
	DefaultTimeout = 5 * time.Second

	// DefaultAlertToneHz is the buzzer frequency.
	DefaultAlertToneHz = 1000

	// DefaultAlertDuration is the length of one alert pulse.
	DefaultAlertDuration = 10 * time.Second

	// DefaultRefreshInterval matches the 50 Hz barometer output data rate.
	DefaultRefreshInterval = 20 * time.Millisecond

	// DefaultReadvertiseInterval is the advertising watchdog period.
	DefaultReadvertiseInterval = 30 * time.Second

	// DefaultTokenTTL is the lifetime of minted ground-link tokens.
	DefaultTokenTTL = time.Hour

	// DefaultFilePermissions is the default file permission for config and journal files.
	DefaultFilePermissions = 0o600

	// Driver and source names.
	DriverGPIO       = "gpio"
	DriverSim        = "sim"
	SourceSysfs      = "sysfs"
	SourceSim        = "sim"
	BackendHCI       = "hci"
	BackendDisabled  = "disabled"
	defaultDeployPin = "GPIO5"
	defaultBuzzerPin = "GPIO18"

	defaultPressureDevice = "/sys/bus/iio/devices/iio:device0"
	defaultAccelDevice    = "/sys/bus/iio/devices/iio:device1"
	defaultTopicPrefix    = "parachute"
	defaultPublishEvery   = time.Second
	defaultJournalBuffer  = 64
	defaultLogSizeMB      = 10
	defaultLogBackups     = 3
	minTokenSecretLength  = 16
	maxQoS                = 2
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownDriver is returned for an unsupported hardware driver.
	errUnknownDriver = errors.New("unknown hardware driver")
	// errUnknownSource is returned for an unsupported telemetry source.
	errUnknownSource = errors.New("unknown telemetry source")
	// errUnknownBackend is returned for an unsupported BLE backend.
	errUnknownBackend = errors.New("unknown peripheral backend")
	// errInvalidSeaLevel is returned for a non-positive reference pressure.
	errInvalidSeaLevel = errors.New("sea level pressure must be positive")
	// errWeakSecret is returned when the token secret is too short.
	errWeakSecret = errors.New("token secret must be at least 16 bytes")
	// errInvalidQoS is returned for an MQTT QoS above 2.
	errInvalidQoS = errors.New("mqtt qos must be 0, 1 or 2")
	// errInvalidLogLevel is returned for an unknown log level.
	errInvalidLogLevel = errors.New("unknown log level")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file may hold the token secret.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	// Defaults always validate.
	_ = Validate(cfg) //nolint:errcheck // See above.

	return cfg
}

// Validate fills defaults and checks the settings for consistency.
//
//nolint:cyclop,funlen // One flat pass over every section reads better than many helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDeviceName
	}

	if err := validateLog(&cfg.Log); err != nil {
		return err
	}

	hw := &cfg.Hardware
	if hw.Driver == "" {
		hw.Driver = DriverGPIO
	}

	if hw.Driver != DriverGPIO && hw.Driver != DriverSim {
		return fmt.Errorf("%w: %q", errUnknownDriver, hw.Driver)
	}

	if hw.DeployPin == "" {
		hw.DeployPin = defaultDeployPin
	}

	if hw.BuzzerPin == "" {
		hw.BuzzerPin = defaultBuzzerPin
	}

	if hw.AlertToneHz == 0 {
		hw.AlertToneHz = DefaultAlertToneHz
	}

	if hw.AlertDuration <= 0 {
		hw.AlertDuration = DefaultAlertDuration
	}

	tm := &cfg.Telemetry
	if tm.Source == "" {
		tm.Source = SourceSysfs
	}

	if tm.Source != SourceSysfs && tm.Source != SourceSim {
		return fmt.Errorf("%w: %q", errUnknownSource, tm.Source)
	}

	if tm.PressureDevice == "" {
		tm.PressureDevice = defaultPressureDevice
	}

	if tm.AccelDevice == "" {
		tm.AccelDevice = defaultAccelDevice
	}

	if tm.SeaLevelHPa == 0 {
		tm.SeaLevelHPa = 1013.25
	}

	if tm.SeaLevelHPa < 0 {
		return errInvalidSeaLevel
	}

	if tm.RefreshInterval <= 0 {
		tm.RefreshInterval = DefaultRefreshInterval
	}

	pr := &cfg.Peripheral
	if pr.Backend == "" {
		pr.Backend = BackendHCI
	}

	if pr.Backend != BackendHCI && pr.Backend != BackendDisabled {
		return fmt.Errorf("%w: %q", errUnknownBackend, pr.Backend)
	}

	if pr.ReadvertiseInterval <= 0 {
		pr.ReadvertiseInterval = DefaultReadvertiseInterval
	}

	if err := validateGroundLink(&cfg.GroundLink); err != nil {
		return err
	}

	if cfg.Metrics.ListenAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.Metrics.ListenAddress); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}

	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalFilename
	}

	if cfg.Journal.Buffer <= 0 {
		cfg.Journal.Buffer = defaultJournalBuffer
	}

	return nil
}

// validateLog checks the log level and fills rotation defaults.
func validateLog(l *Log) error {
	if l.Level == "" {
		l.Level = "info"
	}

	switch l.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("%w: %q", errInvalidLogLevel, l.Level)
	}

	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = defaultLogSizeMB
	}

	if l.MaxBackups <= 0 {
		l.MaxBackups = defaultLogBackups
	}

	return nil
}

// validateGroundLink checks addresses and the token secret.
func validateGroundLink(g *GroundLink) error {
	if g.ListenAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", g.ListenAddress); err != nil {
			return fmt.Errorf("invalid ground link listen address: %w", err)
		}
	}

	if g.ServerAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", g.ServerAddress); err != nil {
			return fmt.Errorf("invalid ground link server address: %w", err)
		}
	}

	if g.TokenSecret != "" && len(g.TokenSecret) < minTokenSecretLength {
		return errWeakSecret
	}

	if g.TokenTTL <= 0 {
		g.TokenTTL = DefaultTokenTTL
	}

	if g.Timeout <= 0 {
		g.Timeout = DefaultTimeout
	}

	return nil
}

// validateMQTT checks the broker URL and fills mirror defaults.
func validateMQTT(m *MQTT) error {
	if m.TopicPrefix == "" {
		m.TopicPrefix = defaultTopicPrefix
	}

	if m.PublishInterval <= 0 {
		m.PublishInterval = defaultPublishEvery
	}

	if m.QoS > maxQoS {
		return errInvalidQoS
	}

	if m.BrokerURL == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(m.BrokerURL); err != nil {
		return fmt.Errorf("invalid mqtt broker url: %w", err)
	}

	return nil
}
