package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/LdDl/occupancy-go/logging"
	"github.com/LdDl/occupancy-go/mot"
	"github.com/LdDl/occupancy-go/occupancy"
	"github.com/LdDl/occupancy-go/thermal"
)

// Config represents complete configuration of occupancy binaries
type Config struct {
	Threshold  ThresholdConfig  `yaml:"threshold"`
	Background BackgroundConfig `yaml:"background"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Link       LinkConfig       `yaml:"link"`
	Storage    StorageConfig    `yaml:"storage"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Log        LogConfig        `yaml:"log"`
}

// ThresholdConfig contains detection threshold settings
type ThresholdConfig struct {
	KSigma float64 `yaml:"k_sigma"` // required, observed 3..6
}

// BackgroundConfig contains background model smoothing
type BackgroundConfig struct {
	InactiveAlpha  float64 `yaml:"inactive_alpha"`
	ActiveAlpha    float64 `yaml:"active_alpha"`
	ReferenceCells int     `yaml:"reference_cells"`
}

// TrackerConfig contains track correspondence settings
type TrackerConfig struct {
	AcceptanceRadius float64 `yaml:"acceptance_radius"` // grid cells
	Matching         string  `yaml:"matching"`          // hungarian, greedy
	Prediction       string  `yaml:"prediction"`        // ema, kalman
	KalmanDt         float64 `yaml:"kalman_dt"`         // seconds between frames
}

// ClassifierConfig contains event classification settings
type ClassifierConfig struct {
	MinReadings     int    `yaml:"min_readings"`
	MaxReadings     int    `yaml:"max_readings"`
	PositiveBearing string `yaml:"positive_bearing"` // leaving, entering
}

// LinkConfig contains radio coordinator settings
type LinkConfig struct {
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StorageConfig contains database settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains MQTT broker settings. Empty broker disables publishing
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns configuration with every optional field set. Threshold.KSigma is left zero on purpose: it must be provided
func Default() Config {
	return Config{
		Background: BackgroundConfig{
			InactiveAlpha:  0.05,
			ActiveAlpha:    0.01,
			ReferenceCells: 5,
		},
		Tracker: TrackerConfig{
			AcceptanceRadius: 5.0,
			Matching:         "hungarian",
			Prediction:       "ema",
			KalmanDt:         1.0,
		},
		Classifier: ClassifierConfig{
			MinReadings:     2,
			MaxReadings:     10,
			PositiveBearing: "leaving",
		},
		Link: LinkConfig{
			Port:        "/dev/ttyAMA0",
			Baud:        115200,
			ReadTimeout: 350 * time.Second,
			MaxRetries:  5,
		},
		Storage: StorageConfig{
			Path: "occupancy.db",
		},
		MQTT: MQTTConfig{
			ClientID: "occupancy",
			Topic:    "occupancy/events",
			QoS:      1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads YAML file on top of Default and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read config file")
	}
	return Parse(data)
}

// Parse decodes YAML document on top of Default and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "Can't parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}
	return &cfg, nil
}

// Validate checks the whole configuration
func (cfg *Config) Validate() error {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	if err := engineCfg.Validate(); err != nil {
		return err
	}
	if cfg.Tracker.KalmanDt <= 0 {
		return errors.Errorf("tracker.kalman_dt must be positive, got %f", cfg.Tracker.KalmanDt)
	}
	if cfg.Link.Baud <= 0 {
		return errors.Errorf("link.baud must be positive, got %d", cfg.Link.Baud)
	}
	if cfg.Link.MaxRetries <= 0 {
		return errors.Errorf("link.max_retries must be positive, got %d", cfg.Link.MaxRetries)
	}
	if cfg.Link.ReadTimeout < 0 || cfg.Link.PollInterval < 0 {
		return errors.New("link durations must not be negative")
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required when mqtt.broker is set")
	}
	if cfg.MQTT.QoS > 2 {
		return errors.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("unknown log.format '%s'", cfg.Log.Format)
	}
	return nil
}

// EngineConfig converts tracking part of configuration into occupancy.Config
func (cfg *Config) EngineConfig() (occupancy.Config, error) {
	matching, err := mot.ParseMatchingAlgorithm(cfg.Tracker.Matching)
	if err != nil {
		return occupancy.Config{}, errors.Wrap(err, "tracker.matching")
	}
	prediction, err := mot.ParsePredictionMode(cfg.Tracker.Prediction)
	if err != nil {
		return occupancy.Config{}, errors.Wrap(err, "tracker.prediction")
	}
	positive, err := occupancy.ParseDirection(cfg.Classifier.PositiveBearing)
	if err != nil {
		return occupancy.Config{}, errors.Wrap(err, "classifier.positive_bearing")
	}
	return occupancy.Config{
		KSigma: cfg.Threshold.KSigma,
		Background: thermal.BackgroundParams{
			InactiveAlpha:  cfg.Background.InactiveAlpha,
			ActiveAlpha:    cfg.Background.ActiveAlpha,
			ReferenceCells: cfg.Background.ReferenceCells,
		},
		AcceptanceRadius: cfg.Tracker.AcceptanceRadius,
		Matching:         matching,
		Prediction:       prediction,
		KalmanDt:         cfg.Tracker.KalmanDt,
		Classifier: occupancy.Classifier{
			MinReadings:     cfg.Classifier.MinReadings,
			MaxReadings:     cfg.Classifier.MaxReadings,
			PositiveBearing: positive,
		},
	}, nil
}
