// Package config loads and validates the daemon's JSON configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the effective daemon configuration. It is read once at start
// and never hot-reloaded.
type Config struct {
	// Observer location for horizontal-frame transforms.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`

	// Serial link parameters. Timeout and delays are in seconds.
	SerialPort    string  `json:"serial_port"`
	SerialBaud    int     `json:"serial_baud"`
	SerialTimeout float64 `json:"serial_timeout"`
	SerialRetries int     `json:"serial_retries"`

	StepsPerRotation float64 `json:"steps_per_rotation"`
	HomeAzimuth      float64 `json:"home_azimuth"`
	ParkAzimuth      float64 `json:"park_azimuth"`

	TrackingMaxSeparation float64 `json:"tracking_max_separation"`
	IdleLoopDelay         float64 `json:"idle_loop_delay"`
	MovingLoopDelay       float64 `json:"moving_loop_delay"`
	AzimuthMoveTimeout    float64 `json:"azimuth_move_timeout"`
	ShutterMoveTimeout    float64 `json:"shutter_move_timeout"`

	DomeRadiusCM       float64 `json:"dome_radius_cm"`
	TelescopeOffsetXCM float64 `json:"telescope_offset_x_cm"`

	// Caller addresses permitted to issue control commands and telescope
	// notifications respectively.
	ControlIPs   []string `json:"control_ips"`
	TelescopeIPs []string `json:"telescope_ips"`
}

const (
	DefaultBaud            = 9600
	DefaultSerialTimeout   = 3
	DefaultSerialRetries   = 3
	DefaultIdleLoopDelay   = 10
	DefaultMovingLoopDelay = 0.5
	DefaultMoveTimeout     = 180
)

var errSerialPortRequired = errors.New("serial_port must be provided")

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks ranges and applies defaults for optional fields.
func Validate(cfg *Config) error {
	if cfg.SerialPort == "" {
		return errSerialPortRequired
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", cfg.Latitude)
	}
	if cfg.Longitude < -180 || cfg.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", cfg.Longitude)
	}
	if cfg.StepsPerRotation <= 0 {
		return fmt.Errorf("steps_per_rotation %v must be positive", cfg.StepsPerRotation)
	}
	if cfg.DomeRadiusCM <= 0 {
		return fmt.Errorf("dome_radius_cm %v must be positive", cfg.DomeRadiusCM)
	}
	if cfg.TrackingMaxSeparation < 0 {
		return fmt.Errorf("tracking_max_separation %v must not be negative", cfg.TrackingMaxSeparation)
	}
	if cfg.HomeAzimuth < 0 || cfg.HomeAzimuth >= 360 {
		return fmt.Errorf("home_azimuth %v out of range [0, 360)", cfg.HomeAzimuth)
	}
	if cfg.ParkAzimuth < 0 || cfg.ParkAzimuth >= 360 {
		return fmt.Errorf("park_azimuth %v out of range [0, 360)", cfg.ParkAzimuth)
	}

	if cfg.SerialBaud == 0 {
		cfg.SerialBaud = DefaultBaud
	}
	if cfg.SerialTimeout <= 0 {
		cfg.SerialTimeout = DefaultSerialTimeout
	}
	if cfg.SerialRetries <= 0 {
		cfg.SerialRetries = DefaultSerialRetries
	}
	if cfg.IdleLoopDelay <= 0 {
		cfg.IdleLoopDelay = DefaultIdleLoopDelay
	}
	if cfg.MovingLoopDelay <= 0 {
		cfg.MovingLoopDelay = DefaultMovingLoopDelay
	}
	if cfg.AzimuthMoveTimeout <= 0 {
		cfg.AzimuthMoveTimeout = DefaultMoveTimeout
	}
	if cfg.ShutterMoveTimeout <= 0 {
		cfg.ShutterMoveTimeout = DefaultMoveTimeout
	}
	return nil
}

// Seconds converts a configuration delay in seconds to a Duration.
func Seconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
