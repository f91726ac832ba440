// Package config loads daemon settings: YAML file first, then .env, then
// environment variable overrides.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Server   ServerConfig   `yaml:"server"`
	GPS      GPSConfig      `yaml:"gps"`
	Battery  BatteryConfig  `yaml:"battery"`
	Tracking TrackingConfig `yaml:"tracking"`
	Sync     SyncConfig     `yaml:"sync"`
	Motion   MotionConfig   `yaml:"motion"`
	Stops    []StopConfig   `yaml:"stops"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	TripID  string `yaml:"trip_id"` // remote trip identifier to record against
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type GPSConfig struct {
	Type     string `yaml:"type"` // "nmea" or "demo"
	PortPath string `yaml:"port_path"`
	BaudRate int    `yaml:"baud_rate"`
}

type BatteryConfig struct {
	Device string `yaml:"device"` // power_supply device, empty disables
}

type TrackingConfig struct {
	MaxAccuracyM         float64 `yaml:"max_accuracy_m"`
	MinSendIntervalSec   int     `yaml:"min_send_interval_sec"`
	MinSendDistanceM     float64 `yaml:"min_send_distance_m"`
	ForceSaveIntervalMin int     `yaml:"force_save_interval_min"`
}

type SyncConfig struct {
	IntervalMin  int `yaml:"interval_min"`
	BatchSize    int `yaml:"batch_size"`
	MaxFixAgeDay int `yaml:"max_fix_age_days"` // 0 disables pruning
}

type MotionConfig struct {
	MinWindowSec        int     `yaml:"min_window_sec"`
	MaxWindowSec        int     `yaml:"max_window_sec"`
	RetentionSec        int     `yaml:"retention_sec"`
	VehicleTimeRatio    float64 `yaml:"vehicle_time_ratio"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DwellDelaySec       int     `yaml:"dwell_delay_sec"` // parked detection at stops
}

type StopConfig struct {
	ID      string  `yaml:"id"`
	Type    string  `yaml:"type"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
	RadiusM float64 `yaml:"radius_m"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "roadlog.db"},
		Server:   ServerConfig{ListenAddr: ":8090"},
		GPS:      GPSConfig{Type: "demo", PortPath: "/dev/ttyGPS", BaudRate: 9600},
		Tracking: TrackingConfig{
			MaxAccuracyM:         70,
			MinSendIntervalSec:   60,
			MinSendDistanceM:     500,
			ForceSaveIntervalMin: 30,
		},
		Sync: SyncConfig{
			IntervalMin: 10,
			BatchSize:   100,
		},
		Motion: MotionConfig{
			MinWindowSec:        60,
			MaxWindowSec:        300,
			RetentionSec:        300,
			VehicleTimeRatio:    0.6,
			ConfidenceThreshold: 70,
			DwellDelaySec:       120,
		},
	}
}

// Load reads the YAML file at path (missing file falls back to defaults),
// loads a .env from the working directory, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.Database.Path = getenv("DATABASE_PATH", c.Database.Path)
	c.API.BaseURL = getenv("API_BASE_URL", c.API.BaseURL)
	c.API.Token = getenv("API_TOKEN", c.API.Token)
	c.API.TripID = getenv("API_TRIP_ID", c.API.TripID)
	c.Server.ListenAddr = getenv("LISTEN_ADDR", c.Server.ListenAddr)
	c.GPS.Type = getenv("GPS_TYPE", c.GPS.Type)
	c.GPS.PortPath = getenv("GPS_PORT", c.GPS.PortPath)
	c.Battery.Device = getenv("BATTERY_DEVICE", c.Battery.Device)

	intVars := []struct {
		key    string
		target *int
	}{
		{"GPS_BAUD", &c.GPS.BaudRate},
		{"SYNC_INTERVAL_MIN", &c.Sync.IntervalMin},
		{"SYNC_BATCH_SIZE", &c.Sync.BatchSize},
		{"MIN_SEND_INTERVAL_SEC", &c.Tracking.MinSendIntervalSec},
		{"FORCE_SAVE_INTERVAL_MIN", &c.Tracking.ForceSaveIntervalMin},
	}
	for _, v := range intVars {
		if raw := os.Getenv(v.key); raw != "" {
			if err := parseInt(v.target, raw); err != nil {
				return fmt.Errorf("%s: %w", v.key, err)
			}
		}
	}

	if raw := os.Getenv("MAX_ACCURACY_M"); raw != "" {
		if err := parseFloat(&c.Tracking.MaxAccuracyM, raw); err != nil {
			return fmt.Errorf("MAX_ACCURACY_M: %w", err)
		}
	}
	if raw := os.Getenv("MIN_SEND_DISTANCE_M"); raw != "" {
		if err := parseFloat(&c.Tracking.MinSendDistanceM, raw); err != nil {
			return fmt.Errorf("MIN_SEND_DISTANCE_M: %w", err)
		}
	}
	return nil
}

func loadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" {
			continue
		}
		// Real environment wins over .env.
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseInt(target *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func parseFloat(target *float64, value string) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}
