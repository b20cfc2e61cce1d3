// Package config is shadowctl's configuration store.
//
// Configuration lives at os.UserConfigDir()/shadowctl/config.yaml:
//
//	~/Library/Application Support/shadowctl/   (macOS)
//	~/.config/shadowctl/                       (Linux)
//	%AppData%/shadowctl/                       (Windows)
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

const (
	appDir     = "shadowctl"
	configFile = "config.yaml"
)

// Config is the persisted shadowctl configuration: the broker to dial and
// the device whose shadow is being manipulated.
type Config struct {
	MQTTURL           string `yaml:"mqtt_url"`
	DeviceName        string `yaml:"device_name"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	KeepAliveSec        uint16 `yaml:"keep_alive"`
	ConnectTimeoutSec   uint16 `yaml:"connect_timeout"`
	SubscribeTimeoutSec uint16 `yaml:"subscribe_timeout"`
	QoS                 uint8  `yaml:"qos"`
	MaxClient           int    `yaml:"max_client"`
	MaxInFlight         int    `yaml:"max_in_flight"`
	MaxDeltaHandlers    int    `yaml:"max_delta_handlers"`
}

func defaultConfig() *Config {
	return &Config{
		MQTTURL:             "tcp://localhost:1883",
		KeepAliveSec:        20,
		ConnectTimeoutSec:   10,
		SubscribeTimeoutSec: 10,
		QoS:                 1,
		MaxClient:           1024,
		MaxInFlight:         64,
		MaxDeltaHandlers:    32,
	}
}

// Path returns the default config file path.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, configFile), nil
}

// Load reads the config file, returning defaults if it does not exist yet.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config file at path, returning defaults if it does not
// exist.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to the default config file location, creating parent
// directories as needed.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
