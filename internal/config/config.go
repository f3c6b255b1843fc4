/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the YAML configuration shared by the platform
// services and validates it before anything starts listening.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jordigilh/enclaveops/pkg/storage"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "3s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration document.
type Config struct {
	Management ManagementConfig `yaml:"management"`
	Frontend   FrontendConfig   `yaml:"frontend"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ManagementConfig configures the management service listeners.
type ManagementConfig struct {
	ListenAddress  string `yaml:"listen_address" validate:"required"`
	MetricsAddress string `yaml:"metrics_address" validate:"required"`
}

// FrontendConfig configures the frontend passthrough service.
type FrontendConfig struct {
	ListenAddress         string `yaml:"listen_address" validate:"required"`
	MetricsAddress        string `yaml:"metrics_address" validate:"required"`
	ManagementAddress     string `yaml:"management_address" validate:"required"`
	AuthenticationAddress string `yaml:"authentication_address" validate:"required"`
}

// StorageConfig configures the storage backend connection.
type StorageConfig struct {
	Address         string   `yaml:"address" validate:"required"`
	Password        string   `yaml:"password"`
	DB              int      `yaml:"db" validate:"gte=0"`
	ConnectAttempts int      `yaml:"connect_attempts" validate:"gt=0"`
	ConnectInterval Duration `yaml:"connect_interval" validate:"gt=0"`
}

// ClientConfig converts to the storage client settings.
func (c StorageConfig) ClientConfig() storage.Config {
	return storage.Config{
		Address:         c.Address,
		Password:        c.Password,
		DB:              c.DB,
		ConnectAttempts: c.ConnectAttempts,
		ConnectInterval: c.ConnectInterval.Std(),
	}
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	defaultStorage := storage.DefaultConfig()
	return &Config{
		Management: ManagementConfig{
			ListenAddress:  ":8081",
			MetricsAddress: ":9091",
		},
		Frontend: FrontendConfig{
			ListenAddress:         ":8080",
			MetricsAddress:        ":9090",
			ManagementAddress:     "http://localhost:8081",
			AuthenticationAddress: "http://localhost:8082",
		},
		Storage: StorageConfig{
			Address:         defaultStorage.Address,
			ConnectAttempts: defaultStorage.ConnectAttempts,
			ConnectInterval: Duration(defaultStorage.ConnectInterval),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Watch re-loads the file on every write and hands the result to
// onChange. Invalid intermediate states are logged and skipped. The
// watcher stops when the returned closer is called.
func Watch(path string, log logr.Logger, onChange func(*Config)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch config: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Info("ignoring config reload", "error", err.Error())
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Info("config watcher error", "error", err.Error())
			}
		}
	}()

	return watcher.Close, nil
}
