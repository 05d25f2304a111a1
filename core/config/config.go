// Package config defines the configuration structures shared across the
// broker, client and worker services, loaded with gopkg.in/yaml.v2 and
// overridable from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/geoffjay/remus/core/util"
	yaml "gopkg.in/yaml.v2"
)

// ServiceConfig identifies a running service instance, e.g. for logging
// context or registration against a directory.
type ServiceConfig struct {
	ID string `yaml:"id"`
}

// LokiConfig configures the optional Loki log shipping hook.
type LokiConfig struct {
	Address string            `yaml:"address"`
	Labels  map[string]string `yaml:"labels"`
}

// LogConfig configures the logrus logger used throughout the repository.
type LogConfig struct {
	Formatter string     `yaml:"formatter" default:"text"`
	Level     string     `yaml:"level" default:"info"`
	Loki      LokiConfig `yaml:"loki"`
}

// BrokerConfig configures the broker daemon: its three bound endpoints, the
// heartbeat cadence and the job retention window.
type BrokerConfig struct {
	Service ServiceConfig `yaml:"service"`
	Log     LogConfig     `yaml:"log"`

	ClientEndpoint string `yaml:"client_endpoint" default:"tcp://127.0.0.1:50505"`
	WorkerEndpoint string `yaml:"worker_endpoint" default:"tcp://127.0.0.1:50510"`
	StatusEndpoint string `yaml:"status_endpoint" default:"tcp://127.0.0.1:50515"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"1s"`
	HeartbeatLiveness int           `yaml:"heartbeat_liveness" default:"5"`
	RetentionWindow   time.Duration `yaml:"retention_window" default:"30s"`
	MaxMessageBytes   int           `yaml:"max_message_bytes" default:"16777216"`
	BindRetries       int           `yaml:"bind_retries" default:"16"`
}

// WorkerConfig configures a worker process connecting to a broker.
type WorkerConfig struct {
	Service ServiceConfig `yaml:"service"`
	Log     LogConfig     `yaml:"log"`

	BrokerEndpoint string `yaml:"broker_endpoint" default:"tcp://127.0.0.1:50510"`

	PollingRateMin time.Duration `yaml:"polling_rate_min" default:"100ms"`
	PollingRateMax time.Duration `yaml:"polling_rate_max" default:"2500ms"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2500ms"`
}

// ClientConfig configures the client library and CLI: which broker to
// submit jobs to and how long to wait for a reply.
type ClientConfig struct {
	Service ServiceConfig `yaml:"service"`
	Log     LogConfig     `yaml:"log"`

	ClientEndpoint string        `yaml:"client_endpoint" default:"tcp://127.0.0.1:50505"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"2500ms"`
	OutputFormat   string        `yaml:"output_format" default:"text"`
}

// DefaultClientConfig returns a ClientConfig with the documented defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ClientEndpoint: "tcp://127.0.0.1:50505",
		RequestTimeout: 2500 * time.Millisecond,
		OutputFormat:   "text",
		Log:            LogConfig{Formatter: "text", Level: "info"},
	}
}

// LoadClientConfig reads a YAML client configuration from filename, falling
// back to defaults for anything the file omits, then applies environment
// overrides.
func LoadClientConfig(filename string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading client config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing client config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *ClientConfig) applyEnvOverrides() {
	c.ClientEndpoint = util.Getenv("REMUS_CLIENT_ENDPOINT", c.ClientEndpoint)
	c.Log.Level = util.Getenv("REMUS_LOG_LEVEL", c.Log.Level)
	c.Log.Formatter = util.Getenv("REMUS_LOG_FORMATTER", c.Log.Formatter)
}

// DefaultBrokerConfig returns a BrokerConfig with the documented defaults.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		ClientEndpoint:    "tcp://127.0.0.1:50505",
		WorkerEndpoint:    "tcp://127.0.0.1:50510",
		StatusEndpoint:    "tcp://127.0.0.1:50515",
		HeartbeatInterval: 1 * time.Second,
		HeartbeatLiveness: 5,
		RetentionWindow:   30 * time.Second,
		MaxMessageBytes:   16 * 1024 * 1024,
		BindRetries:       16,
		Log:               LogConfig{Formatter: "text", Level: "info"},
	}
}

// DefaultWorkerConfig returns a WorkerConfig with the documented defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		BrokerEndpoint: "tcp://127.0.0.1:50510",
		PollingRateMin: 100 * time.Millisecond,
		PollingRateMax: 2500 * time.Millisecond,
		ReconnectDelay: 2500 * time.Millisecond,
		Log:            LogConfig{Formatter: "text", Level: "info"},
	}
}

// LoadBrokerConfig reads a YAML broker configuration from filename, falling
// back to defaults for anything the file omits, then applies environment
// overrides.
func LoadBrokerConfig(filename string) (*BrokerConfig, error) {
	cfg := DefaultBrokerConfig()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading broker config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing broker config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *BrokerConfig) applyEnvOverrides() {
	c.ClientEndpoint = util.Getenv("REMUS_CLIENT_ENDPOINT", c.ClientEndpoint)
	c.WorkerEndpoint = util.Getenv("REMUS_WORKER_ENDPOINT", c.WorkerEndpoint)
	c.StatusEndpoint = util.Getenv("REMUS_STATUS_ENDPOINT", c.StatusEndpoint)
	c.Log.Level = util.Getenv("REMUS_LOG_LEVEL", c.Log.Level)
	c.Log.Formatter = util.Getenv("REMUS_LOG_FORMATTER", c.Log.Formatter)
}

// LoadWorkerConfig reads a YAML worker configuration from filename, falling
// back to defaults for anything the file omits, then applies environment
// overrides.
func LoadWorkerConfig(filename string) (*WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading worker config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing worker config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *WorkerConfig) applyEnvOverrides() {
	c.BrokerEndpoint = util.Getenv("REMUS_BROKER_ENDPOINT", c.BrokerEndpoint)
	c.Log.Level = util.Getenv("REMUS_LOG_LEVEL", c.Log.Level)
	c.Log.Formatter = util.Getenv("REMUS_LOG_FORMATTER", c.Log.Formatter)
}
