// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "DISKSTREAM_CONFIG"

// Config is the master configuration for the broker.
type Config struct {
	// Producer configures the hypervisor-facing Unix socket.
	Producer ProducerConfig `yaml:"producer"`

	// Subscriber configures the client-facing TCP command port.
	Subscriber SubscriberConfig `yaml:"subscriber"`

	// Limits bounds record and write sizes.
	Limits LimitsConfig `yaml:"limits"`

	// Admin configures the optional CBOR admin socket.
	Admin AdminConfig `yaml:"admin"`

	// Metrics configures the optional Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Capture configures optional recording of producer streams.
	Capture CaptureConfig `yaml:"capture"`

	// Daemon configures singleton enforcement.
	Daemon DaemonConfig `yaml:"daemon"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// ProducerConfig configures the producer listener.
type ProducerConfig struct {
	// SocketPath is the Unix socket hypervisors connect to.
	// Default: /tmp/lophi_disk_socket
	SocketPath string `yaml:"socket_path"`

	// BindRetryInterval is the fixed wait between failed binds.
	// Default: 15s
	BindRetryInterval time.Duration `yaml:"bind_retry_interval"`

	// ReceiveBufferBytes is requested as SO_RCVBUF on each producer
	// connection. Zero leaves the kernel default.
	// Default: one maximum payload plus 2048 headers (565248)
	ReceiveBufferBytes int `yaml:"receive_buffer_bytes"`
}

// SubscriberConfig configures the command port.
type SubscriberConfig struct {
	// ListenAddress is the TCP address for subscribers.
	// Default: :31337
	ListenAddress string `yaml:"listen_address"`

	// SendTimeout bounds each write to a subscriber.
	// Default: 10s
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// LimitsConfig bounds record sizes.
type LimitsConfig struct {
	// MaxPayloadBytes is the largest payload accepted in one record.
	// Default: 524288 (1024 sectors of 512 bytes)
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// MaxChunkBytes bounds a single write when forwarding a record.
	// Default: 524288
	MaxChunkBytes int `yaml:"max_chunk_bytes"`
}

// AdminConfig configures the admin socket.
type AdminConfig struct {
	// SocketPath enables the admin socket when non-empty.
	SocketPath string `yaml:"socket_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress enables /metrics when non-empty.
	ListenAddress string `yaml:"listen_address"`
}

// CaptureConfig configures stream capture.
type CaptureConfig struct {
	// Directory enables capture when non-empty: each producer's
	// accepted stream is written to a file there.
	Directory string `yaml:"directory"`

	// Compression is none, zstd, or lz4. Default: zstd
	Compression string `yaml:"compression"`
}

// DaemonConfig configures singleton enforcement.
type DaemonConfig struct {
	// LockFile holds the running broker's PID.
	// Default: /var/lock/disk-introspection-daemon.lock
	LockFile string `yaml:"lock_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`

	// Format is json or text. Default: json
	Format string `yaml:"format"`

	// File receives log output in append mode. Empty means stderr.
	File string `yaml:"file"`
}

// headerSize mirrors wire.HeaderSize; this package stays free of
// diskstream imports.
const headerSize = 20

// Default returns the built-in configuration.
func Default() *Config {
	const maxPayload = 512 * 1024
	return &Config{
		Producer: ProducerConfig{
			SocketPath:         "/tmp/lophi_disk_socket",
			BindRetryInterval:  15 * time.Second,
			ReceiveBufferBytes: maxPayload + headerSize*2048,
		},
		Subscriber: SubscriberConfig{
			ListenAddress: ":31337",
			SendTimeout:   10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxPayloadBytes: maxPayload,
			MaxChunkBytes:   maxPayload,
		},
		Capture: CaptureConfig{
			Compression: "zstd",
		},
		Daemon: DaemonConfig{
			LockFile: "/var/lock/disk-introspection-daemon.lock",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads the file named by DISKSTREAM_CONFIG, or returns Default()
// if the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.Producer.SocketPath = expandVars(c.Producer.SocketPath)
	c.Admin.SocketPath = expandVars(c.Admin.SocketPath)
	c.Capture.Directory = expandVars(c.Capture.Directory)
	c.Daemon.LockFile = expandVars(c.Daemon.LockFile)
	c.Log.File = expandVars(c.Log.File)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Producer.SocketPath == "" {
		errs = append(errs, errors.New("producer.socket_path is required"))
	}
	if c.Producer.BindRetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("producer.bind_retry_interval must be positive, got %v", c.Producer.BindRetryInterval))
	}
	if c.Producer.ReceiveBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("producer.receive_buffer_bytes must not be negative, got %d", c.Producer.ReceiveBufferBytes))
	}

	if c.Subscriber.ListenAddress == "" {
		errs = append(errs, errors.New("subscriber.listen_address is required"))
	}
	if c.Subscriber.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("subscriber.send_timeout must be positive, got %v", c.Subscriber.SendTimeout))
	}

	if c.Limits.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_payload_bytes must be positive, got %d", c.Limits.MaxPayloadBytes))
	}
	if c.Limits.MaxChunkBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_chunk_bytes must be positive, got %d", c.Limits.MaxChunkBytes))
	} else if c.Limits.MaxChunkBytes > c.Limits.MaxPayloadBytes+headerSize {
		errs = append(errs, fmt.Errorf("limits.max_chunk_bytes (%d) exceeds one full record (%d)",
			c.Limits.MaxChunkBytes, c.Limits.MaxPayloadBytes+headerSize))
	}

	compressions := []string{"none", "zstd", "lz4"}
	if !slices.Contains(compressions, c.Capture.Compression) {
		errs = append(errs, fmt.Errorf("capture.compression must be one of: %v", compressions))
	}

	if c.Daemon.LockFile == "" {
		errs = append(errs, errors.New("daemon.lock_file is required"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{"json", "text"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
