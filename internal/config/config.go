// Package config provides configuration parsing and validation for the
// udpchan CLI.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stormlink/udpchan/netaddr"
)

// Config represents the complete CLI configuration.
type Config struct {
	Channel ChannelConfig `yaml:"channel"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ChannelConfig contains channel tuning parameters.
type ChannelConfig struct {
	Port               uint16        `yaml:"port"`                // local UDP port to bind
	MulticastGroup     string        `yaml:"multicast_group"`     // empty disables multicast
	MulticastInterface string        `yaml:"multicast_interface"` // interface address, empty = default
	SendBufferSize     int           `yaml:"send_buffer_size"`    // bytes
	RecvBufferSize     int           `yaml:"recv_buffer_size"`    // bytes
	DedupWindow        time.Duration `yaml:"dedup_window"`        // 0 disables storm suppression
	ReadTimeout        time.Duration `yaml:"read_timeout"`        // 0 = poll only
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig defines the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			Port:           4447,
			SendBufferSize: 1024,
			RecvBufferSize: 1024,
			DedupWindow:    100 * time.Millisecond,
			ReadTimeout:    0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9310",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Channel.Port == 0 {
		return fmt.Errorf("channel.port must be set")
	}

	if c.Channel.MulticastGroup != "" {
		group, err := netaddr.Parse(c.Channel.MulticastGroup)
		if err != nil {
			return fmt.Errorf("channel.multicast_group: %w", err)
		}
		if !group.IsMulticast() {
			return fmt.Errorf("channel.multicast_group: %s is not a multicast address", group)
		}
	}

	if c.Channel.MulticastInterface != "" {
		if _, err := netaddr.Parse(c.Channel.MulticastInterface); err != nil {
			return fmt.Errorf("channel.multicast_interface: %w", err)
		}
	}

	if c.Channel.SendBufferSize <= 0 {
		return fmt.Errorf("channel.send_buffer_size must be positive, got %d", c.Channel.SendBufferSize)
	}
	if c.Channel.RecvBufferSize <= 0 {
		return fmt.Errorf("channel.recv_buffer_size must be positive, got %d", c.Channel.RecvBufferSize)
	}
	if c.Channel.DedupWindow < 0 {
		return fmt.Errorf("channel.dedup_window must not be negative, got %v", c.Channel.DedupWindow)
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if !isValidLogFormat(c.Log.Format) {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address must be set when metrics are enabled")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}
