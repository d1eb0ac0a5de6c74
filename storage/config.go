package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device kinds accepted by Config.Device.
const (
	DeviceTrivial    = "trivial"
	DeviceNull       = "null"
	DeviceMemory     = "memory"
	DeviceCompressed = "compressed"
	DeviceFile       = "file"
	DeviceMmap       = "mmap"
)

// Config holds simulator configuration
type Config struct {
	// Cache Configuration
	PageCount  int      `json:"page_count" yaml:"page_count"`   // Number of frames in the cache
	PageSize   int      `json:"page_size" yaml:"page_size"`     // Page size in bytes (default: 4096)
	Policy     string   `json:"policy" yaml:"policy"`           // Replacement policy name
	PolicyArgs []string `json:"policy_args" yaml:"policy_args"` // Policy specific arguments

	// Cost Model
	ReadCost  float64 `json:"read_cost" yaml:"read_cost"`   // Cost of one device read
	WriteCost float64 `json:"write_cost" yaml:"write_cost"` // Cost of one device write

	// Device Configuration
	Device      string `json:"device" yaml:"device"`           // trivial, null, memory, compressed, file, mmap
	DevicePath  string `json:"device_path" yaml:"device_path"` // Backing file for file and mmap devices
	Compression string `json:"compression" yaml:"compression"` // none, lz4, snappy, best
	Verify      bool   `json:"verify" yaml:"verify"`           // Check every read against what was written

	// Logging Configuration
	LogLevel  string `json:"log_level" yaml:"log_level"`   // debug, info, warn, error
	LogFormat string `json:"log_format" yaml:"log_format"` // json or console
	LogOutput string `json:"log_output" yaml:"log_output"` // Log file, stderr when empty
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		PageCount:   1024,
		PageSize:    DefaultPageSize,
		Policy:      "tn",
		ReadCost:    1,
		WriteCost:   1,
		Device:      DeviceTrivial,
		Compression: "none",
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// LoadConfigFromFile loads configuration from a JSON or YAML file, chosen by
// extension. Fields missing from the file keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigFromEnv loads configuration from HEXSIM_* environment variables.
// Unset or malformed variables keep their default values.
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()
	config.ApplyEnv()
	return config
}

// ApplyEnv overrides fields with the HEXSIM_* variables that are set.
func (c *Config) ApplyEnv() {
	if val := os.Getenv("HEXSIM_PAGE_COUNT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.PageCount = n
		}
	}
	if val := os.Getenv("HEXSIM_PAGE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.PageSize = n
		}
	}
	if val := os.Getenv("HEXSIM_POLICY"); val != "" {
		c.Policy = val
	}
	if val := os.Getenv("HEXSIM_POLICY_ARGS"); val != "" {
		c.PolicyArgs = strings.Split(val, ",")
	}

	// Cost model
	if val := os.Getenv("HEXSIM_READ_COST"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.ReadCost = f
		}
	}
	if val := os.Getenv("HEXSIM_WRITE_COST"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.WriteCost = f
		}
	}

	// Device
	if val := os.Getenv("HEXSIM_DEVICE"); val != "" {
		c.Device = val
	}
	if val := os.Getenv("HEXSIM_DEVICE_PATH"); val != "" {
		c.DevicePath = val
	}
	if val := os.Getenv("HEXSIM_COMPRESSION"); val != "" {
		c.Compression = val
	}
	if val := os.Getenv("HEXSIM_VERIFY"); val != "" {
		c.Verify = val == "true" || val == "1"
	}

	// Logging
	if val := os.Getenv("HEXSIM_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("HEXSIM_LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}
	if val := os.Getenv("HEXSIM_LOG_OUTPUT"); val != "" {
		c.LogOutput = val
	}
}

// SaveToFile saves the configuration as YAML or JSON, chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	const op = "Config.Validate"

	if c.PageCount <= 0 {
		return ErrInvalidConfig(op, "page count must be greater than 0, got %d", c.PageCount)
	}
	if c.PageSize <= 0 && c.Device != DeviceNull {
		return ErrInvalidConfig(op, "page size must be greater than 0, got %d", c.PageSize)
	}
	if _, ok := lookupPolicy(c.Policy); !ok {
		return ErrUnknownPolicy(op, c.Policy)
	}
	if c.ReadCost <= 0 || c.WriteCost <= 0 {
		return ErrInvalidConfig(op, "costs must be positive, got read=%g write=%g", c.ReadCost, c.WriteCost)
	}

	switch c.Device {
	case DeviceTrivial, DeviceMemory, DeviceCompressed:
	case DeviceNull:
		if c.Verify {
			return ErrInvalidConfig(op, "the null device cannot be verified")
		}
	case DeviceFile, DeviceMmap:
		if c.DevicePath == "" {
			return ErrInvalidConfig(op, "device %q needs a device path", c.Device)
		}
	default:
		return ErrInvalidConfig(op, "unknown device %q", c.Device)
	}
	if _, err := ParseCompressionType(c.Compression); err != nil {
		return ErrInvalidConfig(op, "%v", err)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidConfig(op, "invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return ErrInvalidConfig(op, "invalid log format: %s (must be json or console)", c.LogFormat)
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	if c.PolicyArgs != nil {
		clone.PolicyArgs = append([]string(nil), c.PolicyArgs...)
	}
	return &clone
}

// Ratio is the cost of a write relative to a read.
func (c *Config) Ratio() float64 {
	return c.WriteCost / c.ReadCost
}

// RoundedRatio is Ratio truncated to an integer.
func (c *Config) RoundedRatio() uint32 {
	return uint32(c.Ratio())
}

// Cost combines device operation counts into the configured cost.
func (c *Config) Cost(reads, writes uint64) float64 {
	return float64(reads)*c.ReadCost + float64(writes)*c.WriteCost
}
