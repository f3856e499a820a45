package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/nexusbase/core"
)

// WALConfig holds Write-Ahead Log writer configuration.
type WALConfig struct {
	Dir                 string `yaml:"dir"`
	SyncMode            string `yaml:"sync_mode"`
	MaxSegmentSizeBytes int64  `yaml:"max_segment_size_bytes"`
	ArchiveOnRotate     bool   `yaml:"archive_on_rotate"`
	PurgeKeepSegments   int    `yaml:"purge_keep_segments"`
	// ArchiveCompression names the codec ("none", "snappy", "lz4", "zstd")
	// a segment is rewritten with once rotated into the archive directory.
	ArchiveCompression string `yaml:"archive_compression"`
}

// ParseCompressionType maps a config string to its core.CompressionType,
// defaulting to core.CompressionNone for an empty or unrecognized value.
func ParseCompressionType(name string, logger *slog.Logger) core.CompressionType {
	switch name {
	case "", "none":
		return core.CompressionNone
	case "snappy":
		return core.CompressionSnappy
	case "lz4":
		return core.CompressionLZ4
	case "zstd":
		return core.CompressionZSTD
	default:
		if logger != nil {
			logger.Warn("unknown archive_compression value, defaulting to none", "value", name)
		}
		return core.CompressionNone
	}
}

// IteratorConfig holds transaction-log iterator configuration.
type IteratorConfig struct {
	// VerifyChecksums controls whether every record's CRC32 is checked
	// while reading, versus trusting the length prefix alone.
	VerifyChecksums bool `yaml:"verify_checksums"`
	// GapReseekEnabled controls whether the iterator attempts a strict
	// reseek to the missing sequence after a detected gap, or surfaces the
	// gap as fatal corruption immediately.
	GapReseekEnabled bool `yaml:"gap_reseek_enabled"`
	// PollInterval is how long a polling driver (txlogtail -follow) sleeps
	// between asking the iterator for newly appended data once it has
	// caught up to a transient end of file; the iterator itself never sleeps.
	PollInterval string `yaml:"poll_interval"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// Config is the top-level configuration struct.
type Config struct {
	WAL      WALConfig      `yaml:"wal"`
	Iterator IteratorConfig `yaml:"iterator"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		WAL: WALConfig{
			Dir:                 "./data/wal",
			SyncMode:            "interval",
			MaxSegmentSizeBytes: 32 * 1024 * 1024, // 32 MiB
			ArchiveOnRotate:     true,
			PurgeKeepSegments:   4,
			ArchiveCompression:  "none",
		},
		Iterator: IteratorConfig{
			VerifyChecksums:  true,
			GapReseekEnabled: true,
			PollInterval:     "100ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "txlog.log",
		},
	}

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
