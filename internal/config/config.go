// Package config manages rled daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/hnrck/librle/internal/rle"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete rled configuration.
type Config struct {
	Link    LinkConfig    `koanf:"link" yaml:"link"`
	Relay   RelayConfig   `koanf:"relay" yaml:"relay"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
}

// LinkConfig holds the RLE link knobs. Both ends of a link must run with
// identical values; they are immutable once the engines are built.
type LinkConfig struct {
	// ImplicitProtoType is the default Ethertype of the link (e.g.,
	// 0x0800 for IPv4). YAML accepts hex literals.
	ImplicitProtoType uint16 `koanf:"implicit_proto_type" yaml:"implicit_proto_type"`

	// UseALPDUCRC selects the CRC-32 ALPDU trailer; false selects the
	// per-fragment sequence-number trailer.
	UseALPDUCRC bool `koanf:"use_alpdu_crc" yaml:"use_alpdu_crc"`

	// UseCompressedPtype encodes well-known protocol types in one byte.
	UseCompressedPtype bool `koanf:"use_compressed_ptype" yaml:"use_compressed_ptype"`

	// UsePtypeOmission elides the protocol-type field when an SDU's type
	// equals ImplicitProtoType.
	UsePtypeOmission bool `koanf:"use_ptype_omission" yaml:"use_ptype_omission"`
}

// RLE converts the link section into the engine configuration.
func (lc LinkConfig) RLE() rle.Config {
	return rle.Config{
		ImplicitProtoType:  lc.ImplicitProtoType,
		UseALPDUCRC:        lc.UseALPDUCRC,
		UseCompressedPtype: lc.UseCompressedPtype,
		UsePtypeOmission:   lc.UsePtypeOmission,
	}
}

// RelayConfig holds the SDU/burst relay addressing and pacing.
type RelayConfig struct {
	// SDUListenAddr is the local UDP address accepting SDU datagrams for
	// encapsulation (e.g., "127.0.0.1:7000").
	SDUListenAddr string `koanf:"sdu_listen_addr" yaml:"sdu_listen_addr"`

	// DeliverAddr is the local UDP address reassembled SDUs are sent to.
	DeliverAddr string `koanf:"deliver_addr" yaml:"deliver_addr"`

	// BurstListenAddr is the local UDP address receiving bursts from the
	// peer.
	BurstListenAddr string `koanf:"burst_listen_addr" yaml:"burst_listen_addr"`

	// PeerAddr is the remote UDP address bursts are sent to.
	PeerAddr string `koanf:"peer_addr" yaml:"peer_addr"`

	// BurstSize is the burst window in bytes; one or more PPDUs are
	// packed into each burst.
	BurstSize int `koanf:"burst_size" yaml:"burst_size"`

	// FlushInterval bounds how long a partially-filled burst waits for
	// more SDUs before it is shipped.
	FlushInterval time.Duration `koanf:"flush_interval" yaml:"flush_interval"`
}

// MetricsConfig holds the admin HTTP endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address (e.g., ":9310").
	Addr string `koanf:"addr" yaml:"addr"`
	// Path is the URL path for the Prometheus endpoint (e.g., "/metrics").
	Path string `koanf:"path" yaml:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level" yaml:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format" yaml:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults: an
// IPv4 implicit type with compression on, a 598-byte burst window (a
// common return-link allocation), and JSON logging.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			ImplicitProtoType:  0x0800,
			UseALPDUCRC:        false,
			UseCompressedPtype: true,
			UsePtypeOmission:   false,
		},
		Relay: RelayConfig{
			SDUListenAddr:   "127.0.0.1:7000",
			DeliverAddr:     "127.0.0.1:7001",
			BurstListenAddr: ":8310",
			PeerAddr:        "",
			BurstSize:       598,
			FlushInterval:   20 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Addr: ":9310",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for rled configuration.
// Variables are named RLED_<section>_<key>, e.g., RLED_METRICS_ADDR.
const envPrefix = "RLED_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RLED_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults. An empty path skips the file layer.
//
// Environment variable mapping:
//
//	RLED_LINK_USE_ALPDU_CRC  -> link.use_alpdu_crc
//	RLED_RELAY_PEER_ADDR     -> relay.peer_addr
//	RLED_METRICS_ADDR        -> metrics.addr
//	RLED_LOG_LEVEL           -> log.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms RLED_METRICS_ADDR -> metrics.addr.
// Strips the RLED_ prefix, lowercases, and replaces _ with .
//
// Section keys that contain underscores themselves (e.g.,
// link.use_alpdu_crc) are resolved by replacing only the first underscore:
// RLED_LINK_USE_ALPDU_CRC -> link.use_alpdu_crc.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"link.implicit_proto_type":  defaults.Link.ImplicitProtoType,
		"link.use_alpdu_crc":        defaults.Link.UseALPDUCRC,
		"link.use_compressed_ptype": defaults.Link.UseCompressedPtype,
		"link.use_ptype_omission":   defaults.Link.UsePtypeOmission,
		"relay.sdu_listen_addr":     defaults.Relay.SDUListenAddr,
		"relay.deliver_addr":        defaults.Relay.DeliverAddr,
		"relay.burst_listen_addr":   defaults.Relay.BurstListenAddr,
		"relay.peer_addr":           defaults.Relay.PeerAddr,
		"relay.burst_size":          defaults.Relay.BurstSize,
		"relay.flush_interval":      defaults.Relay.FlushInterval.String(),
		"metrics.addr":              defaults.Metrics.Addr,
		"metrics.path":              defaults.Metrics.Path,
		"log.level":                 defaults.Log.Level,
		"log.format":                defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidImplicitPtype indicates an implicit protocol type the
	// engines reject.
	ErrInvalidImplicitPtype = errors.New("link.implicit_proto_type is not supported")

	// ErrBurstSizeTooSmall indicates a burst window below the minimum PPDU.
	ErrBurstSizeTooSmall = errors.New("relay.burst_size below minimum PPDU size")

	// ErrBurstSizeTooLarge indicates a burst window above the UDP-safe bound.
	ErrBurstSizeTooLarge = errors.New("relay.burst_size exceeds maximum")

	// ErrEmptyMetricsAddr indicates the admin HTTP listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrInvalidFlushInterval indicates a non-positive flush interval.
	ErrInvalidFlushInterval = errors.New("relay.flush_interval must be > 0")
)

// maxBurstSize bounds the burst window to what a single UDP datagram can
// carry without fragmentation trouble.
const maxBurstSize = 65000

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	// Reuse the engine's own validation for the link knobs.
	if _, err := rle.NewTransmitter(cfg.Link.RLE()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidImplicitPtype, err)
	}

	if cfg.Relay.BurstSize < rle.MinPPDUSize {
		return fmt.Errorf("%w: %d < %d", ErrBurstSizeTooSmall, cfg.Relay.BurstSize, rle.MinPPDUSize)
	}
	if cfg.Relay.BurstSize > maxBurstSize {
		return fmt.Errorf("%w: %d > %d", ErrBurstSizeTooLarge, cfg.Relay.BurstSize, maxBurstSize)
	}
	if cfg.Relay.FlushInterval <= 0 {
		return ErrInvalidFlushInterval
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Effective-Config Dump
// -------------------------------------------------------------------------

// DumpYAML renders the effective configuration as YAML, for
// `rled -print-config`.
func DumpYAML(cfg *Config) (string, error) {
	out, err := yamlv3.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal effective config: %w", err)
	}
	return string(out), nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
