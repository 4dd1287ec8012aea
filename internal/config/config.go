// Package config loads the server's static configuration from a YAML file,
// environment variables (DNFS_ prefix), and built-in defaults, in that order
// of precedence, using viper for layering and validator for the resulting
// struct.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full static configuration for one server instance.
type Config struct {
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	Exports []ExportConfig `mapstructure:"exports" yaml:"exports" validate:"dive"`
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Backend BackendConfig  `mapstructure:"backend" yaml:"backend"`
}

// ServerConfig bounds the listener and connection supervisor.
type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
	PortmapAddr           string        `mapstructure:"portmap_addr" yaml:"portmap_addr" validate:"required"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
	MaxRecordSize         uint32        `mapstructure:"max_record_size" yaml:"max_record_size" validate:"required,gt=0"`
	MaxConnections        int           `mapstructure:"max_connections" yaml:"max_connections" validate:"gte=0"`
	MaxOutstandingPerConn int           `mapstructure:"max_outstanding_per_conn" yaml:"max_outstanding_per_conn" validate:"required,gt=0"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
}

// ExportConfig describes one path made available to MOUNT/NFS clients.
type ExportConfig struct {
	Path     string `mapstructure:"path" yaml:"path" validate:"required"`
	ReadOnly bool   `mapstructure:"read_only" yaml:"read_only"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// BackendConfig selects the FSAL and content backends.
type BackendConfig struct {
	Type   string       `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`
	Badger  BadgerConfig  `mapstructure:"badger" yaml:"badger"`
	Content ContentConfig `mapstructure:"content" yaml:"content"`
}

// BadgerConfig configures the persistent FSAL backend. Only consulted when
// Backend.Type is "badger".
type BadgerConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ContentConfig selects where file bytes are stored, independent of which
// FSAL backend holds the handle/metadata map.
type ContentConfig struct {
	Type string          `mapstructure:"type" yaml:"type" validate:"required,oneof=memory fs s3"`
	FS   FSContentConfig `mapstructure:"fs" yaml:"fs"`
	S3   S3ContentConfig `mapstructure:"s3" yaml:"s3"`
}

type FSContentConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type S3ContentConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Region string `mapstructure:"region" yaml:"region"`
}

const envPrefix = "DNFS"

// ApplyDefaults fills zero-valued fields with the server's built-in
// defaults. Explicit values, including explicit zeros for fields where zero
// is meaningful (MaxConnections, IdleTimeout), are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":2049"
	}
	if cfg.Server.PortmapAddr == "" {
		cfg.Server.PortmapAddr = ":111"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxRecordSize == 0 {
		cfg.Server.MaxRecordSize = 32 << 20
	}
	if cfg.Server.MaxOutstandingPerConn == 0 {
		cfg.Server.MaxOutstandingPerConn = 64
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = "memory"
	}
	if cfg.Backend.Content.Type == "" {
		cfg.Backend.Content.Type = "memory"
	}
	if len(cfg.Exports) == 0 {
		cfg.Exports = []ExportConfig{{Path: "/export"}}
	}
}

// Validate checks cfg against its struct tags, then the cross-field rules
// validator's tag language can't express directly (a field required only
// when a sibling discriminator takes a particular value).
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Backend.Type == "badger" && cfg.Backend.Badger.Dir == "" {
		return fmt.Errorf("config: backend.badger.dir is required when backend.type is badger")
	}
	if cfg.Backend.Content.Type == "fs" && cfg.Backend.Content.FS.Dir == "" {
		return fmt.Errorf("config: backend.content.fs.dir is required when backend.content.type is fs")
	}
	if cfg.Backend.Content.Type == "s3" && cfg.Backend.Content.S3.Bucket == "" {
		return fmt.Errorf("config: backend.content.s3.bucket is required when backend.content.type is s3")
	}
	return nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		durationDecodeHook(),
	)
}

// durationDecodeHook allows duration fields to come from viper as either a
// Go duration string ("30s") or a bare integer number of seconds, matching
// what a YAML file or an env var override is likely to contain.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		default:
			return data, nil
		}
	}
}

// configKeys lists every leaf key in Config. AutomaticEnv alone only
// affects viper.Get; Unmarshal populates a struct from AllKeys(), so each
// key that should be overridable via DNFS_* needs an explicit BindEnv.
var configKeys = []string{
	"server.listen_addr", "server.portmap_addr", "server.shutdown_timeout",
	"server.max_record_size", "server.max_connections",
	"server.max_outstanding_per_conn", "server.idle_timeout",
	"logging.level", "logging.format", "logging.output",
	"backend.type", "backend.badger.dir",
	"backend.content.type", "backend.content.fs.dir",
	"backend.content.s3.bucket", "backend.content.s3.region",
}

func setupViper(v *viper.Viper, path string) {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nfsd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nfsd3")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		v.BindEnv(key)
	}
}

// Load reads configuration from path (or the default search locations if
// path is empty), layers DNFS_-prefixed environment variables over it,
// applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad calls Load and panics on error. Used by cmd/nfsd at startup,
// where a bad configuration should abort the process before it binds any
// listener.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
