// Package config loads the server and client configuration from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/scratchpad/internal/model"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Scratchpad ScratchpadConfig `yaml:"scratchpad" toml:"scratchpad"`
	Client     ClientConfig     `yaml:"client" toml:"client"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" default:"info"`
	Format string `yaml:"format" toml:"format" default:"console"`
}

type ServerConfig struct {
	Host            string   `yaml:"host" toml:"host" default:"0.0.0.0"`
	Port            string   `yaml:"port" toml:"port" default:"12600"`
	CORSOrigins     []string `yaml:"cors_origins" toml:"cors_origins" default:"*"`
	MaxContentBytes int      `yaml:"max_content_bytes" toml:"max_content_bytes" default:"1048576"`
}

type StorageConfig struct {
	Backend      string         `yaml:"backend" toml:"backend" default:"sqlite"`
	SQLitePath   string         `yaml:"sqlite_path" toml:"sqlite_path" default:"./database.db"`
	FSDir        string         `yaml:"fs_dir" toml:"fs_dir" default:"./scratchpads"`
	PollInterval time.Duration  `yaml:"poll_interval" toml:"poll_interval" default:"10s"`
	S3           S3Config       `yaml:"s3" toml:"s3"`
	Postgres     PostgresConfig `yaml:"postgres" toml:"postgres"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket" toml:"bucket" default:""`
	Endpoint string `yaml:"endpoint" toml:"endpoint" default:""`
	Region   string `yaml:"region" toml:"region" default:"auto"`
	Prefix   string `yaml:"prefix" toml:"prefix" default:"scratchpads/"`

	// Read from the environment only.
	AccessKeyID     string `yaml:"-" toml:"-"`
	SecretAccessKey string `yaml:"-" toml:"-"`
}

type PostgresConfig struct {
	// Usually supplied through SCRATCHPAD_POSTGRES_DSN.
	DSN   string `yaml:"dsn" toml:"dsn" default:""`
	Table string `yaml:"table" toml:"table" default:"scratchpads"`
}

type ScratchpadConfig struct {
	Debounce time.Duration `yaml:"debounce" toml:"debounce" default:"900ms"`
	Headings []string      `yaml:"headings" toml:"headings" default:"# Scratchpad,# ✏️ Scratchpad"`
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl" default:"168h"`
	// Empty means the user cache directory.
	CacheDir string `yaml:"cache_dir" toml:"cache_dir" default:""`
}

type ClientConfig struct {
	ServerURL      string        `yaml:"server_url" toml:"server_url" default:"http://localhost:12600"`
	Document       string        `yaml:"document" toml:"document" default:"main"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" toml:"reconnect_delay" default:"3s"`
	Timeout        time.Duration `yaml:"timeout" toml:"timeout" default:"10s"`
}

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendFS       = "fs"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

const (
	EnvS3AccessKeyID     = "SCRATCHPAD_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "SCRATCHPAD_S3_SECRET_ACCESS_KEY"
	EnvPostgresDSN       = "SCRATCHPAD_POSTGRES_DSN"
	EnvServerURL         = "SCRATCHPAD_SERVER_URL"
	EnvLogLevel          = "SCRATCHPAD_LOG_LEVEL"
)

var headingPattern = regexp.MustCompile(`^#{1,6}\s+\S`)

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Storage),
		validation.Field(&c.Scratchpad),
		validation.Field(&c.Client),
		validation.Field(&c.Logging),
	)
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.MaxContentBytes, validation.Required, validation.Min(1)),
	)
}

func (c StorageConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(BackendMemory, BackendSQLite, BackendFS, BackendS3, BackendPostgres)),
		validation.Field(&c.SQLitePath, validation.When(c.Backend == BackendSQLite, validation.Required)),
		validation.Field(&c.FSDir, validation.When(c.Backend == BackendFS, validation.Required)),
		validation.Field(&c.PollInterval, validation.Min(time.Second)),
		validation.Field(&c.S3, validation.When(c.Backend == BackendS3, validation.By(func(any) error {
			return validation.ValidateStruct(&c.S3,
				validation.Field(&c.S3.Bucket, validation.Required),
				validation.Field(&c.S3.Endpoint, is.URL),
			)
		}))),
		validation.Field(&c.Postgres, validation.When(c.Backend == BackendPostgres, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Postgres,
				validation.Field(&c.Postgres.DSN, validation.Required),
				validation.Field(&c.Postgres.Table, validation.Required, validation.Match(regexp.MustCompile(`^[a-z_][a-z0-9_]*$`))),
			)
		}))),
	)
}

func (c ScratchpadConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Debounce, validation.Min(700*time.Millisecond), validation.Max(1200*time.Millisecond)),
		validation.Field(&c.Headings, validation.Required, validation.Each(validation.Match(headingPattern))),
	)
}

func (c ClientConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServerURL, validation.Required, is.URL),
		validation.Field(&c.Document, validation.Required, validation.Match(model.DocumentIDPattern)),
		validation.Field(&c.ReconnectDelay, validation.Min(100*time.Millisecond)),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
	)
}

func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled")),
		validation.Field(&c.Format, validation.In("console", "json")),
	)
}

var AppConfig *Config

// LoadConfig loads path into AppConfig.
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load reads a YAML or TOML file (chosen by extension) over the defaults, applies
// environment overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else if err := decode(path, data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), config)
		return err
	default:
		return yaml.Unmarshal(data, config)
	}
}

// ApplyEnv overrides secrets and a few deployment knobs from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvS3AccessKeyID); v != "" {
		c.Storage.S3.AccessKeyID = v
	}
	if v := getenv(EnvS3SecretAccessKey); v != "" {
		c.Storage.S3.SecretAccessKey = v
	}
	if v := getenv(EnvPostgresDSN); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := getenv(EnvServerURL); v != "" {
		c.Client.ServerURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if val, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(val))
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
