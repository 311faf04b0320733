// Package config loads converter settings from defaults, an optional TOML
// file, an optional .env file and WEBPCONV_* environment variables, in
// that order. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/deepteams/webpconv"
	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WEBPCONV_"

type Config struct {
	Convert ConvertConfig `toml:"convert"`
	Output  OutputConfig  `toml:"output"`
	Server  ServerConfig  `toml:"server"`
	S3      S3Config      `toml:"s3"`
	Log     LogConfig     `toml:"log"`
}

type ConvertConfig struct {
	Quality    int    `toml:"quality"`
	Lossless   bool   `toml:"lossless"`
	Workers    int    `toml:"workers"`
	Backend    string `toml:"backend"`
	Background string `toml:"background"` // #rrggbb
}

type OutputConfig struct {
	Dir string `toml:"dir"`
	Zip string `toml:"zip"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	MaxUploadMB     int           `toml:"max_upload_mb"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"path_style"`
	Prefix          string `toml:"prefix"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Convert: ConvertConfig{
			Quality:    webpconv.DefaultQuality,
			Backend:    codec.DefaultName(),
			Background: "#ffffff",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadMB:     64,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "webp",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config. path names an optional TOML file. envFiles are
// loaded with godotenv before the environment is read; when none are
// given a .env in the working directory is used if present. Variables
// already set in the environment win over .env entries.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		// A missing .env is not an error.
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("config: loading env files: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setString(&c.Convert.Backend, "BACKEND")
	setString(&c.Convert.Background, "BACKGROUND")
	errs = append(errs,
		setInt(&c.Convert.Quality, "QUALITY"),
		setBool(&c.Convert.Lossless, "LOSSLESS"),
		setInt(&c.Convert.Workers, "WORKERS"),
	)

	setString(&c.Output.Dir, "OUTPUT_DIR")
	setString(&c.Output.Zip, "OUTPUT_ZIP")

	setString(&c.Server.Addr, "SERVER_ADDR")
	errs = append(errs,
		setInt(&c.Server.MaxUploadMB, "SERVER_MAX_UPLOAD_MB"),
		setDuration(&c.Server.ReadTimeout, "SERVER_READ_TIMEOUT"),
		setDuration(&c.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT"),
	)

	setString(&c.S3.Bucket, "S3_BUCKET")
	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&c.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&c.S3.Prefix, "S3_PREFIX")
	errs = append(errs, setBool(&c.S3.UsePathStyle, "S3_USE_PATH_STYLE"))

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	return errors.Join(errs...)
}

// Validate normalizes out-of-range values and rejects inconsistent ones.
// Quality is clamped to [0,100].
func (c *Config) Validate() error {
	c.Convert.Quality = min(max(c.Convert.Quality, 0), 100)
	if c.Convert.Workers < 0 {
		c.Convert.Workers = 0
	}

	enc, err := codec.Lookup(c.Convert.Backend)
	if err != nil {
		return fmt.Errorf("config: convert.backend: %w", err)
	}
	if !c.Convert.Lossless && !enc.Lossy() {
		return fmt.Errorf("config: backend %q only supports lossless output; set convert.lossless", enc.Name())
	}
	if _, err := ParseHexColor(c.Convert.Background); err != nil {
		return fmt.Errorf("config: convert.background: %w", err)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("config: server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Policy returns the compression policy for a batch.
func (c *Config) Policy() webpconv.Policy {
	return webpconv.Policy{Lossless: c.Convert.Lossless, Quality: c.Convert.Quality}
}

// Options returns converter options for the configured backend.
func (c *Config) Options() (*webpconv.Options, error) {
	enc, err := codec.Lookup(c.Convert.Backend)
	if err != nil {
		return nil, err
	}
	bg, err := ParseHexColor(c.Convert.Background)
	if err != nil {
		return nil, err
	}
	return &webpconv.Options{
		Encoder:    enc,
		Background: bg,
		Workers:    c.Convert.Workers,
	}, nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// S3Enabled reports whether an upload bucket is configured.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}

// ParseHexColor parses "#rgb" or "#rrggbb" into an opaque color.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}
