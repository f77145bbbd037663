// Package config provides configuration management for mediaxcode using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodySize     = 64 * 1024 * 1024 // 64MB
	defaultOrphanMaxAge    = time.Hour
	defaultCleanupSchedule = "*/15 * * * *"
	defaultImageQuality    = 80
)

// EnvPrefix is the prefix used for environment variable overrides.
const EnvPrefix = "MEDIAXCODE"

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Gifsicle GifsicleConfig `mapstructure:"gifsicle"`
	Image    ImageConfig    `mapstructure:"image"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// MaxBodySize caps uploaded media. Accepts values like "64MB".
	MaxBodySize ByteSize `mapstructure:"max_body_size"`
}

// StorageConfig holds scratch space configuration.
type StorageConfig struct {
	// TempDir is the root for per-request scratch files (empty = OS temp dir).
	TempDir string `mapstructure:"temp_dir"`
	// OrphanMaxAge is how old a scratch entry must be before the janitor removes it.
	OrphanMaxAge Duration `mapstructure:"orphan_max_age"`
	// CleanupSchedule is a 5-field cron expression for the janitor (empty = startup only).
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
	// RequestLogging logs every HTTP request; errors are always logged.
	RequestLogging bool `mapstructure:"request_logging"`
}

// FFmpegConfig holds external transcoder configuration and codec tunables.
//
// Codec tunables are strings so that an unset value ("") is distinguishable
// from an explicit zero. Unset tunables are not passed to ffmpeg.
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`  // empty = auto-detect
	FFprobePath string `mapstructure:"ffprobe_path"` // empty = auto-detect

	HandleAnimatedGIF bool `mapstructure:"handle_animated_gif"`
	UseGifsicleEngine bool `mapstructure:"use_gifsicle_engine"`
	GIFAutoWebP       bool `mapstructure:"gif_auto_webp"`
	GIFAutoH264       bool `mapstructure:"gif_auto_h264"`
	GIFAutoH265       bool `mapstructure:"gif_auto_h265"`

	H264 H264Config `mapstructure:"h264"`
	H265 H265Config `mapstructure:"h265"`
	VP9  VP9Config  `mapstructure:"vp9"`
	WebP WebPConfig `mapstructure:"webp"`
}

// H264Config holds libx264 tunables.
type H264Config struct {
	TwoPass bool   `mapstructure:"two_pass"`
	Preset  string `mapstructure:"preset"`
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
	Tune    string `mapstructure:"tune"`
	CRF     string `mapstructure:"crf"`
	VBR     string `mapstructure:"vbr"`
	MaxRate string `mapstructure:"maxrate"`
	BufSize string `mapstructure:"bufsize"`
	QMin    string `mapstructure:"qmin"`
	QMax    string `mapstructure:"qmax"`
}

// H265Config holds HEVC tunables. BufSize, MaxRate, CRFMin and CRFMax are
// passed to libx265 through -x265-params.
type H265Config struct {
	TwoPass bool   `mapstructure:"two_pass"`
	Preset  string `mapstructure:"preset"`
	Profile string `mapstructure:"profile"`
	Tune    string `mapstructure:"tune"`
	CRF     string `mapstructure:"crf"`
	VBR     string `mapstructure:"vbr"`
	MaxRate string `mapstructure:"maxrate"`
	BufSize string `mapstructure:"bufsize"`
	CRFMin  string `mapstructure:"crf_min"`
	CRFMax  string `mapstructure:"crf_max"`
}

// VP9Config holds libvpx-vp9 tunables.
type VP9Config struct {
	TwoPass  bool   `mapstructure:"two_pass"`
	Lossless bool   `mapstructure:"lossless"`
	RowMT    bool   `mapstructure:"row_mt"`
	VBR      string `mapstructure:"vbr"`
	CRF      string `mapstructure:"crf"`
	Deadline string `mapstructure:"deadline"`
	CPUUsed  string `mapstructure:"cpu_used"`
	MinRate  string `mapstructure:"minrate"`
	MaxRate  string `mapstructure:"maxrate"`
}

// WebPConfig holds libwebp tunables.
type WebPConfig struct {
	Lossless         bool   `mapstructure:"lossless"`
	Preset           string `mapstructure:"preset"`
	CompressionLevel string `mapstructure:"compression_level"`
	QScale           string `mapstructure:"qscale"`

	// MaxPixels bounds the canvas of WebP sources. 0 uses the built-in limit.
	MaxPixels int `mapstructure:"max_pixels"`
}

// GifsicleConfig holds configuration for the palette GIF backend.
type GifsicleConfig struct {
	Path string   `mapstructure:"path"` // empty = auto-detect
	Args []string `mapstructure:"args"`
}

// ImageConfig holds configuration for the still image backend.
type ImageConfig struct {
	DefaultQuality int `mapstructure:"default_quality"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MEDIAXCODE_ and use underscores for nesting.
// Example: MEDIAXCODE_FFMPEG_H264_CRF=23.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mediaxcode")
		v.AddConfigPath("/etc/mediaxcode")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates configuration from an already prepared
// viper instance. Defaults must have been applied with SetDefaults.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Every key is registered, including empty tunables, so that environment
// variables can override keys that have no file value.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_size", defaultMaxBodySize)

	// Storage defaults
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.orphan_max_age", defaultOrphanMaxAge.String())
	v.SetDefault("storage.cleanup_schedule", defaultCleanupSchedule)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.request_logging", true)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.ffmpeg_path", "")
	v.SetDefault("ffmpeg.ffprobe_path", "")
	v.SetDefault("ffmpeg.handle_animated_gif", true)
	v.SetDefault("ffmpeg.use_gifsicle_engine", false)
	v.SetDefault("ffmpeg.gif_auto_webp", true)
	v.SetDefault("ffmpeg.gif_auto_h264", false)
	v.SetDefault("ffmpeg.gif_auto_h265", false)

	for _, key := range []string{
		"preset", "level", "profile", "tune", "crf", "vbr", "maxrate", "bufsize", "qmin", "qmax",
	} {
		v.SetDefault("ffmpeg.h264."+key, "")
	}
	v.SetDefault("ffmpeg.h264.two_pass", false)

	for _, key := range []string{
		"preset", "profile", "tune", "crf", "vbr", "maxrate", "bufsize", "crf_min", "crf_max",
	} {
		v.SetDefault("ffmpeg.h265."+key, "")
	}
	v.SetDefault("ffmpeg.h265.two_pass", false)

	for _, key := range []string{"vbr", "crf", "deadline", "cpu_used", "minrate", "maxrate"} {
		v.SetDefault("ffmpeg.vp9."+key, "")
	}
	v.SetDefault("ffmpeg.vp9.two_pass", false)
	v.SetDefault("ffmpeg.vp9.lossless", false)
	v.SetDefault("ffmpeg.vp9.row_mt", false)

	v.SetDefault("ffmpeg.webp.lossless", false)
	v.SetDefault("ffmpeg.webp.preset", "")
	v.SetDefault("ffmpeg.webp.compression_level", "")
	v.SetDefault("ffmpeg.webp.qscale", "")
	v.SetDefault("ffmpeg.webp.max_pixels", 0)

	// Gifsicle defaults
	v.SetDefault("gifsicle.path", "")
	v.SetDefault("gifsicle.args", []string{})

	// Image defaults
	v.SetDefault("image.default_quality", defaultImageQuality)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MaxBodySize < 0 {
		return fmt.Errorf("server.max_body_size must not be negative")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Storage.OrphanMaxAge < 0 {
		return fmt.Errorf("storage.orphan_max_age must not be negative")
	}

	if c.FFmpeg.WebP.MaxPixels < 0 {
		return fmt.Errorf("ffmpeg.webp.max_pixels must not be negative")
	}

	if c.Image.DefaultQuality < 1 || c.Image.DefaultQuality > 100 {
		return fmt.Errorf("image.default_quality must be between 1 and 100")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
