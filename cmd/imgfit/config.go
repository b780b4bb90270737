package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"
	"github.com/szxp/imgfit"
)

const (
	envConfig         = "IMGFIT_CONFIG"
	envHTTPAddr       = "IMGFIT_HTTP_ADDR"
	envLogLevel       = "IMGFIT_LOG_LEVEL"
	envDataDir        = "IMGFIT_DATA_DIR"
	envMaxUploadBytes = "IMGFIT_MAX_UPLOAD_BYTES"
)

const (
	resizerImaging     = "imaging"
	resizerNfnt        = "nfnt"
	resizerImageMagick = "imagemagick"
)

type Config struct {
	HTTPAddr       string `toml:"http_addr"`
	LogLevel       string `toml:"log_level"`
	UploadDir      string `toml:"upload_dir"`
	ProcessedDir   string `toml:"processed_dir"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	MaxDimension   int    `toml:"max_dimension"`

	// MaxSourcePixels caps width*height of uploaded images; negative disables it.
	MaxSourcePixels int64 `toml:"max_source_pixels"`

	// Resizer is one of "imaging", "nfnt" or "imagemagick".
	Resizer        string `toml:"resizer"`
	ImageMagickBin string `toml:"imagemagick_bin"`

	JPEG JPEGConfig `toml:"jpeg"`
}

type JPEGConfig struct {
	StartQuality int `toml:"start_quality"`
	MinQuality   int `toml:"min_quality"`
	Step         int `toml:"step"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        ":5000",
		LogLevel:        "INFO",
		UploadDir:       "uploads",
		ProcessedDir:    "processed",
		MaxUploadBytes:  imgfit.DefaultMaxUploadBytes,
		MaxDimension:    10000,
		MaxSourcePixels: imgfit.DefaultMaxSourcePixels,
		Resizer:         resizerImaging,
		JPEG: JPEGConfig{
			StartQuality: imgfit.DefaultStartQuality,
			MinQuality:   imgfit.DefaultMinQuality,
			Step:         imgfit.DefaultQualityStep,
		},
	}
}

// loadConfig reads the TOML file at path, if any, over the defaults and
// then applies environment overrides.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	err := cfg.applyEnv()
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getenv(envHTTPAddr, c.HTTPAddr)
	c.LogLevel = getenv(envLogLevel, c.LogLevel)
	if dir := os.Getenv(envDataDir); dir != "" {
		c.UploadDir = filepath.Join(dir, "uploads")
		c.ProcessedDir = filepath.Join(dir, "processed")
	}
	if v := os.Getenv(envMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %v: %w", envMaxUploadBytes, err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	if c.UploadDir == "" || c.ProcessedDir == "" {
		return fmt.Errorf("upload_dir and processed_dir are required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	switch c.Resizer {
	case resizerImaging, resizerNfnt, resizerImageMagick:
	default:
		return fmt.Errorf("unknown resizer: %q", c.Resizer)
	}
	return c.JPEG.Encoder().Validate()
}

func (c JPEGConfig) Encoder() *imgfit.Encoder {
	return &imgfit.Encoder{
		StartQuality: c.StartQuality,
		MinQuality:   c.MinQuality,
		QualityStep:  c.Step,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}
