package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

// Config holds all application configuration.
// Values come from environment variables (a .env file in the working
// directory is loaded first when present) and may be overridden by a
// project file through WithProject.
//
// Environment Variables:
// Paths:
// - CMN_GAME_DIR: extracted game directory holding the assets (default: .)
// - CMN_CHANGES_DIR: overlay directory (default: .cmntrans/changes)
// - CMN_OUTPUT_DIR: rebuilt assets (default: .cmntrans/out)
// - CMN_DATA_DIR: rebuild history database (default: .cmntrans)
//
// Asset Format:
// - CMN_ENCODING: text encoding label (default: shift_jis)
// - CMN_LONG_WIDTH: long record slot width in bytes (default: 128)
// - CMN_SHORT_WIDTH: short record slot width in bytes (default: 64)
//
// Rebuild:
// - CMN_PATTERNS: comma separated asset file name globs (default: cmn.bin)
// - CMN_CONCURRENCY: assets rebuilt in parallel (default: 2)
// - CMN_CRON_EXPR: schedule for project rebuilds (default: 0 * * * *)
//
// Logging:
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: append log lines to this file (optional)
type Config struct {
	Paths   PathsConfig   `json:"paths"`
	Format  FormatConfig  `json:"format"`
	Rebuild RebuildConfig `json:"rebuild"`
	Log     LogConfig     `json:"log"`
}

// PathsConfig locates the game files and everything derived from them.
type PathsConfig struct {
	GameDir    string `json:"game_dir"`
	ChangesDir string `json:"changes_dir"`
	OutputDir  string `json:"output_dir"`
	DataDir    string `json:"data_dir"`
}

// FormatConfig describes how text is stored inside the assets.
type FormatConfig struct {
	Encoding   string `json:"encoding"`
	LongWidth  int    `json:"long_width"`
	ShortWidth int    `json:"short_width"`
}

type RebuildConfig struct {
	Patterns    []string `json:"patterns"`
	Concurrency int      `json:"concurrency"`
	CronExpr    string   `json:"cron_expr"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithGameDir overrides the game directory, e.g. from a command line flag.
func WithGameDir(dir string) Option {
	return func(c *Config) {
		if strings.TrimSpace(dir) != "" {
			c.Paths.GameDir = dir
		}
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	config := &Config{
		Paths: PathsConfig{
			GameDir:    getEnvString("CMN_GAME_DIR", "."),
			ChangesDir: getEnvString("CMN_CHANGES_DIR", filepath.Join(".cmntrans", "changes")),
			OutputDir:  getEnvString("CMN_OUTPUT_DIR", filepath.Join(".cmntrans", "out")),
			DataDir:    getEnvString("CMN_DATA_DIR", ".cmntrans"),
		},
		Format: FormatConfig{
			Encoding:   getEnvString("CMN_ENCODING", "shift_jis"),
			LongWidth:  getEnvInt("CMN_LONG_WIDTH", cmnbin.DefaultLongWidth),
			ShortWidth: getEnvInt("CMN_SHORT_WIDTH", cmnbin.DefaultShortWidth),
		},
		Rebuild: RebuildConfig{
			Patterns:    getEnvList("CMN_PATTERNS", []string{"cmn.bin"}),
			Concurrency: getEnvInt("CMN_CONCURRENCY", 2),
			CronExpr:    getEnvString("CMN_CRON_EXPR", "0 * * * *"),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Paths.GameDir) == "" {
		return fmt.Errorf("CMN_GAME_DIR is required")
	}
	if _, err := binio.LookupEncoding(c.Format.Encoding); err != nil {
		return fmt.Errorf("CMN_ENCODING: %w", err)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("invalid record widths: %w", err)
	}
	if len(c.Rebuild.Patterns) == 0 {
		return fmt.Errorf("CMN_PATTERNS must name at least one pattern")
	}
	for _, p := range c.Rebuild.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	if c.Rebuild.Concurrency < 1 {
		return fmt.Errorf("CMN_CONCURRENCY must be at least 1, got %d", c.Rebuild.Concurrency)
	}
	if _, err := cron.ParseStandard(c.Rebuild.CronExpr); err != nil {
		return fmt.Errorf("invalid CMN_CRON_EXPR: %w", err)
	}
	return nil
}

// DBPath is the rebuild history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "cmntrans.db")
}

// Layout is the asset layout described by the format settings.
func (c *Config) Layout() cmnbin.Layout {
	layout := cmnbin.DefaultLayout()
	layout.LongWidth = c.Format.LongWidth
	layout.ShortWidth = c.Format.ShortWidth
	return layout
}

// TextEncoding resolves the configured encoding label.
func (c *Config) TextEncoding() (binio.Encoding, error) {
	return binio.LookupEncoding(c.Format.Encoding)
}

// loadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
