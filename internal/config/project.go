package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
)

const DefaultProjectFile = "cmntrans.toml"

// Project is the per-game settings file kept next to the translation work.
// Zero values leave the environment setting in place.
type Project struct {
	GameDir     string   `toml:"game_dir,omitempty" json:"game_dir,omitempty"`
	ChangesDir  string   `toml:"changes_dir,omitempty" json:"changes_dir,omitempty"`
	OutputDir   string   `toml:"output_dir,omitempty" json:"output_dir,omitempty"`
	Encoding    string   `toml:"encoding,omitempty" json:"encoding,omitempty"`
	LongWidth   int      `toml:"long_width,omitempty" json:"long_width,omitempty"`
	ShortWidth  int      `toml:"short_width,omitempty" json:"short_width,omitempty"`
	Patterns    []string `toml:"patterns,omitempty" json:"patterns,omitempty"`
	Concurrency int      `toml:"concurrency,omitempty" json:"concurrency,omitempty"`
	CronExpr    string   `toml:"cron_expr,omitempty" json:"cron_expr,omitempty"`
}

func ProjectFilePath() string {
	return getEnvString("CMN_PROJECT_FILE", DefaultProjectFile)
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Encoding) != "" {
		if _, err := binio.LookupEncoding(p.Encoding); err != nil {
			return fmt.Errorf("invalid encoding: %w", err)
		}
	}
	if p.LongWidth < 0 {
		return fmt.Errorf("long_width must be positive, got %d", p.LongWidth)
	}
	if p.ShortWidth < 0 {
		return fmt.Errorf("short_width must be positive, got %d", p.ShortWidth)
	}
	if p.Concurrency < 0 {
		return fmt.Errorf("concurrency must be positive, got %d", p.Concurrency)
	}
	for _, pattern := range p.Patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	if strings.TrimSpace(p.CronExpr) != "" {
		if _, err := cron.ParseStandard(p.CronExpr); err != nil {
			return fmt.Errorf("invalid cron_expr: %w", err)
		}
	}
	return nil
}

// Project returns the current settings in project file form.
func (c *Config) Project() Project {
	return Project{
		GameDir:     c.Paths.GameDir,
		ChangesDir:  c.Paths.ChangesDir,
		OutputDir:   c.Paths.OutputDir,
		Encoding:    c.Format.Encoding,
		LongWidth:   c.Format.LongWidth,
		ShortWidth:  c.Format.ShortWidth,
		Patterns:    append([]string(nil), c.Rebuild.Patterns...),
		Concurrency: c.Rebuild.Concurrency,
		CronExpr:    c.Rebuild.CronExpr,
	}
}

func WithProject(p Project) Option {
	return func(c *Config) {
		if strings.TrimSpace(p.GameDir) != "" {
			c.Paths.GameDir = p.GameDir
		}
		if strings.TrimSpace(p.ChangesDir) != "" {
			c.Paths.ChangesDir = p.ChangesDir
		}
		if strings.TrimSpace(p.OutputDir) != "" {
			c.Paths.OutputDir = p.OutputDir
		}
		if strings.TrimSpace(p.Encoding) != "" {
			c.Format.Encoding = p.Encoding
		}
		if p.LongWidth > 0 {
			c.Format.LongWidth = p.LongWidth
		}
		if p.ShortWidth > 0 {
			c.Format.ShortWidth = p.ShortWidth
		}
		if len(p.Patterns) > 0 {
			c.Rebuild.Patterns = append([]string(nil), p.Patterns...)
		}
		if p.Concurrency > 0 {
			c.Rebuild.Concurrency = p.Concurrency
		}
		if strings.TrimSpace(p.CronExpr) != "" {
			c.Rebuild.CronExpr = p.CronExpr
		}
	}
}

// LoadProjectFile reads a project file. The error matches fs.ErrNotExist
// when there is none.
func LoadProjectFile(path string) (Project, error) {
	file, err := os.Open(path)
	if err != nil {
		return Project{}, err
	}
	defer file.Close()

	var p Project
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil {
		return Project{}, fmt.Errorf("invalid project file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Project{}, fmt.Errorf("invalid project file: %w", err)
	}
	return p, nil
}

// LoadProjectOption is WithProject for the file at path, or a no-op when
// the file does not exist.
func LoadProjectOption(path string) (Option, error) {
	p, err := LoadProjectFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return func(*Config) {}, nil
	}
	if err != nil {
		return nil, err
	}
	return WithProject(p), nil
}

func WriteProjectFile(path string, p Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := toml.Marshal(p)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
