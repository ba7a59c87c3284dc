package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Sakimotor/TranslationFramework2/internal/config"
	"github.com/Sakimotor/TranslationFramework2/internal/persistence"
	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

type globalFlags struct {
	gameDir     string
	projectFile string
	logLevel    string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logFile *log.FileLogger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) projectPath() string {
	if path := strings.TrimSpace(c.flags.projectFile); path != "" {
		return path
	}
	return config.ProjectFilePath()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		projectOpt, err := config.LoadProjectOption(c.projectPath())
		if err != nil {
			c.configErr = service.WrapError(err, service.ErrConfig, "cannot load project file").
				WithContext("path", c.projectPath())
			return
		}
		cfg, err := config.NewFromEnv(projectOpt, config.WithGameDir(c.flags.gameDir))
		if err != nil {
			c.configErr = service.WrapError(err, service.ErrConfig, "invalid configuration")
			return
		}
		if err := c.setupLogging(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) setupLogging(cfg *config.Config) error {
	levelName := cfg.Log.Level
	if strings.TrimSpace(c.flags.logLevel) != "" {
		levelName = c.flags.logLevel
	}
	level := log.ParseLevel(levelName)

	if cfg.Log.File == "" {
		log.InitLogger(level)
		return nil
	}
	fl, err := log.NewFileLogger(cfg.Log.File, level)
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "cannot open log file").
			WithContext("path", cfg.Log.File)
	}
	c.logFile = fl
	log.SetLogger(fl.Logger)
	return nil
}

// withService runs fn against a project service backed by the history
// database, which is closed afterwards.
func (c *commandContext) withService(fn func(*service.ProjectService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return service.WrapError(err, service.ErrFileWrite, "cannot open rebuild history").
			WithContext("path", cfg.DBPath())
	}
	defer store.Close()

	svc, err := service.NewProjectService(cfg, store, cron.New())
	if err != nil {
		return err
	}
	return fn(svc)
}

func (c *commandContext) close() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// describeError renders err with a hint when it belongs to a known class.
func describeError(err error) string {
	classified := service.Classify(err)
	if classified.Type == service.ErrUnknown {
		return err.Error()
	}
	msg := err.Error()
	var cmnErr *service.CmnError
	if !errors.As(err, &cmnErr) {
		msg = fmt.Sprintf("%s: %v", classified.Message, err)
	}
	return fmt.Sprintf("%s\nhint: %s", msg, service.GetAdvice(classified))
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
