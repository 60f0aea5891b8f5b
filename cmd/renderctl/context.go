package main

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"adrender/internal/app"
	"adrender/internal/config"
	"adrender/internal/media"
	"adrender/internal/pkg/logger"
	"adrender/internal/repositories"
	"adrender/internal/storage"
)

// commandContext loads configuration once and opens connections on demand.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadFile(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
		return *c.configFlag
	}
	return os.Getenv("ADRENDER_CONFIG")
}

// logger writes to stderr so command output stays parseable.
func (c *commandContext) logger(stderr io.Writer) *logger.Logger {
	cfg, _ := c.ensureConfig()
	level := cfg.Log.Level
	if level == "" || level == "info" {
		level = "warn"
	}
	return logger.New(logger.Config{Level: level, Format: "text", Output: stderr, ServiceName: "renderctl"})
}

func (c *commandContext) engine(log *logger.Logger) (*media.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := media.Check(cfg.MediaEngine()); err != nil {
		return nil, err
	}
	return media.New(cfg.MediaEngine(), nil, log), nil
}

// withRepository opens Postgres for the duration of fn.
func (c *commandContext) withRepository(ctx context.Context, fn func(*repositories.VideoRepository) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	pool, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(repositories.NewVideoRepository(pool))
}

func (c *commandContext) storage(ctx context.Context) (storage.Provider, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return storage.NewProvider(ctx, cfg.Storage)
}
