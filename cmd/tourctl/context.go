package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/your-org/tourpipe/internal/app"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/logger"
)

type commandContext struct {
	bucket     string
	jsonOutput bool
	logLevel   string

	loadConfig func() (*config.Config, error)
	build      func(*config.Config, *zap.Logger) (*app.Components, error)

	once       sync.Once
	config     *config.Config
	components *app.Components
	initErr    error
}

func newCommandContext() *commandContext {
	return &commandContext{
		loadConfig: config.Load,
		build: func(cfg *config.Config, logr *zap.Logger) (*app.Components, error) {
			return app.Build(cfg, logr, nil)
		},
	}
}

func (c *commandContext) ensureComponents() (*app.Components, error) {
	c.once.Do(func() {
		cfg, err := c.loadConfig()
		if err != nil {
			c.initErr = fmt.Errorf("load config: %w", err)
			return
		}
		level := cfg.App.LogLevel
		if strings.TrimSpace(c.logLevel) != "" {
			level = c.logLevel
		}
		logr, err := logger.New(logger.Options{
			Level:       level,
			Service:     "tourctl",
			Environment: cfg.App.Environment,
			Console:     isatty.IsTerminal(os.Stderr.Fd()),
		})
		if err != nil {
			c.initErr = fmt.Errorf("init logger: %w", err)
			return
		}
		components, err := c.build(cfg, logr)
		if err != nil {
			c.initErr = err
			return
		}
		c.config = cfg
		c.components = components
	})
	return c.components, c.initErr
}

// bucketName prefers the --bucket flag over the configured bucket.
func (c *commandContext) bucketName() string {
	if b := strings.TrimSpace(c.bucket); b != "" {
		return b
	}
	if c.config != nil {
		return c.config.Storage.Bucket
	}
	return ""
}

func (c *commandContext) close() error {
	if c.components == nil {
		return nil
	}
	components := c.components
	c.components = nil
	return components.Close()
}
