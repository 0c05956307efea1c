package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rxbridge"
	"github.com/cwbudde/rxbridge/internal/config"
	"github.com/cwbudde/rxbridge/internal/logging"
	"github.com/cwbudde/rxbridge/internal/session"
	"github.com/cwbudde/rxbridge/internal/state"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

// withStore opens the durable envelope slot for the duration of fn.
func (c *commandContext) withStore(fn func(*rxbridge.EnvelopeStore, *state.Slot) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	slot, err := state.Open(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer func() {
		if cerr := slot.Close(); cerr != nil {
			c.logger.Warn("failed to close state database", slog.Any("error", cerr))
		}
	}()

	return fn(rxbridge.NewEnvelopeStore(slot, cfg.Exchange.SidecarName, c.logger), slot)
}

func loadProject(path string) (*session.Session, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--project is required")
	}
	return session.Load(path)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
