package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeExchange()
	if err := c.normalizeState(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeExchange() {
	c.Exchange.SidecarName = strings.TrimSpace(c.Exchange.SidecarName)
	if c.Exchange.SidecarName == "" {
		c.Exchange.SidecarName = defaultSidecarName
	}
	c.Exchange.WavName = strings.TrimSpace(c.Exchange.WavName)
	if c.Exchange.WavName == "" {
		c.Exchange.WavName = defaultWavName
	}
	if c.Exchange.ExtractedSuffix == "" {
		c.Exchange.ExtractedSuffix = defaultExtractedSuffix
	}
	if c.Exchange.BlockFrames == 0 {
		c.Exchange.BlockFrames = defaultBlockFrames
	}
}

func (c *Config) normalizeState() error {
	if strings.TrimSpace(c.State.Path) == "" {
		c.State.Path = defaultStatePath
	}
	var err error
	if c.State.Path, err = expandPath(c.State.Path); err != nil {
		return fmt.Errorf("state.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
