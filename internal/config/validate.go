package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExchange(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExchange() error {
	if c.Exchange.BlockFrames < 1 || c.Exchange.BlockFrames > maxBlockFrames {
		return fmt.Errorf("exchange.block_frames must be between 1 and %d, got %d", maxBlockFrames, c.Exchange.BlockFrames)
	}
	for key, name := range map[string]string{
		"exchange.sidecar_name": c.Exchange.SidecarName,
		"exchange.wav_name":     c.Exchange.WavName,
	} {
		if filepath.Base(name) != name {
			return fmt.Errorf("%s must be a file name without directories, got %q", key, name)
		}
	}
	if c.Exchange.SidecarName == c.Exchange.WavName {
		return fmt.Errorf("exchange.sidecar_name and exchange.wav_name must differ")
	}
	if strings.ContainsAny(c.Exchange.ExtractedSuffix, `/\`) {
		return fmt.Errorf("exchange.extracted_suffix must not contain path separators, got %q", c.Exchange.ExtractedSuffix)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
