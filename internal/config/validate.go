package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"

	"golang.org/x/sys/unix"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGroup(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGroup() error {
	if c.Group.Size < 1 {
		return fmt.Errorf("group.size must be at least 1, got %d", c.Group.Size)
	}
	if c.Group.Rank < 0 || c.Group.Rank >= c.Group.Size {
		return fmt.Errorf("group.rank %d out of range for group.size %d", c.Group.Rank, c.Group.Size)
	}
	if c.Group.Size > 1 {
		if _, _, err := net.SplitHostPort(c.Group.Coordinator); err != nil {
			return fmt.Errorf("group.coordinator: %w", err)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.Endpoint == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.Endpoint)
	if err != nil {
		return fmt.Errorf("notifications.endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("notifications.endpoint must be an http or https URL")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want auto, console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
		return fmt.Errorf("metrics.listen: %w", err)
	}
	return nil
}

// CheckRegistryAccess verifies that the schema registry directory exists and
// can be listed and read by this process.
func (c *Config) CheckRegistryAccess() error {
	info, err := os.Stat(c.Paths.RegistryDir)
	if err != nil {
		return fmt.Errorf("paths.registry_dir %q: %w", c.Paths.RegistryDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("paths.registry_dir %q is not a directory", c.Paths.RegistryDir)
	}
	if err := unix.Access(c.Paths.RegistryDir, unix.R_OK|unix.X_OK); err != nil {
		return fmt.Errorf("paths.registry_dir %q: insufficient permissions: %w", c.Paths.RegistryDir, err)
	}
	return nil
}
