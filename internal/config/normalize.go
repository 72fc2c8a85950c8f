package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRegistry()
	c.normalizeGroup()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RegistryDir) == "" {
		c.Paths.RegistryDir = defaultRegistryDir
	}
	if c.Paths.RegistryDir, err = expandPath(c.Paths.RegistryDir); err != nil {
		return fmt.Errorf("paths.registry_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRegistry() {
	ext := strings.TrimPrefix(strings.TrimSpace(c.Registry.Extension), ".")
	if ext == "" {
		ext = defaultRegistryExtension
	}
	c.Registry.Extension = strings.ToLower(ext)
}

func (c *Config) normalizeGroup() {
	c.Group.Coordinator = strings.TrimSpace(c.Group.Coordinator)
	if c.Group.Coordinator == "" {
		c.Group.Coordinator = defaultCoordinator
	}
	if c.Group.Size == 0 {
		c.Group.Size = defaultGroupSize
	}
	if c.Group.JoinTimeout <= 0 {
		c.Group.JoinTimeout = defaultJoinTimeoutSeconds
	}
	if c.Group.DrainTimeout <= 0 {
		c.Group.DrainTimeout = defaultDrainTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Endpoint = strings.TrimSpace(c.Notifications.Endpoint)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
