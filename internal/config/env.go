package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// applyEnv overlays OPGRID_* environment variables onto the sections that
// declare env tags. Unset variables leave file values untouched.
func (c *Config) applyEnv() error {
	sections := []struct {
		name   string
		target any
	}{
		{"group", &c.Group},
		{"notifications", &c.Notifications},
		{"logging", &c.Logging},
		{"metrics", &c.Metrics},
	}
	for _, section := range sections {
		if err := env.Parse(section.target); err != nil {
			return fmt.Errorf("%s environment: %w", section.name, err)
		}
	}
	return nil
}
