package main

import (
	"strings"
	"sync"

	"vtranscoder/internal/config"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/state"
)

type commandContext struct {
	configFlag *string

	readOnce sync.Once
	config   *config.Config
	path     string
	exists   bool
	readErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// readConfig parses the configuration without validating it. Commands that
// only touch the state documents use it so a half-edited file or a missing
// encoder binary does not lock the user out of status and stop.
func (c *commandContext) readConfig() (*config.Config, error) {
	c.readOnce.Do(func() {
		c.config, c.path, c.exists, c.readErr = config.Read(c.flagPath())
	})
	return c.config, c.readErr
}

// loadConfig parses and validates the configuration.
func (c *commandContext) loadConfig() (*config.Config, string, error) {
	cfg, path, _, err := config.Load(c.flagPath())
	return cfg, path, err
}

func (c *commandContext) openStore() (*config.Config, *state.Store, error) {
	cfg, err := c.readConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := state.Open(cfg.Paths.StateDir, logging.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
