package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ingest/internal/api"
	"ingest/internal/config"
	"ingest/internal/records"
	"ingest/internal/sourcetypes"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was requested.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withStore opens the record store for the duration of fn. The CLI acts with
// the administrative identity, so records of every project are visible.
func (c *commandContext) withStore(fn func(*records.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := records.Open(cfg)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// withService wraps the store in the same service the daemon serves, so
// validation and defaults match the HTTP API.
func (c *commandContext) withService(fn func(*api.Service) error) error {
	return c.withStore(func(store *records.Store) error {
		registry, err := sourcetypes.NewRegistry(c.config.SourceTypes.Enabled...)
		if err != nil {
			return err
		}
		return fn(api.NewService(store, api.Options{
			DefaultPollLimit: c.config.Queue.DefaultPollLimit,
			Registry:         registry,
		}))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
