package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.driver is sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn must be set when store.driver is postgres (or set INGEST_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite or postgres)", c.Store.Driver)
	}
	return ensurePositiveMap(map[string]int{
		"store.busy_timeout_ms": c.Store.BusyTimeoutMS,
		"store.max_open_conns":  c.Store.MaxOpenConns,
	})
}

func (c *Config) validateAPI() error {
	if c.API.Bind == "" {
		return nil
	}
	if err := ensurePositiveMap(map[string]int{
		"api.read_timeout":  c.API.ReadTimeout,
		"api.write_timeout": c.API.WriteTimeout,
	}); err != nil {
		return err
	}
	if c.API.MaxContentBytes <= 0 {
		return errors.New("api.max_content_bytes must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.default_poll_limit":      c.Queue.DefaultPollLimit,
		"queue.max_poll_limit":          c.Queue.MaxPollLimit,
		"queue.max_query_limit":         c.Queue.MaxQueryLimit,
		"queue.reaper_interval_seconds": c.Queue.ReaperIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Queue.DefaultPollLimit > c.Queue.MaxPollLimit {
		return errors.New("queue.default_poll_limit must not exceed queue.max_poll_limit")
	}
	if c.Queue.StaleAfterSeconds < 0 {
		return errors.New("queue.stale_after_seconds must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
