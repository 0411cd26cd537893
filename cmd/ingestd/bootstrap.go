package main

import (
	"path/filepath"

	"ingest/internal/config"
	"ingest/internal/logging"
	"ingest/internal/sourcetypes"
)

func buildRegistry(cfg *config.Config) (*sourcetypes.Registry, error) {
	if cfg == nil {
		return sourcetypes.NewRegistry()
	}
	return sourcetypes.NewRegistry(cfg.SourceTypes.Enabled...)
}

// retentionTargets prunes rotated logs but never the active daemon log.
func retentionTargets(cfg *config.Config) []logging.RetentionTarget {
	if cfg == nil || cfg.Paths.LogDir == "" {
		return nil
	}
	return []logging.RetentionTarget{{
		Dir:     cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(cfg.Paths.LogDir, "ingestd.log")},
	}}
}
