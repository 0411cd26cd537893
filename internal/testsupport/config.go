package testsupport

import (
	"path/filepath"
	"testing"

	"ingest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to a SQLite store and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.SQLitePath = filepath.Join(base, "data", "records.db")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithPostgres switches the store to PostgreSQL at dsn.
func WithPostgres(dsn string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = config.DriverPostgres
		b.cfg.Store.PostgresDSN = dsn
	}
}

// WithSourceTypes restricts the accepted source types.
func WithSourceTypes(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SourceTypes.Enabled = append([]string(nil), names...)
	}
}

// WithAPIToken requires the bearer token on API requests.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithStaleAfter enables the stale-claim reaper.
func WithStaleAfter(seconds, intervalSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.StaleAfterSeconds = seconds
		b.cfg.Queue.ReaperIntervalSeconds = intervalSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
