package config

const (
	defaultDataDir               = "~/.local/share/ingest"
	defaultLogDir                = "~/.local/share/ingest/logs"
	defaultStoreDriver           = DriverSQLite
	defaultSQLiteFile            = "records.db"
	defaultBusyTimeoutMillis     = 5000
	defaultMaxOpenConns          = 8
	defaultAPIBind               = "127.0.0.1:7590"
	defaultAPIReadTimeout        = 15
	defaultAPIWriteTimeout       = 30
	defaultMaxContentBytes       = 64 << 20
	defaultPollLimit             = 10
	defaultMaxPollLimit          = 100
	defaultMaxQueryLimit         = 500
	defaultReaperIntervalSeconds = 60
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Driver:        defaultStoreDriver,
			BusyTimeoutMS: defaultBusyTimeoutMillis,
			MaxOpenConns:  defaultMaxOpenConns,
		},
		API: API{
			Bind:            defaultAPIBind,
			ReadTimeout:     defaultAPIReadTimeout,
			WriteTimeout:    defaultAPIWriteTimeout,
			MaxContentBytes: defaultMaxContentBytes,
		},
		Queue: Queue{
			DefaultPollLimit:      defaultPollLimit,
			MaxPollLimit:          defaultMaxPollLimit,
			MaxQueryLimit:         defaultMaxQueryLimit,
			ReaperIntervalSeconds: defaultReaperIntervalSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
