// Package common holds the canonical environment variable names and the
// shared defaults the detect-pd commands read.
package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvLogLevel         = "LOG_LEVEL"
	EnvModelPath        = "MODEL_PATH"
	EnvModelURL         = "MODEL_URL"
	EnvDefaultModel     = "DEFAULT_MODEL"
	EnvListenPort       = "LISTEN_PORT"
	EnvMetricsPort      = "METRICS_PORT"
	EnvDashboardPort    = "DASHBOARD_PORT"
	EnvDataPath         = "DATA_PATH"
	EnvBaselinesPath    = "BASELINES_PATH"
	EnvLoadTimeout      = "LOAD_TIMEOUT"
	EnvTopK             = "TOP_K"
	EnvRemoteURL        = "REMOTE_URL"
	EnvRemoteTimeout    = "REMOTE_TIMEOUT"
	EnvHistoryRetention = "HISTORY_RETENTION"
)

// Configuration defaults
const (
	DefaultLogLevel     = "info"
	DefaultBatchWorkers = 4
)
