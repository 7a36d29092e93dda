package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Models           map[string]ModelConfig
	DefaultModel     string
	ListenPort       int
	MetricsPort      int
	DashboardPort    int
	DataPath         string
	BaselinesPath    string
	LoadTimeout      time.Duration
	TopK             int
	RemoteURL        string
	RemoteTimeout    time.Duration
	HistoryRetention time.Duration
}

// ModelConfig names one artifact source for the registry. Exactly one of
// Path and URL must be set.
type ModelConfig struct {
	Path        string `yaml:"path"`
	URL         string `yaml:"url"`
	Calibration string `yaml:"calibration"`
	TopK        int    `yaml:"topK"`
}

type ConfigFile struct {
	Server struct {
		ListenPort    int `yaml:"listenPort"`
		MetricsPort   int `yaml:"metricsPort"`
		DashboardPort int `yaml:"dashboardPort"`
	} `yaml:"server"`

	ML struct {
		DefaultModel string                 `yaml:"defaultModel"`
		LoadTimeout  string                 `yaml:"loadTimeout"`
		TopK         int                    `yaml:"topK"`
		Baselines    string                 `yaml:"baselines"`
		Models       map[string]ModelConfig `yaml:"models"`
	} `yaml:"ml"`

	Remote struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"remote"`

	System struct {
		DataPath         string `yaml:"dataPath"`
		HistoryRetention string `yaml:"historyRetention"`
	} `yaml:"system"`
}

// DefaultModelName keys the model built from MODEL_PATH/MODEL_URL when no
// config file names any.
const DefaultModelName = "pd-stage"

func Load() (Settings, error) {
	// A .env next to the binary fills in unset variables only.
	_ = godotenv.Load()

	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	loadTimeout, err := time.ParseDuration(config.ML.LoadTimeout)
	if err != nil {
		loadTimeout = 30 * time.Second
	}

	remoteTimeout, err := time.ParseDuration(config.Remote.Timeout)
	if err != nil {
		remoteTimeout = 5 * time.Second
	}

	retention, err := time.ParseDuration(config.System.HistoryRetention)
	if err != nil {
		retention = 90 * 24 * time.Hour
	}

	settings := Settings{
		Models:           getModelsFromEnvOrConfig(config.ML.Models),
		DefaultModel:     getEnvOrDefault("DEFAULT_MODEL", defaultString(config.ML.DefaultModel, DefaultModelName)),
		ListenPort:       getIntFromEnvOrConfig("LISTEN_PORT", config.Server.ListenPort, 8090),
		MetricsPort:      getIntFromEnvOrConfig("METRICS_PORT", config.Server.MetricsPort, 8080),
		DashboardPort:    getIntFromEnvOrConfig("DASHBOARD_PORT", config.Server.DashboardPort, 0),
		DataPath:         getEnvOrDefault("DATA_PATH", config.System.DataPath),
		BaselinesPath:    getEnvOrDefault("BASELINES_PATH", config.ML.Baselines),
		LoadTimeout:      getDurationOrDefault("LOAD_TIMEOUT", loadTimeout),
		TopK:             getIntFromEnvOrConfig("TOP_K", config.ML.TopK, 2),
		RemoteURL:        getEnvOrDefault("REMOTE_URL", config.Remote.URL),
		RemoteTimeout:    getDurationOrDefault("REMOTE_TIMEOUT", remoteTimeout),
		HistoryRetention: getDurationOrDefault("HISTORY_RETENTION", retention),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	modelPath := os.Getenv("MODEL_PATH")
	modelURL := os.Getenv("MODEL_URL")
	if modelPath == "" && modelURL == "" {
		return Settings{}, fmt.Errorf("either MODEL_PATH or MODEL_URL is required")
	}

	settings := Settings{
		Models: map[string]ModelConfig{
			getEnvOrDefault("DEFAULT_MODEL", DefaultModelName): {
				Path:        modelPath,
				URL:         modelURL,
				Calibration: os.Getenv("CALIBRATION_PATH"),
			},
		},
		DefaultModel:     getEnvOrDefault("DEFAULT_MODEL", DefaultModelName),
		ListenPort:       getIntOrDefault("LISTEN_PORT", 8090),
		MetricsPort:      getIntOrDefault("METRICS_PORT", 8080),
		DashboardPort:    getIntOrDefault("DASHBOARD_PORT", 0),
		DataPath:         os.Getenv("DATA_PATH"),      // optional
		BaselinesPath:    os.Getenv("BASELINES_PATH"), // optional
		LoadTimeout:      getDurationOrDefault("LOAD_TIMEOUT", 30*time.Second),
		TopK:             getIntOrDefault("TOP_K", 2),
		RemoteURL:        os.Getenv("REMOTE_URL"), // optional
		RemoteTimeout:    getDurationOrDefault("REMOTE_TIMEOUT", 5*time.Second),
		HistoryRetention: getDurationOrDefault("HISTORY_RETENTION", 90*24*time.Hour),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// GetModelConfig returns the configuration for a named model, falling back
// to the default model's entry when the name is unknown.
func (s *Settings) GetModelConfig(name string) ModelConfig {
	if config, exists := s.Models[name]; exists {
		return config
	}
	return s.Models[s.DefaultModel]
}

// getModelsFromEnvOrConfig lets MODEL_PATH/MODEL_URL inject or override a
// single model entry on top of the file's map.
func getModelsFromEnvOrConfig(configModels map[string]ModelConfig) map[string]ModelConfig {
	models := make(map[string]ModelConfig, len(configModels)+1)
	for name, mc := range configModels {
		models[name] = mc
	}
	path, url := os.Getenv("MODEL_PATH"), os.Getenv("MODEL_URL")
	if path != "" || url != "" {
		name := getEnvOrDefault("DEFAULT_MODEL", DefaultModelName)
		models[name] = ModelConfig{
			Path:        path,
			URL:         url,
			Calibration: os.Getenv("CALIBRATION_PATH"),
		}
	}
	return models
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate model sources
	if len(settings.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	if _, ok := settings.Models[settings.DefaultModel]; !ok {
		return fmt.Errorf("default model %q is not configured", settings.DefaultModel)
	}
	for name, mc := range settings.Models {
		if mc.Path == "" && mc.URL == "" {
			return fmt.Errorf("model %s: either path or url is required", name)
		}
		if mc.Path != "" && mc.URL != "" {
			return fmt.Errorf("model %s: path and url are mutually exclusive", name)
		}
		if mc.URL != "" && !strings.HasPrefix(mc.URL, "http://") && !strings.HasPrefix(mc.URL, "https://") {
			return fmt.Errorf("model %s: url must be http(s), got %s", name, mc.URL)
		}
		if mc.TopK < 0 || mc.TopK > 16 {
			return fmt.Errorf("model %s: topK must be between 0 and 16, got %d", name, mc.TopK)
		}
	}

	// Validate ports
	if settings.ListenPort < 1024 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", settings.ListenPort)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.DashboardPort != 0 && (settings.DashboardPort < 1024 || settings.DashboardPort > 65535) {
		return fmt.Errorf("dashboard port must be 0 (disabled) or between 1024 and 65535, got %d", settings.DashboardPort)
	}

	// Validate time durations
	if settings.LoadTimeout < time.Second || settings.LoadTimeout > 5*time.Minute {
		return fmt.Errorf("load timeout must be between 1s and 5m, got %v", settings.LoadTimeout)
	}
	if settings.RemoteURL != "" && (settings.RemoteTimeout < time.Second || settings.RemoteTimeout > time.Minute) {
		return fmt.Errorf("remote timeout must be between 1s and 1m, got %v", settings.RemoteTimeout)
	}
	if settings.DataPath != "" && settings.HistoryRetention < time.Hour {
		return fmt.Errorf("history retention must be at least 1h, got %v", settings.HistoryRetention)
	}

	// Validate ranked-output size
	if settings.TopK < 1 || settings.TopK > 16 {
		return fmt.Errorf("topK must be between 1 and 16, got %d", settings.TopK)
	}

	return nil
}
