// Package config provides configuration loading for the ai-classifier
// service. It supports loading from properties/INI files with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds all configuration options for the ai-classifier service.
type Config struct {
	// HTTP server
	Host string
	Port string

	// Storage
	DBPath   string
	CacheDir string

	// Debug
	DebugEnabled bool

	// Upstream tariff API
	TariffBaseURL     string
	TariffTimeout     time.Duration
	TariffRateLimit   int // requests per second against the upstream
	TariffRateBurst   int
	ConcessionBookRef string

	// Classification queue
	QueueMaxDepth     int
	QueueFullBehavior string // "drop" or "block"

	// Scheduled jobs
	JobsEnabled         bool
	JobsRefreshEnabled  bool
	JobsRefreshInterval time.Duration
	JobsRefreshTimeout  time.Duration
	JobsCleanupEnabled  bool
	JobsCleanupInterval time.Duration
	JobsCleanupTimeout  time.Duration
	HistoryRetention    time.Duration

	// Metric families
	MetricsDeploymentEnabled bool
	MetricsResultsEnabled    bool
	MetricsRequestsEnabled   bool
	MetricsReferenceEnabled  bool
	MetricsQueueEnabled      bool

	// OpenTelemetry push exporter
	OTELMetricsEnabled      bool
	OTELMetricsEndpoint     string
	OTELMetricsProtocol     string // "grpc" or "http"
	OTELMetricsPushInterval time.Duration
	OTELMetricsInsecure     bool
}

// defaultConfig returns a Config with hardcoded defaults. The listen
// defaults (0.0.0.0:8000) are the container contract the image declares.
func defaultConfig() *Config {
	return &Config{
		Host:     "0.0.0.0",
		Port:     "8000",
		DBPath:   "/var/lib/ai-classifier/classifications.db",
		CacheDir: "/var/lib/ai-classifier/cache",

		DebugEnabled: false,

		TariffBaseURL:     "https://api.clear.ai/api/v1/au_tariff",
		TariffTimeout:     30 * time.Second,
		TariffRateLimit:   10,
		TariffRateBurst:   20,
		ConcessionBookRef: "AU_TARIFF_SCHED4_2022",

		QueueMaxDepth:     100,
		QueueFullBehavior: "drop",

		JobsEnabled:         true,
		JobsRefreshEnabled:  true,
		JobsRefreshInterval: 6 * time.Hour,
		JobsRefreshTimeout:  10 * time.Minute,
		JobsCleanupEnabled:  true,
		JobsCleanupInterval: 24 * time.Hour,
		JobsCleanupTimeout:  5 * time.Minute,
		HistoryRetention:    2160 * time.Hour, // 90 days

		MetricsDeploymentEnabled: true,
		MetricsResultsEnabled:    true,
		MetricsRequestsEnabled:   true,
		MetricsReferenceEnabled:  true,
		MetricsQueueEnabled:      true,

		OTELMetricsEnabled:      false,
		OTELMetricsEndpoint:     "localhost:4317",
		OTELMetricsProtocol:     "grpc",
		OTELMetricsPushInterval: 60 * time.Second,
		OTELMetricsInsecure:     false,
	}
}

// parseBool interprets the permissive truthy values accepted in config
// files and environment variables.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// setting describes a single config key: where it lives in the file, which
// environment variable overrides it, and how to apply the raw value.
type setting struct {
	fileKey string
	envVar  string
	apply   func(cfg *Config, raw string) error
}

func stringSetting(fileKey, envVar string, field func(cfg *Config) *string) setting {
	return setting{fileKey, envVar, func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}}
}

func boolSetting(fileKey, envVar string, field func(cfg *Config) *bool) setting {
	return setting{fileKey, envVar, func(cfg *Config, raw string) error {
		*field(cfg) = parseBool(raw)
		return nil
	}}
}

func intSetting(fileKey, envVar string, field func(cfg *Config) *int) setting {
	return setting{fileKey, envVar, func(cfg *Config, raw string) error {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", fileKey, err)
		}
		*field(cfg) = v
		return nil
	}}
}

func durationSetting(fileKey, envVar string, field func(cfg *Config) *time.Duration) setting {
	return setting{fileKey, envVar, func(cfg *Config, raw string) error {
		v, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s must be a duration (e.g. 30s, 6h): %w", fileKey, err)
		}
		*field(cfg) = v
		return nil
	}}
}

// settings is the full key table. File keys live in the default (unnamed)
// INI section; environment variables take precedence over file values.
var settings = []setting{
	stringSetting("host", "HOST", func(c *Config) *string { return &c.Host }),
	stringSetting("port", "PORT", func(c *Config) *string { return &c.Port }),
	stringSetting("db_path", "DB_PATH", func(c *Config) *string { return &c.DBPath }),
	stringSetting("cache_dir", "CACHE_DIR", func(c *Config) *string { return &c.CacheDir }),
	boolSetting("debug_enabled", "DEBUG_ENABLED", func(c *Config) *bool { return &c.DebugEnabled }),

	stringSetting("tariff_base_url", "TARIFF_BASE_URL", func(c *Config) *string { return &c.TariffBaseURL }),
	durationSetting("tariff_timeout", "TARIFF_TIMEOUT", func(c *Config) *time.Duration { return &c.TariffTimeout }),
	intSetting("tariff_rate_limit", "TARIFF_RATE_LIMIT", func(c *Config) *int { return &c.TariffRateLimit }),
	intSetting("tariff_rate_burst", "TARIFF_RATE_BURST", func(c *Config) *int { return &c.TariffRateBurst }),
	stringSetting("concession_book_ref", "CONCESSION_BOOK_REF", func(c *Config) *string { return &c.ConcessionBookRef }),

	intSetting("queue_max_depth", "QUEUE_MAX_DEPTH", func(c *Config) *int { return &c.QueueMaxDepth }),
	stringSetting("queue_full_behavior", "QUEUE_FULL_BEHAVIOR", func(c *Config) *string { return &c.QueueFullBehavior }),

	boolSetting("jobs_enabled", "JOBS_ENABLED", func(c *Config) *bool { return &c.JobsEnabled }),
	boolSetting("jobs_refresh_enabled", "JOBS_REFRESH_ENABLED", func(c *Config) *bool { return &c.JobsRefreshEnabled }),
	durationSetting("jobs_refresh_interval", "JOBS_REFRESH_INTERVAL", func(c *Config) *time.Duration { return &c.JobsRefreshInterval }),
	durationSetting("jobs_refresh_timeout", "JOBS_REFRESH_TIMEOUT", func(c *Config) *time.Duration { return &c.JobsRefreshTimeout }),
	boolSetting("jobs_cleanup_enabled", "JOBS_CLEANUP_ENABLED", func(c *Config) *bool { return &c.JobsCleanupEnabled }),
	durationSetting("jobs_cleanup_interval", "JOBS_CLEANUP_INTERVAL", func(c *Config) *time.Duration { return &c.JobsCleanupInterval }),
	durationSetting("jobs_cleanup_timeout", "JOBS_CLEANUP_TIMEOUT", func(c *Config) *time.Duration { return &c.JobsCleanupTimeout }),
	durationSetting("history_retention", "HISTORY_RETENTION", func(c *Config) *time.Duration { return &c.HistoryRetention }),

	boolSetting("metrics_deployment_enabled", "METRICS_DEPLOYMENT_ENABLED", func(c *Config) *bool { return &c.MetricsDeploymentEnabled }),
	boolSetting("metrics_results_enabled", "METRICS_RESULTS_ENABLED", func(c *Config) *bool { return &c.MetricsResultsEnabled }),
	boolSetting("metrics_requests_enabled", "METRICS_REQUESTS_ENABLED", func(c *Config) *bool { return &c.MetricsRequestsEnabled }),
	boolSetting("metrics_reference_enabled", "METRICS_REFERENCE_ENABLED", func(c *Config) *bool { return &c.MetricsReferenceEnabled }),
	boolSetting("metrics_queue_enabled", "METRICS_QUEUE_ENABLED", func(c *Config) *bool { return &c.MetricsQueueEnabled }),

	boolSetting("otel_metrics_enabled", "OTEL_METRICS_ENABLED", func(c *Config) *bool { return &c.OTELMetricsEnabled }),
	stringSetting("otel_metrics_endpoint", "OTEL_METRICS_ENDPOINT", func(c *Config) *string { return &c.OTELMetricsEndpoint }),
	stringSetting("otel_metrics_protocol", "OTEL_METRICS_PROTOCOL", func(c *Config) *string { return &c.OTELMetricsProtocol }),
	durationSetting("otel_metrics_push_interval", "OTEL_METRICS_PUSH_INTERVAL", func(c *Config) *time.Duration { return &c.OTELMetricsPushInterval }),
	boolSetting("otel_metrics_insecure", "OTEL_METRICS_INSECURE", func(c *Config) *bool { return &c.OTELMetricsInsecure }),
}

// LoadConfig reads the INI file at path and applies environment
// overrides on top. Precedence is environment over file over the
// built-in defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			iniFile, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}

			section := iniFile.Section("")
			for _, s := range settings {
				if !section.HasKey(s.fileKey) {
					continue
				}
				if err := s.apply(cfg, section.Key(s.fileKey).String()); err != nil {
					return nil, fmt.Errorf("config file %s: %w", path, err)
				}
			}
		} else if !os.IsNotExist(err) {
			// Stat failed for a reason other than absence
			return nil, fmt.Errorf("cannot access config file %s: %w", path, err)
		}
		// A missing file is fine; defaults plus environment cover it
	}

	for _, s := range settings {
		raw := os.Getenv(s.envVar)
		if raw == "" {
			continue
		}
		if err := s.apply(cfg, raw); err != nil {
			return nil, fmt.Errorf("environment variable %s: %w", s.envVar, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects values that would misconfigure the service in ways that
// only surface much later (a queue that always drops, a limiter that never
// admits a request).
func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric, got %q", c.Port)
	}
	if c.QueueFullBehavior != "drop" && c.QueueFullBehavior != "block" {
		return fmt.Errorf("queue_full_behavior must be \"drop\" or \"block\", got %q", c.QueueFullBehavior)
	}
	if c.TariffRateLimit < 1 {
		return fmt.Errorf("tariff_rate_limit must be at least 1, got %d", c.TariffRateLimit)
	}
	if c.TariffRateBurst < 1 {
		return fmt.Errorf("tariff_rate_burst must be at least 1, got %d", c.TariffRateBurst)
	}
	if c.OTELMetricsProtocol != "grpc" && c.OTELMetricsProtocol != "http" {
		return fmt.Errorf("otel_metrics_protocol must be \"grpc\" or \"http\", got %q", c.OTELMetricsProtocol)
	}
	return nil
}

// ListenAddr returns the host:port address the HTTP server binds.
func (c *Config) ListenAddr() string {
	return c.Host + ":" + c.Port
}

// LoadConfigWithDefaults looks for server.conf under /etc/ai-classifier
// first and the working directory second, falling back to built-in
// defaults when neither exists. Environment overrides apply in every
// case.
func LoadConfigWithDefaults() (*Config, error) {
	defaultPaths := []string{
		"/etc/ai-classifier/server.conf",
		"./server.conf",
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			// A present but unparseable file is fatal; do not fall
			// through to the next location
			return LoadConfig(path)
		}
	}

	return LoadConfig("")
}
