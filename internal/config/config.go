// Package config loads and validates audit configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	OCR     OCRConfig     `mapstructure:"ocr"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Output  OutputConfig  `mapstructure:"output"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig locates the legislative document API.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Terms   []int  `mapstructure:"terms"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	MaxRetries          int     `mapstructure:"max_retries"`
	RateLimitMaxRetries int     `mapstructure:"rate_limit_max_retries"`
	BackoffInitialMs    int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs        int     `mapstructure:"backoff_max_ms"`
	RateLimitWaitMs     int     `mapstructure:"rate_limit_wait_ms"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	ProxyURL            string  `mapstructure:"proxy_url"`
}

// CrawlConfig governs the worker pool walking the process tree.
type CrawlConfig struct {
	Workers int `mapstructure:"workers"`
}

// OCRConfig configures the shared OCR engine and page rendering.
type OCRConfig struct {
	Languages []string `mapstructure:"languages"`
	DPI       int      `mapstructure:"dpi"`
}

// ScanConfig carries the trigger vocabulary and risk policy. The fuzzy
// threshold and increment values are tuning constants, not invariants, so
// they live here rather than in code.
type ScanConfig struct {
	Triggers              map[string][]string `mapstructure:"triggers"`
	FuzzyThreshold        int                 `mapstructure:"fuzzy_threshold"`
	MatchIncrement        int                 `mapstructure:"match_increment"`
	DiffIncrement         int                 `mapstructure:"diff_increment"`
	CorrelationBonus      int                 `mapstructure:"correlation_bonus"`
	CorrelationCategories []string            `mapstructure:"correlation_categories"`
	LockedRisk            int                 `mapstructure:"locked_risk"`
}

// normalizeCategories upper-cases category names on both sides of the
// correlation check. Viper lower-cases map keys read from a config file, so
// without this a file-supplied vocabulary could never correlate against
// scan.correlation_categories.
func (c *ScanConfig) normalizeCategories() {
	triggers := make(map[string][]string, len(c.Triggers))
	for cat, terms := range c.Triggers {
		triggers[strings.ToUpper(cat)] = terms
	}
	c.Triggers = triggers
	for i, cat := range c.CorrelationCategories {
		c.CorrelationCategories[i] = strings.ToUpper(cat)
	}
}

// OutputConfig controls where and how often result segments are written.
type OutputConfig struct {
	Dir                  string `mapstructure:"dir"`
	FlushIntervalMinutes int    `mapstructure:"flush_interval_minutes"`
	FlushEveryProcesses  int    `mapstructure:"flush_every_processes"`
	GCSBucket            string `mapstructure:"gcs_bucket"`
	PostgresDSN          string `mapstructure:"postgres_dsn"`
}

// NotifyConfig controls publication of high-risk findings.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
	MinRisk   int    `mapstructure:"min_risk"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Scan.normalizeCategories()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.sejm.gov.pl/sejm")
	v.SetDefault("api.terms", []int{9, 10})
	v.SetDefault("http.timeout_seconds", 120)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.rate_limit_max_retries", 8)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.rate_limit_wait_ms", 10000)
	v.SetDefault("http.requests_per_second", 4.0)
	v.SetDefault("crawl.workers", 4)
	v.SetDefault("ocr.languages", []string{"pol"})
	v.SetDefault("ocr.dpi", 200)
	v.SetDefault("scan.triggers", defaultTriggers())
	v.SetDefault("scan.fuzzy_threshold", 90)
	v.SetDefault("scan.match_increment", 2)
	v.SetDefault("scan.diff_increment", 5)
	v.SetDefault("scan.correlation_bonus", 10)
	v.SetDefault("scan.correlation_categories", []string{"FINANSE", "WOJSKO_SLUZBY"})
	v.SetDefault("scan.locked_risk", 8)
	v.SetDefault("output.dir", "data/audit")
	v.SetDefault("output.flush_interval_minutes", 5)
	v.SetDefault("output.flush_every_processes", 5)
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.min_risk", 6)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// defaultTriggers is the vocabulary observed to surface buried spending and
// security-service riders in otherwise unrelated bills.
func defaultTriggers() map[string][]string {
	return map[string][]string{
		"FINANSE": {
			"uposazenie", "dodatek", "gratyfikacja", "naleznosc", "kwota bazowa",
			"skutki finansowe", "mld zl", "srodki majatkowe", "budzet",
			"zwiekszenie", "wynagrodzenie",
		},
		"WOJSKO_SLUZBY": {
			"wojsko", "obrona narodowa", "zolnierz", "weteran", "amw",
			"uzbrojenie", "modernizacja", "fundusz wsparcia", "sluzb specjalnych",
			"cba", "abw", "skw", "sww", "wywiad", "kontrwywiad", "funkcjonariusz",
		},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if len(c.API.Terms) == 0 {
		return fmt.Errorf("api.terms must list at least one term")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if len(c.Scan.Triggers) == 0 {
		return fmt.Errorf("scan.triggers must define at least one category")
	}
	if c.Scan.FuzzyThreshold < 0 || c.Scan.FuzzyThreshold > 100 {
		return fmt.Errorf("scan.fuzzy_threshold must be in [0,100]")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Output.FlushIntervalMinutes <= 0 && c.Output.FlushEveryProcesses <= 0 {
		return fmt.Errorf("at least one of output.flush_interval_minutes or output.flush_every_processes must be > 0")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.TopicID == "") {
		return fmt.Errorf("notify.project_id and notify.topic_id must be set when notify.provider is 'pubsub'")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// FlushInterval converts the configured flush cadence into a duration.
// Zero means the interval trigger is disabled.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Output.FlushIntervalMinutes) * time.Minute
}
