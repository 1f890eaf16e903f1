package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration for the research orchestrator.
// Values come from a YAML file (CONFIG_PATH) with env-var overrides.
type Config struct {
	Temporal struct {
		HostPort  string `mapstructure:"host_port"`
		Namespace string `mapstructure:"namespace"`
		TaskQueue string `mapstructure:"task_queue"`
	} `mapstructure:"temporal"`

	LLM struct {
		ServiceURL string        `mapstructure:"service_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"llm"`

	Research ResearchDefaults `mapstructure:"research"`

	Tools struct {
		CatalogPath    string        `mapstructure:"catalog_path"`
		GatewayURL     string        `mapstructure:"gateway_url"`
		CallTimeout    time.Duration `mapstructure:"call_timeout"`
		CallsPerSecond float64       `mapstructure:"calls_per_second"`
		Burst          int           `mapstructure:"burst"`
	} `mapstructure:"tools"`

	Redis struct {
		URL             string        `mapstructure:"url"`
		ClarificationTTL time.Duration `mapstructure:"clarification_ttl"`
	} `mapstructure:"redis"`

	Database struct {
		DSN     string `mapstructure:"dsn"`
		Enabled bool   `mapstructure:"enabled"`
	} `mapstructure:"database"`

	Server struct {
		HTTPPort  int `mapstructure:"http_port"`
		AdminPort int `mapstructure:"admin_port"`
	} `mapstructure:"server"`

	Streaming struct {
		RingCapacity int `mapstructure:"ring_capacity"`
	} `mapstructure:"streaming"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`
}

// ResearchDefaults are the per-run caps applied when a request leaves them unset.
type ResearchDefaults struct {
	MaxReviewIterations   int           `mapstructure:"max_review_iterations"`
	MaxToolCalls          int           `mapstructure:"max_tool_calls"`
	MaxDiscoverIterations int           `mapstructure:"max_discover_iterations"`
	AllowClarification    bool          `mapstructure:"allow_clarification"`
	PerCallTimeout        time.Duration `mapstructure:"per_call_timeout"`
	CompressionMaxTokens  int           `mapstructure:"compression_max_tokens"`
}

// Load reads configuration from CONFIG_PATH (default config/orchestrator.yaml),
// applies env overrides, fills defaults, and validates.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/orchestrator.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	v.SetEnvPrefix("RESEARCH")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults and env carry the config
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if url := os.Getenv("LLM_SERVICE_URL"); url != "" {
		cfg.LLM.ServiceURL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
		cfg.Database.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "deep-research")
	v.SetDefault("llm.service_url", "http://localhost:8000")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("research.max_review_iterations", 2)
	v.SetDefault("research.max_tool_calls", 10)
	v.SetDefault("research.max_discover_iterations", 5)
	v.SetDefault("research.allow_clarification", true)
	v.SetDefault("research.per_call_timeout", "30s")
	v.SetDefault("research.compression_max_tokens", 8000)
	v.SetDefault("tools.catalog_path", "config/tools.yaml")
	v.SetDefault("tools.gateway_url", "http://localhost:8090")
	v.SetDefault("tools.call_timeout", "30s")
	v.SetDefault("tools.calls_per_second", 5.0)
	v.SetDefault("tools.burst", 10)
	v.SetDefault("redis.clarification_ttl", "24h")
	v.SetDefault("server.http_port", 8081)
	v.SetDefault("server.admin_port", 9090)
	v.SetDefault("streaming.ring_capacity", 256)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate enforces cap ranges so bad values fail at startup, not mid-run.
func (c *Config) Validate() error {
	r := c.Research
	if r.MaxReviewIterations < 1 || r.MaxReviewIterations > 10 {
		return fmt.Errorf("research.max_review_iterations must be in [1,10], got %d", r.MaxReviewIterations)
	}
	if r.MaxToolCalls < 1 || r.MaxToolCalls > 50 {
		return fmt.Errorf("research.max_tool_calls must be in [1,50], got %d", r.MaxToolCalls)
	}
	if r.MaxDiscoverIterations < 1 || r.MaxDiscoverIterations > 20 {
		return fmt.Errorf("research.max_discover_iterations must be in [1,20], got %d", r.MaxDiscoverIterations)
	}
	if c.LLM.ServiceURL == "" {
		return fmt.Errorf("llm.service_url is required")
	}
	return nil
}

// EstimatedWorstCase bounds one run's wall time: every review round can
// re-dispatch every section at the full tool budget, plus discovery.
func (c *Config) EstimatedWorstCase(sectionCount int) time.Duration {
	if sectionCount < 1 {
		sectionCount = 7
	}
	perCall := c.Research.PerCallTimeout
	if perCall <= 0 {
		perCall = 30 * time.Second
	}
	rounds := time.Duration(c.Research.MaxReviewIterations + 1)
	calls := time.Duration(c.Research.MaxToolCalls * sectionCount)
	discovery := time.Duration(c.Research.MaxDiscoverIterations) * perCall
	return rounds*calls*perCall + discovery
}
