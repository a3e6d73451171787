package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"resumeopt/internal/errors"
)

// Config holds all application configuration
// API Key Precedence Order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (RESUMEOPT_AI_APIKEY, etc.), including a local .env file
// 4. Default values - Lowest priority
type Config struct {
	AI            AIConfig            `mapstructure:"ai"`
	AutoApply     AutoApplyConfig     `mapstructure:"autoApply"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Store         StoreConfig         `mapstructure:"store"`
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AIConfig holds LLM provider configuration
type AIConfig struct {
	Provider    string        `mapstructure:"provider"` // gemini or openrouter
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"baseURL"` // openrouter only
	Timeout     time.Duration `mapstructure:"timeout"`
	APIKey      string        `mapstructure:"apiKey"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
	Temperature float32       `mapstructure:"temperature"`
	Retry       RetryConfig   `mapstructure:"retry"`

	Analyze  OperationAIConfig `mapstructure:"analyze"`
	Score    OperationAIConfig `mapstructure:"score"`
	Outreach OperationAIConfig `mapstructure:"outreach"`
}

// RetryConfig controls backoff between attempts on transient failures
type RetryConfig struct {
	InitialDelay time.Duration `mapstructure:"initialDelay"`
	MaxDelay     time.Duration `mapstructure:"maxDelay"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// OperationAIConfig holds AI configuration for specific operations.
// Unset pointer fields inherit the global AI value.
type OperationAIConfig struct {
	Provider       string               `mapstructure:"provider"`
	Model          string               `mapstructure:"model"`
	Timeout        *time.Duration       `mapstructure:"timeout"`
	APIKey         string               `mapstructure:"apiKey"`
	MaxAttempts    *int                 `mapstructure:"maxAttempts"`
	Temperature    *float32             `mapstructure:"temperature"`
	Prompts        PromptConfig         `mapstructure:"prompts"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// PromptConfig overrides the built-in prompts of one operation.
// File paths win over inline text once loaded.
type PromptConfig struct {
	System     string `mapstructure:"system"`
	SystemFile string `mapstructure:"systemFile"`
	User       string `mapstructure:"user"`
	UserFile   string `mapstructure:"userFile"`
}

// AutoApplyConfig holds the external auto-apply service configuration
type AutoApplyConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"baseURL"`
	Token         string        `mapstructure:"token"`
	SubmitTimeout time.Duration `mapstructure:"submitTimeout"`
	PollInterval  time.Duration `mapstructure:"pollInterval"`
	PollTimeout   time.Duration `mapstructure:"pollTimeout"`
	CancelTimeout time.Duration `mapstructure:"cancelTimeout"`
	MaxSessions   int64         `mapstructure:"maxSessions"`
	Retention     time.Duration `mapstructure:"retention"`
}

// ReconcileConfig holds suggestion reconciliation policy
type ReconcileConfig struct {
	Cap                  int    `mapstructure:"cap"`
	SuitabilityThreshold int    `mapstructure:"suitabilityThreshold"`
	KeepUnanalyzed       bool   `mapstructure:"keepUnanalyzed"`
	DefaultSection       string `mapstructure:"defaultSection"`
}

// StoreConfig selects and configures the resume item store
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite or postgres
	DSN         string `mapstructure:"dsn"`
	SQLitePath  string `mapstructure:"sqlitePath"`
	MaxConns    int32  `mapstructure:"maxConns"`
	AutoMigrate bool   `mapstructure:"autoMigrate"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	MaxRequestSize int64         `mapstructure:"maxRequestSize"`

	TLS TLSConfig `mapstructure:"tls"`

	// API Authentication
	APIKeys []string `mapstructure:"apiKeys"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Mode     string `mapstructure:"mode"` // disabled or server
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`

	// Certificate content (used when loaded from Vault instead of files)
	CertContent string `mapstructure:"certContent"`
	KeyContent  string `mapstructure:"keyContent"`

	MinVersion   string   `mapstructure:"minVersion"` // "1.2" or "1.3"
	CipherSuites []string `mapstructure:"cipherSuites"`

	Reload ReloadConfig `mapstructure:"reload"`
}

// ReloadConfig controls hot reloading of certificate files
type ReloadConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DebounceDelay time.Duration `mapstructure:"debounceDelay"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requestsPerMin"`
	BurstCapacity  int  `mapstructure:"burstCapacity"`
	ByIP           bool `mapstructure:"byIP"`
	ByAPIKey       bool `mapstructure:"byAPIKey"`
}

// CORSConfig holds cross-origin settings for browser clients
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
	MaxAge           int      `mapstructure:"maxAge"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
	MaxFileSize      int64    `mapstructure:"maxFileSize"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"serviceName"`
	ServiceVersion  string              `mapstructure:"serviceVersion"`
	ServiceInstance string              `mapstructure:"serviceInstance"`
	ConsoleOutput   bool                `mapstructure:"consoleOutput"`
	Tracing         TracingConfig       `mapstructure:"tracing"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
	CustomMetrics   CustomMetricsConfig `mapstructure:"customMetrics"`
	Prometheus      PrometheusConfig    `mapstructure:"prometheus"`
	OTLP            OTLPConfig          `mapstructure:"otlp"`
}

type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	SampleRate float64 `mapstructure:"sampleRate"`
}

type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// CustomMetricsConfig holds fine-grained custom metrics configuration
type CustomMetricsConfig struct {
	AIOperations    AIOperationsMetricsConfig   `mapstructure:"aiOperations"`
	BusinessMetrics BusinessMetricsConfig       `mapstructure:"businessMetrics"`
	Infrastructure  InfrastructureMetricsConfig `mapstructure:"infrastructure"`
}

type AIOperationsMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackDuration   bool `mapstructure:"trackDuration"`
	TrackTokenUsage bool `mapstructure:"trackTokenUsage"`
}

type BusinessMetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TrackAutoApply bool `mapstructure:"trackAutoApply"`
	TrackReconcile bool `mapstructure:"trackReconcile"`
}

type InfrastructureMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackRateLimits bool `mapstructure:"trackRateLimits"`
}

type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// LoadConfig loads configuration from .env, environment variables and a config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	return load(v, true)
}

func load(v *viper.Viper, searchPaths bool) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("[CONFIG] Loaded environment overrides from .env")
	}

	setDefaults(v)

	v.SetEnvPrefix("RESUMEOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if searchPaths {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/resumeopt/")
		v.AddConfigPath("$HOME/.resumeopt")
		v.AddConfigPath(".")
	}

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || !searchPaths {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to read config file", err)
		}
	} else {
		configFileUsed = v.ConfigFileUsed()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to unmarshal config", err)
	}

	config.applyFallbacks()
	config.logConfigurationSources(configFileUsed)

	if err := config.loadPromptFiles(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadConfigFile loads configuration from an explicit file path
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v, false)
}

// Validate checks structural configuration. Credentials for optional
// features are checked by the commands that use them, see ValidateAI.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "server port is required", nil)
	}

	validFormats := make(map[string]bool)
	for _, format := range c.App.SupportedFormats {
		validFormats[format] = true
	}
	if !validFormats[c.App.DefaultFormat] {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid default format: %s", c.App.DefaultFormat), nil)
	}

	if c.Reconcile.Cap < 1 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "reconcile.cap must be at least 1", nil)
	}
	if c.Reconcile.SuitabilityThreshold < 0 || c.Reconcile.SuitabilityThreshold > 100 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "reconcile.suitabilityThreshold must be within 0..100", nil)
	}

	if c.AutoApply.PollInterval <= 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "autoApply.pollInterval must be positive", nil)
	}
	if c.AutoApply.SubmitTimeout <= 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "autoApply.submitTimeout must be positive", nil)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "store.sqlitePath is required for the sqlite driver", nil)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "store.dsn is required for the postgres driver", nil)
		}
	default:
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid store driver: %s (must be 'sqlite' or 'postgres')", c.Store.Driver), nil)
	}

	if err := c.ValidateTLSConfig(); err != nil {
		return err
	}

	return nil
}

// ValidateAI fails fast when the LLM provider cannot be used.
func (c *Config) ValidateAI() error {
	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		return errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported AI provider: %s", c.AI.Provider), nil)
	}

	for name, op := range map[string]OperationAIConfig{
		"analyze":  c.GetAnalyzeConfig(),
		"score":    c.GetScoreConfig(),
		"outreach": c.GetOutreachConfig(),
	} {
		if op.APIKey == "" {
			return errors.NewConfigError(errors.ErrCodeMissingAPIKey,
				"AI API key is required (set RESUMEOPT_AI_APIKEY or configure Vault)", nil).
				WithContext("operation", name)
		}
		if op.Timeout != nil && *op.Timeout <= 0 {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "AI timeout must be positive", nil).
				WithContext("operation", name)
		}
	}
	return nil
}

// ValidateAutoApply fails fast when the auto-apply service cannot be reached.
func (c *Config) ValidateAutoApply() error {
	if !c.AutoApply.Enabled {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "auto-apply is disabled (set autoApply.enabled)", nil)
	}
	if c.AutoApply.BaseURL == "" {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "autoApply.baseURL is required", nil)
	}
	if c.AutoApply.Token == "" {
		return errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			"auto-apply token is required (set RESUMEOPT_AUTOAPPLY_TOKEN or configure Vault)", nil)
	}
	return nil
}
