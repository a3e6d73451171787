package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.baseURL", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxAttempts", 3)
	v.SetDefault("ai.temperature", 0.4)
	v.SetDefault("ai.retry.initialDelay", time.Second)
	v.SetDefault("ai.retry.maxDelay", 30*time.Second)

	setOperationDefaults(v, "analyze", 90*time.Second, 0.2)
	setOperationDefaults(v, "score", 60*time.Second, 0.1)
	setOperationDefaults(v, "outreach", 45*time.Second, 0.7)

	// Auto-apply service
	v.SetDefault("autoApply.enabled", false)
	v.SetDefault("autoApply.baseURL", "")
	v.SetDefault("autoApply.token", "")
	v.SetDefault("autoApply.submitTimeout", 180*time.Second)
	v.SetDefault("autoApply.pollInterval", 2*time.Second)
	v.SetDefault("autoApply.pollTimeout", 30*time.Second)
	v.SetDefault("autoApply.cancelTimeout", 15*time.Second)
	v.SetDefault("autoApply.maxSessions", 50)
	v.SetDefault("autoApply.retention", 15*time.Minute)

	// Reconciliation policy
	v.SetDefault("reconcile.cap", 3)
	v.SetDefault("reconcile.suitabilityThreshold", 80)
	v.SetDefault("reconcile.keepUnanalyzed", false)
	v.SetDefault("reconcile.defaultSection", "projects")

	// Store
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.sqlitePath", defaultSQLitePath())
	v.SetDefault("store.maxConns", 10)
	v.SetDefault("store.autoMigrate", true)

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	// Auto-apply submissions may take up to the submit timeout.
	v.SetDefault("server.writeTimeout", 200*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxRequestSize", 1024*1024)

	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.certContent", "")
	v.SetDefault("server.tls.keyContent", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.cipherSuites", []string{})
	v.SetDefault("server.tls.reload.enabled", true)
	v.SetDefault("server.tls.reload.debounceDelay", time.Second)

	v.SetDefault("server.apiKeys", []string{})

	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)

	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowedOrigins", []string{})
	v.SetDefault("server.cors.allowCredentials", false)
	v.SetDefault("server.cors.maxAge", 600)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 1024*1024) // 1MB

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.aiKey", "")
	v.SetDefault("vault.secrets.autoApplyToken", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "resumeopt")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)

	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.businessMetrics.enabled", true)
	v.SetDefault("observability.customMetrics.businessMetrics.trackAutoApply", true)
	v.SetDefault("observability.customMetrics.businessMetrics.trackReconcile", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)

	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")

	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
}

// setOperationDefaults sets the per-operation overrides and circuit breaker defaults
func setOperationDefaults(v *viper.Viper, op string, timeout time.Duration, temperature float64) {
	prefix := "ai." + op + "."
	v.SetDefault(prefix+"provider", "")
	v.SetDefault(prefix+"model", "")
	v.SetDefault(prefix+"timeout", timeout)
	v.SetDefault(prefix+"apiKey", "")
	v.SetDefault(prefix+"temperature", temperature)
	v.SetDefault(prefix+"prompts.system", "")
	v.SetDefault(prefix+"prompts.systemFile", "")
	v.SetDefault(prefix+"prompts.user", "")
	v.SetDefault(prefix+"prompts.userFile", "")

	v.SetDefault(prefix+"circuitBreaker.enabled", true)
	v.SetDefault(prefix+"circuitBreaker.maxRequests", 3)
	v.SetDefault(prefix+"circuitBreaker.interval", 60*time.Second)
	v.SetDefault(prefix+"circuitBreaker.timeout", 60*time.Second)
	v.SetDefault(prefix+"circuitBreaker.minRequests", 3)
	v.SetDefault(prefix+"circuitBreaker.failureThreshold", 0.6)
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "resumeopt.db"
	}
	return filepath.Join(home, ".resumeopt", "resumeopt.db")
}
