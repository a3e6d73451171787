package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	c.applyServerAPIKeyFallbacks()
	c.applyProviderKeyFallbacks()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()
}

// applyServerAPIKeyFallbacks reads a comma separated key list, since viper
// does not split string slices coming from the environment.
func (c *Config) applyServerAPIKeyFallbacks() {
	if len(c.Server.APIKeys) == 1 && strings.Contains(c.Server.APIKeys[0], ",") {
		c.Server.APIKeys = splitKeys(c.Server.APIKeys[0])
	}
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("RESUMEOPT_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitKeys(apiKeysEnv)
		}
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// applyProviderKeyFallbacks honours the provider's conventional env var
func (c *Config) applyProviderKeyFallbacks() {
	if c.AI.APIKey != "" {
		return
	}
	switch c.AI.Provider {
	case ProviderGemini:
		c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	case ProviderOpenRouter:
		c.AI.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
}

// applyTLSDefaults applies default TLS configuration values
func (c *Config) applyTLSDefaults() {
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

func isSensitiveEnv(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "dsn")
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	if c.App.LogLevel != "debug" {
		return
	}

	log.Println("[CONFIG] === Configuration Sources Summary ===")
	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		"RESUMEOPT_AI_APIKEY",
		"RESUMEOPT_AI_PROVIDER",
		"RESUMEOPT_AI_MODEL",
		"RESUMEOPT_AUTOAPPLY_BASEURL",
		"RESUMEOPT_AUTOAPPLY_TOKEN",
		"RESUMEOPT_STORE_DRIVER",
		"RESUMEOPT_STORE_DSN",
		"RESUMEOPT_SERVER_PORT",
		"RESUMEOPT_SERVER_HOST",
		"RESUMEOPT_APP_LOGLEVEL",
		"RESUMEOPT_VAULT_ENABLED",
		"GEMINI_API_KEY",
		"OPENROUTER_API_KEY",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if isSensitiveEnv(envVar) {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] AI Provider: %s", c.AI.Provider)
	log.Printf("[CONFIG] AI Model: %s", c.AI.Model)
	if c.AI.APIKey != "" {
		log.Println("[CONFIG] AI API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] AI API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Auto-apply Enabled: %t", c.AutoApply.Enabled)
	log.Printf("[CONFIG] Store Driver: %s", c.Store.Driver)
	log.Printf("[CONFIG] Reconcile Cap: %d (threshold %d)", c.Reconcile.Cap, c.Reconcile.SuitabilityThreshold)
	log.Printf("[CONFIG] Server: %s:%s (TLS %s)", c.Server.Host, c.Server.Port, c.Server.TLS.Mode)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)

	for name, op := range c.operations() {
		log.Printf("[CONFIG] %s - Provider: %q, Model: %q", name, op.Provider, op.Model)
	}
	log.Println("[CONFIG] =====================================")
}
