package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"resumeopt/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigFileDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, "app:\n  logLevel: info\n"))
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, 3, cfg.AI.MaxAttempts)
	assert.Equal(t, time.Second, cfg.AI.Retry.InitialDelay)
	assert.Equal(t, 3, cfg.Reconcile.Cap)
	assert.Equal(t, 80, cfg.Reconcile.SuitabilityThreshold)
	assert.Equal(t, "projects", cfg.Reconcile.DefaultSection)
	assert.Equal(t, 180*time.Second, cfg.AutoApply.SubmitTimeout)
	assert.Equal(t, 2*time.Second, cfg.AutoApply.PollInterval)
	assert.Equal(t, int64(50), cfg.AutoApply.MaxSessions)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "disabled", cfg.Server.TLS.Mode)
	assert.NotEmpty(t, cfg.Observability.ServiceInstance)
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := writeConfig(t, `
ai:
  provider: openrouter
  model: anthropic/claude-3.5-sonnet
  apiKey: file-key
  outreach:
    model: small-model
reconcile:
  cap: 5
  suitabilityThreshold: 70
  keepUnanalyzed: true
store:
  driver: postgres
  dsn: postgres://localhost/resumeopt
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenRouter, cfg.AI.Provider)
	assert.Equal(t, 5, cfg.Reconcile.Cap)
	assert.Equal(t, 70, cfg.Reconcile.SuitabilityThreshold)
	assert.True(t, cfg.Reconcile.KeepUnanalyzed)
	assert.Equal(t, "postgres", cfg.Store.Driver)

	outreach := cfg.GetOutreachConfig()
	assert.Equal(t, "small-model", outreach.Model)
	assert.Equal(t, ProviderOpenRouter, outreach.Provider)
	assert.Equal(t, "file-key", outreach.APIKey)

	analyze := cfg.GetAnalyzeConfig()
	assert.Equal(t, "anthropic/claude-3.5-sonnet", analyze.Model)
	require.NotNil(t, analyze.Timeout)
	assert.Equal(t, 90*time.Second, *analyze.Timeout)
	require.NotNil(t, analyze.MaxAttempts)
	assert.Equal(t, 3, *analyze.MaxAttempts)
}

func TestLoadConfigFileEnvOverrides(t *testing.T) {
	t.Setenv("RESUMEOPT_AUTOAPPLY_TOKEN", "env-token")
	t.Setenv("RESUMEOPT_RECONCILE_CAP", "4")

	cfg, err := LoadConfigFile(writeConfig(t, "autoApply:\n  token: file-token\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.AutoApply.Token)
	assert.Equal(t, 4, cfg.Reconcile.Cap)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestProviderKeyFallback(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg := &Config{AI: AIConfig{Provider: ProviderOpenRouter}}
	cfg.applyProviderKeyFallbacks()
	assert.Equal(t, "or-key", cfg.AI.APIKey)

	cfg = &Config{AI: AIConfig{Provider: ProviderGemini, APIKey: "explicit"}}
	cfg.applyProviderKeyFallbacks()
	assert.Equal(t, "explicit", cfg.AI.APIKey)
}

func TestServerAPIKeyFallback(t *testing.T) {
	t.Setenv("RESUMEOPT_SERVER_APIKEYS", " one , two,,three ")

	cfg := &Config{}
	cfg.applyServerAPIKeyFallbacks()
	assert.Equal(t, []string{"one", "two", "three"}, cfg.Server.APIKeys)
}

func validConfig() *Config {
	return &Config{
		AI: AIConfig{Provider: ProviderGemini, APIKey: "key", Timeout: time.Minute},
		AutoApply: AutoApplyConfig{
			SubmitTimeout: 180 * time.Second,
			PollInterval:  2 * time.Second,
		},
		Reconcile: ReconcileConfig{Cap: 3, SuitabilityThreshold: 80},
		Store:     StoreConfig{Driver: "sqlite", SQLitePath: "/tmp/resumeopt.db"},
		Server:    ServerConfig{Port: "8080", TLS: TLSConfig{Mode: "disabled"}},
		App:       AppConfig{DefaultFormat: "json", SupportedFormats: []string{"json", "text"}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "port"},
		{name: "unknown format", mutate: func(c *Config) { c.App.DefaultFormat = "xml" }, wantErr: "format"},
		{name: "zero cap", mutate: func(c *Config) { c.Reconcile.Cap = 0 }, wantErr: "reconcile.cap"},
		{name: "threshold above 100", mutate: func(c *Config) { c.Reconcile.SuitabilityThreshold = 101 }, wantErr: "suitabilityThreshold"},
		{name: "zero poll interval", mutate: func(c *Config) { c.AutoApply.PollInterval = 0 }, wantErr: "pollInterval"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, wantErr: "store.dsn"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "invalid store driver"},
		{name: "tls server without cert", mutate: func(c *Config) { c.Server.TLS.Mode = "server" }, wantErr: "certificate and key"},
		{
			name: "tls duplicate cert source",
			mutate: func(c *Config) {
				c.Server.TLS = TLSConfig{Mode: "server", CertFile: "c.pem", CertContent: "pem", KeyFile: "k.pem"}
			},
			wantErr: "certFile and certContent",
		},
		{name: "tls mutual rejected", mutate: func(c *Config) { c.Server.TLS.Mode = "mutual" }, wantErr: "invalid TLS mode"},
		{name: "tls bad version", mutate: func(c *Config) { c.Server.TLS.MinVersion = "1.1" }, wantErr: "minVersion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestValidateAI(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.ValidateAI())

	cfg.AI.Provider = "unknown"
	assert.Error(t, cfg.ValidateAI())

	cfg = validConfig()
	cfg.AI.APIKey = ""
	err := cfg.ValidateAI()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingAPIKey))

	cfg.AI.Analyze.APIKey = "a"
	cfg.AI.Score.APIKey = "s"
	cfg.AI.Outreach.APIKey = "o"
	assert.NoError(t, cfg.ValidateAI())
}

func TestValidateAutoApply(t *testing.T) {
	cfg := validConfig()
	assert.Error(t, cfg.ValidateAutoApply())

	cfg.AutoApply.Enabled = true
	cfg.AutoApply.BaseURL = "https://apply.example.com"
	err := cfg.ValidateAutoApply()
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingAPIKey))

	cfg.AutoApply.Token = "token"
	assert.NoError(t, cfg.ValidateAutoApply())
}
