package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/api"

	"resumeopt/internal/errors"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets holds KVv2 paths. An empty path skips that secret.
type VaultSecrets struct {
	APIKeys        string `mapstructure:"apiKeys"`        // "keys": comma separated server API keys
	AIKey          string `mapstructure:"aiKey"`          // "api_key": LLM provider key
	AutoApplyToken string `mapstructure:"autoApplyToken"` // "token": auto-apply bearer token
	TLSCerts       string `mapstructure:"tlsCerts"`       // "cert" and "key": PEM content
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// NewVaultClient creates a connected Vault client. It returns nil when Vault is disabled.
func NewVaultClient(config VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !config.Enabled {
		return nil, nil
	}

	vaultConfig := api.DefaultConfig()
	if config.Address != "" {
		vaultConfig.Address = config.Address
	}
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to create vault client", err)
	}
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	token, err := resolveVaultToken(config)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "failed to connect to vault", err).
			WithContext("address", vaultConfig.Address)
	}
	if logger != nil {
		logger.Info("Connected to Vault",
			"address", vaultConfig.Address,
			"version", health.Version,
			"sealed", health.Sealed)
	}

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken resolves the Vault token from config or file
func resolveVaultToken(config VaultConfig) (string, error) {
	token := config.Token
	if token == "" && config.TokenFile != "" {
		tokenBytes, err := os.ReadFile(config.TokenFile)
		if err != nil {
			return "", errors.NewConfigError(errors.ErrCodeFileNotReadable, "failed to read vault token file", err).
				WithContext("file", config.TokenFile)
		}
		token = strings.TrimSpace(string(tokenBytes))
	}
	if token == "" {
		return "", errors.NewConfigError(errors.ErrCodeMissingAPIKey, "vault token is required when vault is enabled", nil)
	}
	return token, nil
}

// VaultSecret represents a secret read from Vault's KVv2 engine.
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// GetSecretV2 retrieves a secret from a Vault KVv2 store.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return decodeKVv2(secret, path)
}

// decodeKVv2 unwraps the data and metadata envelopes of a KVv2 read.
func decodeKVv2(secret *api.Secret, path string) (*VaultSecret, error) {
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := secret.Data["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := parseVersionValue(versionRaw, path)
	if err != nil {
		return nil, err
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

// parseVersionValue parses version value from the types JSON decoding may produce
func parseVersionValue(versionRaw any, path string) (int64, error) {
	switch v := versionRaw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	default:
		// json.Number when the client decodes with UseNumber
		if n, ok := versionRaw.(interface{ Int64() (int64, error) }); ok {
			return n.Int64()
		}
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, versionRaw)
	}
}

// GetStringSecret retrieves a string value from a Vault secret
func (vc *VaultClient) GetStringSecret(path, key string) (string, error) {
	secret, err := vc.GetSecretV2(path)
	if err != nil {
		return "", err
	}
	value, err := stringField(secret, key, path)
	if err != nil {
		return "", err
	}
	if vc.logger != nil {
		vc.logger.Debug("String secret retrieved from Vault", "path", path, "key", key, "masked_value", maskSecret(value))
	}
	return value, nil
}

func stringField(secret *VaultSecret, key, path string) (string, error) {
	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found in secret %s", key, path)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string in secret %s", key, path)
	}
	return strValue, nil
}

func maskSecret(value string) string {
	switch {
	case len(value) > 8:
		return value[:4] + "****" + value[len(value)-4:]
	case value != "":
		return "****"
	default:
		return ""
	}
}

// ApplyVaultSecrets loads secrets from Vault and applies them to the config.
// Vault values win over every other source.
func ApplyVaultSecrets(config *Config, logger *errors.Logger) error {
	if !config.Vault.Enabled {
		return nil
	}

	client, err := NewVaultClient(config.Vault, logger)
	if err != nil {
		return err
	}
	return applySecrets(client, config, logger)
}

func applySecrets(client *VaultClient, config *Config, logger *errors.Logger) error {
	paths := config.Vault.Secrets

	if paths.APIKeys != "" {
		raw, err := client.GetStringSecret(paths.APIKeys, "keys")
		if err != nil {
			return vaultSecretError("server API keys", paths.APIKeys, err)
		}
		if keys := splitKeys(raw); len(keys) > 0 {
			config.Server.APIKeys = keys
		}
	}

	if paths.AIKey != "" {
		key, err := client.GetStringSecret(paths.AIKey, "api_key")
		if err != nil {
			return vaultSecretError("AI API key", paths.AIKey, err)
		}
		if key != "" {
			applyAIKey(config, key)
		}
	}

	if paths.AutoApplyToken != "" {
		token, err := client.GetStringSecret(paths.AutoApplyToken, "token")
		if err != nil {
			return vaultSecretError("auto-apply token", paths.AutoApplyToken, err)
		}
		if token != "" {
			config.AutoApply.Token = token
		}
	}

	if paths.TLSCerts != "" {
		secret, err := client.GetSecretV2(paths.TLSCerts)
		if err != nil {
			return vaultSecretError("TLS certificates", paths.TLSCerts, err)
		}
		applyTLSContent(config, secret)
	}

	if logger != nil {
		logger.Info("Applied secrets from Vault")
	}
	return config.ValidateTLSConfig()
}

// applyAIKey sets the global key and every operation key left empty
func applyAIKey(config *Config, key string) {
	config.AI.APIKey = key
	for _, op := range config.operations() {
		if op.APIKey == "" {
			op.APIKey = key
		}
	}
}

// applyTLSContent replaces file based certificates with Vault content
func applyTLSContent(config *Config, secret *VaultSecret) {
	if cert, ok := secret.Data["cert"].(string); ok && cert != "" {
		config.Server.TLS.CertContent = cert
		config.Server.TLS.CertFile = ""
	}
	if key, ok := secret.Data["key"].(string); ok && key != "" {
		config.Server.TLS.KeyContent = key
		config.Server.TLS.KeyFile = ""
	}
}

func vaultSecretError(what, path string, err error) error {
	return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to load "+what+" from vault", err).
		WithContext("path", path)
}
