package config

import (
	"fmt"

	"resumeopt/internal/errors"
)

// ValidateTLSConfig validates the TLS configuration
func (c *Config) ValidateTLSConfig() error {
	tls := c.Server.TLS

	switch tls.Mode {
	case "disabled":
	case "server":
		if (tls.CertFile == "" && tls.CertContent == "") || (tls.KeyFile == "" && tls.KeyContent == "") {
			return tlsError("TLS certificate and key are required for server mode (provide either files or content)")
		}
		if tls.CertFile != "" && tls.CertContent != "" {
			return tlsError("cannot specify both certFile and certContent - choose one")
		}
		if tls.KeyFile != "" && tls.KeyContent != "" {
			return tlsError("cannot specify both keyFile and keyContent - choose one")
		}
	default:
		return tlsError(fmt.Sprintf("invalid TLS mode: %s (must be 'disabled' or 'server')", tls.Mode))
	}

	switch tls.MinVersion {
	case "", "1.2", "1.3":
	default:
		return tlsError(fmt.Sprintf("invalid TLS minVersion: %s (must be '1.2' or '1.3')", tls.MinVersion))
	}

	if tls.Reload.Enabled && tls.Reload.DebounceDelay < 0 {
		return tlsError("TLS reload debounceDelay cannot be negative")
	}
	return nil
}

func tlsError(msg string) error {
	return errors.NewConfigError(errors.ErrCodeInvalidConfig, msg, nil)
}
