package server

import (
	"crypto/tls"

	"resumeopt/internal/errors"
)

// setupTLS prepares the certificate source. It returns nil when TLS is disabled.
func (s *Server) setupTLS() (*tls.Config, error) {
	tc := s.cfg.Server.TLS
	if tc.Mode != "server" {
		return nil, nil
	}

	var (
		certs *CertReloader
		err   error
	)
	if tc.CertContent != "" {
		certs, err = NewStaticCertificate(tc.CertContent, tc.KeyContent, s.logger)
	} else {
		certs, err = NewCertReloader(tc.CertFile, tc.KeyFile, tc.Reload.DebounceDelay, s.logger)
		if err == nil && tc.Reload.Enabled {
			err = certs.Watch()
		}
	}
	if err != nil {
		return nil, err
	}
	s.certs = certs

	cfg := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: certs.GetCertificate,
	}
	if tc.MinVersion == "1.3" {
		cfg.MinVersion = tls.VersionTLS13
	}
	if len(tc.CipherSuites) > 0 {
		suites, err := cipherSuiteIDs(tc.CipherSuites)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}
	return cfg, nil
}

// cipherSuiteIDs resolves names against the suites crypto/tls considers secure.
func cipherSuiteIDs(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		known[suite.Name] = suite.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "unknown or insecure TLS cipher suite", nil).
				WithContext("cipher_suite", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
