package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"resumeopt/internal/errors"
)

// CertReloader serves the current server certificate and, when watching,
// reloads it after the files on disk change.
type CertReloader struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   *errors.Logger

	mu         sync.RWMutex
	cert       *tls.Certificate
	notAfter   time.Time
	lastReload time.Time
	lastErr    error
	reloads    int64

	watcher *fsnotify.Watcher
	timer   *time.Timer
	trigger chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewCertReloader loads the key pair from disk.
func NewCertReloader(certFile, keyFile string, debounce time.Duration, logger *errors.Logger) (*CertReloader, error) {
	if debounce <= 0 {
		debounce = time.Second
	}
	c := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: debounce,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewStaticCertificate serves a PEM key pair that never reloads, as loaded from Vault.
func NewStaticCertificate(certPEM, keyPEM string, logger *errors.Logger) (*CertReloader, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid TLS certificate content", err)
	}
	c := &CertReloader{logger: logger, done: make(chan struct{})}
	c.store(&cert)
	return c, nil
}

// Reload reads the key pair again. On failure the previous certificate stays in use.
func (c *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to load TLS key pair", err).
			WithContext("cert_file", c.certFile).
			WithContext("key_file", c.keyFile)
	}
	c.store(&cert)
	return nil
}

func (c *CertReloader) store(cert *tls.Certificate) {
	var notAfter time.Time
	if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
		notAfter = leaf.NotAfter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert = cert
	c.notAfter = notAfter
	c.lastReload = time.Now()
	c.lastErr = nil
	c.reloads++
}

// GetCertificate is the tls.Config hook.
func (c *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cert == nil {
		return nil, fmt.Errorf("no TLS certificate loaded")
	}
	return c.cert, nil
}

// Watch starts reloading on file changes. Directories are watched so atomic
// renames are seen.
func (c *CertReloader) Watch() error {
	if c.certFile == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dirs := map[string]bool{filepath.Dir(c.certFile): true, filepath.Dir(c.keyFile): true}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	c.watcher = w

	c.wg.Add(1)
	go c.watchLoop()
	c.logger.Info("Certificate file watcher started",
		"cert_file", c.certFile,
		"key_file", c.keyFile,
		"debounce_delay", c.debounce)
	return nil
}

func (c *CertReloader) watchLoop() {
	defer c.wg.Done()
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if c.relevant(ev) {
				c.schedule()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("Certificate watcher error", "error", err.Error())
		case <-c.trigger:
			if err := c.Reload(); err != nil {
				c.logger.LogError(err, "Failed to reload TLS certificate")
				continue
			}
			c.logger.Info("TLS certificate reloaded", "expires_at", c.expiry())
		case <-c.done:
			return
		}
	}
}

func (c *CertReloader) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == filepath.Clean(c.certFile) || name == filepath.Clean(c.keyFile)
}

// schedule coalesces bursts of events into one reload after the debounce delay.
func (c *CertReloader) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		select {
		case c.trigger <- struct{}{}:
		default:
		}
	})
}

func (c *CertReloader) expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notAfter
}

// Status reports certificate health for /health.
func (c *CertReloader) Status() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := map[string]any{
		"healthy":     c.cert != nil && (c.notAfter.IsZero() || time.Now().Before(c.notAfter)),
		"expires_at":  c.notAfter,
		"last_reload": c.lastReload,
		"reloads":     c.reloads,
		"watching":    c.watcher != nil,
	}
	if c.lastErr != nil {
		status["last_error"] = c.lastErr.Error()
	}
	return status
}

// Close stops watching.
func (c *CertReloader) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		c.mu.Unlock()
		if c.watcher != nil {
			err = c.watcher.Close()
		}
		c.wg.Wait()
	})
	return err
}
