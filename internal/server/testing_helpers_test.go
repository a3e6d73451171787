package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/events"
	"resumeopt/internal/store"
	"resumeopt/internal/tracker"
	"resumeopt/internal/types"

	"github.com/stretchr/testify/require"
)

var testLogger = errors.NewLogger(slog.LevelDebug)

type fakeAI struct {
	mu        sync.Mutex
	analyzeIn types.AnalyzeProjectsInput
	analysis  *types.ProjectAnalysis
	score     *types.ResumeScore
	outreach  *types.OutreachMessage
	err       error
	unhealthy bool
}

func (f *fakeAI) AnalyzeProjects(_ context.Context, in types.AnalyzeProjectsInput) (*types.ProjectAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func (f *fakeAI) ScoreResume(context.Context, types.ScoreResumeInput) (*types.ResumeScore, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.score, nil
}

func (f *fakeAI) GenerateOutreach(context.Context, types.OutreachInput) (*types.OutreachMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.outreach, nil
}

func (f *fakeAI) Health() map[string]any {
	return map[string]any{"healthy": !f.unhealthy}
}

type fakeSubmitter struct {
	jobID string
	err   error
}

func (f *fakeSubmitter) Submit(context.Context, types.SubmitApplicationInput) (*types.SubmitApplicationOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.SubmitApplicationOutput{JobID: f.jobID}, nil
}

// fixedSource reports the same status on every poll.
type fixedSource struct {
	report types.JobStatusReport
}

func (s *fixedSource) Status(context.Context, string) (*types.JobStatusReport, error) {
	r := s.report
	return &r, nil
}

func (s *fixedSource) Cancel(context.Context, string) (bool, error) {
	return true, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Reconcile: config.ReconcileConfig{Cap: 3, SuitabilityThreshold: 80},
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           "0",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			IdleTimeout:    5 * time.Second,
			MaxRequestSize: 1 << 16,
			TLS:            config.TLSConfig{Mode: "disabled"},
		},
	}
}

type testEnv struct {
	server  *Server
	handler http.Handler
	ai      *fakeAI
	store   *store.SQLiteStore
	manager *tracker.Manager
}

func newTestEnv(t *testing.T, cfg *config.Config, source tracker.StatusSource) *testEnv {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "items.db"), testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ai := &fakeAI{}
	deps := Deps{AI: ai, Store: st}
	var manager *tracker.Manager
	if source != nil {
		manager = tracker.NewManager(source, tracker.ManagerConfig{
			PollInterval: 5 * time.Millisecond,
			PollTimeout:  time.Second,
			MaxSessions:  4,
			Retention:    time.Minute,
		}, events.NewBus(testLogger), nil, testLogger)
		t.Cleanup(manager.Close)
		deps.Submitter = &fakeSubmitter{jobID: "job-1"}
		deps.Tracker = manager
	}

	s := New(cfg, "test", deps, testLogger)
	t.Cleanup(func() {
		if s.limiter != nil {
			s.limiter.Close()
		}
	})
	return &testEnv{server: s, handler: s.Handler(), ai: ai, store: st, manager: manager}
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// writeSelfSigned writes a fresh certificate and key and returns their paths.
func writeSelfSigned(t *testing.T, dir, commonName string) (certFile, keyFile string) {
	t.Helper()
	certPEM, keyPEM := selfSigned(t, commonName)
	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	require.NoError(t, writeFile(certFile, certPEM))
	require.NoError(t, writeFile(keyFile, keyPEM))
	return certFile, keyFile
}

func selfSigned(t *testing.T, commonName string) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}
