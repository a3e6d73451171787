package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"enabled": false}, body["auto_apply"])

	env.ai.unhealthy = true
	rec = env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody[map[string]any](t, rec)["status"])
}

func TestAuthentication(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret-key-123"}
	env := newTestEnv(t, cfg, nil)
	env.ai.score = &types.ResumeScore{Score: 70}
	body := `{"resume":"r","jobDescription":"j"}`

	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", []string{"X-API-Key", "secret-key-123"}, http.StatusOK},
		{"bearer token", []string{"Authorization", "Bearer secret-key-123"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/score", body, tt.headers...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
}

func TestScoreErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"validation", errors.NewValidationError(errors.ErrCodeInvalidInput, "resume is empty", nil), http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"timeout", errors.NewAIError(errors.ErrCodeAITimeout, "deadline exceeded", nil), http.StatusGatewayTimeout, errors.ErrCodeAITimeout},
		{"credentials", errors.NewCredentialsError(errors.ErrCodeCredentials, "key rejected", nil), http.StatusBadGateway, errors.ErrCodeCredentials},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig(), nil)
			env.ai.err = tt.err

			rec := env.do(http.MethodPost, "/api/v1/score", `{"resume":"r","jobDescription":"j"}`)
			assert.Equal(t, tt.want, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, "Failed to score resume", resp.Error)
		})
	}
}

func TestScoreAndOutreach(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.ai.score = &types.ResumeScore{Score: 82, Summary: "good"}
	env.ai.outreach = &types.OutreachMessage{Subject: "Hi", Body: "Hello"}

	rec := env.do(http.MethodPost, "/api/v1/score", `{"resume":"r","jobDescription":"j"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 82, decodeBody[types.ResumeScore](t, rec).Score)

	rec = env.do(http.MethodPost, "/api/v1/outreach", `{"recipientName":"Ana","company":"Acme","targetRole":"SRE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi", decodeBody[types.OutreachMessage](t, rec).Subject)
}

func TestRequestDecoding(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxRequestSize = 64
	env := newTestEnv(t, cfg, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"resume":`},
		{"unknown field", `{"resume":"r","extra":1}`},
		{"trailing object", `{"resume":"r"}{"resume":"s"}`},
		{"too large", `{"resume":"` + strings.Repeat("x", 128) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/score", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, errors.ErrCodeInvalidRequest, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestItemsAndAnalyze(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	const base = "/api/v1/resumes/r1/sections/projects"

	rec := env.do(http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[ItemsResponse](t, rec).Items)

	rec = env.do(http.MethodPost, base+"/analyze", `{"jobDescription":"Go developer"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrCodeItemsNotFound, decodeBody[ErrorResponse](t, rec).Code)

	items := []types.CandidateItem{{Title: "Compiler", Content: []string{"wrote a compiler"}}}
	require.NoError(t, env.store.ReplaceItems(context.Background(), "r1", "projects", items))
	env.ai.analysis = &types.ProjectAnalysis{
		Verdicts: []types.ItemVerdict{{Title: "Compiler", Score: 91, Suitable: true}},
	}

	rec = env.do(http.MethodPost, base+"/analyze", `{"jobDescription":"Go developer"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[types.ProjectAnalysis](t, rec).Verdicts, 1)
	assert.Equal(t, items, env.ai.analyzeIn.Items)
	assert.Equal(t, "Go developer", env.ai.analyzeIn.JobDescription)
}

func TestReconcile(t *testing.T) {
	const target = "/api/v1/resumes/r1/sections/projects/reconcile"
	original := []types.CandidateItem{
		{Title: "Compiler", Content: []string{"a"}},
		{Title: "Blog", Content: []string{"b"}},
	}
	request := `{
		"verdicts": [{"title":"Compiler","score":90},{"title":"Blog","score":20}],
		"replacements": [{"original":"Blog","item":{"title":"Scheduler","content":["c"]}}],
		"additions": []
	}`

	t.Run("writes final items", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), nil)
		require.NoError(t, env.store.ReplaceItems(context.Background(), "r1", "projects", original))

		rec := env.do(http.MethodPost, target, request)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		result := decodeBody[types.ReconciliationResult](t, rec)
		assert.Equal(t, 1, result.KeptCount)
		assert.Equal(t, 1, result.RemovedCount)
		assert.Equal(t, 1, result.AddedCount)

		stored, err := env.store.Items(context.Background(), "r1", "projects")
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "Compiler", stored[0].Title)
		assert.Equal(t, "Scheduler", stored[1].Title)
	})

	t.Run("dry run leaves the store alone", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), nil)
		require.NoError(t, env.store.ReplaceItems(context.Background(), "r1", "projects", original))

		rec := env.do(http.MethodPost, target+"?dryRun=true", request)
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := env.store.Items(context.Background(), "r1", "projects")
		require.NoError(t, err)
		assert.Equal(t, original, stored)
	})

	t.Run("uses request items when nothing is stored", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), nil)
		body := `{
			"original": [{"title":"Compiler","content":["a"]}],
			"verdicts": [{"title":"Compiler","score":90}],
			"replacements": [],
			"additions": [{"title":"Game","content":["d"]}]
		}`

		rec := env.do(http.MethodPost, target, body)
		require.Equal(t, http.StatusOK, rec.Code)
		result := decodeBody[types.ReconciliationResult](t, rec)
		assert.Len(t, result.FinalItems, 2)
	})

	t.Run("rejects replacing a kept item", func(t *testing.T) {
		env := newTestEnv(t, testConfig(), nil)
		require.NoError(t, env.store.ReplaceItems(context.Background(), "r1", "projects", original))
		body := `{
			"verdicts": [{"title":"Compiler","score":90}],
			"replacements": [{"original":"Compiler","item":{"title":"Scheduler"}}]
		}`

		rec := env.do(http.MethodPost, target, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errors.ErrCodeInvalidInput, decodeBody[ErrorResponse](t, rec).Code)
	})
}

func TestAutoApplyDisabled(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	tests := []struct{ method, target string }{
		{http.MethodPost, "/api/v1/autoapply"},
		{http.MethodGet, "/api/v1/autoapply/job-1"},
		{http.MethodPost, "/api/v1/autoapply/job-1/cancel"},
		{http.MethodDelete, "/api/v1/autoapply/job-1"},
	}
	for _, tt := range tests {
		rec := env.do(tt.method, tt.target, `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tt.target)
	}
}

func TestAutoApplyLifecycle(t *testing.T) {
	source := &fixedSource{report: types.JobStatusReport{
		Status: types.JobStatusProcessing, Progress: 40, CurrentStepLabel: "Filling form",
	}}
	env := newTestEnv(t, testConfig(), source)

	rec := env.do(http.MethodPost, "/api/v1/autoapply", `{"jobUrl":"https://jobs.example.com/1","resumeId":"r1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "job-1", decodeBody[SubmitResponse](t, rec).JobID)

	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/api/v1/autoapply/job-1", "")
		return rec.Code == http.StatusOK &&
			decodeBody[types.JobSubmission](t, rec).Status == types.JobStatusProcessing
	}, 2*time.Second, 5*time.Millisecond)

	rec = env.do(http.MethodPost, "/api/v1/autoapply", `{"jobUrl":"https://jobs.example.com/1","resumeId":"r1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/autoapply/job-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cancel := decodeBody[CancelResponse](t, rec)
	assert.True(t, cancel.Cancelled)
	assert.Equal(t, types.JobStatusFailed, cancel.Job.Status)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/autoapply/job-1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/autoapply/job-1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/v1/autoapply/job-1", "").Code)
}

func TestAutoApplyEventStream(t *testing.T) {
	source := &fixedSource{report: types.JobStatusReport{
		Status: types.JobStatusCompleted, Progress: 100,
		Result: &types.JobResult{Success: true, Message: "applied"},
	}}
	env := newTestEnv(t, testConfig(), source)

	rec := env.do(http.MethodPost, "/api/v1/autoapply", `{"jobUrl":"https://jobs.example.com/1","resumeId":"r1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/autoapply/job-1/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var stream strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		stream.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, stream.String(), "event: snapshot")
	assert.Contains(t, stream.String(), `"status":"completed"`)
}

func TestSubmitErrors(t *testing.T) {
	env := newTestEnv(t, testConfig(), &fixedSource{})
	env.server.deps.Submitter = &fakeSubmitter{
		err: errors.NewNetworkError(errors.ErrCodeSubmissionTimeout, "no response", nil),
	}

	rec := env.do(http.MethodPost, "/api/v1/autoapply", `{"jobUrl":"https://jobs.example.com/1","resumeId":"r1"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, errors.ErrCodeSubmissionTimeout, decodeBody[ErrorResponse](t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1, ByIP: true}
	env := newTestEnv(t, cfg, nil)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/resumes/r1/sections/projects", "").Code)

	rec := env.do(http.MethodGet, "/api/v1/resumes/r1/sections/projects", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = env.do(http.MethodGet, "/api/v1/resumes/r1/sections/projects", "", "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k1")

	key, kind := rateLimitKey(req, true, true)
	assert.Equal(t, "api:k1", key)
	assert.Equal(t, "api_key", kind)

	key, kind = rateLimitKey(req, false, true)
	assert.Equal(t, "ip:192.0.2.1", key)
	assert.Equal(t, "ip", kind)

	key, _ = rateLimitKey(req, false, false)
	assert.Empty(t, key)
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}}
	env := newTestEnv(t, cfg, nil)

	rec := env.do(http.MethodOptions, "/api/v1/score", "",
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"tracker active", errors.NewTrackingError(errors.ErrCodeTrackerActive, "busy", nil), http.StatusConflict},
		{"too many sessions", errors.NewTrackingError(errors.ErrCodeTooManySessions, "full", nil), http.StatusTooManyRequests},
		{"network timeout", errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "slow", nil), http.StatusGatewayTimeout},
		{"not found", errors.NewNotFoundError(errors.ErrCodeJobNotFound, "gone", nil), http.StatusNotFound},
		{"store failure", errors.NewIOError(errors.ErrCodeStoreFailed, "disk", nil), http.StatusInternalServerError},
		{"polling failed", errors.NewNetworkError(errors.ErrCodePollingFailed, "down", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, testConfig(), &fixedSource{report: types.JobStatusReport{Status: types.JobStatusProcessing}})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.serve(ctx, ln, false, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
