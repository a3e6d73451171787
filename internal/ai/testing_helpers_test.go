package ai

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/types"
)

var testLogger = errors.NewLoggerTo(io.Discard, slog.LevelDebug)

// fakeProvider replays replies in order, repeating the last one.
type fakeProvider struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   int
	prompts []Prompt
}

type fakeReply struct {
	text string
	err  error
}

func (f *fakeProvider) GenerateJSON(_ context.Context, prompt Prompt) (*Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	r := f.replies[min(f.calls, len(f.replies)-1)]
	f.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &Completion{Text: r.text, Model: "fake-model", Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}, nil
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.Config {
	return &config.Config{
		AI: aiConfigForTest(),
		Reconcile: config.ReconcileConfig{
			Cap:                  3,
			SuitabilityThreshold: 80,
		},
	}
}

func aiConfigForTest() config.AIConfig {
	return config.AIConfig{
		Provider:    "fake",
		Model:       "fake-model",
		APIKey:      "test-key",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Retry:       config.RetryConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func newTestService(p Provider, opts ...Option) (*Service, error) {
	opts = append([]Option{WithProviderFactory(func(context.Context, config.OperationAIConfig) (Provider, error) {
		return p, nil
	})}, opts...)
	return NewService(context.Background(), testConfig(), testLogger, opts...)
}

func typesOutreach() types.OutreachInput {
	return types.OutreachInput{RecipientName: "Dana", Company: "Acme", TargetRole: "SRE"}
}
