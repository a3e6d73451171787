package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/retry"
	"resumeopt/internal/types"
)

// OperationReport describes one finished AI operation for metrics.
type OperationReport struct {
	Operation string
	Provider  string
	Model     string
	Duration  time.Duration
	Usage     *TokenUsage
	Err       error
	Fallback  bool
}

// Recorder receives one report per AI operation.
type Recorder interface {
	RecordAIOperation(ctx context.Context, report OperationReport)
}

// ProviderFactory builds the provider for one operation.
type ProviderFactory func(ctx context.Context, cfg config.OperationAIConfig) (Provider, error)

type operation struct {
	name        string
	provider    Provider
	model       string
	breaker     *CircuitBreaker
	prompts     *promptSet
	retry       retry.Policy
	timeout     time.Duration
	temperature *float32
}

// Service runs the resume AI operations with retry, circuit breaking and
// deterministic fallbacks for unusable replies.
type Service struct {
	ops       map[string]*operation
	threshold int
	recorder  Recorder
	factory   ProviderFactory
	logger    *errors.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports every operation to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithProviderFactory replaces provider construction, mainly for tests.
func WithProviderFactory(f ProviderFactory) Option {
	return func(s *Service) { s.factory = f }
}

// NewService creates the AI service. It fails fast when an operation has no
// API key or an unknown provider.
func NewService(ctx context.Context, cfg *config.Config, logger *errors.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		ops:       make(map[string]*operation),
		threshold: cfg.Reconcile.SuitabilityThreshold,
		logger:    logger,
	}
	s.factory = func(ctx context.Context, opCfg config.OperationAIConfig) (Provider, error) {
		return NewProvider(ctx, opCfg, cfg.AI.BaseURL)
	}
	for _, opt := range opts {
		opt(s)
	}

	for name, opCfg := range map[string]config.OperationAIConfig{
		OperationAnalyze:  cfg.GetAnalyzeConfig(),
		OperationScore:    cfg.GetScoreConfig(),
		OperationOutreach: cfg.GetOutreachConfig(),
	} {
		op, err := s.newOperation(ctx, name, opCfg, cfg.AI.Retry)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.ops[name] = op
	}
	return s, nil
}

func (s *Service) newOperation(ctx context.Context, name string, opCfg config.OperationAIConfig, retryCfg config.RetryConfig) (*operation, error) {
	logger := s.logger.With("operation", name)
	logger.Debug("Initializing AI operation", "provider", opCfg.Provider, "model", opCfg.Model)

	provider, err := s.factory(ctx, opCfg)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create AI provider", err).
			WithContext("operation", name)
	}

	prompts, err := newPromptSet(name, opCfg.Prompts)
	if err != nil {
		_ = provider.Close()
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid prompt template", err).
			WithContext("operation", name)
	}

	policy := retry.DefaultPolicy()
	if opCfg.MaxAttempts != nil && *opCfg.MaxAttempts > 0 {
		policy.MaxAttempts = *opCfg.MaxAttempts
	}
	if retryCfg.InitialDelay > 0 {
		policy.InitialDelay = retryCfg.InitialDelay
	}
	if retryCfg.MaxDelay > 0 {
		policy.MaxDelay = retryCfg.MaxDelay
	}

	op := &operation{
		name:        name,
		provider:    provider,
		model:       opCfg.Model,
		breaker:     NewCircuitBreaker(name, opCfg.CircuitBreaker, logger),
		prompts:     prompts,
		retry:       policy,
		temperature: opCfg.Temperature,
	}
	if opCfg.Timeout != nil {
		op.timeout = *opCfg.Timeout
	}
	return op, nil
}

// generate renders the prompt, calls the provider and validates the reply.
// A nil error with a non-nil parseErr means the provider answered with unusable JSON.
func (s *Service) generate(ctx context.Context, name, schema string, data any) (reply []byte, parseErr error, err error) {
	op := s.ops[name]
	start := time.Now()
	report := OperationReport{Operation: name, Provider: op.provider.Name(), Model: op.model}
	defer func() {
		report.Duration = time.Since(start)
		if s.recorder != nil {
			s.recorder.RecordAIOperation(ctx, report)
		}
	}()

	ctx, span := otel.Tracer("resumeopt.ai").Start(ctx, "ai."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", op.provider.Name()),
		attribute.String("ai.model", op.model),
	)

	user, err := op.prompts.render(data)
	if err != nil {
		report.Err = err
		return nil, nil, errors.NewInternalError(errors.ErrCodeInvalidConfig, "failed to render prompt", err).
			WithContext("operation", name)
	}
	prompt := Prompt{Operation: name, System: op.prompts.system, User: user, Temperature: op.temperature}

	callCtx := ctx
	if op.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, op.timeout)
		defer cancel()
	}

	completion, err := op.breaker.Execute(func() (*Completion, error) {
		c, err := retry.Do(callCtx, op.retry, isRetryable, func() (*Completion, error) {
			return op.provider.GenerateJSON(callCtx, prompt)
		}, func(attempt int, wait time.Duration, err error) {
			s.logger.Warn("Retrying AI operation",
				"operation", name,
				"attempt", attempt,
				"max_attempts", op.retry.MaxAttempts,
				"wait", wait,
				"error", err.Error())
		})
		if err != nil {
			return nil, classifyError(name, err)
		}
		return c, nil
	})
	if err != nil {
		if IsOpenError(err) {
			err = errors.NewAIError(errors.ErrCodeAIServiceFailed, "AI provider is unavailable (circuit open)", err).
				WithContext("operation", name)
		}
		report.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		s.logger.LogError(err, "AI operation failed", "operation", name)
		return nil, nil, err
	}

	report.Usage = completion.Usage
	if completion.Model != "" {
		report.Model = completion.Model
	}
	if completion.Usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", completion.Usage.InputTokens),
			attribute.Int64("ai.tokens.output", completion.Usage.OutputTokens),
			attribute.Int64("ai.tokens.total", completion.Usage.TotalTokens),
		)
	}

	reply = []byte(StripCodeFences(completion.Text))
	if verr := validateReply(schema, reply); verr != nil {
		report.Fallback = true
		span.SetAttributes(attribute.Bool("ai.fallback", true))
		parseErr = errors.NewAIError(errors.ErrCodeAIParseFailed, "AI reply could not be used", verr).
			WithContext("operation", name)
		s.logger.LogError(parseErr, "Using fallback result", "reply_length", len(reply))
		return reply, parseErr, nil
	}
	return reply, nil, nil
}

// AnalyzeProjects judges every project against the job description and
// proposes replacements and additions.
func (s *Service) AnalyzeProjects(ctx context.Context, in types.AnalyzeProjectsInput) (*types.ProjectAnalysis, error) {
	if len(in.Items) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "at least one project is required", nil)
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.Title) == "" {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("project %d has an empty title", i+1), nil)
		}
	}
	if strings.TrimSpace(in.JobDescription) == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "job description is required", nil)
	}
	in.JobDescription = NormalizeJobDescription(in.JobDescription)

	reply, parseErr, err := s.generate(ctx, OperationAnalyze, schemaAnalyzeProjects, in)
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return s.analysisFallback(in.Items), nil
	}

	var out types.ProjectAnalysis
	if err := json.Unmarshal(reply, &out); err != nil {
		s.logger.LogError(errors.NewAIError(errors.ErrCodeAIParseFailed, "AI reply could not be decoded", err),
			"Using fallback result", "operation", OperationAnalyze)
		return s.analysisFallback(in.Items), nil
	}
	for i := range out.Verdicts {
		out.Verdicts[i].Score = clampScore(out.Verdicts[i].Score)
	}
	if out.Replacements == nil {
		out.Replacements = []types.SuggestedReplacement{}
	}
	if out.Additions == nil {
		out.Additions = []types.CandidateItem{}
	}
	return &out, nil
}

// analysisFallback keeps every project, scored at the threshold.
func (s *Service) analysisFallback(items []types.CandidateItem) *types.ProjectAnalysis {
	out := &types.ProjectAnalysis{
		Verdicts:     make([]types.ItemVerdict, 0, len(items)),
		Replacements: []types.SuggestedReplacement{},
		Additions:    []types.CandidateItem{},
		Fallback:     true,
	}
	for _, item := range items {
		out.Verdicts = append(out.Verdicts, types.ItemVerdict{
			Title:    item.Title,
			Score:    s.threshold,
			Suitable: true,
			Reason:   "analysis unavailable",
		})
	}
	return out
}

// ScoreResume rates how well the resume matches the job description.
func (s *Service) ScoreResume(ctx context.Context, in types.ScoreResumeInput) (*types.ResumeScore, error) {
	if strings.TrimSpace(in.Resume) == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "resume is required", nil)
	}
	if strings.TrimSpace(in.JobDescription) == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "job description is required", nil)
	}
	in.JobDescription = NormalizeJobDescription(in.JobDescription)

	reply, parseErr, err := s.generate(ctx, OperationScore, schemaScoreResume, in)
	if err != nil {
		return nil, err
	}

	var out types.ResumeScore
	if parseErr == nil {
		if err := json.Unmarshal(reply, &out); err == nil {
			out.Score = clampScore(out.Score)
			normalizeLists(&out)
			return &out, nil
		}
	}
	return &types.ResumeScore{
		Summary:         "score unavailable",
		Strengths:       []string{},
		Gaps:            []string{},
		MissingKeywords: []string{},
		Fallback:        true,
	}, nil
}

func normalizeLists(out *types.ResumeScore) {
	if out.Strengths == nil {
		out.Strengths = []string{}
	}
	if out.Gaps == nil {
		out.Gaps = []string{}
	}
	if out.MissingKeywords == nil {
		out.MissingKeywords = []string{}
	}
}

// GenerateOutreach writes a LinkedIn message for the recipient.
func (s *Service) GenerateOutreach(ctx context.Context, in types.OutreachInput) (*types.OutreachMessage, error) {
	switch {
	case strings.TrimSpace(in.RecipientName) == "":
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "recipient name is required", nil)
	case strings.TrimSpace(in.Company) == "":
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "company is required", nil)
	case strings.TrimSpace(in.TargetRole) == "":
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "target role is required", nil)
	}

	reply, parseErr, err := s.generate(ctx, OperationOutreach, schemaOutreach, in)
	if err != nil {
		return nil, err
	}

	var out types.OutreachMessage
	if parseErr == nil {
		if err := json.Unmarshal(reply, &out); err == nil {
			out.Body = strings.TrimSpace(out.Body)
			return &out, nil
		}
	}
	return OutreachFallback(in), nil
}

// OutreachFallback is the fixed message used when the model reply is unusable.
func OutreachFallback(in types.OutreachInput) *types.OutreachMessage {
	return &types.OutreachMessage{
		Subject: fmt.Sprintf("%s role at %s", in.TargetRole, in.Company),
		Body: fmt.Sprintf("Hi %s, I came across the %s opening at %s and would love to connect. "+
			"My background lines up well with the role and I'd welcome a short chat.",
			in.RecipientName, in.TargetRole, in.Company),
		Fallback: true,
	}
}

func clampScore(score int) int {
	return min(max(score, 0), 100)
}

// Health reports provider and breaker state per operation.
func (s *Service) Health() map[string]any {
	names := make([]string, 0, len(s.ops))
	for name := range s.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	ops := make(map[string]any, len(names))
	for _, name := range names {
		op := s.ops[name]
		healthy = healthy && op.breaker.IsHealthy()
		ops[name] = map[string]any{
			"provider":        op.provider.Name(),
			"model":           op.model,
			"circuit_breaker": op.breaker.Stats(),
		}
	}
	return map[string]any{"healthy": healthy, "operations": ops}
}

// Close releases every provider.
func (s *Service) Close() error {
	var firstErr error
	for _, op := range s.ops {
		if err := op.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
