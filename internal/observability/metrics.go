package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"resumeopt/internal/ai"
	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/tracker"
	"resumeopt/internal/types"
)

var (
	_ ai.Recorder      = (*Manager)(nil)
	_ tracker.Recorder = (*Manager)(nil)
)

// Metrics holds the service's own instruments.
type Metrics struct {
	toggles config.CustomMetricsConfig

	AIDuration  metric.Float64Histogram
	AIRequests  metric.Int64Counter
	AIErrors    metric.Int64Counter
	AIFallbacks metric.Int64Counter
	AITokens    metric.Int64Histogram

	AutoApplySubmissions metric.Int64Counter
	AutoApplyPolls       metric.Int64Counter
	AutoApplyOutcomes    metric.Int64Counter

	ReconcileRuns  metric.Int64Counter
	ReconcileItems metric.Int64Counter

	RateLimitHits metric.Int64Counter
}

func newMetrics(meter metric.Meter, toggles config.CustomMetricsConfig) (*Metrics, error) {
	m := &Metrics{toggles: toggles}
	var err error

	if m.AIDuration, err = meter.Float64Histogram("resumeopt_ai_duration_seconds",
		metric.WithDescription("Time spent on AI operations, retries included"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create AI duration metric: %w", err)
	}
	if m.AIRequests, err = meter.Int64Counter("resumeopt_ai_requests_total",
		metric.WithDescription("Total number of AI operations")); err != nil {
		return nil, fmt.Errorf("failed to create AI request metric: %w", err)
	}
	if m.AIErrors, err = meter.Int64Counter("resumeopt_ai_errors_total",
		metric.WithDescription("AI operations that ended in an error")); err != nil {
		return nil, fmt.Errorf("failed to create AI error metric: %w", err)
	}
	if m.AIFallbacks, err = meter.Int64Counter("resumeopt_ai_fallbacks_total",
		metric.WithDescription("AI operations answered with a fallback result")); err != nil {
		return nil, fmt.Errorf("failed to create AI fallback metric: %w", err)
	}
	if m.AITokens, err = meter.Int64Histogram("resumeopt_ai_tokens",
		metric.WithDescription("Token usage per AI operation"),
		metric.WithUnit("{token}")); err != nil {
		return nil, fmt.Errorf("failed to create AI token metric: %w", err)
	}

	if m.AutoApplySubmissions, err = meter.Int64Counter("resumeopt_autoapply_submissions_total",
		metric.WithDescription("Applications submitted to the auto-apply service")); err != nil {
		return nil, fmt.Errorf("failed to create auto-apply submission metric: %w", err)
	}
	if m.AutoApplyPolls, err = meter.Int64Counter("resumeopt_autoapply_polls_total",
		metric.WithDescription("Status polls sent to the auto-apply service")); err != nil {
		return nil, fmt.Errorf("failed to create auto-apply poll metric: %w", err)
	}
	if m.AutoApplyOutcomes, err = meter.Int64Counter("resumeopt_autoapply_outcomes_total",
		metric.WithDescription("Auto-apply jobs that reached a terminal state")); err != nil {
		return nil, fmt.Errorf("failed to create auto-apply outcome metric: %w", err)
	}

	if m.ReconcileRuns, err = meter.Int64Counter("resumeopt_reconcile_runs_total",
		metric.WithDescription("Reconciliations performed")); err != nil {
		return nil, fmt.Errorf("failed to create reconcile metric: %w", err)
	}
	if m.ReconcileItems, err = meter.Int64Counter("resumeopt_reconcile_items_total",
		metric.WithDescription("Items kept, added or dropped by reconciliations")); err != nil {
		return nil, fmt.Errorf("failed to create reconcile item metric: %w", err)
	}

	if m.RateLimitHits, err = meter.Int64Counter("resumeopt_rate_limit_hits_total",
		metric.WithDescription("Requests rejected by the rate limiter")); err != nil {
		return nil, fmt.Errorf("failed to create rate limit metric: %w", err)
	}
	return m, nil
}

// RecordAIOperation implements ai.Recorder.
func (m *Manager) RecordAIOperation(ctx context.Context, report ai.OperationReport) {
	if m.metrics == nil || !m.metrics.toggles.AIOperations.Enabled {
		return
	}
	mt := m.metrics

	attrs := []attribute.KeyValue{
		attribute.String("operation", report.Operation),
		attribute.String("provider", report.Provider),
		attribute.Bool("success", report.Err == nil),
	}
	opt := metric.WithAttributes(attrs...)

	mt.AIRequests.Add(ctx, 1, opt)
	if mt.toggles.AIOperations.TrackDuration {
		mt.AIDuration.Record(ctx, report.Duration.Seconds(), opt)
	}
	if report.Err != nil {
		code := "unknown"
		if appErr, ok := errors.As(report.Err); ok {
			code = appErr.Code
		}
		mt.AIErrors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error_code", code))...))
	}
	if report.Fallback {
		mt.AIFallbacks.Add(ctx, 1, opt)
	}

	if report.Usage != nil && mt.toggles.AIOperations.TrackTokenUsage {
		for _, tok := range []struct {
			kind  string
			value int64
		}{
			{"input", report.Usage.InputTokens},
			{"output", report.Usage.OutputTokens},
			{"total", report.Usage.TotalTokens},
		} {
			mt.AITokens.Record(ctx, tok.value, metric.WithAttributes(
				attribute.String("operation", report.Operation),
				attribute.String("token_type", tok.kind),
			))
		}
	}
}

// RecordSubmission counts one submit call to the auto-apply service.
func (m *Manager) RecordSubmission(ctx context.Context, err error) {
	if !m.trackAutoApply() {
		return
	}
	m.metrics.AutoApplySubmissions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}

// RecordPoll implements tracker.Recorder.
func (m *Manager) RecordPoll(ctx context.Context, err error) {
	if !m.trackAutoApply() {
		return
	}
	m.metrics.AutoApplyPolls.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}

// RecordOutcome implements tracker.Recorder.
func (m *Manager) RecordOutcome(ctx context.Context, status types.JobStatus, cancelled bool) {
	if !m.trackAutoApply() {
		return
	}
	m.metrics.AutoApplyOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.Bool("cancelled", cancelled),
	))
}

func (m *Manager) trackAutoApply() bool {
	return m.metrics != nil &&
		m.metrics.toggles.BusinessMetrics.Enabled &&
		m.metrics.toggles.BusinessMetrics.TrackAutoApply
}

// RecordReconcile counts one reconciliation and the items it kept, added and dropped.
func (m *Manager) RecordReconcile(ctx context.Context, section string, result types.ReconciliationResult) {
	if m.metrics == nil || !m.metrics.toggles.BusinessMetrics.Enabled || !m.metrics.toggles.BusinessMetrics.TrackReconcile {
		return
	}
	m.metrics.ReconcileRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("section", section),
		attribute.Bool("cap_reached", result.CapReached),
	))
	for kind, n := range map[string]int{
		"kept":    result.KeptCount,
		"added":   result.AddedCount,
		"dropped": result.DroppedCount,
	} {
		if n > 0 {
			m.metrics.ReconcileItems.Add(ctx, int64(n), metric.WithAttributes(
				attribute.String("section", section),
				attribute.String("kind", kind),
			))
		}
	}
}

// RecordRateLimitHit counts a request rejected by the limiter keyed by kind
// ("ip" or "api_key").
func (m *Manager) RecordRateLimitHit(ctx context.Context, kind string) {
	if m.metrics == nil || !m.metrics.toggles.Infrastructure.Enabled || !m.metrics.toggles.Infrastructure.TrackRateLimits {
		return
	}
	m.metrics.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("limiter", kind)))
}
