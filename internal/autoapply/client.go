// Package autoapply is the client for the external auto-apply service that
// submits applications and reports job progress.
package autoapply

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
	"resumeopt/internal/retry"
	"resumeopt/internal/tracker"
	"resumeopt/internal/types"
)

const (
	DefaultSubmitTimeout = 180 * time.Second
	maxErrorBody         = 2048
)

// Client talks to the auto-apply service with a bearer token.
type Client struct {
	httpClient    *http.Client
	baseURL       *url.URL
	token         string
	submitTimeout time.Duration
	retry         retry.Policy
	logger        *errors.Logger
}

var _ tracker.StatusSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the backoff used for status and cancel calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg config.AutoApplyConfig, logger *errors.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "autoApply.baseURL must be an absolute http(s) URL", err).
			WithContext("base_url", cfg.BaseURL)
	}
	if cfg.Token == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey, "auto-apply token is required", nil)
	}

	c := &Client{
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:       base,
		token:         cfg.Token,
		submitTimeout: cfg.SubmitTimeout,
		retry:         retry.DefaultPolicy(),
		logger:        logger,
	}
	if c.submitTimeout <= 0 {
		c.submitTimeout = DefaultSubmitTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// httpStatusError is a non-2xx reply from the service.
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("auto-apply service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func isRetryable(err error) bool {
	var statusErr *httpStatusError
	if stderrors.As(err, &statusErr) {
		return retry.IsRetryableStatus(statusErr.StatusCode)
	}
	return retry.IsTransientNetError(err)
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...).String()
}

// do sends one request and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &httpStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewNetworkError(errors.ErrCodeInvalidResponse, "auto-apply service returned an invalid body", err)
	}
	return nil
}

var errEmptyBody = stderrors.New("empty response body")

// mapError turns a transport or status failure into an application error.
func mapError(err error, code, message, jobID string) error {
	if appErr, ok := errors.As(err); ok {
		if jobID != "" {
			return appErr.WithContext("job_id", jobID)
		}
		return appErr
	}

	var appErr *errors.AppError
	var statusErr *httpStatusError
	switch {
	case stderrors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden):
		appErr = errors.NewCredentialsError(errors.ErrCodeCredentials, "auto-apply service rejected the token", err)
	case stderrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		appErr = errors.NewNotFoundError(errors.ErrCodeJobNotFound, "auto-apply service does not know the job", err)
	case stderrors.Is(err, errEmptyBody):
		appErr = errors.NewNetworkError(errors.ErrCodeInvalidResponse, "auto-apply service returned an empty body", err)
	default:
		appErr = errors.NewNetworkError(code, message, err)
	}
	if statusErr != nil {
		appErr = appErr.WithContext("status", statusErr.StatusCode)
	}
	if jobID != "" {
		appErr = appErr.WithContext("job_id", jobID)
	}
	return appErr
}

type submitResponse struct {
	JobID     string `json:"jobId"`
	ID        string `json:"id"`
	StatusURL string `json:"statusUrl"`
}

// Submit starts an application. It is never retried and is bounded by the
// submit timeout, which fails with SUBMISSION_TIMEOUT.
func (c *Client) Submit(ctx context.Context, in types.SubmitApplicationInput) (*types.SubmitApplicationOutput, error) {
	if err := validateSubmission(in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	var resp submitResponse
	err := c.do(ctx, http.MethodPost, c.endpoint("jobs"), in, &resp)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewNetworkError(errors.ErrCodeSubmissionTimeout,
				"auto-apply submission timed out", err).WithContext("timeout", c.submitTimeout.String())
		}
		return nil, mapError(err, errors.ErrCodeSubmissionFailed, "auto-apply submission failed", "")
	}

	jobID := resp.JobID
	if jobID == "" {
		jobID = resp.ID
	}
	if jobID == "" {
		return nil, errors.NewNetworkError(errors.ErrCodeInvalidResponse, "auto-apply service returned no job id", nil)
	}

	c.logger.Info("Auto-apply job submitted", "job_id", jobID, "job_url", in.JobURL)
	return &types.SubmitApplicationOutput{JobID: jobID, StatusURL: resp.StatusURL}, nil
}

func validateSubmission(in types.SubmitApplicationInput) error {
	u, err := url.Parse(in.JobURL)
	if in.JobURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "jobUrl must be an absolute http(s) URL", err)
	}
	if strings.TrimSpace(in.ResumeID) == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "resumeId is required", nil)
	}
	return nil
}

// Status fetches the job's current status, retrying transient failures.
func (c *Client) Status(ctx context.Context, jobID string) (*types.JobStatusReport, error) {
	report, err := retry.Do(ctx, c.retry, isRetryable, func() (*types.JobStatusReport, error) {
		var report types.JobStatusReport
		if err := c.do(ctx, http.MethodGet, c.endpoint("jobs", jobID), nil, &report); err != nil {
			return nil, err
		}
		return &report, nil
	}, c.logRetry("status", jobID))
	if err != nil {
		return nil, mapError(err, errors.ErrCodePollingFailed, "failed to fetch job status", jobID)
	}
	return report, nil
}

type cancelResponse struct {
	Cancelled *bool `json:"cancelled"`
	Success   *bool `json:"success"`
}

// Cancel asks the service to stop the job. An empty 2xx reply counts as accepted.
func (c *Client) Cancel(ctx context.Context, jobID string) (bool, error) {
	accepted, err := retry.Do(ctx, c.retry, isRetryable, func() (bool, error) {
		var resp cancelResponse
		err := c.do(ctx, http.MethodPost, c.endpoint("jobs", jobID, "cancel"), nil, &resp)
		switch {
		case stderrors.Is(err, errEmptyBody):
			return true, nil
		case err != nil:
			return false, err
		case resp.Cancelled != nil:
			return *resp.Cancelled, nil
		case resp.Success != nil:
			return *resp.Success, nil
		default:
			return true, nil
		}
	}, c.logRetry("cancel", jobID))
	if err != nil {
		return false, mapError(err, errors.ErrCodeSubmissionFailed, "failed to cancel job", jobID)
	}
	return accepted, nil
}

func (c *Client) logRetry(call, jobID string) func(int, time.Duration, error) {
	return func(attempt int, wait time.Duration, err error) {
		c.logger.Warn("Retrying auto-apply call",
			"call", call,
			"job_id", jobID,
			"attempt", attempt,
			"wait", wait,
			"error", err.Error())
	}
}
