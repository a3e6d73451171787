package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"resumeopt/internal/errors"
	"resumeopt/internal/retry"
)

// StatusError is a non-2xx reply from an HTTP based provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("provider returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// statusCode extracts an HTTP status from any provider error, 0 if none.
func statusCode(err error) int {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code
	}
	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var genaiPtr *genai.APIError
	if stderrors.As(err, &genaiPtr) && genaiPtr != nil {
		return genaiPtr.Code
	}
	return 0
}

// isRetryable returns true only for 429 and 5xx replies. Errors without a
// status, timeouts included, fail on the first attempt.
func isRetryable(err error) bool {
	return retry.IsRetryableStatus(statusCode(err))
}

// classifyError maps a final provider error to an application error.
func classifyError(operation string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}

	code := statusCode(err)
	var appErr *errors.AppError
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		appErr = errors.NewCredentialsError(errors.ErrCodeCredentials, "AI provider rejected the API key", err)
	case code == http.StatusTooManyRequests:
		appErr = errors.NewAIError(errors.ErrCodeAIRateLimited, "AI provider rate limit exceeded", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		appErr = errors.NewAIError(errors.ErrCodeAITimeout, "AI request timed out", err)
	default:
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			appErr = errors.NewAIError(errors.ErrCodeAITimeout, "AI request timed out", err)
		} else {
			appErr = errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to generate content for "+operation, err)
		}
	}
	appErr = appErr.WithContext("operation", operation)
	if code != 0 {
		appErr = appErr.WithContext("status", code)
	}
	return appErr
}
