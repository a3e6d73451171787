package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"resumeopt/internal/errors"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "resumeopt",
		"version": s.version,
	}

	healthy := true
	if s.deps.AI != nil {
		aiHealth := s.deps.AI.Health()
		response["ai"] = aiHealth
		if ok, _ := aiHealth["healthy"].(bool); !ok {
			healthy = false
		}
	}
	if s.certs != nil {
		certHealth := s.certs.Status()
		response["certificates"] = certHealth
		if ok, _ := certHealth["healthy"].(bool); !ok {
			healthy = false
		}
	}
	response["auto_apply"] = map[string]any{"enabled": s.autoApplyEnabled()}

	status := http.StatusOK
	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"service": "resumeopt",
		"version": s.version,
		"reconcile": map[string]any{
			"cap":                   s.policy.Cap,
			"suitability_threshold": s.policy.Threshold,
		},
	}
	if s.limiter != nil {
		stats["rate_limiter"] = s.limiter.Stats()
	}
	if s.deps.Tracker != nil {
		stats["auto_apply"] = s.deps.Tracker.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// statusFor maps an application error onto an HTTP status.
func statusFor(err error) int {
	appErr, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case errors.ErrCodeAITimeout, errors.ErrCodeSubmissionTimeout, errors.ErrCodeNetworkTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeTrackerActive:
		return http.StatusConflict
	case errors.ErrCodeTooManySessions:
		return http.StatusTooManyRequests
	}
	switch appErr.Type {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeCredentials:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the mapped status. Internal causes
// are not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message}
	if appErr, ok := errors.As(err); ok {
		resp.Code = appErr.Code
		resp.Message = appErr.Message
	}
	if status >= 500 {
		s.logger.LogError(err, message, "endpoint", r.URL.Path)
	} else {
		s.logger.Debug(message, "endpoint", r.URL.Path, "error", err.Error())
	}
	writeJSON(w, status, resp)
}

func writeErrorResponse(w http.ResponseWriter, errMsg, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: errMsg, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object from the body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), err)
		}
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid JSON body", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "request body must hold a single JSON object", err)
	}
	return nil
}
