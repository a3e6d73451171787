package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resumeopt/internal/errors"
	"resumeopt/internal/reconcile"
	"resumeopt/internal/types"
)

const tracerName = "resumeopt.api"

type AnalyzeRequest struct {
	JobDescription string `json:"jobDescription"`
	ResumeText     string `json:"resumeText,omitempty"`
}

type ItemsResponse struct {
	ResumeID string                `json:"resumeId"`
	Section  string                `json:"section"`
	Items    []types.CandidateItem `json:"items"`
}

type SubmitResponse struct {
	JobID     string              `json:"jobId"`
	StatusURL string              `json:"statusUrl,omitempty"`
	Job       types.JobSubmission `json:"job"`
}

type CancelResponse struct {
	Cancelled bool                `json:"cancelled"`
	Job       types.JobSubmission `json:"job"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "api.score")
	defer span.End()

	var req types.ScoreResumeInput
	if err := decodeJSON(r, &req); err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Invalid request body")
		return
	}
	span.SetAttributes(
		attribute.Int("request.resume_length", len(req.Resume)),
		attribute.Int("request.job_length", len(req.JobDescription)),
	)

	out, err := s.deps.AI.ScoreResume(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score failed")
		s.writeError(w, r, err, "Failed to score resume")
		return
	}
	span.SetAttributes(attribute.Int("score", out.Score), attribute.Bool("fallback", out.Fallback))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOutreach(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "api.outreach")
	defer span.End()

	var req types.OutreachInput
	if err := decodeJSON(r, &req); err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Invalid request body")
		return
	}

	out, err := s.deps.AI.GenerateOutreach(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "outreach failed")
		s.writeError(w, r, err, "Failed to generate outreach message")
		return
	}
	span.SetAttributes(attribute.Bool("fallback", out.Fallback))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	resumeID, section := r.PathValue("resumeID"), r.PathValue("section")
	items, err := s.deps.Store.Items(r.Context(), resumeID, section)
	if err != nil {
		s.writeError(w, r, err, "Failed to read items")
		return
	}
	writeJSON(w, http.StatusOK, ItemsResponse{ResumeID: resumeID, Section: section, Items: items})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "api.analyze")
	defer span.End()

	resumeID, section := r.PathValue("resumeID"), r.PathValue("section")
	span.SetAttributes(attribute.String("resume.id", resumeID), attribute.String("resume.section", section))

	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Invalid request body")
		return
	}

	items, err := s.deps.Store.Items(ctx, resumeID, section)
	if err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Failed to read items")
		return
	}
	if len(items) == 0 {
		s.writeError(w, r, errors.NewNotFoundError(errors.ErrCodeItemsNotFound,
			fmt.Sprintf("section %q of resume %q has no items", section, resumeID), nil), "Nothing to analyze")
		return
	}
	span.SetAttributes(attribute.Int("items", len(items)))

	out, err := s.deps.AI.AnalyzeProjects(ctx, types.AnalyzeProjectsInput{
		Items:          items,
		JobDescription: req.JobDescription,
		ResumeText:     req.ResumeText,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyze failed")
		s.writeError(w, r, err, "Failed to analyze projects")
		return
	}
	span.SetAttributes(attribute.Bool("fallback", out.Fallback))
	writeJSON(w, http.StatusOK, out)
}

// handleReconcile applies the user's selections to the stored items and
// writes the final list back unless dryRun=true.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "api.reconcile")
	defer span.End()

	resumeID, section := r.PathValue("resumeID"), r.PathValue("section")
	dryRun := strings.EqualFold(r.URL.Query().Get("dryRun"), "true")

	var req types.ReconcileInput
	if err := decodeJSON(r, &req); err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Invalid request body")
		return
	}

	original, err := s.deps.Store.Items(ctx, resumeID, section)
	if err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Failed to read items")
		return
	}
	if len(original) == 0 {
		original = req.Original
	}

	analyzed := reconcile.Join(original, req.Verdicts)
	if err := reconcile.ValidateSelection(analyzed, req.Replacements, s.policy); err != nil {
		s.writeError(w, r, err, "Invalid selection")
		return
	}
	result := reconcile.Reconcile(reconcile.Input{
		Items:        analyzed,
		Replacements: req.Replacements,
		Additions:    req.Additions,
	}, s.policy)

	if !dryRun {
		if err := s.deps.Store.ReplaceItems(ctx, resumeID, section, result.FinalItems); err != nil {
			span.RecordError(err)
			s.writeError(w, r, err, "Failed to save items")
			return
		}
	}
	if s.deps.Observability != nil {
		s.deps.Observability.RecordReconcile(ctx, section, result)
	}

	span.SetAttributes(
		attribute.Int("reconcile.kept", result.KeptCount),
		attribute.Int("reconcile.added", result.AddedCount),
		attribute.Int("reconcile.dropped", result.DroppedCount),
		attribute.Bool("reconcile.dry_run", dryRun),
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) requireAutoApply(w http.ResponseWriter) bool {
	if s.autoApplyEnabled() {
		return true
	}
	writeErrorResponse(w, "Auto-apply disabled", "autoApply.enabled is false on this server", http.StatusServiceUnavailable)
	return false
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoApply(w) {
		return
	}
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "api.autoapply.submit")
	defer span.End()

	var req types.SubmitApplicationInput
	if err := decodeJSON(r, &req); err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Invalid request body")
		return
	}

	out, err := s.deps.Submitter.Submit(ctx, req)
	if s.deps.Observability != nil {
		s.deps.Observability.RecordSubmission(ctx, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		s.writeError(w, r, err, "Failed to submit application")
		return
	}
	span.SetAttributes(attribute.String("job.id", out.JobID))

	t, err := s.deps.Tracker.Track(out.JobID)
	if err != nil {
		span.RecordError(err)
		s.writeError(w, r, err, "Application submitted but could not be tracked")
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: out.JobID, StatusURL: out.StatusURL, Job: t.Snapshot()})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoApply(w) {
		return
	}
	snap, err := s.deps.Tracker.Snapshot(r.PathValue("jobID"))
	if err != nil {
		s.writeError(w, r, err, "Unknown job")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleJobEvents streams snapshots as Server-Sent Events until the tracking
// session ends or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoApply(w) {
		return
	}
	t, err := s.deps.Tracker.Get(r.PathValue("jobID"))
	if err != nil {
		s.writeError(w, r, err, "Unknown job")
		return
	}

	events, unsubscribe := t.Subscribe()
	defer unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(snap types.JobSubmission) bool {
		data, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	current := t.Snapshot()
	if !send(current) || sessionOver(current) {
		return
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				send(t.Snapshot())
				return
			}
			if !send(ev.Snapshot) || sessionOver(ev.Snapshot) {
				return
			}
		case <-t.Done():
			send(t.Snapshot())
			return
		case <-r.Context().Done():
			return
		}
	}
}

func sessionOver(snap types.JobSubmission) bool {
	return snap.Session != types.SessionPolling && snap.Session != types.SessionIdle
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoApply(w) {
		return
	}
	snap, cancelled, err := s.deps.Tracker.Cancel(r.Context(), r.PathValue("jobID"))
	if err != nil {
		s.writeError(w, r, err, "Unknown job")
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled, Job: snap})
}

func (s *Server) handleTeardownJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireAutoApply(w) {
		return
	}
	if err := s.deps.Tracker.Teardown(r.PathValue("jobID")); err != nil {
		s.writeError(w, r, err, "Unknown job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
