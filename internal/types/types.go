package types

import "time"

// CandidateItem is one resume sub-entry, usually a project.
type CandidateItem struct {
	Title     string   `json:"title"`
	Content   []string `json:"content"`
	SourceURL string   `json:"sourceUrl,omitempty"`
}

// ItemVerdict is the AI suitability verdict for one existing item.
type ItemVerdict struct {
	Title    string `json:"title"`
	Score    int    `json:"score"`
	Suitable bool   `json:"suitable"`
	Reason   string `json:"reason,omitempty"`
}

// SuggestedReplacement proposes an item to take the place of an unsuitable one.
type SuggestedReplacement struct {
	ReplacesTitle string        `json:"replacesTitle"`
	Item          CandidateItem `json:"item"`
	Reason        string        `json:"reason,omitempty"`
}

// AnalyzeProjectsInput represents the input for analyzing resume projects
type AnalyzeProjectsInput struct {
	Items          []CandidateItem `json:"items"`
	JobDescription string          `json:"jobDescription"`
	ResumeText     string          `json:"resumeText,omitempty"`
}

// ProjectAnalysis represents the output from analyzing resume projects
type ProjectAnalysis struct {
	Verdicts     []ItemVerdict          `json:"verdicts"`
	Replacements []SuggestedReplacement `json:"replacements"`
	Additions    []CandidateItem        `json:"additions"`
	Fallback     bool                   `json:"fallback,omitempty"`
}

// ScoreResumeInput represents the input for scoring a resume
type ScoreResumeInput struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"jobDescription"`
}

// ResumeScore represents the output from scoring a resume
type ResumeScore struct {
	Score           int      `json:"score"`
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Gaps            []string `json:"gaps"`
	MissingKeywords []string `json:"missingKeywords"`
	Fallback        bool     `json:"fallback,omitempty"`
}

// OutreachInput represents the input for a LinkedIn outreach message
type OutreachInput struct {
	RecipientName string `json:"recipientName"`
	RecipientRole string `json:"recipientRole,omitempty"`
	Company       string `json:"company"`
	TargetRole    string `json:"targetRole"`
	ResumeSummary string `json:"resumeSummary,omitempty"`
	Tone          string `json:"tone,omitempty"`
}

// OutreachMessage represents a generated LinkedIn outreach message
type OutreachMessage struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Fallback bool   `json:"fallback,omitempty"`
}

// ReplacementSelection is a user-chosen replacement for an original item.
type ReplacementSelection struct {
	Original string        `json:"original"`
	Item     CandidateItem `json:"item"`
}

// ReconcileInput carries the analysis and the user's selections.
type ReconcileInput struct {
	Original     []CandidateItem        `json:"original,omitempty"`
	Verdicts     []ItemVerdict          `json:"verdicts"`
	Replacements []ReplacementSelection `json:"replacements"`
	Additions    []CandidateItem        `json:"additions"`
}

// ReconciliationResult is the bounded final item list plus derived counts.
type ReconciliationResult struct {
	FinalItems   []CandidateItem `json:"finalItems"`
	KeptCount    int             `json:"keptCount"`
	RemovedCount int             `json:"removedCount"`
	AddedCount   int             `json:"addedCount"`
	DroppedCount int             `json:"droppedCount"`
	CapReached   bool            `json:"capReached"`
}

// JobStatus is the lifecycle status reported by the auto-apply service.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// SessionState describes the tracking session, independent of the remote job.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionPolling  SessionState = "polling"
	SessionFinished SessionState = "finished"
	SessionErrored  SessionState = "errored"
	SessionStopped  SessionState = "stopped"
)

// JobResult is present only on completed jobs.
type JobResult struct {
	Success       bool   `json:"success"`
	ScreenshotURL string `json:"screenshotUrl,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
	Message       string `json:"message,omitempty"`
}

// JobStatusReport is one response from the status endpoint.
type JobStatusReport struct {
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	CurrentStepLabel string     `json:"currentStep"`
	Result           *JobResult `json:"result,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// JobSubmission is the tracked view of one auto-apply job.
type JobSubmission struct {
	ID               string       `json:"id"`
	Status           JobStatus    `json:"status"`
	Progress         int          `json:"progress"`
	CurrentStepLabel string       `json:"currentStep"`
	Result           *JobResult   `json:"result,omitempty"`
	Error            string       `json:"error,omitempty"`
	Session          SessionState `json:"session"`
	TrackingError    string       `json:"trackingError,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// SubmitApplicationInput is sent to the auto-apply service.
type SubmitApplicationInput struct {
	JobURL      string            `json:"jobUrl"`
	ResumeID    string            `json:"resumeId"`
	ResumeURL   string            `json:"resumeUrl,omitempty"`
	CoverLetter string            `json:"coverLetter,omitempty"`
	Profile     map[string]string `json:"profile,omitempty"`
}

// SubmitApplicationOutput is returned once the job has been accepted.
type SubmitApplicationOutput struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl,omitempty"`
}
