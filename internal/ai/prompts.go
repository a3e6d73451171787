package ai

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"resumeopt/internal/config"
)

const (
	OperationAnalyze  = "analyze"
	OperationScore    = "score"
	OperationOutreach = "outreach"
)

// DefaultSystemPrompts are used when an operation has no configured system prompt.
var DefaultSystemPrompts = map[string]string{
	OperationAnalyze: `You are an expert technical recruiter reviewing the projects section of a resume against one job description.
You never invent experience. Every replacement or addition you suggest must be traceable to the candidate material supplied.
Reply with a single JSON object and nothing else.`,

	OperationScore: `You are an applicant tracking system analyst. You score how well a resume matches a job description.
Be strict and evidence based. Reply with a single JSON object and nothing else.`,

	OperationOutreach: `You write short, specific LinkedIn connection messages for job seekers.
Never exceed 300 characters in the body. Never use flattery or filler. Reply with a single JSON object and nothing else.`,
}

// DefaultUserPrompts are text/template sources rendered with the operation input.
var DefaultUserPrompts = map[string]string{
	OperationAnalyze: `Assess each project below for the job description.

For every project return a verdict with:
- "title": the project title exactly as given
- "score": suitability 0-100
- "suitable": true when the project should stay on the resume
- "reason": one sentence

For unsuitable projects you may propose "replacements" drawn from the rest of the resume text, each with "replacesTitle" and an "item" ({"title", "content": [bullet strings]}).
You may also propose "additions" for strong material that is missing.

JSON shape: {"verdicts": [...], "replacements": [...], "additions": [...]}

**Projects:**
-----
{{range .Items}}### {{.Title}}
{{range .Content}}- {{.}}
{{end}}
{{end}}-----
{{if .ResumeText}}
**Rest of the resume:**
-----
{{.ResumeText}}
-----
{{end}}
**Job Description:**
-----
{{.JobDescription}}
-----`,

	OperationScore: `Score the resume against the job description.

JSON shape: {"score": 0-100, "summary": string, "strengths": [string], "gaps": [string], "missingKeywords": [string]}

**Resume:**
-----
{{.Resume}}
-----

**Job Description:**
-----
{{.JobDescription}}
-----`,

	OperationOutreach: `Write a LinkedIn message to {{.RecipientName}}{{if .RecipientRole}} ({{.RecipientRole}}){{end}} at {{.Company}} about the {{.TargetRole}} role.
Tone: {{if .Tone}}{{.Tone}}{{else}}professional and warm{{end}}.
{{if .ResumeSummary}}
About the sender:
{{.ResumeSummary}}
{{end}}
JSON shape: {"subject": string, "body": string}`,
}

// promptSet holds the parsed prompts of one operation.
type promptSet struct {
	system string
	user   *template.Template
}

func newPromptSet(operation string, cfg config.PromptConfig) (*promptSet, error) {
	system := cfg.System
	if system == "" {
		system = DefaultSystemPrompts[operation]
	}
	userSource := cfg.User
	if userSource == "" {
		userSource = DefaultUserPrompts[operation]
	}

	user, err := template.New(operation).Option("missingkey=error").Parse(userSource)
	if err != nil {
		return nil, fmt.Errorf("parse %s user prompt: %w", operation, err)
	}
	return &promptSet{system: system, user: user}, nil
}

func (p *promptSet) render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var htmlTag = regexp.MustCompile(`(?i)<(p|div|br|ul|ol|li|h[1-6]|strong|em|span|section|article|table)\b`)

// NormalizeJobDescription converts job descriptions pasted as HTML to Markdown.
// Plain text passes through unchanged.
func NormalizeJobDescription(s string) string {
	if !htmlTag.MatchString(s) {
		return strings.TrimSpace(s)
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(md)
}
