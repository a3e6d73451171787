// Package formatters renders command results as json, text or markdown.
package formatters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"resumeopt/internal/types"
)

// Formatter renders one result type in one output format.
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry maps format and data type to a formatter.
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a registry with the built-in formatters.
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", typeScore, &ScoreTextFormatter{})
	registry.RegisterFormatter("markdown", typeScore, &ScoreMarkdownFormatter{})
	registry.RegisterFormatter("text", typeAnalysis, &AnalysisTextFormatter{})
	registry.RegisterFormatter("markdown", typeAnalysis, &AnalysisMarkdownFormatter{})
	registry.RegisterFormatter("text", typeOutreach, &OutreachTextFormatter{})
	registry.RegisterFormatter("markdown", typeOutreach, &OutreachMarkdownFormatter{})
	registry.RegisterFormatter("text", typeReconcile, &ReconcileTextFormatter{})
	registry.RegisterFormatter("markdown", typeReconcile, &ReconcileMarkdownFormatter{})
	registry.RegisterFormatter("text", typeJob, &JobTextFormatter{})
	registry.RegisterFormatter("markdown", typeJob, &JobTextFormatter{})

	return registry
}

// RegisterFormatter registers a formatter for a format and data type.
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format renders data, preferring a type specific formatter over the generic one.
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all registered formats, sorted.
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

const (
	typeScore     = "ResumeScore"
	typeAnalysis  = "ProjectAnalysis"
	typeOutreach  = "OutreachMessage"
	typeReconcile = "ReconciliationResult"
	typeJob       = "JobSubmission"
)

func getDataType(data any) string {
	switch data.(type) {
	case *types.ResumeScore, types.ResumeScore:
		return typeScore
	case *types.ProjectAnalysis, types.ProjectAnalysis:
		return typeAnalysis
	case *types.OutreachMessage, types.OutreachMessage:
		return typeOutreach
	case *types.ReconciliationResult, types.ReconciliationResult:
		return typeReconcile
	case *types.JobSubmission, types.JobSubmission:
		return typeJob
	default:
		return "any"
	}
}

// deref accepts both T and *T so callers can pass service results directly.
func deref[T any](data any) (T, error) {
	var zero T
	switch v := data.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, fmt.Errorf("expected %T, got nil", zero)
		}
		return *v, nil
	}
	return zero, fmt.Errorf("expected %T, got %T", zero, data)
}

// JSONFormatter handles any data type.
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

type ScoreTextFormatter struct{}

func (f *ScoreTextFormatter) Format(data any) (string, error) {
	result, err := deref[types.ResumeScore](data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("=== RESUME SCORE ===\n")
	fmt.Fprintf(&output, "Score: %d/100%s\n\n", result.Score, fallbackNote(result.Fallback))
	if result.Summary != "" {
		output.WriteString(result.Summary)
		output.WriteString("\n\n")
	}
	writeTextList(&output, "Strengths", result.Strengths)
	writeTextList(&output, "Gaps", result.Gaps)
	writeTextList(&output, "Missing keywords", result.MissingKeywords)
	return output.String(), nil
}

func (f *ScoreTextFormatter) SupportedType() string { return typeScore }

type ScoreMarkdownFormatter struct{}

func (f *ScoreMarkdownFormatter) Format(data any) (string, error) {
	result, err := deref[types.ResumeScore](data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("# Resume Score\n\n")
	fmt.Fprintf(&output, "**Score:** %d/100%s\n\n", result.Score, fallbackNote(result.Fallback))
	if result.Summary != "" {
		output.WriteString(result.Summary)
		output.WriteString("\n\n")
	}
	writeMarkdownList(&output, "Strengths", result.Strengths)
	writeMarkdownList(&output, "Gaps", result.Gaps)
	writeMarkdownList(&output, "Missing Keywords", result.MissingKeywords)
	return output.String(), nil
}

func (f *ScoreMarkdownFormatter) SupportedType() string { return typeScore }

type AnalysisTextFormatter struct{}

func (f *AnalysisTextFormatter) Format(data any) (string, error) {
	result, err := deref[types.ProjectAnalysis](data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("=== PROJECT ANALYSIS ===\n")
	if result.Fallback {
		output.WriteString("(fallback: the AI reply could not be used)\n")
	}
	output.WriteString("\n")
	for _, v := range result.Verdicts {
		mark := "-"
		if v.Suitable {
			mark = "+"
		}
		fmt.Fprintf(&output, "%s %s (%d)\n", mark, v.Title, v.Score)
		if v.Reason != "" {
			fmt.Fprintf(&output, "    %s\n", v.Reason)
		}
	}

	if len(result.Replacements) > 0 {
		output.WriteString("\nSuggested replacements:\n")
		for _, r := range result.Replacements {
			fmt.Fprintf(&output, "- %s -> %s\n", r.ReplacesTitle, r.Item.Title)
			if r.Reason != "" {
				fmt.Fprintf(&output, "    %s\n", r.Reason)
			}
		}
	}
	if len(result.Additions) > 0 {
		output.WriteString("\nSuggested additions:\n")
		for _, item := range result.Additions {
			fmt.Fprintf(&output, "- %s\n", item.Title)
		}
	}
	return output.String(), nil
}

func (f *AnalysisTextFormatter) SupportedType() string { return typeAnalysis }

type AnalysisMarkdownFormatter struct{}

func (f *AnalysisMarkdownFormatter) Format(data any) (string, error) {
	result, err := deref[types.ProjectAnalysis](data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("# Project Analysis\n\n")
	if result.Fallback {
		output.WriteString("> The AI reply could not be used; every item is shown as unscored.\n\n")
	}
	output.WriteString("| Item | Score | Suitable | Reason |\n")
	output.WriteString("|------|-------|----------|--------|\n")
	for _, v := range result.Verdicts {
		fmt.Fprintf(&output, "| %s | %d | %s | %s |\n",
			escapeCell(v.Title), v.Score, yesNo(v.Suitable), escapeCell(v.Reason))
	}

	if len(result.Replacements) > 0 {
		output.WriteString("\n## Suggested Replacements\n\n")
		for _, r := range result.Replacements {
			fmt.Fprintf(&output, "- **%s** replaces *%s*", r.Item.Title, r.ReplacesTitle)
			if r.Reason != "" {
				fmt.Fprintf(&output, ": %s", r.Reason)
			}
			output.WriteString("\n")
		}
	}
	if len(result.Additions) > 0 {
		output.WriteString("\n## Suggested Additions\n\n")
		for _, item := range result.Additions {
			writeMarkdownItem(&output, item)
		}
	}
	return output.String(), nil
}

func (f *AnalysisMarkdownFormatter) SupportedType() string { return typeAnalysis }

type OutreachTextFormatter struct{}

func (f *OutreachTextFormatter) Format(data any) (string, error) {
	result, err := deref[types.OutreachMessage](data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Subject: %s\n\n%s\n", result.Subject, result.Body), nil
}

func (f *OutreachTextFormatter) SupportedType() string { return typeOutreach }

type OutreachMarkdownFormatter struct{}

func (f *OutreachMarkdownFormatter) Format(data any) (string, error) {
	result, err := deref[types.OutreachMessage](data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("## %s\n\n%s\n", result.Subject, result.Body), nil
}

func (f *OutreachMarkdownFormatter) SupportedType() string { return typeOutreach }

type ReconcileTextFormatter struct{}

func (f *ReconcileTextFormatter) Format(data any) (string, error) {
	result, err := deref[types.ReconciliationResult](data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("=== RECONCILED ITEMS ===\n")
	fmt.Fprintf(&output, "kept %d, removed %d, added %d, dropped %d\n",
		result.KeptCount, result.RemovedCount, result.AddedCount, result.DroppedCount)
	if result.CapReached {
		output.WriteString("cap reached\n")
	}
	output.WriteString("\n")
	for i, item := range result.FinalItems {
		fmt.Fprintf(&output, "%d. %s\n", i+1, item.Title)
		for _, line := range item.Content {
			fmt.Fprintf(&output, "   - %s\n", line)
		}
	}
	return output.String(), nil
}

func (f *ReconcileTextFormatter) SupportedType() string { return typeReconcile }

type ReconcileMarkdownFormatter struct{}

func (f *ReconcileMarkdownFormatter) Format(data any) (string, error) {
	result, err := deref[types.ReconciliationResult](data)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	output.WriteString("# Reconciled Items\n\n")
	fmt.Fprintf(&output, "Kept **%d**, removed **%d**, added **%d**, dropped **%d**.\n\n",
		result.KeptCount, result.RemovedCount, result.AddedCount, result.DroppedCount)
	for _, item := range result.FinalItems {
		writeMarkdownItem(&output, item)
	}
	return output.String(), nil
}

func (f *ReconcileMarkdownFormatter) SupportedType() string { return typeReconcile }

// JobTextFormatter renders one line per snapshot, for progress output.
type JobTextFormatter struct{}

func (f *JobTextFormatter) Format(data any) (string, error) {
	job, err := deref[types.JobSubmission](data)
	if err != nil {
		return "", err
	}

	line := fmt.Sprintf("[%s] %s %d%%", job.ID, job.Status, job.Progress)
	if job.CurrentStepLabel != "" {
		line += " " + job.CurrentStepLabel
	}
	switch {
	case job.Error != "":
		line += ": " + job.Error
	case job.Result != nil && job.Result.Message != "":
		line += ": " + job.Result.Message
	case job.TrackingError != "":
		line += " (tracking: " + job.TrackingError + ")"
	}
	return line + "\n", nil
}

func (f *JobTextFormatter) SupportedType() string { return typeJob }

func writeTextList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func writeMarkdownList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func writeMarkdownItem(b *strings.Builder, item types.CandidateItem) {
	fmt.Fprintf(b, "### %s\n\n", item.Title)
	for _, line := range item.Content {
		fmt.Fprintf(b, "- %s\n", line)
	}
	if item.SourceURL != "" {
		fmt.Fprintf(b, "\n<%s>\n", item.SourceURL)
	}
	b.WriteString("\n")
}

func fallbackNote(fallback bool) string {
	if fallback {
		return " (fallback)"
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// GlobalRegistry is the registry used by the CLI.
var GlobalRegistry = NewFormatterRegistry()
