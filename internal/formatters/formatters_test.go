package formatters

import (
	"testing"

	"resumeopt/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFormat(t *testing.T) {
	score := &types.ResumeScore{Score: 77, Summary: "Solid match", Strengths: []string{"Go"}, Gaps: []string{"Kubernetes"}}
	analysis := types.ProjectAnalysis{
		Verdicts: []types.ItemVerdict{
			{Title: "Compiler", Score: 90, Suitable: true, Reason: "systems work"},
			{Title: "Blog", Score: 20},
		},
		Replacements: []types.SuggestedReplacement{{ReplacesTitle: "Blog", Item: types.CandidateItem{Title: "Scheduler"}}},
	}
	reconciled := types.ReconciliationResult{
		FinalItems: []types.CandidateItem{{Title: "Compiler", Content: []string{"wrote a compiler"}}},
		KeptCount:  1, RemovedCount: 1,
	}

	tests := []struct {
		name   string
		data   any
		format string
		want   []string
	}{
		{"score text", score, "text", []string{"Score: 77/100", "Solid match", "Gaps:", "- Kubernetes"}},
		{"score markdown", score, "markdown", []string{"# Resume Score", "**Score:** 77/100", "## Strengths"}},
		{"analysis text", analysis, "text", []string{"+ Compiler (90)", "- Blog (20)", "Blog -> Scheduler"}},
		{"analysis markdown", analysis, "markdown", []string{"| Compiler | 90 | yes | systems work |", "**Scheduler** replaces *Blog*"}},
		{"outreach text", types.OutreachMessage{Subject: "Hello", Body: "Hi Ana"}, "text", []string{"Subject: Hello", "Hi Ana"}},
		{"reconcile text", reconciled, "text", []string{"kept 1, removed 1, added 0", "1. Compiler", "- wrote a compiler"}},
		{"reconcile markdown", &reconciled, "markdown", []string{"### Compiler"}},
		{"job text", types.JobSubmission{ID: "j1", Status: types.JobStatusProcessing, Progress: 40, CurrentStepLabel: "Uploading"}, "text", []string{"[j1] processing 40% Uploading"}},
		{"json fallback", map[string]int{"a": 1}, "json", []string{`"a": 1`}},
		{"json for typed data", score, "json", []string{`"score": 77`}},
	}

	registry := NewFormatterRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := registry.Format(tt.data, tt.format)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	_, err := NewFormatterRegistry().Format(types.OutreachMessage{}, "xml")
	assert.Error(t, err)

	_, err = NewFormatterRegistry().Format(map[string]int{}, "text")
	assert.Error(t, err)
}

func TestSupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"json", "markdown", "text"}, NewFormatterRegistry().GetSupportedFormats())
}

func TestFormatterRejectsWrongType(t *testing.T) {
	_, err := (&ScoreTextFormatter{}).Format(types.OutreachMessage{})
	assert.Error(t, err)

	var nilScore *types.ResumeScore
	_, err = (&ScoreTextFormatter{}).Format(nilScore)
	assert.Error(t, err)
}

func TestEscapeCell(t *testing.T) {
	assert.Equal(t, `a\|b c`, escapeCell("a|b\nc"))
}
