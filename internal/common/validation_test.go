package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOutputFormat(t *testing.T) {
	all := []string{"json", "text", "markdown"}

	tests := []struct {
		name      string
		format    string
		supported []string
		wantErr   string
	}{
		{"json", "json", all, ""},
		{"markdown", "markdown", all, ""},
		{"unknown", "xml", all, "unsupported output format 'xml'. Supported formats: [json text markdown]"},
		{"case sensitive", "JSON", all, "unsupported output format 'JSON'. Supported formats: [json text markdown]"},
		{"empty", "", all, "unsupported output format ''. Supported formats: [json text markdown]"},
		{"no restriction", "xml", nil, ""},
		{"single format", "text", []string{"json"}, "unsupported output format 'text'. Supported formats: [json]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supported)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func BenchmarkValidateOutputFormat(b *testing.B) {
	supported := []string{"json", "text", "markdown"}
	for b.Loop() {
		_ = ValidateOutputFormat("xml", supported)
	}
}
