package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "resume.md")
	require.NoError(t, os.WriteFile(file, []byte("# Resume"), 0o600))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"readable file", file, false},
		{"empty name", "", true},
		{"missing file", filepath.Join(dir, "missing.md"), true},
		{"directory", dir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputFile(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputFileCreatesDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, ValidateOutputFile(out))
	assert.DirExists(t, filepath.Dir(out))
	assert.NoError(t, ValidateOutputFile(""))
}

func TestFileKinds(t *testing.T) {
	assert.True(t, IsTextFile("items.JSON"))
	assert.True(t, IsTextFile("posting.html"))
	assert.False(t, IsTextFile("resume.pdf"))
	assert.True(t, IsHTMLFile("posting.HTM"))
	assert.False(t, IsHTMLFile("posting.md"))
}
