// Package utils holds small file helpers shared by the CLI.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ValidateInputFile checks that filename names a readable regular file.
func ValidateInputFile(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", filename)
		}
		return fmt.Errorf("cannot access file %s: %w", filename, err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filename)
	}

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("cannot read file %s: %w", filename, err)
	}
	return file.Close()
}

// ValidateOutputFile creates the parent directory of filename if needed.
// An empty name means stdout.
func ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil
	}

	dir := filepath.Dir(filename)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetFileExtension returns the lowercased extension.
func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsTextFile reports whether filename has an extension the commands read as text.
func IsTextFile(filename string) bool {
	return slices.Contains([]string{".txt", ".md", ".markdown", ".text", ".json", ".html", ".htm"}, GetFileExtension(filename))
}

// IsHTMLFile reports whether filename holds HTML, such as a saved job posting.
func IsHTMLFile(filename string) bool {
	ext := GetFileExtension(filename)
	return ext == ".html" || ext == ".htm"
}
