package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"resumeopt/internal/errors"
)

// loadPromptFiles resolves systemFile and userFile overrides into the inline
// prompt fields so the AI layer never touches the filesystem.
func (c *Config) loadPromptFiles() error {
	ops := c.operations()
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		prompts := &ops[name].Prompts
		if prompts.SystemFile != "" {
			content, err := loadPromptFromFile(prompts.SystemFile, "system", name)
			if err != nil {
				return err
			}
			prompts.System = content
			loaded++
		}
		if prompts.UserFile != "" {
			content, err := loadPromptFromFile(prompts.UserFile, "user", name)
			if err != nil {
				return err
			}
			prompts.User = content
			loaded++
		}
	}

	if loaded > 0 {
		log.Printf("[CONFIG] Loaded %d custom prompt(s) from files", loaded)
	}
	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(filePath, promptType, operation string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("failed to resolve %s %s prompt path", promptType, operation), err).
			WithContext("path", filePath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		code := errors.ErrCodeFileNotReadable
		if os.IsNotExist(err) {
			code = errors.ErrCodeFileNotFound
		}
		return "", errors.NewConfigError(code,
			fmt.Sprintf("failed to read %s %s prompt file", promptType, operation), err).
			WithContext("path", absPath)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("%s %s prompt file is empty", promptType, operation), nil).
			WithContext("path", absPath)
	}

	log.Printf("[CONFIG] Loaded %s %s prompt from file: %s (%d characters)",
		promptType, operation, absPath, len(trimmed))
	return trimmed, nil
}
