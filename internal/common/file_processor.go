package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"resumeopt/internal/errors"
	"resumeopt/internal/utils"
)

// FileProcessor reads command inputs and writes command outputs.
type FileProcessor struct {
	logger *errors.Logger
}

func NewFileProcessor(logger *errors.Logger) *FileProcessor {
	return &FileProcessor{logger: logger}
}

// ReadFile reads filename, mapping failures to IO errors.
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	content, err := os.ReadFile(filename)
	switch {
	case err == nil:
		return string(content), nil
	case os.IsNotExist(err):
		return "", errors.NewIOError(errors.ErrCodeFileNotFound, "file not found: "+filename, err)
	default:
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable, "cannot read file: "+filename, err)
	}
}

// ReadJSON decodes one JSON document from filename into v. Unknown fields are rejected.
func (fp *FileProcessor) ReadJSON(filename string, v any) error {
	if err := utils.ValidateInputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}
	content, err := fp.ReadFile(filename)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("File %s is not valid JSON for this command", filename), err)
	}
	return nil
}

// WriteFile writes content, creating parent directories.
func (fp *FileProcessor) WriteFile(filename, content string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ValidateAndReadFiles validates and reads every file in order.
func (fp *FileProcessor) ValidateAndReadFiles(filenames ...string) ([]string, error) {
	contents := make([]string, 0, len(filenames))
	for _, name := range filenames {
		if err := utils.ValidateInputFile(name); err != nil {
			return nil, errors.NewValidationError("INVALID_INPUT_FILE", "invalid input file "+name, err)
		}
		if !utils.IsTextFile(name) {
			fp.warn("Input may not be a text file", "filename", name)
		}
		content, err := fp.ReadFile(name)
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, nil
}

func (fp *FileProcessor) warn(msg string, args ...any) {
	if fp.logger != nil {
		fp.logger.Warn(msg, args...)
		return
	}
	fmt.Fprintln(os.Stderr, "Warning:", msg, args)
}

// ValidateOutputFile accepts an empty name as stdout.
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil
	}
	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}
	return nil
}
