package common

import (
	"context"
	"fmt"
	"io"

	"resumeopt/internal/errors"
)

// CreateInputFunc builds the operation input from the file contents, in argument order.
type CreateInputFunc[Input any] func(contents []string) (Input, error)

// LogDetailsFunc logs the start of an operation.
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// AIOperationFunc runs one AI operation.
type AIOperationFunc[Input, Output any] func(context.Context, Input) (Output, error)

// RunAICommand reads the argument files, runs the operation and writes its
// formatted result to stdout or cmdConfig.OutputFile.
func RunAICommand[Input, Output any](
	ctx context.Context,
	logger *errors.Logger,
	stdout io.Writer,
	cmdConfig CommandConfig,
	args []string,
	createInput CreateInputFunc[Input],
	aiOperation AIOperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	fileProcessor := NewFileProcessor(logger)
	outputHandler := NewOutputHandler(logger).WithStdout(stdout)

	contents, err := fileProcessor.ValidateAndReadFiles(args...)
	if err != nil {
		return err
	}

	input, err := createInput(contents)
	if err != nil {
		return fmt.Errorf("failed to create input from file contents: %w", err)
	}

	if logDetails != nil {
		logDetails(input, cmdConfig)
	}

	result, err := aiOperation(ctx, input)
	if err != nil {
		return err
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}
