package ai

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
)

// GeminiProvider implements Provider for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	model  string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider instance for a specific operation
func NewGeminiProvider(ctx context.Context, cfg config.OperationAIConfig) (*GeminiProvider, error) {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	if cfg.Timeout != nil {
		httpClient.Timeout = *cfg.Timeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
	}

	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (g *GeminiProvider) Name() string { return config.ProviderGemini }

// GenerateJSON asks Gemini for an application/json reply.
func (g *GeminiProvider) GenerateJSON(ctx context.Context, prompt Prompt) (*Completion, error) {
	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if prompt.Temperature != nil && *prompt.Temperature > 0 {
		genConfig.Temperature = prompt.Temperature
	}
	if prompt.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), genConfig)
	if err != nil {
		return nil, err
	}

	completion := &Completion{Text: result.Text(), Model: g.model}
	if result.ModelVersion != "" {
		completion.Model = result.ModelVersion
	}
	if usage := result.UsageMetadata; usage != nil {
		completion.Usage = &TokenUsage{
			InputTokens:  int64(usage.PromptTokenCount),
			OutputTokens: int64(usage.CandidatesTokenCount),
			TotalTokens:  int64(usage.TotalTokenCount),
		}
	}
	return completion, nil
}

// Close implements Provider. The genai client holds no resources in single-shot usage.
func (g *GeminiProvider) Close() error {
	return nil
}
