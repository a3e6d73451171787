package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1"

// maxErrorBody bounds how much of an error reply is kept for diagnostics.
const maxErrorBody = 2048

// OpenRouterProvider talks to an OpenAI compatible chat completions endpoint.
type OpenRouterProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ Provider = (*OpenRouterProvider)(nil)

// NewOpenRouterProvider creates a provider for baseURL (the OpenRouter API when empty).
func NewOpenRouterProvider(cfg config.OperationAIConfig, baseURL string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	if cfg.Timeout != nil {
		httpClient.Timeout = *cfg.Timeout
	}
	return &OpenRouterProvider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

func (o *OpenRouterProvider) Name() string { return config.ProviderOpenRouter }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    *float32          `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateJSON posts one chat completion request.
func (o *OpenRouterProvider) GenerateJSON(ctx context.Context, prompt Prompt) (*Completion, error) {
	req := chatRequest{
		Model:          o.model,
		Temperature:    prompt.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt.User})

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	httpReq.Header.Set("X-Title", "resumeopt")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.NewAIError(errors.ErrCodeInvalidResponse, "failed to decode chat completion", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.NewAIError(errors.ErrCodeInvalidResponse, "chat completion has no choices", nil)
	}

	completion := &Completion{Text: decoded.Choices[0].Message.Content, Model: o.model}
	if decoded.Model != "" {
		completion.Model = decoded.Model
	}
	if decoded.Usage != nil {
		completion.Usage = &TokenUsage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
			TotalTokens:  decoded.Usage.TotalTokens,
		}
	}
	return completion, nil
}

func (o *OpenRouterProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
