package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("aleutian.llm.openai")

// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAIClient talks to the OpenAI chat completions API or any compatible
// endpoint (OpenRouter) selected by BaseURL.
type OpenAIClient struct {
	key     *secret
	baseURL string
	model   string
	name    string
}

// NewOpenAIClient returns a client for model. An empty baseURL uses the
// library default (api.openai.com).
func NewOpenAIClient(key *secret, baseURL, model, name string) (*OpenAIClient, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: %s API key is not configured", datatypes.ErrProviderUnavailable, name)
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini", "provider", name)
	}
	return &OpenAIClient{key: key, baseURL: strings.TrimSuffix(baseURL, "/"), model: model, name: name}, nil
}

func (o *OpenAIClient) client() (*openai.Client, error) {
	var c *openai.Client
	err := o.key.reveal(func(key string) error {
		cfg := openai.DefaultConfig(key)
		if o.baseURL != "" {
			cfg.BaseURL = o.baseURL
		}
		c = openai.NewClientWithConfig(cfg)
		return nil
	})
	return c, err
}

// Chat implements the LLMClient interface
func (o *OpenAIClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", o.name), attribute.String("llm.model", o.model))

	req := openai.ChatCompletionRequest{Model: o.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	client, err := o.client()
	if err != nil {
		return "", fmt.Errorf("opening %s key: %w", o.name, err)
	}

	slog.Debug("Generating text via OpenAI-compatible API", "provider", o.name, "model", o.model)
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", fmt.Errorf("%s API call failed: %w", o.name, err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("returned no choices")
		span.RecordError(err)
		return "", fmt.Errorf("%s %w", o.name, err)
	}
	slog.Debug("Received response", "provider", o.name, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Health lists models, which needs a valid key but generates nothing.
func (o *OpenAIClient) Health(ctx context.Context) error {
	client, err := o.client()
	if err != nil {
		return err
	}
	if _, err := client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s health check: %w", o.name, err)
	}
	return nil
}
