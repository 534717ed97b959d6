package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the transport ceiling for API calls. Callers set the
	// effective per-operation deadline on the context.
	DefaultTimeout = 5 * time.Minute

	// SystemPrompt frames every request
	SystemPrompt = "You are an AI employee assistant working through a business inbox. Follow the requested output format exactly."

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIReasoner implements the Reasoner interface using OpenAI's API
type OpenAIReasoner struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIReasoner creates a new OpenAI reasoner
func NewOpenAIReasoner(apiKey string, model string) *OpenAIReasoner {
	return NewOpenAIReasonerWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIReasonerWithLogger creates a new OpenAI reasoner with logger support
func NewOpenAIReasonerWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIReasoner {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIReasoner{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Ask sends the prompt as a single user turn and returns the first choice
func (p *OpenAIReasoner) Ask(ctx context.Context, prompt string) (string, error) {
	requestID := ExtractRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	document := ExtractDocument(ctx)

	ctx, span := otel.Tracer("vaultflow/ai").Start(ctx, "reasoner.ask")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", p.model),
		attribute.String("request_id", requestID),
		attribute.Int("llm.prompt_length", len(prompt)),
	)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPrompt),
		openai.UserMessage(prompt),
	}
	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
		// Temperature omitted - some models only support their default value
	}

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("document", document),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("document", document),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		span.SetStatus(codes.Error, err.Error())
		return "", wrapCallError(ctx, "ask reasoner", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s", ErrMalformedResponse, ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("document", document),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// RegisterOpenAI registers the OpenAI reasoner with the registry
func RegisterOpenAI(registry *ProviderRegistry, logger *zap.Logger, debugMode bool) {
	registry.Register("openai", func(config map[string]string) (Reasoner, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, errors.New("openai api_key is required")
		}
		if logger != nil {
			logger.Debug("llm_provider_configured",
				zap.String("provider", "openai"),
				zap.String("model", config["model"]),
				zap.String("base_url", config["base_url"]),
				zap.String("api_key", SanitizeAPIKey(apiKey)),
			)
		}
		return NewOpenAIReasonerWithLogger(apiKey, config["base_url"], config["model"], logger, debugMode), nil
	})
}

var _ Reasoner = (*OpenAIReasoner)(nil)
