package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/LiboWorks/turboyaml/internal/config"
)

// OpenAIBackend implements LLMBackend using the OpenAI API.
type OpenAIBackend struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // Optional: for Azure or compatible APIs
	DefaultModel string
	// HTTPClient overrides the transport; nil uses the go-openai default.
	HTTPClient *http.Client
}

// NewOpenAIBackend creates a new OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	globalCfg := config.Get()

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = globalCfg.OpenAIAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not provided (set OPENAI_API_KEY or pass --api-key): %w", config.ErrMissingAPIKey)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = globalCfg.OpenAIBaseURL
	}
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = globalCfg.OpenAIModel
	}

	return &OpenAIBackend{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: defaultModel,
	}, nil
}

// Complete implements LLMBackend.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	temperature := req.Temperature
	if temperature == 0 {
		// go-openai omits a zero temperature, which the API reads as 1.
		temperature = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", &CompletionError{Kind: ErrUnknownFailure, Err: errors.New("openai returned no choices")}
	}

	return resp.Choices[0].Message.Content, nil
}

// Name implements LLMBackend.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Close implements LLMBackend.
func (b *OpenAIBackend) Close() error {
	return nil
}

// classify maps go-openai and transport errors onto the completion taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &CompletionError{
			Kind:      ErrServiceUnavailable,
			Transient: transientStatus(apiErr.HTTPStatusCode),
			Err:       fmt.Errorf("openai api error: %w", err),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &CompletionError{
			Kind:      ErrServiceUnavailable,
			Transient: transientStatus(reqErr.HTTPStatusCode),
			Err:       fmt.Errorf("openai request error: %w", err),
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &CompletionError{
			Kind:      ErrServiceUnavailable,
			Transient: true,
			Err:       fmt.Errorf("openai connection failed: %w", err),
		}
	}

	return &CompletionError{Kind: ErrUnknownFailure, Err: fmt.Errorf("openai completion failed: %w", err)}
}

func transientStatus(code int) bool {
	switch {
	case code == 0:
		// no HTTP response was received
		return true
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}
