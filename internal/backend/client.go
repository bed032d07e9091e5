package backend

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"paperlens/internal/config"
)

// ImagePart is one encoded raster attached to an outbound request.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

// Request is the provider-independent shape of one model call.
type Request struct {
	SystemPrompt    string
	UserPrompt      string
	ImageParts      []ImagePart
	MaxOutputTokens int
}

// Client is one registered LLM backend. Capability differences are
// handled by the Dispatcher, not here: a client just sends whatever
// request it is given.
type Client interface {
	ID() string
	Generate(ctx context.Context, req Request) (string, error)
}

// langchainClient adapts a langchaingo model to the Client interface.
type langchainClient struct {
	id  string
	llm llms.Model
}

var _ Client = (*langchainClient)(nil)

func (c *langchainClient) ID() string { return c.id }

func (c *langchainClient) Generate(ctx context.Context, req Request) (string, error) {
	parts := make([]llms.ContentPart, 0, len(req.ImageParts)+1)
	parts = append(parts, llms.TextPart(req.UserPrompt))
	for _, img := range req.ImageParts {
		parts = append(parts, llms.BinaryPart(img.MIMEType, img.Data))
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt),
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}

	var opts []llms.CallOption
	if req.MaxOutputTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxOutputTokens))
	}

	response, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return response.Choices[0].Content, nil
}

// NewClient creates an LLM client for one configured backend.
func NewClient(ctx context.Context, bc config.BackendConfig, cfg config.Config) (Client, error) {
	var model llms.Model
	var err error

	switch bc.Provider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(bc.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(bc.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(bc.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		runtime := bedrockruntime.NewFromConfig(awsCfg)
		model, err = bedrock.New(
			bedrock.WithModel(bc.Model),
			bedrock.WithClient(runtime),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", bc.Provider)
	}

	return &langchainClient{id: bc.ID, llm: model}, nil
}

// BuildClients creates one client per configured backend, in order.
func BuildClients(ctx context.Context, cfg config.Config) (map[string]Client, error) {
	clients := make(map[string]Client, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		c, err := NewClient(ctx, bc, cfg)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", bc.ID, err)
		}
		clients[bc.ID] = c
	}
	return clients, nil
}

// RegistryFromConfig builds the capability registry matching the
// configured backends.
func RegistryFromConfig(cfg config.Config) (*Registry, error) {
	caps := make([]Capability, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		caps = append(caps, Capability{
			ID:              bc.ID,
			SupportsText:    true,
			SupportsImages:  bc.SupportsImages,
			MaxInputTokens:  bc.MaxInputTokens,
			MaxOutputTokens: bc.MaxOutputTokens,
		})
	}
	return NewRegistry(nil, caps...)
}
