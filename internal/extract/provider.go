package extract

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/judgment-cli/internal/config"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/prompts"
	"github.com/sells-group/judgment-cli/internal/resilience"
	"github.com/sells-group/judgment-cli/pkg/anthropic"
	"github.com/sells-group/judgment-cli/pkg/gemini"
)

// AnthropicProvider sends requests to the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates an AnthropicProvider.
func NewAnthropicProvider(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	temperature := 0.0
	images := make([]anthropic.Image, 0, len(req.Images))
	for _, pg := range req.Images {
		images = append(images, anthropic.Image{MediaType: mediaType(pg), Data: pg.Image})
	}

	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: int64(req.MaxTokens),
		System:    anthropic.SystemPrompt(req.System),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: req.User,
			Images:  images,
		}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", providerError(p.Name(), anthropic.StatusCode(err), err)
	}
	resp.Usage.LogCost(p.model, req.Task)
	return resp.Text(), nil
}

// GeminiProvider sends requests to Google Gemini.
type GeminiProvider struct {
	client gemini.Client
	model  string
}

// NewGeminiProvider creates a GeminiProvider.
func NewGeminiProvider(client gemini.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	images := make([]gemini.Image, 0, len(req.Images))
	for _, pg := range req.Images {
		images = append(images, gemini.Image{MediaType: mediaType(pg), Data: pg.Image})
	}

	resp, err := p.client.Generate(ctx, gemini.Request{
		Model:     p.model,
		System:    req.System,
		Prompt:    req.User,
		Images:    images,
		MaxTokens: int32(req.MaxTokens),
		JSON:      req.JSON,
	})
	if err != nil {
		return "", providerError(p.Name(), gemini.StatusCode(err), err)
	}
	return resp.Text, nil
}

// NewProvider builds the provider selected by llm.provider. The returned
// close function releases provider resources.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, func() error, error) {
	switch cfg.LLM.Provider {
	case "anthropic", "":
		return NewAnthropicProvider(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model), func() error { return nil }, nil
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, nil, err
		}
		return NewGeminiProvider(client, cfg.Gemini.Model), client.Close, nil
	default:
		return nil, nil, eris.Errorf("extract: unknown provider %q", cfg.LLM.Provider)
	}
}

// providerError maps a provider status code onto the retry taxonomy.
func providerError(provider string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &resilience.RateLimitedError{Provider: provider, Err: err}
	case resilience.IsTransientHTTPStatus(status), status == 529:
		return resilience.NewTransientError(err, status)
	default:
		return err
	}
}

func mediaType(pg model.PageContent) string {
	if pg.MediaType != "" {
		return pg.MediaType
	}
	return "image/png"
}

// NewFromConfig builds an Extractor for the configured provider, guarded by
// a circuit breaker and the shared request rate.
func NewFromConfig(ctx context.Context, cfg *config.Config, set *prompts.Set) (*Extractor, func() error, error) {
	p, closeFn, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             p.Name(),
		FailureThreshold: cfg.LLM.CircuitThreshold,
		ResetTimeout:     time.Duration(cfg.LLM.CircuitResetSecs) * time.Second,
	})
	return New(p, set, Options{
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		MaxTokens:         cfg.LLM.MaxTokens,
		Breaker:           breaker,
	}), closeFn, nil
}
