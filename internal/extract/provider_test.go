package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/judgment-cli/internal/config"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
	"github.com/sells-group/judgment-cli/pkg/anthropic"
	"github.com/sells-group/judgment-cli/pkg/gemini"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type fakeGemini struct {
	got  gemini.Request
	resp *gemini.Response
	err  error
}

func (f *fakeGemini) Generate(_ context.Context, req gemini.Request) (*gemini.Response, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeGemini) Close() error { return nil }

func TestAnthropicProvider_Complete(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 300 &&
			*req.Temperature == 0 &&
			len(req.System) == 1 && req.System[0].Text == "classify" &&
			len(req.Messages) == 1 &&
			len(req.Messages[0].Images) == 2 &&
			req.Messages[0].Images[0].MediaType == "image/png"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"type": "Judgment"}`}},
	}, nil)

	p := NewAnthropicProvider(mc, "claude-haiku-4-5-20251001")
	out, err := p.Complete(context.Background(), Request{
		Task:      "classification",
		System:    "classify",
		User:      "Classify these pages.",
		MaxTokens: 300,
		Images:    []model.PageContent{{Number: 1, Image: []byte("a")}, {Number: 2, Image: []byte("b"), MediaType: "image/png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"type": "Judgment"}`, out)
	mc.AssertExpectations(t)
}

func TestGeminiProvider_Complete(t *testing.T) {
	fg := &fakeGemini{resp: &gemini.Response{Text: `{"judges": "Justice A"}`}}
	p := NewGeminiProvider(fg, "gemini-2.0-flash")

	out, err := p.Complete(context.Background(), Request{System: "s", User: "u", MaxTokens: 512, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"judges": "Justice A"}`, out)
	assert.Equal(t, gemini.Request{Model: "gemini-2.0-flash", System: "s", Prompt: "u", Images: []gemini.Image{}, MaxTokens: 512, JSON: true}, fg.got)
}

func TestProviderError(t *testing.T) {
	base := errors.New("provider said no")

	var rl *resilience.RateLimitedError
	require.True(t, errors.As(providerError("anthropic", 429, base), &rl))
	assert.Equal(t, "anthropic", rl.Provider)

	assert.True(t, resilience.IsTransient(providerError("anthropic", 503, base)))
	assert.True(t, resilience.IsTransient(providerError("anthropic", 529, base)))
	assert.False(t, resilience.IsTransient(providerError("anthropic", 400, base)))
	assert.Same(t, base, providerError("gemini", 0, base))
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "anthropic"
	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"

	p, closeFn, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.NoError(t, closeFn())

	cfg.LLM.Provider = "openai"
	_, _, err = NewProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown provider "openai"`)
}
