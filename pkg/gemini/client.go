// Package gemini wraps the Google Gemini SDK behind a single-call
// interface.
package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client generates one response per call.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Request is one generation call. Images are sent before Prompt.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Images      []Image
	Temperature float32
	MaxTokens   int32
	// JSON asks the model for an application/json response.
	JSON bool
}

// Image is an inline image part.
type Image struct {
	MediaType string
	Data      []byte
}

// Response is the concatenated text of the first candidate.
type Response struct {
	Text         string
	InputTokens  int32
	OutputTokens int32
	FinishReason string
}

// contentGenerator is the subset of *genai.GenerativeModel used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type sdkClient struct {
	client   *genai.Client
	newModel func(req Request) contentGenerator
}

// NewClient creates a Gemini client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (Client, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	c := &sdkClient{client: client}
	c.newModel = c.model
	return c, nil
}

func (c *sdkClient) model(req Request) contentGenerator {
	m := c.client.GenerativeModel(req.Model)
	m.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}
	return m
}

func (c *sdkClient) Generate(ctx context.Context, req Request) (*Response, error) {
	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData(imageFormat(img.MediaType), img.Data))
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := c.newModel(req).GenerateContent(ctx, parts...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}
	out := fromSDKResponse(resp)

	zap.L().Debug("gemini: usage",
		zap.String("model", req.Model),
		zap.Int32("input_tokens", out.InputTokens),
		zap.Int32("output_tokens", out.OutputTokens),
	)
	return out, nil
}

func (c *sdkClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// imageFormat maps a media type to the short format genai expects.
func imageFormat(mediaType string) string {
	if f, ok := strings.CutPrefix(mediaType, "image/"); ok && f != "" {
		return f
	}
	return "png"
}

func fromSDKResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	if len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	out.FinishReason = cand.FinishReason.String()
	if cand.Content == nil {
		return out
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	out.Text = b.String()
	return out
}

// StatusCode returns the HTTP status carried by an API error, or 0.
func StatusCode(err error) int {
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) {
		return coded.HTTPCode()
	}
	return 0
}
