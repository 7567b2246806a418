// Package extract sends document content to an LLM provider and decodes
// the reply into a validated, typed result.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/prompts"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// Provider performs one completion request. Implementations make a single
// attempt and report provider status codes as resilience errors.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one provider call. Temperature is always zero.
type Request struct {
	Task      string
	System    string
	User      string
	Images    []model.PageContent
	MaxTokens int
	// JSON is set for tasks that expect a JSON object back.
	JSON bool
}

// Input is the content a task runs over.
type Input struct {
	prompts.Data
	Images []model.PageContent
}

// MalformedResultError means the provider answered but the payload did not
// match the task's declared shape.
type MalformedResultError struct {
	Task string
	Raw  string
	Err  error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("extract %s: malformed result: %v", e.Task, e.Err)
}

func (e *MalformedResultError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a MalformedResultError.
func IsMalformed(err error) bool {
	var me *MalformedResultError
	return errors.As(err, &me)
}

// Retryable is the retry predicate for extraction calls: transient provider
// failures and malformed results.
func Retryable(err error) bool {
	return resilience.IsTransient(err) || IsMalformed(err)
}

// Options configures an Extractor.
type Options struct {
	// RequestsPerSecond is shared by every call through the Extractor.
	// Zero disables the limiter.
	RequestsPerSecond float64
	// MaxTokens applies to tasks that do not set their own.
	MaxTokens int
	// Breaker guards the provider. Nil disables it.
	Breaker *resilience.CircuitBreaker
}

// Extractor runs tasks against one provider.
type Extractor struct {
	provider Provider
	prompts  *prompts.Set
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	opts     Options
}

// New creates an Extractor.
func New(p Provider, set *prompts.Set, opts Options) *Extractor {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Extractor{
		provider: p,
		prompts:  set,
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  opts.Breaker,
		opts:     opts,
	}
}

// Provider returns the provider name.
func (e *Extractor) Provider() string { return e.provider.Name() }

// Run executes task under its retry policy and decodes the validated
// payload into T.
func Run[T any](ctx context.Context, e *Extractor, task Task, in Input) (T, error) {
	policy := task.Retry.WithRetryIf(Retryable).WithLogger("extract."+task.Name, zap.String("provider", e.provider.Name()))
	return resilience.DoVal(ctx, policy, func(ctx context.Context) (T, error) {
		var out T
		raw, err := e.call(ctx, task, in)
		if err != nil {
			return out, err
		}
		if err := task.decode(raw, &out); err != nil {
			zap.L().Debug("extract: malformed result",
				zap.String("task", task.Name),
				zap.String("raw", truncate(raw, 300)),
				zap.Error(err),
			)
			return out, err
		}
		return out, nil
	})
}

// Text executes a free-text task under its retry policy. An empty reply is
// malformed.
func Text(ctx context.Context, e *Extractor, task Task, in Input) (string, error) {
	policy := task.Retry.WithRetryIf(Retryable).WithLogger("extract."+task.Name, zap.String("provider", e.provider.Name()))
	return resilience.DoVal(ctx, policy, func(ctx context.Context) (string, error) {
		raw, err := e.call(ctx, task, in)
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			return "", &MalformedResultError{Task: task.Name, Err: eris.New("empty response")}
		}
		return text, nil
	})
}

func (e *Extractor) call(ctx context.Context, task Task, in Input) (string, error) {
	system, user, err := e.prompts.Render(task.Name, in.Data)
	if err != nil {
		return "", err
	}
	maxTokens := task.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.opts.MaxTokens
	}
	req := Request{
		Task:      task.Name,
		System:    system,
		User:      user,
		Images:    in.Images,
		MaxTokens: maxTokens,
		JSON:      task.schema != nil,
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "extract: rate limiter wait")
	}

	start := time.Now()
	raw, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (string, error) {
		return e.provider.Complete(ctx, req)
	})
	zap.L().Debug("extract: provider call",
		zap.String("task", task.Name),
		zap.String("provider", e.provider.Name()),
		zap.Int("images", len(in.Images)),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return raw, err
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
