package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/xerrors"
)

const (
	// DefaultTimeout bounds a single model call.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxTokens is the response token budget.
	DefaultMaxTokens = 1500

	// Temperature is kept low so repeated triage of the same ticket stays stable.
	Temperature = 0.3
)

// GatewayConfig configures the model call.
type GatewayConfig struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Gateway sends prompts to a Provider under a hard deadline.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	hooks    Hooks
}

// NewGateway wraps provider. Zero config values take the package defaults.
func NewGateway(provider Provider, cfg GatewayConfig, hooks Hooks) *Gateway {
	if provider == nil {
		panic(xerrors.New("triage.NewGateway: nil provider"))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Gateway{provider: provider, cfg: cfg, hooks: hooks}
}

// Model is the configured model identifier.
func (g *Gateway) Model() string { return g.cfg.Model }

// Timeout is the per-call bound.
func (g *Gateway) Timeout() time.Duration { return g.cfg.Timeout }

type sendResult struct {
	resp *LLMResponse
	err  error
}

// Complete sends prompt and returns the generated text.
//
// The call is bounded by the configured timeout. The provider runs on its own
// goroutine against a context that is cancelled when Complete returns, so
// Complete never waits on a provider that ignores the deadline. Failures are
// ErrTimeout or ErrUpstream carrying the provider's message.
func (g *Gateway) Complete(ctx context.Context, prompt string) (*LLMResponse, error) {
	ctx, span := tracer.Start(ctx, "model.call", trace.WithAttributes(
		attribute.String("gen_ai.system", "anthropic"),
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.request.model", g.cfg.Model),
		attribute.Int("gen_ai.request.max_tokens", g.cfg.MaxTokens),
		attribute.Float64("gen_ai.request.temperature", Temperature),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.send(ctx, prompt)
	elapsed := time.Since(start)

	if g.hooks.OnModelCall != nil {
		g.hooks.OnModelCall(KindOf(err), elapsed)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.String("gen_ai.response.finish_reason", string(resp.StopReason)),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

func (g *Gateway) send(ctx context.Context, prompt string) (*LLMResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req := &LLMRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: Temperature,
		Prompt:      prompt,
	}

	// buffered so the goroutine can always deliver and exit after we stop listening
	ch := make(chan sendResult, 1)
	go func() {
		resp, err := g.provider.Send(ctx, req)
		ch <- sendResult{resp: resp, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, g.timeoutErr()
			}
			return nil, fmt.Errorf("%w: %w", ErrUpstream, r.err)
		}
		if r.resp == nil {
			return nil, fmt.Errorf("%w: empty response", ErrUpstream)
		}
		return r.resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, g.timeoutErr()
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, ctx.Err())
	}
}

func (g *Gateway) timeoutErr() error {
	return fmt.Errorf("%w: no response within %s", ErrTimeout, g.cfg.Timeout)
}
