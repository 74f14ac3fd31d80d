package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	delay     time.Duration
	ignoreCtx bool
	requests  []*LLMRequest
	callIdx   int
	cancelled chan struct{}
}

const claudeTestModel = "claude-sonnet-4-20250514"

func (m *mockProvider) Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)
	delay, ignore, cancelled := m.delay, m.ignoreCtx, m.cancelled
	m.mu.Unlock()

	if delay > 0 {
		if ignore {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if cancelled != nil {
					close(cancelled)
				}
				return nil, ctx.Err()
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return textResponse(`{"priority":"P3","priority_confidence":0.5,"priority_rationale":"fallback","reply_draft":"fallback"}`), nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

func textResponse(text string) *LLMResponse {
	return &LLMResponse{
		Content:    []ContentBlock{{Type: "text", Text: text}},
		StopReason: StopEnd,
		Usage:      Usage{InputTokens: 420, OutputTokens: 180},
		Model:      claudeTestModel,
	}
}

func TestGateway_Success(t *testing.T) {
	t.Parallel()

	p := &mockProvider{responses: []*LLMResponse{textResponse("hello")}}
	g := NewGateway(p, GatewayConfig{Model: claudeTestModel}, Hooks{})

	resp, err := g.Complete(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != "hello" {
		t.Errorf("Text = %q, want hello", resp.Text())
	}

	req := p.requests[0]
	if req.Prompt != "prompt text" || req.Model != claudeTestModel {
		t.Errorf("request = %+v", req)
	}
	if req.MaxTokens != DefaultMaxTokens || req.Temperature != Temperature {
		t.Errorf("MaxTokens/Temperature = %d/%v, want %d/%v", req.MaxTokens, req.Temperature, DefaultMaxTokens, Temperature)
	}
}

func TestGateway_TimeoutCancelsProvider(t *testing.T) {
	t.Parallel()

	p := &mockProvider{delay: time.Minute, cancelled: make(chan struct{})}
	g := NewGateway(p, GatewayConfig{Model: claudeTestModel, Timeout: 50 * time.Millisecond}, Hooks{})

	start := time.Now()
	_, err := g.Complete(context.Background(), "p")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("Complete took %v, want close to the 50ms bound", elapsed)
	}

	select {
	case <-p.cancelled:
	case <-time.After(time.Second):
		t.Error("provider context was not cancelled at the deadline")
	}
}

func TestGateway_TimeoutWithUnresponsiveProvider(t *testing.T) {
	t.Parallel()

	// provider ignores its context entirely
	p := &mockProvider{delay: 2 * time.Second, ignoreCtx: true}
	g := NewGateway(p, GatewayConfig{Timeout: 30 * time.Millisecond}, Hooks{})

	start := time.Now()
	_, err := g.Complete(context.Background(), "p")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Complete blocked for %v past a 30ms bound", elapsed)
	}
}

func TestGateway_UpstreamErrorPropagatesMessage(t *testing.T) {
	t.Parallel()

	p := &mockProvider{errs: []error{errors.New("529 overloaded_error: Overloaded")}}
	g := NewGateway(p, GatewayConfig{}, Hooks{})

	_, err := g.Complete(context.Background(), "p")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if !strings.Contains(err.Error(), "529 overloaded_error: Overloaded") {
		t.Errorf("err = %q, want provider message", err)
	}
	if KindOf(err) != KindUpstream {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindUpstream)
	}
}

func TestGateway_ProviderDeadlineErrorIsTimeout(t *testing.T) {
	t.Parallel()

	p := &mockProvider{errs: []error{context.DeadlineExceeded}}
	g := NewGateway(p, GatewayConfig{}, Hooks{})

	_, err := g.Complete(context.Background(), "p")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGateway_ParentCancelledIsUpstream(t *testing.T) {
	t.Parallel()

	p := &mockProvider{delay: time.Minute}
	g := NewGateway(p, GatewayConfig{Timeout: time.Minute}, Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.Complete(ctx, "p")
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrUpstream wrapping context.Canceled", err)
	}
}

func TestGateway_HooksObserveOutcome(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		kinds []Kind
	)
	hooks := Hooks{OnModelCall: func(k Kind, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, k)
		if d < 0 {
			t.Errorf("negative duration %v", d)
		}
	}}

	p := &mockProvider{
		responses: []*LLMResponse{textResponse("ok")},
		errs:      []error{nil, errors.New("boom")},
	}
	g := NewGateway(p, GatewayConfig{}, hooks)

	_, _ = g.Complete(context.Background(), "p")
	_, _ = g.Complete(context.Background(), "p")

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != KindNone || kinds[1] != KindUpstream {
		t.Errorf("kinds = %v, want [none upstream_failure]", kinds)
	}
}

func TestNewGateway_NilProviderPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil provider")
		}
	}()
	NewGateway(nil, GatewayConfig{}, Hooks{})
}

func TestLLMResponse_Text(t *testing.T) {
	t.Parallel()

	r := &LLMResponse{Content: []ContentBlock{{Type: "thinking"}, {Type: "text", Text: "first"}, {Type: "text", Text: "second"}}}
	if r.Text() != "first" {
		t.Errorf("Text = %q, want first", r.Text())
	}
	if (&LLMResponse{}).Text() != "" {
		t.Error("empty response should have empty text")
	}
}
