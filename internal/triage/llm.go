package triage

import "context"

// Provider is the interface for the text-generation backend.
//
// Send must honor ctx: when the context is cancelled the in-flight request
// is abandoned and its resources released.
type Provider interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is one single-turn completion request.
type LLMRequest struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Prompt      string
}

// LLMResponse is the provider's reply.
type LLMResponse struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
	Model      string
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// ContentBlock is one block of generated content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Text returns the first text block, or "" when there is none.
func (r *LLMResponse) Text() string {
	for _, b := range r.Content {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}
