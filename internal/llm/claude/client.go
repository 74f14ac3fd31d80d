// Package claude implements triage.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/helpdesk/internal/triage"
)

// Client implements triage.Provider for the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude client for model. Extra request options (base URL,
// HTTP client) are passed through to the SDK.
//
// SDK retries are disabled: the triage gateway allows exactly one bounded
// attempt per run.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Client{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Send issues one Messages request. The request's model overrides the
// client default when set.
func (c *Client) Send(ctx context.Context, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	msg, err := c.client.Messages.New(ctx, toSDKParams(c.model, req))
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	return fromSDKResponse(msg), nil
}

func toSDKParams(defaultModel string, req *triage.LLMRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
}

func fromSDKResponse(msg *anthropic.Message) *triage.LLMResponse {
	out := &triage.LLMResponse{
		StopReason: triage.StopReason(msg.StopReason),
		Model:      string(msg.Model),
		Usage: triage.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		out.Content = append(out.Content, triage.ContentBlock{
			Type: block.Type,
			Text: block.Text,
		})
	}
	return out
}

var _ triage.Provider = (*Client)(nil)
