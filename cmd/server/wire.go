package main

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"

	vc "github.com/linnemanlabs/helpdesk/internal/cfg"
	"github.com/linnemanlabs/helpdesk/internal/llm/claude"
	"github.com/linnemanlabs/helpdesk/internal/notify/kafka"
	"github.com/linnemanlabs/helpdesk/internal/notify/slack"
	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/triage"
)

// triageDeps is the assembled triage pipeline plus anything main must close.
type triageDeps struct {
	service *triage.Service
	kafka   *kafka.Publisher
}

// newTriage assembles roster, prompt builder, Claude gateway, metrics and
// notifiers into a triage service over store.
func newTriage(ctx context.Context, appCfg *vc.Config, store ticket.Store, reg prometheus.Registerer, L log.Logger) (*triageDeps, error) {
	roster := triage.DefaultRoster()
	if appCfg.RosterFile != "" {
		var err error
		if roster, err = triage.LoadRoster(appCfg.RosterFile); err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
	}
	L.Info(ctx, "loaded responder roster", "responders", roster.Len(), "file", appCfg.RosterFile)

	var claudeOpts []option.RequestOption
	if appCfg.ClaudeBaseURL != "" {
		claudeOpts = append(claudeOpts, option.WithBaseURL(appCfg.ClaudeBaseURL))
	}
	provider := claude.New(appCfg.ClaudeAPIKey, appCfg.ClaudeModel, claudeOpts...)
	L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", appCfg.ClaudeModel)

	hooks := triage.NewMetrics(reg).Hooks()

	gateway := triage.NewGateway(provider, triage.GatewayConfig{
		Model:     appCfg.ClaudeModel,
		MaxTokens: appCfg.ClaudeMaxTokens,
		Timeout:   time.Duration(appCfg.TriageTimeoutSeconds) * time.Second,
	}, hooks)
	prompts := triage.NewPromptBuilder(roster, appCfg.MaxReplyWords)

	deps := &triageDeps{}

	// post-commit, best-effort
	var notifiers []triage.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, slack.New(appCfg.SlackWebhookURL, L))
		L.Info(ctx, "notifier enabled", "type", "slack")
	}
	if brokers := appCfg.Brokers(); len(brokers) > 0 {
		deps.kafka = kafka.New(brokers, appCfg.KafkaTopic, L)
		notifiers = append(notifiers, deps.kafka)
		L.Info(ctx, "notifier enabled", "type", "kafka", "brokers", brokers, "topic", appCfg.KafkaTopic)
	}

	deps.service = triage.NewService(store, prompts, gateway, L, hooks, notifiers...)
	return deps, nil
}

func (d *triageDeps) stopFns() []stopFn {
	if d.kafka == nil {
		return nil
	}
	return []stopFn{{"kafka publisher", func(context.Context) error { return d.kafka.Close() }}}
}
