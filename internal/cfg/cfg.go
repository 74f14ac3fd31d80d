package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
)

// Config adds helpdesk-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	ClaudeAPIKey         string
	ClaudeModel          string
	ClaudeBaseURL        string
	ClaudeMaxTokens      int
	TriageTimeoutSeconds int
	MaxReplyWords        int
	RosterFile           string

	DatabaseURL string
	SQLitePath  string

	SlackWebhookURL string
	KafkaBrokers    string
	KafkaTopic      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 (empty = unauthenticated)")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model used for triage")
	fs.StringVar(&c.ClaudeBaseURL, "claude-base-url", "", "override the Claude API base URL (empty = SDK default)")
	fs.IntVar(&c.ClaudeMaxTokens, "claude-max-tokens", 1500, "maximum output tokens per triage call (1..8192)")
	fs.IntVar(&c.TriageTimeoutSeconds, "triage-timeout-seconds", 5, "hard limit on one model call (1..120)")
	fs.IntVar(&c.MaxReplyWords, "max-reply-words", 120, "word limit for drafted replies (10..1000)")
	fs.StringVar(&c.RosterFile, "roster-file", "", "YAML file listing responders and skills (empty = built-in roster)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file (empty with no database-url = in-memory store)")

	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for triage notifications")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for triage events (empty = disabled)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "helpdesk.ticket-events", "Kafka topic for triage events")
}

// Brokers returns the configured Kafka brokers, or nil when none are set.
func (c *Config) Brokers() []string {
	var out []string
	for b := range strings.SplitSeq(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}
	if c.ClaudeBaseURL != "" {
		if u, err := url.Parse(c.ClaudeBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid CLAUDE_BASE_URL %q (must be an absolute URL)", c.ClaudeBaseURL))
		}
	}
	if c.ClaudeMaxTokens <= 0 || c.ClaudeMaxTokens > 8192 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_MAX_TOKENS %d (must be 1..8192)", c.ClaudeMaxTokens))
	}
	if c.TriageTimeoutSeconds <= 0 || c.TriageTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid TRIAGE_TIMEOUT_SECONDS %d (must be 1..120)", c.TriageTimeoutSeconds))
	}
	if c.MaxReplyWords < 10 || c.MaxReplyWords > 1000 {
		errs = append(errs, fmt.Errorf("invalid MAX_REPLY_WORDS %d (must be 10..1000)", c.MaxReplyWords))
	}

	// One backing store at most
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
