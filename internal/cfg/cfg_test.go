package cfg

import (
	"flag"
	"math"
	"slices"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		ClaudeMaxTokens:       1500,
		TriageTimeoutSeconds:  5,
		MaxReplyWords:         120,
		KafkaTopic:            "helpdesk.ticket-events",
	}
}

func with(mut func(*Config)) Config {
	c := validBase()
	mut(&c)
	return c
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.ClaudeMaxTokens != 1500 {
		t.Errorf("ClaudeMaxTokens = %d, want 1500", c.ClaudeMaxTokens)
	}
	if c.TriageTimeoutSeconds != 5 {
		t.Errorf("TriageTimeoutSeconds = %d, want 5", c.TriageTimeoutSeconds)
	}
	if c.MaxReplyWords != 120 {
		t.Errorf("MaxReplyWords = %d, want 120", c.MaxReplyWords)
	}
	if c.KafkaTopic != "helpdesk.ticket-events" {
		t.Errorf("KafkaTopic = %q", c.KafkaTopic)
	}
	if c.DatabaseURL != "" || c.SQLitePath != "" || c.APIToken != "" {
		t.Errorf("optional fields should default empty: %+v", c)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-triage-timeout-seconds", "10",
		"-max-reply-words", "200",
		"-sqlite-path", "/var/lib/helpdesk/desk.db",
		"-kafka-brokers", "k1:9092, k2:9092",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.ClaudeModel != "claude-opus-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-opus-4-20250514")
	}
	if c.TriageTimeoutSeconds != 10 {
		t.Errorf("TriageTimeoutSeconds = %d, want 10", c.TriageTimeoutSeconds)
	}
	if c.MaxReplyWords != 200 {
		t.Errorf("MaxReplyWords = %d, want 200", c.MaxReplyWords)
	}
	if c.SQLitePath != "/var/lib/helpdesk/desk.db" {
		t.Errorf("SQLitePath = %q", c.SQLitePath)
	}
	if got := c.Brokers(); !slices.Equal(got, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("Brokers() = %v", got)
	}
}

func TestBrokers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"a:9092", []string{"a:9092"}},
		{"a:9092,,b:9092 ,", []string{"a:9092", "b:9092"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			c := Config{KafkaBrokers: tt.in}
			if got := c.Brokers(); !slices.Equal(got, tt.want) {
				t.Errorf("Brokers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 1, 2, 1
				c.ClaudeMaxTokens, c.TriageTimeoutSeconds, c.MaxReplyWords = 1, 1, 10
			}),
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 299, 300, 65535
				c.ClaudeMaxTokens, c.TriageTimeoutSeconds, c.MaxReplyWords = 8192, 120, 1000
			}),
			wantErr: false,
		},
		// Drain and budget
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:    "budget is drain plus one",
			cfg:     with(func(c *Config) { c.ShutdownBudgetSeconds = 61 }),
			wantErr: false,
		},
		// Port
		{
			name:      "port zero",
			cfg:       with(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Model settings
		{
			name:      "empty claude api key",
			cfg:       with(func(c *Config) { c.ClaudeAPIKey = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name:      "empty claude model",
			cfg:       with(func(c *Config) { c.ClaudeModel = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		{
			name:      "relative base url",
			cfg:       with(func(c *Config) { c.ClaudeBaseURL = "api.example.com" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_BASE_URL"},
		},
		{
			name:    "absolute base url",
			cfg:     with(func(c *Config) { c.ClaudeBaseURL = "http://127.0.0.1:8081" }),
			wantErr: false,
		},
		{
			name:      "max tokens zero",
			cfg:       with(func(c *Config) { c.ClaudeMaxTokens = 0 }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MAX_TOKENS"},
		},
		{
			name:      "timeout zero",
			cfg:       with(func(c *Config) { c.TriageTimeoutSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"TRIAGE_TIMEOUT_SECONDS"},
		},
		{
			name:      "timeout above max",
			cfg:       with(func(c *Config) { c.TriageTimeoutSeconds = 121 }),
			wantErr:   true,
			errSubstr: []string{"TRIAGE_TIMEOUT_SECONDS"},
		},
		{
			name:      "reply words below min",
			cfg:       with(func(c *Config) { c.MaxReplyWords = 9 }),
			wantErr:   true,
			errSubstr: []string{"MAX_REPLY_WORDS"},
		},
		// Store selection
		{
			name:    "postgres only",
			cfg:     with(func(c *Config) { c.DatabaseURL = "postgres://localhost/helpdesk" }),
			wantErr: false,
		},
		{
			name:    "sqlite only",
			cfg:     with(func(c *Config) { c.SQLitePath = "desk.db" }),
			wantErr: false,
		},
		{
			name: "both stores",
			cfg: with(func(c *Config) {
				c.DatabaseURL = "postgres://localhost/helpdesk"
				c.SQLitePath = "desk.db"
			}),
			wantErr:   true,
			errSubstr: []string{"mutually exclusive"},
		},
		// Kafka
		{
			name: "brokers without topic",
			cfg: with(func(c *Config) {
				c.KafkaBrokers = "localhost:9092"
				c.KafkaTopic = ""
			}),
			wantErr:   true,
			errSubstr: []string{"KAFKA_TOPIC"},
		},
		{
			name:    "no brokers, no topic",
			cfg:     with(func(c *Config) { c.KafkaTopic = "" }),
			wantErr: false,
		},
		// Error accumulation: all fields invalid
		{
			name:      "all fields invalid",
			cfg:       Config{},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "CLAUDE_API_KEY", "CLAUDE_MODEL", "CLAUDE_MAX_TOKENS", "TRIAGE_TIMEOUT_SECONDS", "MAX_REPLY_WORDS"},
		},
		{
			name: "extreme negative values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = math.MinInt32, math.MinInt32, math.MinInt32
			}),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, timeout, words int
		key, model                          string
	}{
		{60, 90, 8080, 5, 120, "sk-test", "claude-sonnet"},
		{1, 2, 1, 1, 10, "k", "m"},
		{299, 300, 65535, 120, 1000, "k", "m"},
		{0, 0, 0, 0, 0, "", ""},
		{-1, -1, -1, -1, -1, "", ""},
		{300, 300, 65535, 121, 1001, "k", "m"},
		{150, 100, 8080, 5, 120, "k", "m"},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.timeout, s.words, s.key, s.model)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, timeout, words int, key, model string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.TriageTimeoutSeconds = timeout
		c.MaxReplyWords = words
		c.ClaudeAPIKey = key
		c.ClaudeModel = model
		err := c.Validate()

		allValid := drain >= 1 && drain <= 300 &&
			budget >= 1 && budget <= 300 &&
			port >= 1 && port <= 65535 &&
			budget > drain &&
			timeout >= 1 && timeout <= 120 &&
			words >= 10 && words <= 1000 &&
			key != "" && model != ""

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
