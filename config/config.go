// Package config provides configuration loading for the tutoring gateway.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the complete gateway configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	Scope        ScopeConfig        `yaml:"scope"`
	Conversation ConversationConfig `yaml:"conversation"`
	Reference    ReferenceConfig    `yaml:"reference"`
	Backend      BackendConfig      `yaml:"backend"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Queue        QueueConfig        `yaml:"queue"`
	Policy       PolicyConfig       `yaml:"policy"`
	NATS         NATSConfig         `yaml:"nats"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures credentials.
type AuthConfig struct {
	// AdminToken guards the admin endpoints (empty = admin disabled)
	AdminToken string `yaml:"admin_token"`
	// RateLimitPerMinute caps chat requests per actor (0 = disabled)
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// ScopeConfig configures scope token verification.
type ScopeConfig struct {
	// Secret signs and verifies scope tokens
	Secret string `yaml:"secret"`
	// TokenMaxAge rejects tokens older than this
	TokenMaxAge Duration `yaml:"token_max_age"`
	// RequireStaffScope applies the student token policy to staff too
	RequireStaffScope bool `yaml:"require_staff_scope"`
}

// ConversationConfig configures conversation memory.
type ConversationConfig struct {
	// Enabled gates memory entirely
	Enabled bool `yaml:"enabled"`
	// TTL bounds how long an idle conversation survives
	TTL Duration `yaml:"ttl"`
	// MaxMessages is the verbatim turn cap per conversation
	MaxMessages int `yaml:"max_messages"`
	// SummaryMaxChars caps the rolling summary
	SummaryMaxChars int `yaml:"summary_max_chars"`
	// HistoryMaxChars caps the history block in the prompt
	HistoryMaxChars int `yaml:"history_max_chars"`
	// MaxIndexEntries bounds the actor/class indices
	MaxIndexEntries int `yaml:"max_index_entries"`
	// ArchiveDir receives pre-reset exports
	ArchiveDir string `yaml:"archive_dir"`
	// ResetMaxKeys bounds how many conversations one class reset touches
	ResetMaxKeys int `yaml:"reset_max_keys"`
}

// ReferenceConfig configures reference material.
type ReferenceConfig struct {
	// DocsDir is the documents directory
	DocsDir string `yaml:"docs_dir"`
	// Allow maps reference keys to relative paths within DocsDir
	Allow map[string]string `yaml:"allow"`
	// MaxCitations caps citations per response
	MaxCitations int `yaml:"max_citations"`
	// Watch enables chunk-cache invalidation on file changes
	Watch bool `yaml:"watch"`
}

// BackendConfig configures the chat backends.
type BackendConfig struct {
	// Default is the backend used for chat calls ("ollama", "remote", "stub")
	Default string `yaml:"default"`
	// MaxAttempts and BaseBackoff drive retry
	MaxAttempts int      `yaml:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff"`
	// MaxMessageChars caps inbound messages (0 = disabled)
	MaxMessageChars int `yaml:"max_message_chars"`

	Ollama OllamaConfig `yaml:"ollama"`
	Remote RemoteConfig `yaml:"remote"`
}

// OllamaConfig configures the local OpenAI-compatible backend.
type OllamaConfig struct {
	// Endpoint is the API endpoint (default: http://localhost:11434/v1)
	Endpoint string `yaml:"endpoint"`
	// Model is the model name (e.g., "llama3.2:3b")
	Model string `yaml:"model"`
	// Temperature controls randomness (0.0-1.0)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens limits response length (0 = server default)
	MaxTokens int `yaml:"max_tokens"`
}

// RemoteConfig configures the hosted provider backend.
type RemoteConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	// APIKey supports ${VAR} substitution so secrets stay out of the file
	APIKey string `yaml:"api_key"`
	// Acknowledged records operator consent to send messages off-host
	Acknowledged bool `yaml:"acknowledged"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// Threshold is the failure count that opens the breaker (0 = disabled)
	Threshold int `yaml:"threshold"`
	// TTL is the shared cool-down window for counter and open flag
	TTL Duration `yaml:"ttl"`
}

// QueueConfig configures admission control.
type QueueConfig struct {
	// MaxConcurrency is the slot count (0 = disabled)
	MaxConcurrency int      `yaml:"max_concurrency"`
	MaxWait        Duration `yaml:"max_wait"`
	PollInterval   Duration `yaml:"poll_interval"`
	SlotTTL        Duration `yaml:"slot_ttl"`
}

// PolicyConfig configures the deterministic heuristics.
type PolicyConfig struct {
	// TopicStrictness is "strict" or "relaxed"
	TopicStrictness string `yaml:"topic_strictness"`
	// MaxFollowUps caps follow-up suggestions per response
	MaxFollowUps int `yaml:"max_follow_ups"`
}

// NATSConfig configures the shared cache and audit sink.
type NATSConfig struct {
	// URL is the NATS server URL (empty = in-process cache, no audit stream)
	URL string `yaml:"url"`
	// Bucket is the JetStream KV bucket name
	Bucket string `yaml:"bucket"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Auth: AuthConfig{
			RateLimitPerMinute: 30,
		},
		Scope: ScopeConfig{
			TokenMaxAge: Duration(8 * time.Hour),
		},
		Conversation: ConversationConfig{
			Enabled:         true,
			TTL:             Duration(2 * time.Hour),
			MaxMessages:     12,
			SummaryMaxChars: 1200,
			HistoryMaxChars: 4000,
			MaxIndexEntries: 200,
			ArchiveDir:      "archives",
			ResetMaxKeys:    500,
		},
		Reference: ReferenceConfig{
			DocsDir:      "docs",
			MaxCitations: 3,
			Watch:        true,
		},
		Backend: BackendConfig{
			Default:         "ollama",
			MaxAttempts:     3,
			BaseBackoff:     Duration(500 * time.Millisecond),
			MaxMessageChars: 2000,
			Ollama: OllamaConfig{
				Endpoint:    "http://localhost:11434/v1",
				Model:       "llama3.2:3b",
				Temperature: 0.3,
			},
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			TTL:       Duration(time.Minute),
		},
		Queue: QueueConfig{
			MaxConcurrency: 4,
			MaxWait:        Duration(5 * time.Second),
			PollInterval:   Duration(100 * time.Millisecond),
			SlotTTL:        Duration(2 * time.Minute),
		},
		Policy: PolicyConfig{
			TopicStrictness: "relaxed",
			MaxFollowUps:    3,
		},
		NATS: NATSConfig{
			Bucket: "tutorgate",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Scope.Secret == "" {
		return fmt.Errorf("scope.secret is required")
	}
	switch c.Backend.Default {
	case "ollama", "remote", "stub":
	default:
		return fmt.Errorf("backend.default must be ollama, remote, or stub")
	}
	if c.Backend.MaxAttempts < 1 {
		return fmt.Errorf("backend.max_attempts must be at least 1")
	}
	if c.Backend.Ollama.Temperature < 0 || c.Backend.Ollama.Temperature > 1 {
		return fmt.Errorf("backend.ollama.temperature must be between 0 and 1")
	}
	if c.Backend.Default == "remote" && !c.Backend.Remote.Acknowledged {
		return fmt.Errorf("backend.remote.acknowledged must be set to use a remote provider")
	}
	switch c.Policy.TopicStrictness {
	case "strict", "relaxed":
	default:
		return fmt.Errorf("policy.topic_strictness must be strict or relaxed")
	}
	if c.Conversation.MaxMessages < 1 {
		return fmt.Errorf("conversation.max_messages must be at least 1")
	}
	if c.Queue.MaxConcurrency > 0 && c.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive when admission control is enabled")
	}
	return nil
}

// envPattern matches ${VAR} references in config values.
var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv substitutes ${VAR} references from the environment. Unset
// variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadFromFile loads configuration from a YAML file over the defaults,
// substituting ${VAR} environment references first.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(expandEnv(data), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}
