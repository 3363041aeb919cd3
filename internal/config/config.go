package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCooldown          = 60 * time.Second
	DefaultCheckInterval     = 30 * time.Second
	DefaultCheckTimeout      = 5 * time.Second
	DefaultMissedThreshold   = 2
	DefaultReconnectDelay    = 5 * time.Second
	DefaultResourceInterval  = 10 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultMaxLineBytes      = 32 * 1024
	DefaultQueueSize         = 256
)

// Config is the top-level configuration. Fields map 1:1 to the YAML file.
type Config struct {
	// Identity is the label attached to every outgoing alert. Defaults to
	// the hostname when empty.
	Identity string `yaml:"identity"`

	// Inputs lists the log sources to watch.
	Inputs Inputs `yaml:"inputs"`

	// Sinks maps sink names to their delivery configuration. Rules, checks
	// and resource thresholds reference sinks by these names.
	Sinks map[string]SinkConfig `yaml:"sinks"`

	// Rules are the pattern rules evaluated against every log line.
	Rules []Rule `yaml:"rules"`

	// Checks are the periodic endpoint liveness probes.
	Checks []Check `yaml:"checks"`

	// Resources enables host CPU/memory/disk threshold monitoring.
	Resources *ResourceConfig `yaml:"resources"`

	// Heartbeat enables periodic liveness pings to an external receiver.
	Heartbeat *HeartbeatConfig `yaml:"heartbeat"`

	// MetricsListen is the optional listen address for the Prometheus
	// self-telemetry endpoint (e.g. ":9477"). Empty disables it.
	MetricsListen string `yaml:"metrics_listen"`

	// MaxLineBytes caps the length of any ingested line before rule
	// matching. The cap is global, not per rule.
	MaxLineBytes int `yaml:"max_line_bytes"`

	// QueueSize is the alert dispatch buffer depth. When the buffer is
	// full the oldest undelivered alert is evicted.
	QueueSize int `yaml:"queue_size"`
}

// Inputs lists the configured log sources.
type Inputs struct {
	// Files are paths to tail. Glob patterns expand at load time.
	Files []string `yaml:"files"`

	// Containers are Docker container names to follow.
	Containers []string `yaml:"containers"`

	// Streams are network line sources (websocket, HTTP, TCP).
	Streams []StreamConfig `yaml:"streams"`
}

// StreamConfig describes one network stream source.
type StreamConfig struct {
	// Name identifies the stream in rule scopes and alerts. Defaults to
	// "type:url" when empty.
	Name string `yaml:"name"`

	// Type is one of: websocket | http | tcp.
	Type string `yaml:"type"`

	// URL is the connection target. TCP accepts "host:port" with an
	// optional tcp:// prefix.
	URL string `yaml:"url"`

	// Headers are sent on websocket and HTTP connects.
	Headers map[string]string `yaml:"headers"`

	// ReconnectDelay is the fixed wait between reconnection attempts.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// EffectiveName returns the configured name or a "type:url" fallback.
func (s StreamConfig) EffectiveName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type + ":" + s.URL
}

// SinkConfig describes one named alert destination. Secret values are
// resolved through environment variables so config files stay shareable;
// plain fields exist for non-secret local setups.
type SinkConfig struct {
	// Type is one of: stdout | webhook | slack | discord | telegram |
	// ntfy | pagerduty | email | sendgrid.
	Type string `yaml:"type"`

	// URL / URLEnv hold the webhook target for webhook, slack and discord
	// sinks. URLEnv names an environment variable and wins when set.
	URL    string `yaml:"url"`
	URLEnv string `yaml:"url_env"`

	// Telegram fields.
	BotTokenEnv string `yaml:"bot_token_env"`
	ChatID      string `yaml:"chat_id"`

	// Ntfy fields. Server defaults to https://ntfy.sh.
	Topic  string `yaml:"topic"`
	Server string `yaml:"server"`

	// PagerDuty Events v2 routing key.
	RoutingKeyEnv string `yaml:"routing_key_env"`

	// Email and sendgrid fields. SMTPAddr is "host:port"; PasswordEnv
	// names the variable holding the SMTP password; APIKeyEnv names the
	// variable holding the SendGrid API key.
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	SMTPAddr    string   `yaml:"smtp_addr"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	APIKeyEnv   string   `yaml:"api_key_env"`
}

// ResolvedURL returns the webhook URL, preferring the environment variable.
func (s SinkConfig) ResolvedURL() string {
	if s.URLEnv != "" {
		return os.Getenv(s.URLEnv)
	}
	return s.URL
}

// BotToken returns the Telegram bot token resolved from the environment.
func (s SinkConfig) BotToken() string {
	if s.BotTokenEnv == "" {
		return ""
	}
	return os.Getenv(s.BotTokenEnv)
}

// RoutingKey returns the PagerDuty routing key resolved from the environment.
func (s SinkConfig) RoutingKey() string {
	if s.RoutingKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.RoutingKeyEnv)
}

// Password returns the SMTP password resolved from the environment.
func (s SinkConfig) Password() string {
	if s.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(s.PasswordEnv)
}

// APIKey returns the SendGrid API key resolved from the environment.
func (s SinkConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// Rule is one pattern rule. Exactly one of Pattern (regex) or Text
// (literal containment) must be set.
type Rule struct {
	// Name identifies the rule in alerts and logs.
	Name string `yaml:"name"`

	// Pattern is a regular expression, matched case-insensitively unless
	// it carries its own inline flags.
	Pattern string `yaml:"pattern"`

	// Text is a literal substring, matched byte for byte.
	Text string `yaml:"text"`

	// Sinks names the destinations to notify. Accepts a single name or a
	// list.
	Sinks StringList `yaml:"sinks"`

	// Cooldown is the minimum time between two firings. Nil means the
	// 60s default; an explicit 0 disables suppression entirely.
	Cooldown *time.Duration `yaml:"cooldown"`

	// Threshold, when set, requires N matches within the window before
	// the rule fires ("5 in 2s"). The window clears fully on fire.
	Threshold *Threshold `yaml:"threshold"`

	// Sources restricts the rule to specific sources. Nil means all.
	Sources *RuleSources `yaml:"sources"`
}

// CooldownOrDefault returns the rule's cooldown, applying the default when
// the field was absent from the config.
func (r Rule) CooldownOrDefault() time.Duration {
	if r.Cooldown == nil {
		return DefaultCooldown
	}
	return *r.Cooldown
}

// RuleSources scopes a rule to specific source identities. Comparison is
// exact string equality: files by absolute path, containers and streams by
// configured name.
type RuleSources struct {
	Files      []string `yaml:"files"`
	Containers []string `yaml:"containers"`
	Streams    []string `yaml:"streams"`
}

// Check is one periodic endpoint liveness probe.
type Check struct {
	// Name identifies the check in alerts and logs.
	Name string `yaml:"name"`

	// Type is one of: http | tcp | metrics.
	Type string `yaml:"type"`

	// URL is the probe target. TCP accepts "host:port".
	URL string `yaml:"url"`

	// Interval is the time between probes.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single probe.
	Timeout time.Duration `yaml:"timeout"`

	// MissedThreshold is the consecutive-failure count that marks the
	// endpoint down. Resets on any success.
	MissedThreshold int `yaml:"missed_threshold"`

	// Threshold is an optional "N failures in window" policy, evaluated
	// independently of MissedThreshold.
	Threshold *Threshold `yaml:"threshold"`

	// Sinks names the destinations for down and recovery alerts.
	Sinks StringList `yaml:"sinks"`

	// Metric/Op/Value define an optional value condition for metrics
	// checks: the probe fails when the summed metric satisfies
	// "Metric Op Value" is false. E.g. metric: up, op: ">=", value: 1.
	Metric string  `yaml:"metric"`
	Op     string  `yaml:"op"`
	Value  float64 `yaml:"value"`
}

// ResourceConfig enables periodic host resource sampling. A threshold is
// active only when its field is present.
type ResourceConfig struct {
	Interval      time.Duration `yaml:"interval"`
	CPUPercent    *float64      `yaml:"cpu_percent"`
	MemoryPercent *float64      `yaml:"memory_percent"`
	DiskPercent   *float64      `yaml:"disk_percent"`
	Sinks         StringList    `yaml:"sinks"`
}

// HeartbeatConfig enables periodic liveness pings.
type HeartbeatConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// StringList unmarshals either a single YAML scalar or a sequence of
// strings into a []string.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("expected string or list of strings, got yaml kind %d", node.Kind)
	}
}

// Load reads and parses the YAML config file at path, applies defaults and
// validates the result. File glob inputs are expanded by ExpandFiles, not
// here, so the loaded config reflects the file as written.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML config bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		MaxLineBytes: DefaultMaxLineBytes,
		QueueSize:    DefaultQueueSize,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// EffectiveIdentity returns the configured identity, falling back to the
// hostname and then to "pulseguard".
func (c *Config) EffectiveIdentity() string {
	if c.Identity != "" {
		return c.Identity
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "pulseguard"
}

// ExpandFiles resolves the file input list to concrete absolute paths.
// Entries containing glob metacharacters are expanded; matches that are not
// regular files are skipped. Literal paths are kept even when the file does
// not exist yet; the tailer retries until it appears.
func (c *Config) ExpandFiles() ([]string, error) {
	var out []string
	for _, entry := range c.Inputs.Files {
		if !strings.ContainsAny(entry, "*?[") {
			abs, err := filepath.Abs(entry)
			if err != nil {
				return nil, fmt.Errorf("config: resolve path %q: %w", entry, err)
			}
			out = append(out, abs)
			continue
		}

		matches, err := filepath.Glob(entry)
		if err != nil {
			return nil, fmt.Errorf("config: invalid glob %q: %w", entry, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, fmt.Errorf("config: resolve path %q: %w", m, err)
			}
			out = append(out, abs)
		}
	}
	return out, nil
}

// MergeCLI appends files and containers given on the command line to the
// configured inputs.
func (c *Config) MergeCLI(files, containers []string) {
	c.Inputs.Files = append(c.Inputs.Files, files...)
	c.Inputs.Containers = append(c.Inputs.Containers, containers...)
}

func (c *Config) applyDefaults() {
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	for i := range c.Inputs.Streams {
		if c.Inputs.Streams[i].ReconnectDelay <= 0 {
			c.Inputs.Streams[i].ReconnectDelay = DefaultReconnectDelay
		}
	}
	for i := range c.Checks {
		if c.Checks[i].Interval <= 0 {
			c.Checks[i].Interval = DefaultCheckInterval
		}
		if c.Checks[i].Timeout <= 0 {
			c.Checks[i].Timeout = DefaultCheckTimeout
		}
		if c.Checks[i].MissedThreshold <= 0 {
			c.Checks[i].MissedThreshold = DefaultMissedThreshold
		}
		if c.Checks[i].Type == "" {
			c.Checks[i].Type = "http"
		}
	}
	if c.Resources != nil && c.Resources.Interval <= 0 {
		c.Resources.Interval = DefaultResourceInterval
	}
	if c.Heartbeat != nil && c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
}

var sinkTypes = map[string]bool{
	"stdout": true, "webhook": true, "slack": true, "discord": true,
	"telegram": true, "ntfy": true, "pagerduty": true, "email": true,
	"sendgrid": true,
}

func (c *Config) validate() error {
	for name, s := range c.Sinks {
		if name == "" {
			return fmt.Errorf("sinks: empty sink name")
		}
		if !sinkTypes[s.Type] {
			return fmt.Errorf("sink %q: unknown type %q", name, s.Type)
		}
	}

	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if (r.Pattern == "") == (r.Text == "") {
			return fmt.Errorf("rule %q: exactly one of pattern or text is required", r.Name)
		}
		if r.Pattern != "" {
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fmt.Errorf("rule %q: invalid pattern: %w", r.Name, err)
			}
		}
		if len(r.Sinks) == 0 {
			return fmt.Errorf("rule %q: at least one sink is required", r.Name)
		}
		if err := c.checkSinkRefs(r.Sinks); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if r.Threshold != nil && r.Threshold.Count < 1 {
			return fmt.Errorf("rule %q: threshold count must be at least 1", r.Name)
		}
	}

	for i, s := range c.Inputs.Streams {
		switch s.Type {
		case "websocket", "http", "tcp":
		default:
			return fmt.Errorf("streams[%d] %q: unknown type %q", i, s.EffectiveName(), s.Type)
		}
		if s.URL == "" {
			return fmt.Errorf("streams[%d] %q: url is required", i, s.EffectiveName())
		}
	}

	for i, ck := range c.Checks {
		if ck.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		switch ck.Type {
		case "http", "tcp", "metrics":
		default:
			return fmt.Errorf("check %q: unknown type %q", ck.Name, ck.Type)
		}
		if ck.URL == "" {
			return fmt.Errorf("check %q: url is required", ck.Name)
		}
		if len(ck.Sinks) == 0 {
			return fmt.Errorf("check %q: at least one sink is required", ck.Name)
		}
		if err := c.checkSinkRefs(ck.Sinks); err != nil {
			return fmt.Errorf("check %q: %w", ck.Name, err)
		}
		if ck.Metric != "" {
			switch ck.Op {
			case ">", ">=", "<", "<=", "==":
			default:
				return fmt.Errorf("check %q: metric condition needs op of > >= < <= ==, got %q", ck.Name, ck.Op)
			}
		}
	}

	if c.Resources != nil {
		if len(c.Resources.Sinks) == 0 {
			return fmt.Errorf("resources: at least one sink is required")
		}
		if err := c.checkSinkRefs(c.Resources.Sinks); err != nil {
			return fmt.Errorf("resources: %w", err)
		}
	}

	if c.Heartbeat != nil && c.Heartbeat.URL == "" {
		return fmt.Errorf("heartbeat: url is required")
	}

	return nil
}

func (c *Config) checkSinkRefs(names []string) error {
	for _, n := range names {
		if _, ok := c.Sinks[n]; !ok {
			return fmt.Errorf("unknown sink %q", n)
		}
	}
	return nil
}
