package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/validation"
	"gopkg.in/yaml.v3"
)

// ErrMissingReasoner is returned by RequireReasoner when no API key is configured
var ErrMissingReasoner = errors.New("OPENAI_API_KEY is required for this daemon")

// Config holds application configuration. Values come from defaults, then the
// optional VAULT_CONFIG YAML file, then environment variables.
type Config struct {
	VaultPath string `yaml:"vault_path" validate:"required"`
	InboxPath string `yaml:"inbox_path"`

	AIProvider string `yaml:"ai_provider" validate:"oneof=openai"`
	OpenAIKey  string `yaml:"-"`
	AIModel    string `yaml:"ai_model"`
	AIBaseURL  string `yaml:"ai_base_url" validate:"omitempty,url"`

	ReasonerTimeout  time.Duration `yaml:"reasoner_timeout" validate:"gt=0"`
	DraftTimeout     time.Duration `yaml:"draft_timeout" validate:"gt=0"`
	DraftBatchSize   int           `yaml:"draft_batch_size" validate:"min=1,max=100"`
	ClassifyFallback string        `yaml:"classify_fallback" validate:"category"`

	ClassifyInterval time.Duration `yaml:"classify_interval" validate:"gt=0"`
	ExecuteInterval  time.Duration `yaml:"execute_interval" validate:"gt=0"`
	DraftInterval    time.Duration `yaml:"draft_interval" validate:"gt=0"`

	WatchdogInterval    time.Duration `yaml:"watchdog_interval" validate:"gt=0"`
	WatchdogWindow      time.Duration `yaml:"watchdog_window" validate:"gt=0"`
	WatchdogMaxRestarts int           `yaml:"watchdog_max_restarts" validate:"min=1"`
	WatchdogProcesses   []string      `yaml:"watchdog_processes"`
	PM2Binary           string        `yaml:"pm2_binary"`

	HealthInterval       time.Duration `yaml:"health_interval" validate:"gt=0"`
	HealthSkipProcesses  []string      `yaml:"health_skip_processes"`
	HealthProbeURL       string        `yaml:"health_probe_url" validate:"omitempty,url"`
	HealthSyncMaxAge     time.Duration `yaml:"health_sync_max_age" validate:"gt=0"`
	HealthListenAddr     string        `yaml:"health_listen_addr"`
	HealthAllowedOrigins []string      `yaml:"health_allowed_origins"`

	ActionWebhookURL string            `yaml:"action_webhook_url" validate:"omitempty,url"`
	ActionWebhooks   map[string]string `yaml:"action_webhooks" validate:"dive,keys,action_kind,endkeys,url"`
	DropSettle       time.Duration     `yaml:"drop_settle" validate:"gt=0"`
	NotifyRate       string            `yaml:"notify_rate"`
	NotifyDesktop    bool              `yaml:"notify_desktop"`
	RabbitMQURL      string            `yaml:"rabbitmq_url"`
	RabbitMQPrefetch int               `yaml:"rabbitmq_prefetch" validate:"min=1"`
	RedisURL         string            `yaml:"redis_url"`
	AuditDatabaseURL string            `yaml:"audit_database_url"`
	OTELEnabled      bool              `yaml:"otel_enabled"`
	OTELEndpoint     string            `yaml:"otel_endpoint"`
	DebugMode        bool              `yaml:"debug"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		AIProvider:          "openai",
		ReasonerTimeout:     120 * time.Second,
		DraftTimeout:        300 * time.Second,
		DraftBatchSize:      10,
		ClassifyFallback:    "noise",
		ClassifyInterval:    30 * time.Second,
		ExecuteInterval:     30 * time.Second,
		DraftInterval:       5 * time.Minute,
		WatchdogInterval:    60 * time.Second,
		WatchdogWindow:      60 * time.Minute,
		WatchdogMaxRestarts: 5,
		WatchdogProcesses:   []string{"classifier", "executor", "drafter", "healthmon", "dropwatch"},
		PM2Binary:           "pm2",
		HealthInterval:      300 * time.Second,
		HealthSkipProcesses: []string{"watchdog"},
		HealthSyncMaxAge:    10 * time.Minute,
		DropSettle:          500 * time.Millisecond,
		NotifyRate:          "30-H",
		RabbitMQPrefetch:    10,
	}
}

// Load loads configuration from the optional YAML file and environment variables
func Load() (*Config, error) {
	return LoadVault("")
}

// LoadVault is Load with the vault root overridden when vaultPath is non-empty
func LoadVault(vaultPath string) (*Config, error) {
	cfg := Defaults()

	if path := getEnv("VAULT_CONFIG", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if vaultPath != "" {
		cfg.VaultPath = vaultPath
	}

	if cfg.VaultPath == "" {
		return nil, fmt.Errorf("VAULT_PATH is required")
	}
	if cfg.InboxPath == "" {
		cfg.InboxPath = filepath.Join(cfg.VaultPath, "Inbox")
	}
	if err := validation.Validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RequireReasoner fails when the daemon needs the Reasoner and no key is set
func (c *Config) RequireReasoner() error {
	if c.OpenAIKey == "" {
		return ErrMissingReasoner
	}
	return nil
}

// WebhookFor returns the webhook URL bound to an action kind, falling back to
// ACTION_WEBHOOK_URL
func (c *Config) WebhookFor(kind string) string {
	if url, ok := c.ActionWebhooks[kind]; ok && url != "" {
		return url
	}
	return c.ActionWebhookURL
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.VaultPath = getEnv("VAULT_PATH", c.VaultPath)
	c.InboxPath = getEnv("INBOX_PATH", c.InboxPath)

	c.AIProvider = getEnv("AI_PROVIDER", c.AIProvider)
	c.OpenAIKey = getEnv("OPENAI_API_KEY", c.OpenAIKey)
	c.AIModel = getEnv("OPENAI_MODEL", c.AIModel)
	c.AIBaseURL = getEnv("OPENAI_BASE_URL", c.AIBaseURL)

	c.ReasonerTimeout = getEnvDuration("REASONER_TIMEOUT", c.ReasonerTimeout)
	c.DraftTimeout = getEnvDuration("DRAFT_TIMEOUT", c.DraftTimeout)
	c.DraftBatchSize = getEnvInt("DRAFT_BATCH_SIZE", c.DraftBatchSize)
	c.ClassifyFallback = strings.ToLower(getEnv("CLASSIFY_FALLBACK", c.ClassifyFallback))

	c.ClassifyInterval = getEnvDuration("CLASSIFY_INTERVAL", c.ClassifyInterval)
	c.ExecuteInterval = getEnvDuration("EXECUTE_INTERVAL", c.ExecuteInterval)
	c.DraftInterval = getEnvDuration("DRAFT_INTERVAL", c.DraftInterval)

	c.WatchdogInterval = getEnvDuration("WATCHDOG_INTERVAL", c.WatchdogInterval)
	c.WatchdogWindow = getEnvDuration("WATCHDOG_WINDOW", c.WatchdogWindow)
	c.WatchdogMaxRestarts = getEnvInt("WATCHDOG_MAX_RESTARTS", c.WatchdogMaxRestarts)
	c.WatchdogProcesses = getEnvList("WATCHDOG_PROCESSES", c.WatchdogProcesses)
	c.PM2Binary = getEnv("PM2_BIN", c.PM2Binary)

	c.HealthInterval = getEnvDuration("HEALTH_INTERVAL", c.HealthInterval)
	c.HealthSkipProcesses = getEnvList("HEALTH_SKIP_PROCESSES", c.HealthSkipProcesses)
	c.HealthProbeURL = getEnv("HEALTH_PROBE_URL", c.HealthProbeURL)
	c.HealthSyncMaxAge = getEnvDuration("HEALTH_SYNC_MAX_AGE", c.HealthSyncMaxAge)
	c.HealthListenAddr = getEnv("HEALTH_LISTEN_ADDR", c.HealthListenAddr)
	c.HealthAllowedOrigins = getEnvList("HEALTH_ALLOWED_ORIGINS", c.HealthAllowedOrigins)

	c.ActionWebhookURL = getEnv("ACTION_WEBHOOK_URL", c.ActionWebhookURL)
	c.ActionWebhooks = webhookOverrides(c.ActionWebhooks)
	c.DropSettle = getEnvDuration("DROP_SETTLE", c.DropSettle)
	c.NotifyRate = getEnv("NOTIFY_RATE", c.NotifyRate)
	c.NotifyDesktop = getEnvBool("NOTIFY_DESKTOP", c.NotifyDesktop)
	c.RabbitMQURL = getEnv("RABBITMQ_URL", c.RabbitMQURL)
	c.RabbitMQPrefetch = getEnvInt("RABBITMQ_PREFETCH", c.RabbitMQPrefetch)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.AuditDatabaseURL = getEnv("AUDIT_DATABASE_URL", c.AuditDatabaseURL)
	c.OTELEnabled = getEnvBool("OTEL_ENABLED", c.OTELEnabled)
	c.OTELEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTELEndpoint)
	c.DebugMode = getEnvBool("DEBUG", c.DebugMode)
}

// webhookOverrides collects ACTION_WEBHOOK_<KIND> variables on top of base
func webhookOverrides(base map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	const prefix = "ACTION_WEBHOOK_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, prefix) || key == "ACTION_WEBHOOK_URL" {
			continue
		}
		out[strings.ToLower(strings.TrimPrefix(key, prefix))] = value
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
