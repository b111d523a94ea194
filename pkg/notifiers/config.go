package notifiers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// Supported notifier types.
	TypeDiscord  = "discord_webhook"
	TypeTelegram = "telegram_bot"
	TypeHTTP     = "http"
	TypeSQS      = "sqs"
	TypeSNS      = "sns"
	TypePubSub   = "gcp_pubsub"

	httpDefaultMethod     = "POST"
	defaultTimeoutSeconds = 10
	telegramDefaultAPI    = "https://api.telegram.org"
)

// configFile represents the structure of the notifiers configuration file.
type configFile struct {
	Notifiers []NotifierConfig `json:"notifiers" yaml:"notifiers"`
}

// NotifierConfig represents a single notifier entry declared in config files.
// Credential fields accept ${ENV_VAR} references, expanded at load time.
type NotifierConfig struct {
	ID             string                `json:"id" yaml:"id"`
	Type           string                `json:"type" yaml:"type"`
	Enabled        *bool                 `json:"enabled" yaml:"enabled"`
	TimeoutSeconds int                   `json:"timeout_seconds" yaml:"timeout_seconds"`
	Discord        *DiscordConfig        `json:"discord" yaml:"discord"`
	Telegram       *TelegramConfig       `json:"telegram" yaml:"telegram"`
	HTTP           *HTTPNotifierConfig   `json:"http" yaml:"http"`
	SQS            *SQSNotifierConfig    `json:"sqs" yaml:"sqs"`
	SNS            *SNSNotifierConfig    `json:"sns" yaml:"sns"`
	PubSub         *PubSubNotifierConfig `json:"gcp_pubsub" yaml:"gcp_pubsub"`
}

// DiscordConfig holds the webhook credential.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Username   string `json:"username" yaml:"username"`
}

// TelegramConfig holds bot credentials and the target chat.
type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	APIBase  string `json:"api_base" yaml:"api_base"`
}

// HTTPNotifierConfig holds generic HTTP sink settings.
type HTTPNotifierConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method" yaml:"method"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// AWSConfig holds the region and optional static credentials shared by SQS and SNS.
type AWSConfig struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// SQSNotifierConfig holds AWS SQS specific settings.
type SQSNotifierConfig struct {
	AWSConfig `yaml:",inline"`
	QueueURL  string `json:"uri" yaml:"uri"`
}

// SNSNotifierConfig holds AWS SNS specific settings.
type SNSNotifierConfig struct {
	AWSConfig `yaml:",inline"`
	TopicARN  string `json:"topic_arn" yaml:"topic_arn"`
}

// PubSubNotifierConfig holds Google Cloud Pub/Sub settings.
type PubSubNotifierConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// ConfigRegistry materializes notifier definitions loaded from config files.
type ConfigRegistry struct {
	mu        sync.RWMutex
	notifiers []NotifierConfig
	idx       map[string]NotifierConfig
}

// LoadRegistry loads the notifier registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("notifiers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notifiers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read notifiers file: %w", err)
	}

	fileReg, err := parseNotifierRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Notifiers) == 0 {
		return nil, errors.New("notifiers file contains no notifiers entries")
	}

	return NewConfigRegistry(fileReg.Notifiers)
}

// NewConfigRegistry sanitizes and validates cfgs.
func NewConfigRegistry(cfgs []NotifierConfig) (*ConfigRegistry, error) {
	reg := &ConfigRegistry{
		notifiers: make([]NotifierConfig, len(cfgs)),
		idx:       make(map[string]NotifierConfig, len(cfgs)),
	}

	for i := range cfgs {
		cfg := sanitizeNotifierConfig(cfgs[i])
		if err := validateNotifierConfig(cfg); err != nil {
			return nil, fmt.Errorf("notifiers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate notifier id %q", cfg.ID)
		}
		reg.notifiers[i] = cfg
		reg.idx[cfg.ID] = cfg
	}

	return reg, nil
}

// parseNotifierRegistry attempts to decode the notifiers file content.
func parseNotifierRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalNotifierRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return configFile{}, errors.New("notifiers file format not recognized (expected YAML or JSON)")
}

func unmarshalNotifierRegistry(name string, data []byte, fn func([]byte, any) error) (configFile, error) {
	var reg configFile
	if err := fn(data, &reg); err != nil {
		return configFile{}, fmt.Errorf("decode %s notifiers: %w", name, err)
	}
	return reg, nil
}

// expand trims s and resolves ${VAR} references from the environment.
func expand(s string) string {
	return strings.TrimSpace(os.ExpandEnv(strings.TrimSpace(s)))
}

func sanitizeAWS(c AWSConfig) AWSConfig {
	c.Region = expand(c.Region)
	c.AccessKeyID = expand(c.AccessKeyID)
	c.SecretAccessKey = expand(c.SecretAccessKey)
	c.SessionToken = expand(c.SessionToken)
	c.Endpoint = expand(c.Endpoint)
	return c
}

// sanitizeNotifierConfig trims and normalizes the notifier config fields.
func sanitizeNotifierConfig(cfg NotifierConfig) NotifierConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))

	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.Discord != nil {
		c := *cfg.Discord
		c.WebhookURL = expand(c.WebhookURL)
		c.Username = strings.TrimSpace(c.Username)
		cfg.Discord = &c
	}
	if cfg.Telegram != nil {
		c := *cfg.Telegram
		c.BotToken = expand(c.BotToken)
		c.ChatID = expand(c.ChatID)
		c.APIBase = strings.TrimRight(expand(c.APIBase), "/")
		if c.APIBase == "" {
			c.APIBase = telegramDefaultAPI
		}
		cfg.Telegram = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = expand(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		cfg.HTTP = &c
	}
	if cfg.SQS != nil {
		c := *cfg.SQS
		c.AWSConfig = sanitizeAWS(c.AWSConfig)
		c.QueueURL = expand(c.QueueURL)
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		c.AWSConfig = sanitizeAWS(c.AWSConfig)
		c.TopicARN = expand(c.TopicARN)
		cfg.SNS = &c
	}
	if cfg.PubSub != nil {
		c := *cfg.PubSub
		c.ProjectID = expand(c.ProjectID)
		c.Topic = expand(c.Topic)
		c.CredentialsFile = expand(c.CredentialsFile)
		c.Endpoint = expand(c.Endpoint)
		cfg.PubSub = &c
	}

	return cfg
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := expand(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validateNotifierConfig checks that required fields and credentials are present.
func validateNotifierConfig(cfg NotifierConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for notifier %q", cfg.ID)
	}
	if !cfg.EnabledValue() {
		return nil
	}

	switch cfg.Type {
	case TypeDiscord:
		if cfg.Discord == nil || cfg.Discord.WebhookURL == "" {
			return fmt.Errorf("discord.webhook_url is required for notifier %q", cfg.ID)
		}
	case TypeTelegram:
		if cfg.Telegram == nil || cfg.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required for notifier %q", cfg.ID)
		}
		if cfg.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required for notifier %q", cfg.ID)
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("http config required for notifier %q", cfg.ID)
		}
		if cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for notifier %q", cfg.ID)
		}
	case TypeSQS:
		if cfg.SQS == nil {
			return fmt.Errorf("sqs config required for notifier %q", cfg.ID)
		}
		if cfg.SQS.QueueURL == "" {
			return fmt.Errorf("sqs.uri is required for notifier %q", cfg.ID)
		}
		if cfg.SQS.Region == "" {
			return fmt.Errorf("sqs.region is required for notifier %q", cfg.ID)
		}
	case TypeSNS:
		if cfg.SNS == nil {
			return fmt.Errorf("sns config required for notifier %q", cfg.ID)
		}
		if cfg.SNS.TopicARN == "" {
			return fmt.Errorf("sns.topic_arn is required for notifier %q", cfg.ID)
		}
		if cfg.SNS.Region == "" {
			return fmt.Errorf("sns.region is required for notifier %q", cfg.ID)
		}
	case TypePubSub:
		if cfg.PubSub == nil {
			return fmt.Errorf("gcp_pubsub config required for notifier %q", cfg.ID)
		}
		if cfg.PubSub.ProjectID == "" || cfg.PubSub.Topic == "" {
			return fmt.Errorf("gcp_pubsub.project_id and gcp_pubsub.topic are required for notifier %q", cfg.ID)
		}
	default:
		return fmt.Errorf("unsupported type %q for notifier %q", cfg.Type, cfg.ID)
	}
	return nil
}

// ByID returns the notifier config by id.
func (r *ConfigRegistry) ByID(id string) (NotifierConfig, bool) {
	if r == nil {
		return NotifierConfig{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return NotifierConfig{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured notifiers.
func (r *ConfigRegistry) All() []NotifierConfig {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NotifierConfig, len(r.notifiers))
	copy(out, r.notifiers)
	return out
}

// Enabled returns notifiers that are enabled.
func (r *ConfigRegistry) Enabled() []NotifierConfig {
	if r == nil {
		return nil
	}

	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]NotifierConfig, 0, len(all))
	for _, cfg := range all {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg NotifierConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}
