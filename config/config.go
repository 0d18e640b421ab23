package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
	StorageSQL    = "sql"
)

type Telegram struct {
	BotToken          string   `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	WebhookSecret     string   `yaml:"webhook_secret" env:"TELEGRAM_WEBHOOK_SECRET"`
	TrustedNetworks   []string `yaml:"trusted_networks" env:"TELEGRAM_TRUSTED_NETWORKS" env-separator:"," env-default:"149.154.160.0/20,91.108.4.0/22"`
	UsernameWhitelist []string `yaml:"username_whitelist" env:"TELEGRAM_USERNAME_WHITELIST" env-separator:" "`
	EnforceWhitelist  bool     `yaml:"enforce_whitelist" env:"TELEGRAM_ENFORCE_WHITELIST" env-default:"false"`
}

type OpenAI struct {
	APIKey           string        `yaml:"api_key" env:"OPENAI_API_KEY" env-required:"true"`
	BaseURL          string        `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	ChatModel        string        `yaml:"chat_model" env:"CHATGPT_MODEL" env-default:"gpt-4o-mini"`
	ImageModel       string        `yaml:"image_model" env:"IMAGE_MODEL" env-default:"dall-e-2"`
	Behavior         string        `yaml:"behavior" env:"CHATGPT_BEHAVIOR"`
	MaxContextTokens int           `yaml:"max_context_tokens" env:"OPENAI_MAX_CONTEXT_TOKENS" env-default:"0"`
	ImageTimeout     time.Duration `yaml:"image_timeout" env:"OPENAI_IMAGE_TIMEOUT" env-default:"10s"`
}

type Conversation struct {
	// Window is the number of user/assistant message pairs kept per chat.
	// Zero disables persistence.
	Window int `yaml:"window" env:"CONTEXT" env-default:"0"`
}

type Redis struct {
	Addr       string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password   string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB         int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	ContextTTL time.Duration `yaml:"context_ttl" env:"REDIS_CONTEXT_TTL" env-default:"0s"`
}

type Mongo struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"relay"`
}

type SQL struct {
	Driver string `yaml:"driver" env:"SQL_DRIVER" env-default:"sqlite3"`
	DSN    string `yaml:"dsn" env:"SQL_DSN" env-default:"relay.db"`
}

type Storage struct {
	Backend string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"none"`
	Redis   Redis  `yaml:"redis"`
	Mongo   Mongo  `yaml:"mongo"`
	SQL     SQL    `yaml:"sql"`
}

type HTTP struct {
	Addr              string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers" env:"HTTP_TRUST_PROXY_HEADERS" env-default:"false"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

type Config struct {
	Telegram     Telegram     `yaml:"telegram"`
	OpenAI       OpenAI       `yaml:"openai"`
	Conversation Conversation `yaml:"conversation"`
	Storage      Storage      `yaml:"storage"`
	HTTP         HTTP         `yaml:"http"`
	Log          Log          `yaml:"log"`
}

// LoadConfig reads cfgPath when given and then the environment, which takes
// precedence over the file.
func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageNone, StorageMemory, StorageRedis, StorageMongo, StorageSQL:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Conversation.Window < 0 {
		return fmt.Errorf("CONTEXT must not be negative, got %d", c.Conversation.Window)
	}
	if c.OpenAI.MaxContextTokens < 0 {
		return fmt.Errorf("OPENAI_MAX_CONTEXT_TOKENS must not be negative, got %d", c.OpenAI.MaxContextTokens)
	}
	return nil
}

// Usage describes every environment variable, for --help output.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
