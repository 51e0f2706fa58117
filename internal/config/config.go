package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Log       LogConfig                 `mapstructure:"log"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Chat      ChatConfig                `mapstructure:"chat"`
	Files     FilesConfig               `mapstructure:"files"`
	Stream    StreamConfig              `mapstructure:"stream"`
	Tools     ToolsConfig               `mapstructure:"tools"`
	Memory    MemoryConfig              `mapstructure:"memory"`
	Worker    WorkerConfig              `mapstructure:"worker"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

// DatabaseConfig selects the SQL driver. sqlite3 uses DSN directly, mysql builds
// its DSN from the discrete fields unless DSN is set.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

// RedisConfig is optional. An empty URL and Host leave redis disabled.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Host != ""
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	BearerTTL  time.Duration `mapstructure:"bearer_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// ModelConfig maps a client-facing model id (e.g. "chat-model") onto a provider.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

type ChatConfig struct {
	DefaultModel          string        `mapstructure:"default_model"`
	TitleModel            string        `mapstructure:"title_model"`
	ArtifactModel         string        `mapstructure:"artifact_model"`
	MaxSteps              int           `mapstructure:"max_steps"`
	GuestMessagesPerDay   int           `mapstructure:"guest_messages_per_day"`
	RegularMessagesPerDay int           `mapstructure:"regular_messages_per_day"`
	TitleWait             time.Duration `mapstructure:"title_wait"`
	SmoothDelay           time.Duration `mapstructure:"smooth_delay"`
	TurnTimeout           time.Duration `mapstructure:"turn_timeout"`
	ThinkingBudget        int           `mapstructure:"thinking_budget"`
}

type FilesConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	PublicURL      string `mapstructure:"public_url"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type StreamConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	CleanInterval time.Duration `mapstructure:"clean_interval"`
}

type ToolsConfig struct {
	GoogleAPIKey         string `mapstructure:"google_api_key"`
	GoogleSearchEngineID string `mapstructure:"google_search_engine_id"`
	WeatherBaseURL       string `mapstructure:"weather_base_url"`
	ImageModel           string `mapstructure:"image_model"`
	ImagesPerMinute      int    `mapstructure:"images_per_minute"`
	SearchesPerMinute    int    `mapstructure:"searches_per_minute"`
}

type MemoryConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type WorkerConfig struct {
	MinWorkers  int           `mapstructure:"min_workers"`
	MaxWorkers  int           `mapstructure:"max_workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error: defaults and environment variables apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("CHATBFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "sqlite", "sqlite3":
		cfg.Database.Driver = "sqlite3"
		if cfg.Database.DSN == "" {
			return nil, errors.New("database.dsn must be configured for sqlite3")
		}
		if !isMemoryDSN(cfg.Database.DSN) && !filepath.IsAbs(cfg.Database.DSN) && !strings.HasPrefix(cfg.Database.DSN, "file:") {
			cfg.Database.DSN = filepath.Join(baseDir, cfg.Database.DSN)
		}
	case "mysql":
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}

	if !filepath.IsAbs(cfg.Files.BaseDir) {
		cfg.Files.BaseDir = filepath.Join(baseDir, cfg.Files.BaseDir)
	}
	cfg.Files.PublicURL = strings.TrimRight(cfg.Files.PublicURL, "/")

	return &cfg, nil
}

// ModelFor resolves a client-facing model id. Unknown ids fall back to the
// default chat model entry.
func (c *Config) ModelFor(id string) (ModelConfig, bool) {
	if m, ok := c.Models[id]; ok {
		return m, true
	}
	m, ok := c.Models[c.Chat.DefaultModel]
	return m, ok
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("redis.url", "REDIS_URL", "CHATBFF_REDIS_URL")
	_ = v.BindEnv("auth.secret", "AUTH_SECRET", "CHATBFF_AUTH_SECRET")
	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("providers.claude.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("providers.gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("tools.google_api_key", "GOOGLE_API_KEY")
	_ = v.BindEnv("tools.google_search_engine_id", "GOOGLE_SEARCH_ENGINE_ID")
	_ = v.BindEnv("memory.api_key", "SUPERMEMORY_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "data/chatbff.db")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.params", "parseTime=true&charset=utf8mb4&loc=UTC")

	v.SetDefault("redis.port", 6379)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.session_ttl", 30*24*time.Hour)
	v.SetDefault("auth.bearer_ttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("models", map[string]any{
		"chat-model":           map[string]any{"provider": "openai", "model": "gpt-4o-mini"},
		"chat-model-reasoning": map[string]any{"provider": "claude", "model": "claude-3-7-sonnet-latest"},
		"title-model":          map[string]any{"provider": "openai", "model": "gpt-4o-mini"},
		"artifact-model":       map[string]any{"provider": "openai", "model": "gpt-4o-mini"},
	})

	v.SetDefault("chat.default_model", "chat-model")
	v.SetDefault("chat.title_model", "title-model")
	v.SetDefault("chat.artifact_model", "artifact-model")
	v.SetDefault("chat.max_steps", 5)
	v.SetDefault("chat.guest_messages_per_day", 20)
	v.SetDefault("chat.regular_messages_per_day", 100)
	v.SetDefault("chat.title_wait", 15*time.Second)
	v.SetDefault("chat.smooth_delay", 10*time.Millisecond)
	v.SetDefault("chat.turn_timeout", 2*time.Minute)
	v.SetDefault("chat.thinking_budget", 10000)

	v.SetDefault("files.base_dir", "data/blobs")
	v.SetDefault("files.public_url", "http://localhost:8090/blobs")
	v.SetDefault("files.max_upload_bytes", 10<<20)

	v.SetDefault("stream.retention", 24*time.Hour)
	v.SetDefault("stream.clean_interval", time.Hour)

	v.SetDefault("tools.weather_base_url", "https://api.open-meteo.com")
	v.SetDefault("tools.image_model", "dall-e-3")
	v.SetDefault("tools.images_per_minute", 5)
	v.SetDefault("tools.searches_per_minute", 20)

	v.SetDefault("memory.base_url", "https://api.supermemory.ai")

	v.SetDefault("worker.min_workers", 2)
	v.SetDefault("worker.max_workers", 16)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.idle_timeout", 30*time.Second)
}
