package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL       = "https://wiki.warthunder.com"
	defaultKeyPrefix     = "wt_cost_v1:"
	defaultRequestDelay  = 500 * time.Millisecond
	defaultReadyInterval = 200 * time.Millisecond
	defaultDebounce      = 300 * time.Millisecond
	defaultWatchInterval = 5 * time.Second

	configPathEnv = "TECHTREECOST_CONFIG"
	cacheDSNEnv   = "TECHTREECOST_CACHE_DSN"
	baseURLEnv    = "TECHTREECOST_BASE_URL"
	logLevelEnv   = "TECHTREECOST_LOG_LEVEL"

	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Wiki      WikiConfig      `yaml:"wiki"`
	Render    RenderConfig    `yaml:"render"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Source    SourceConfig    `yaml:"source"`
	Browser   BrowserConfig   `yaml:"browser"`
	Server    ServerConfig    `yaml:"server"`
	Output    OutputConfig    `yaml:"output"`

	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CacheConfig describes where unit costs are persisted.
type CacheConfig struct {
	DSN       string `yaml:"dsn"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// WikiConfig describes the remote wiki and how politely to query it.
type WikiConfig struct {
	BaseURL      string        `yaml:"baseUrl"`
	UserAgent    string        `yaml:"userAgent"`
	RequestDelay time.Duration `yaml:"requestDelay"`
	Timeout      time.Duration `yaml:"timeout"`
}

// RenderConfig toggles optional page annotations.
type RenderConfig struct {
	ShowTotal *bool `yaml:"showTotal"`
}

// TotalEnabled reports whether the sum over all ranks is rendered (default true).
func (r RenderConfig) TotalEnabled() bool {
	return r.ShowTotal == nil || *r.ShowTotal
}

// BootstrapConfig controls readiness polling and change detection in watch mode.
type BootstrapConfig struct {
	ReadyInterval time.Duration `yaml:"readyInterval"`
	Debounce      time.Duration `yaml:"debounce"`
	WatchInterval time.Duration `yaml:"watchInterval"`
}

// SourceConfig names the page source kind and where it reads from.
type SourceConfig struct {
	Kind     string `yaml:"kind"`
	Location string `yaml:"location"`
}

// BrowserConfig controls the headless Chrome source.
type BrowserConfig struct {
	RemoteURL   string        `yaml:"remoteUrl"`
	Headless    *bool         `yaml:"headless"`
	Stealth     bool          `yaml:"stealth"`
	LoadTimeout time.Duration `yaml:"loadTimeout"`
}

// IsHeadless reports whether Chrome runs without a window (default true).
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// ServerConfig describes the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig names the file receiving the annotated page; empty means stdout.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// Load reads YAML configuration from the env-provided path (if any) and applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile reads YAML configuration from path (if not empty) and applies environment overrides.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(cacheDSNEnv); v != "" {
		c.Cache.DSN = v
	}

	if v := os.Getenv(baseURLEnv); v != "" {
		c.Wiki.BaseURL = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Cache.DSN != "" {
		base.Cache.DSN = override.Cache.DSN
	}
	if override.Cache.KeyPrefix != "" {
		base.Cache.KeyPrefix = override.Cache.KeyPrefix
	}

	if override.Wiki.BaseURL != "" {
		base.Wiki.BaseURL = override.Wiki.BaseURL
	}
	if override.Wiki.UserAgent != "" {
		base.Wiki.UserAgent = override.Wiki.UserAgent
	}
	if override.Wiki.RequestDelay > 0 {
		base.Wiki.RequestDelay = override.Wiki.RequestDelay
	}
	if override.Wiki.Timeout > 0 {
		base.Wiki.Timeout = override.Wiki.Timeout
	}

	if override.Render.ShowTotal != nil {
		base.Render.ShowTotal = override.Render.ShowTotal
	}

	if override.Bootstrap.ReadyInterval > 0 {
		base.Bootstrap.ReadyInterval = override.Bootstrap.ReadyInterval
	}
	if override.Bootstrap.Debounce > 0 {
		base.Bootstrap.Debounce = override.Bootstrap.Debounce
	}
	if override.Bootstrap.WatchInterval > 0 {
		base.Bootstrap.WatchInterval = override.Bootstrap.WatchInterval
	}

	if override.Source.Kind != "" {
		base.Source.Kind = override.Source.Kind
	}
	if override.Source.Location != "" {
		base.Source.Location = override.Source.Location
	}

	if override.Browser.RemoteURL != "" {
		base.Browser.RemoteURL = override.Browser.RemoteURL
	}
	if override.Browser.Headless != nil {
		base.Browser.Headless = override.Browser.Headless
	}
	if override.Browser.Stealth {
		base.Browser.Stealth = true
	}
	if override.Browser.LoadTimeout > 0 {
		base.Browser.LoadTimeout = override.Browser.LoadTimeout
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Output.Path != "" {
		base.Output.Path = override.Output.Path
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.APIBase != "" {
		base.Notifications.Telegram.APIBase = override.Notifications.Telegram.APIBase
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Cache:   CacheConfig{DSN: "techtreecost.db", KeyPrefix: defaultKeyPrefix},
		Wiki: WikiConfig{
			BaseURL:      defaultBaseURL,
			UserAgent:    "TechTreeCost/1.0",
			RequestDelay: defaultRequestDelay,
			Timeout:      20 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			ReadyInterval: defaultReadyInterval,
			Debounce:      defaultDebounce,
			WatchInterval: defaultWatchInterval,
		},
		Source:  SourceConfig{Kind: "http", Location: defaultBaseURL + "/ground"},
		Browser: BrowserConfig{LoadTimeout: 30 * time.Second},
		Server:  ServerConfig{Addr: ":8080"},
	}
}
