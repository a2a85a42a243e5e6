package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Unlocker  UnlockerConfig  `mapstructure:"unlocker"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Convert   ConvertConfig   `mapstructure:"convert"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"` // default: "0.0.0.0"
	Port int    `mapstructure:"port"` // default: 5000
	Mode string `mapstructure:"mode"` // "debug", "release", "test"; default: "release"

	// MaxUploadBytes caps multipart uploads (word-to-pdf).
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"` // default: 50 MiB
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `mapstructure:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `mapstructure:"max_pages"` // default: 4

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `mapstructure:"no_sandbox"`

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `mapstructure:"browser_bin"`

	// UserAgent is the fixed desktop user agent used when rotation is off.
	UserAgent string `mapstructure:"user_agent"`

	// SaveSession persists cookies/storage per origin between runs.
	SaveSession bool `mapstructure:"save_session"` // default: true

	// SaveHAR writes a HAR sidecar for every browser capture.
	SaveHAR bool `mapstructure:"save_har"` // default: true

	// BlockAds aborts requests to known ad/tracker domains.
	BlockAds bool `mapstructure:"block_ads"` // default: true
}

// ScraperConfig controls the extraction pipeline.
type ScraperConfig struct {
	// Keywords is the relevance gate for harvested JSON and tables.
	Keywords []string `mapstructure:"keywords"`

	// TechniqueTimeout bounds a single technique (navigation, probe round).
	TechniqueTimeout time.Duration `mapstructure:"technique_timeout"` // default: 60s

	// NavigationTimeout is the max wait for network idle after navigation.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"` // default: 40s

	// SettleDelay is the pause after load so late scripts can run.
	SettleDelay time.Duration `mapstructure:"settle_delay"` // default: 3s

	// RequestTimeout bounds each plain HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // default: 15s

	// Retries is the retry budget of plug-in detail/listing fetches.
	Retries int `mapstructure:"retries"` // default: 3

	// Workers caps the worker pool used for listings.
	Workers int `mapstructure:"workers"` // default: 5
}

// ProxyConfig controls proxy and user-agent rotation.
type ProxyConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// ListFile holds one proxy URL per line; '#' starts a comment.
	ListFile string `mapstructure:"list_file"` // default: "config/proxies.txt"

	// RotateEvery switches to the next proxy after this many uses.
	RotateEvery int `mapstructure:"rotate_every"` // default: 10

	// RotateUserAgent picks a user agent per request from UserAgentFile.
	RotateUserAgent bool   `mapstructure:"rotate_user_agent"` // default: true
	UserAgentFile   string `mapstructure:"user_agent_file"`   // default: "config/user_agents.txt"
}

// LLMConfig controls the LLM structuring fallback.
type LLMConfig struct {
	Enabled bool   `mapstructure:"enabled"` // default: true
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"` // default: OpenRouter
	Model   string `mapstructure:"model"`

	// Timeout bounds one completion call.
	Timeout time.Duration `mapstructure:"timeout"` // default: 45s

	// MaxChars is the visible-text budget sent to the model.
	MaxChars int `mapstructure:"max_chars"` // default: 15000

	// MinChars skips pages with too little text to structure.
	MinChars int `mapstructure:"min_chars"` // default: 100

	// InputFormat is "text" or "markdown".
	InputFormat string `mapstructure:"input_format"` // default: "text"

	// ContentSelector narrows the page to matching elements before the
	// text is built. Empty sends the whole page.
	ContentSelector string `mapstructure:"content_selector"`

	// ExcludeSelectors are removed from the page first.
	ExcludeSelectors []string `mapstructure:"exclude_selectors"` // default: nav, footer, aside

	// RequestsPerMinute paces calls to the provider's free tier.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // default: 10
}

// UnlockerConfig controls the external web unlocker and CAPTCHA solver.
type UnlockerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"` // default: 60s

	CaptchaAPIKey string `mapstructure:"captcha_api_key"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `mapstructure:"enabled"` // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string `mapstructure:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `mapstructure:"burst"` // default: 10
}

// CacheConfig controls the latest-dataset cache.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`         // default: 5m
	MaxEntries int           `mapstructure:"max_entries"` // default: 256

	// RedisURL switches the cache to a shared redis backend when set.
	RedisURL string `mapstructure:"redis_url"`
}

// StoreConfig controls where artifacts are written.
type StoreConfig struct {
	ResultDir  string `mapstructure:"result_dir"`  // default: "hasil_scrape"
	SessionDir string `mapstructure:"session_dir"` // default: "sessions"
	HARDir     string `mapstructure:"har_dir"`     // default: "har"
	ExportDir  string `mapstructure:"export_dir"`  // default: "api/data"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // default: "info"
	Format string `mapstructure:"format"` // "json" or "text"; default: "text"
	Dir    string `mapstructure:"dir"`    // default: "logs"
	File   string `mapstructure:"file"`   // default: "scrape.log"

	MaxSizeMB  int  `mapstructure:"max_size_mb"` // default: 10
	MaxBackups int  `mapstructure:"max_backups"` // default: 3
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// WebhookConfig controls refresh completion notifications.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// ConvertConfig controls the word-to-pdf converter.
type ConvertConfig struct {
	// Binary is the LibreOffice executable.
	Binary    string        `mapstructure:"binary"` // default: "soffice"
	OutputDir string        `mapstructure:"output_dir"`
	Timeout   time.Duration `mapstructure:"timeout"` // default: 2m
}

// DefaultKeywords is the relevance keyword list used when none is configured.
var DefaultKeywords = []string{
	"harga", "price", "emas", "gold", "saham", "stock", "data", "nilai",
	"items", "list", "crypto", "coin", "btc", "bitcoin", "volume", "marketcap",
}

// Load reads configuration from an optional YAML file and STRATA_* env vars
// on top of the defaults. An empty path searches ./config.yaml and
// ./configs/config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// Default returns the configuration produced by defaults and env alone.
func Default() *Config {
	cfg, err := load("", false)
	if err != nil {
		panic(err)
	}
	return cfg
}

func load(path string, readFile bool) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".strata"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if readFile {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Scraper.Keywords = splitList(cfg.Scraper.Keywords)
	cfg.Auth.APIKeys = splitList(cfg.Auth.APIKeys)
	cfg.LLM.ExcludeSelectors = splitList(cfg.LLM.ExcludeSelectors)
	if len(cfg.Scraper.Keywords) == 0 {
		cfg.Scraper.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if cfg.Convert.OutputDir == "" {
		cfg.Convert.OutputDir = filepath.Join(cfg.Store.ResultDir, "pdf_output")
	}
	return &cfg, nil
}

// EnsureDirs creates every output directory the process writes into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Store.ResultDir, c.Store.SessionDir, c.Store.HARDir, c.Log.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_bytes", 50<<20)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_pages", 4)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.browser_bin", "")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.save_session", true)
	v.SetDefault("browser.save_har", true)
	v.SetDefault("browser.block_ads", true)

	v.SetDefault("scraper.keywords", DefaultKeywords)
	v.SetDefault("scraper.technique_timeout", 60*time.Second)
	v.SetDefault("scraper.navigation_timeout", 40*time.Second)
	v.SetDefault("scraper.settle_delay", 3*time.Second)
	v.SetDefault("scraper.request_timeout", 15*time.Second)
	v.SetDefault("scraper.retries", 3)
	v.SetDefault("scraper.workers", 5)

	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.list_file", "config/proxies.txt")
	v.SetDefault("proxy.rotate_every", 10)
	v.SetDefault("proxy.rotate_user_agent", true)
	v.SetDefault("proxy.user_agent_file", "config/user_agents.txt")

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "meta-llama/llama-3.3-70b-instruct:free")
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.max_chars", 15000)
	v.SetDefault("llm.min_chars", 100)
	v.SetDefault("llm.input_format", "text")
	v.SetDefault("llm.content_selector", "")
	v.SetDefault("llm.exclude_selectors", []string{"nav", "footer", "aside"})
	v.SetDefault("llm.requests_per_minute", 10.0)

	v.SetDefault("unlocker.enabled", false)
	v.SetDefault("unlocker.api_key", "")
	v.SetDefault("unlocker.endpoint", "")
	v.SetDefault("unlocker.timeout", 60*time.Second)
	v.SetDefault("unlocker.captcha_api_key", "")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.redis_url", "")

	v.SetDefault("store.result_dir", "hasil_scrape")
	v.SetDefault("store.session_dir", "sessions")
	v.SetDefault("store.har_dir", "har")
	v.SetDefault("store.export_dir", filepath.Join("api", "data"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.file", "scrape.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")

	v.SetDefault("convert.binary", "soffice")
	v.SetDefault("convert.output_dir", "")
	v.SetDefault("convert.timeout", 2*time.Minute)
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
