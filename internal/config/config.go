package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Fetch modes accepted in a feed's modes list.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeFeed    = "feed"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Browser  BrowserConfig  `yaml:"browser"`
	Events   FeedConfig     `yaml:"events"`
	Bounties FeedConfig     `yaml:"bounties"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Timezone string         `yaml:"timezone"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite | postgres
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type BrowserConfig struct {
	Disabled          bool          `yaml:"disabled"`
	ExecPath          string        `yaml:"exec_path"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	NavigationRetries *int          `yaml:"navigation_retries"`
	SettleTimeout     time.Duration `yaml:"settle_timeout"`
	MinTextLength     int           `yaml:"min_text_length"`
}

type FeedConfig struct {
	Label  string `yaml:"label"`
	URL    string `yaml:"url"`
	Anchor string `yaml:"anchor"`
	// Currency is the reward marker following the amount (bounties only).
	Currency           string        `yaml:"currency"`
	Modes              []string      `yaml:"modes"`
	FeedURL            string        `yaml:"feed_url"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	Limit              int           `yaml:"limit"`
	DetailLinkPatterns []string      `yaml:"detail_link_patterns"`
	Locations          []string      `yaml:"locations"`
	DefaultLocation    string        `yaml:"default_location"`
}

type NotifyConfig struct {
	BotToken       string  `yaml:"bot_token"`
	APIURL         string  `yaml:"api_url"`
	ChatIDs        []int64 `yaml:"chat_ids"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	AnnounceEvents bool    `yaml:"announce_events"`
}

// Enabled reports whether broadcasts can be sent at all.
func (n NotifyConfig) Enabled() bool {
	return n.BotToken != "" && len(n.ChatIDs) > 0
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults and environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FEEDWATCH_BOT_TOKEN"); v != "" {
		c.Notify.BotToken = v
	}
	if v := os.Getenv("FEEDWATCH_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("FEEDWATCH_BOUNTIES_URL"); v != "" {
		c.Bounties.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "~/.local/share/feedwatch/feedwatch.db"
	}
	c.Database.Path = expandPath(c.Database.Path)
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 2
	}

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 15 * time.Second
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}

	if c.Browser.NavigationTimeout == 0 {
		c.Browser.NavigationTimeout = 120 * time.Second
	}
	if c.Browser.NavigationRetries == nil {
		retries := 1
		c.Browser.NavigationRetries = &retries
	}
	if c.Browser.SettleTimeout == 0 {
		c.Browser.SettleTimeout = 30 * time.Second
	}
	if c.Browser.MinTextLength == 0 {
		c.Browser.MinTextLength = 1000
	}

	defaultFeed(&c.Events, FeedConfig{
		Label:           "Luma Calendar",
		URL:             "https://luma.com/SuperteamIE",
		RefreshInterval: 12 * time.Hour,
		Limit:           5,
		DetailLinkPatterns: []string{
			`/events?/`,
			`luma\.com/[^/]+/[^/]+`,
			`lu\.ma/[^/?#]+`,
		},
		Locations:       []string{"Dublin", "Online", "Virtual", "Remote", "Dogpatch Labs", "Dogpatch", "The Foundry"},
		DefaultLocation: "Dublin, Ireland",
	})
	defaultFeed(&c.Bounties, FeedConfig{
		Label:              "Superteam Earn",
		URL:                "https://earn.superteam.fun/search?q=ireland",
		Anchor:             "Superteam Ireland",
		Currency:           "USDC",
		RefreshInterval:    6 * time.Hour,
		DetailLinkPatterns: []string{`/listings?/`},
	})

	if c.Notify.APIURL == "" {
		c.Notify.APIURL = "https://api.telegram.org"
	}
	if c.Notify.RatePerSecond == 0 {
		c.Notify.RatePerSecond = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Dublin"
	}
}

func defaultFeed(f *FeedConfig, d FeedConfig) {
	if f.Label == "" {
		f.Label = d.Label
	}
	if f.URL == "" {
		f.URL = d.URL
	}
	if f.Anchor == "" {
		f.Anchor = d.Anchor
	}
	if f.Currency == "" {
		f.Currency = d.Currency
	}
	if len(f.Modes) == 0 {
		f.Modes = []string{ModeHTTP, ModeBrowser}
	}
	if f.RefreshInterval == 0 {
		f.RefreshInterval = d.RefreshInterval
	}
	if f.Limit == 0 {
		f.Limit = d.Limit
	}
	if len(f.DetailLinkPatterns) == 0 {
		f.DetailLinkPatterns = d.DetailLinkPatterns
	}
	if len(f.Locations) == 0 {
		f.Locations = d.Locations
	}
	if f.DefaultLocation == "" {
		f.DefaultLocation = d.DefaultLocation
	}
}

// Validate reports configuration that cannot be started with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if r := c.Browser.NavigationRetries; r != nil && *r < 0 {
		errs = append(errs, fmt.Errorf("browser.navigation_retries must not be negative, got %d", *r))
	}
	for name, f := range map[string]FeedConfig{"events": c.Events, "bounties": c.Bounties} {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", name))
		}
		for _, m := range f.Modes {
			switch m {
			case ModeHTTP, ModeBrowser:
			case ModeFeed:
				if f.FeedURL == "" {
					errs = append(errs, fmt.Errorf("%s.feed_url is required for mode %q", name, m))
				}
			default:
				errs = append(errs, fmt.Errorf("%s: unknown mode %q", name, m))
			}
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	return errors.Join(errs...)
}

// ErrExists is returned by Save when the target file is already present.
var ErrExists = errors.New("config file already exists")

// Save writes cfg as YAML to path, readable by the owner only. An existing
// file is replaced only when overwrite is set.
func Save(cfg *Config, path string, overwrite bool) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "feedwatch", "config.yaml")
}
