// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Wait() WaitConfig
	Traffic() TrafficConfig
	Report() ReportConfig
	Mail() MailConfig
	Database() DatabaseConfig

	// Browser Setters
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetBrowserStartURL(string)

	// Wait Setters
	SetWaitDefaultConditionTimeout(seconds int)
	SetWaitTroubleshooting(bool)

	// Traffic Setters
	SetTrafficEnabled(bool)
	SetTrafficLoadTimeLimit(d time.Duration)
}

// Config holds the entire application configuration.
// Fields are exported for viper's decoder; callers go through the Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	WaitCfg     WaitConfig     `mapstructure:"wait" yaml:"wait"`
	TrafficCfg  TrafficConfig  `mapstructure:"traffic" yaml:"traffic"`
	ReportCfg   ReportConfig   `mapstructure:"report" yaml:"report"`
	MailCfg     MailConfig     `mapstructure:"mail" yaml:"mail"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Wait() WaitConfig         { return c.WaitCfg }
func (c *Config) Traffic() TrafficConfig   { return c.TrafficCfg }
func (c *Config) Report() ReportConfig     { return c.ReportCfg }
func (c *Config) Mail() MailConfig         { return c.MailCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

// Browser Setters
func (c *Config) SetBrowserDriver(d string)   { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserStartURL(u string) { c.BrowserCfg.StartURL = u }

// Wait Setters
func (c *Config) SetWaitDefaultConditionTimeout(seconds int) {
	c.WaitCfg.DefaultConditionTimeout = seconds
}
func (c *Config) SetWaitTroubleshooting(b bool) { c.WaitCfg.Troubleshooting = b }

// Traffic Setters
func (c *Config) SetTrafficEnabled(b bool)                { c.TrafficCfg.Enabled = b }
func (c *Config) SetTrafficLoadTimeLimit(d time.Duration) { c.TrafficCfg.LoadTimeLimit = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser backends.
const (
	DriverCDP    = "cdp"
	DriverRemote = "remote"
)

// BrowserConfig selects and tunes the browser backend.
type BrowserConfig struct {
	// Driver is either "cdp" (local Chrome via DevTools) or "remote" (WebDriver hub).
	Driver    string   `mapstructure:"driver" yaml:"driver"`
	RemoteURL string   `mapstructure:"remote_url" yaml:"remote_url"`
	Name      string   `mapstructure:"name" yaml:"name"`
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	StartURL  string   `mapstructure:"start_url" yaml:"start_url"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// WaitConfig holds the timing knobs of the polling layer.
// Timeouts are whole seconds, matching how test properties files have always expressed them.
type WaitConfig struct {
	DefaultConditionTimeout int           `mapstructure:"default_condition_timeout" yaml:"default_condition_timeout"`
	DefaultPageLoadTimeout  int           `mapstructure:"default_page_load_timeout" yaml:"default_page_load_timeout"`
	PollInterval            time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Troubleshooting         bool          `mapstructure:"troubleshooting" yaml:"troubleshooting"`
}

// ConditionTimeout returns the default condition timeout as a duration.
func (w WaitConfig) ConditionTimeout() time.Duration {
	return time.Duration(w.DefaultConditionTimeout) * time.Second
}

// PageLoadTimeout returns the default page load timeout as a duration.
func (w WaitConfig) PageLoadTimeout() time.Duration {
	return time.Duration(w.DefaultPageLoadTimeout) * time.Second
}

// TrafficConfig configures the recording proxy and the post-test traffic analysis.
type TrafficConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr    string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	LoadTimeLimit time.Duration `mapstructure:"load_time_limit" yaml:"load_time_limit"`
	CaptureBodies bool          `mapstructure:"capture_bodies" yaml:"capture_bodies"`
}

// ReportConfig controls where test artifacts end up.
type ReportConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	Screenshots bool   `mapstructure:"screenshots" yaml:"screenshots"`
}

// MailConfig holds mailbox polling settings.
type MailConfig struct {
	Folder  string        `mapstructure:"folder" yaml:"folder"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-ui")
	v.SetDefault("logger.log_file", "scalpel-ui.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverCDP)
	v.SetDefault("browser.remote_url", "http://127.0.0.1:4444/wd/hub")
	v.SetDefault("browser.name", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.start_url", "")

	// -- Wait --
	v.SetDefault("wait.default_condition_timeout", 180)
	v.SetDefault("wait.default_page_load_timeout", 60)
	v.SetDefault("wait.poll_interval", "300ms")
	v.SetDefault("wait.troubleshooting", false)

	// -- Traffic --
	v.SetDefault("traffic.enabled", false)
	v.SetDefault("traffic.listen_addr", "127.0.0.1:0")
	v.SetDefault("traffic.load_time_limit", "2s")
	v.SetDefault("traffic.capture_bodies", false)

	// -- Report --
	v.SetDefault("report.dir", "./reports")
	v.SetDefault("report.screenshots", true)

	// -- Mail --
	v.SetDefault("mail.folder", "INBOX")
	v.SetDefault("mail.timeout", "60s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "SCALPEL_UI_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.WaitCfg.Validate(); err != nil {
		return fmt.Errorf("wait configuration invalid: %w", err)
	}
	if c.TrafficCfg.Enabled && c.TrafficCfg.LoadTimeLimit <= 0 {
		return fmt.Errorf("traffic.load_time_limit must be a positive duration")
	}
	return nil
}

// Validate checks the browser backend selection.
func (b *BrowserConfig) Validate() error {
	switch strings.ToLower(b.Driver) {
	case DriverCDP:
		return nil
	case DriverRemote:
		if b.RemoteURL == "" {
			return fmt.Errorf("remote_url is required for the remote driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown driver %q (expected %q or %q)", b.Driver, DriverCDP, DriverRemote)
	}
}

// Validate checks the WaitConfig settings.
func (w *WaitConfig) Validate() error {
	if w.DefaultConditionTimeout < 0 {
		return fmt.Errorf("default_condition_timeout must not be negative")
	}
	if w.DefaultPageLoadTimeout < 0 {
		return fmt.Errorf("default_page_load_timeout must not be negative")
	}
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}
