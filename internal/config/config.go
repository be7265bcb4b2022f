// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Browser connection strategy names, tried in the configured order.
const (
	StrategyLocal        = "local"
	StrategyRemoteToken  = "remote-token"
	StrategyRemoteHeader = "remote-header"
)

// Client selection modes for the client list step.
const (
	ClientSelectIndex = "index"
	ClientSelectText  = "text"
	ClientSelectFirst = "first"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Automation() AutomationConfig
	Server() ServerConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetBrowserStrategies([]string)
	SetServerAddr(string)
	SetWorkflowFile(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	AutomationCfg AutomationConfig `mapstructure:"automation" yaml:"automation"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Automation() AutomationConfig { return c.AutomationCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }

func (c *Config) SetBrowserHeadless(b bool)       { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserStrategies(s []string) { c.BrowserCfg.Strategies = s }
func (c *Config) SetServerAddr(addr string)       { c.ServerCfg.Addr = addr }
func (c *Config) SetWorkflowFile(path string)     { c.AutomationCfg.WorkflowFile = path }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	Format      string      `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=console json"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age" validate:"gte=0"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the run history database connection details.
// An empty URL disables run history.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns" validate:"gte=0"`
}

// ViewportConfig is the emulated browser window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width" validate:"gt=0"`
	Height int `mapstructure:"height" yaml:"height" validate:"gt=0"`
}

// BrowserConfig holds settings for acquiring and driving the browser session.
type BrowserConfig struct {
	Strategies        []string       `mapstructure:"strategies" yaml:"strategies" validate:"min=1,dive,oneof=local remote-token remote-header"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPaths         []string       `mapstructure:"exec_paths" yaml:"exec_paths"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	RemoteEndpoint    string         `mapstructure:"remote_endpoint" yaml:"remote_endpoint"`
	Token             string         `mapstructure:"token" yaml:"-"`
	ConnectTimeout    time.Duration  `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gt=0"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout" validate:"gt=0"`
	WaitUntil         string         `mapstructure:"wait_until" yaml:"wait_until" validate:"oneof=load domcontentloaded networkidle"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait" validate:"gte=0"`
}

// ClientSelectionConfig decides which entry of the client list is opened.
type ClientSelectionConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode" validate:"oneof=index text first"`
	Index int    `mapstructure:"index" yaml:"index" validate:"gte=0"`
	Name  string `mapstructure:"name" yaml:"name"`
}

// AutomationConfig tunes the workflow engine.
type AutomationConfig struct {
	SiteURL          string                `mapstructure:"site_url" yaml:"site_url" validate:"required,url"`
	WorkflowFile     string                `mapstructure:"workflow_file" yaml:"workflow_file"`
	InitialSettle    time.Duration         `mapstructure:"initial_settle" yaml:"initial_settle" validate:"gte=0"`
	ReadinessTimeout time.Duration         `mapstructure:"readiness_timeout" yaml:"readiness_timeout" validate:"gt=0"`
	ReadinessPause   time.Duration         `mapstructure:"readiness_pause" yaml:"readiness_pause" validate:"gte=0"`
	RetryDelay       time.Duration         `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gte=0"`
	ScrollPause      time.Duration         `mapstructure:"scroll_pause" yaml:"scroll_pause" validate:"gte=0"`
	DiagnosticsDir   string                `mapstructure:"diagnostics_dir" yaml:"diagnostics_dir"`
	MaxDuration      time.Duration         `mapstructure:"max_duration" yaml:"max_duration" validate:"gt=0"`
	ClientSelection  ClientSelectionConfig `mapstructure:"client_selection" yaml:"client_selection"`
}

// ServerConfig configures the HTTP trigger endpoint.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	MaxConcurrentRuns int64         `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs" validate:"gt=0"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	RateBurst         int           `mapstructure:"rate_burst" yaml:"rate_burst" validate:"gte=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
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
	v.SetDefault("logger.service_name", "conductor")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)

	// -- Browser --
	v.SetDefault("browser.strategies", []string{StrategyRemoteToken, StrategyRemoteHeader, StrategyLocal})
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_paths", []string{})
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.remote_endpoint", "wss://production-sfo.browserless.io")
	v.SetDefault("browser.connect_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.wait_until", "networkidle")
	v.SetDefault("browser.post_load_wait", "500ms")

	// -- Automation --
	v.SetDefault("automation.site_url", "https://app.incomeconductor.com")
	v.SetDefault("automation.workflow_file", "")
	v.SetDefault("automation.initial_settle", "3s")
	v.SetDefault("automation.readiness_timeout", "5s")
	v.SetDefault("automation.readiness_pause", "1s")
	v.SetDefault("automation.retry_delay", "2s")
	v.SetDefault("automation.scroll_pause", "500ms")
	v.SetDefault("automation.diagnostics_dir", "diagnostics")
	v.SetDefault("automation.max_duration", "70s")
	v.SetDefault("automation.client_selection.mode", ClientSelectIndex)
	v.SetDefault("automation.client_selection.index", 1)
	v.SetDefault("automation.client_selection.name", "")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_concurrent_runs", 2)
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 4)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "15s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. The unprefixed names
	// are honoured so existing deployments keep working.
	_ = v.BindEnv("browser.token", "CONDUCTOR_BROWSER_TOKEN", "BROWSERLESS_TOKEN")
	_ = v.BindEnv("database.url", "CONDUCTOR_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding config paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every file system path setting.
func (c *Config) expandPaths() error {
	paths := []*string{&c.LoggerCfg.LogFile, &c.AutomationCfg.WorkflowFile, &c.AutomationCfg.DiagnosticsDir}
	for i := range c.BrowserCfg.ExecPaths {
		paths = append(paths, &c.BrowserCfg.ExecPaths[i])
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("%s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return describeValidationError(err)
	}
	if c.ServerCfg.WriteTimeout < c.AutomationCfg.MaxDuration {
		return fmt.Errorf("server.write_timeout (%s) must not be shorter than automation.max_duration (%s)",
			c.ServerCfg.WriteTimeout, c.AutomationCfg.MaxDuration)
	}
	if err := c.AutomationCfg.ClientSelection.Validate(); err != nil {
		return fmt.Errorf("automation.client_selection configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the client selection policy.
func (s ClientSelectionConfig) Validate() error {
	if s.Mode == ClientSelectText && strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required when mode is %q", ClientSelectText)
	}
	return nil
}

// describeValidationError turns validator output into "key failed 'tag' validation" messages.
func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s' validation", key, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s' validation", key, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
