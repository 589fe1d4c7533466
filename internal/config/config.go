package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/railspreview/internal/detector"
	"github.com/loykin/railspreview/internal/logger"
	"github.com/loykin/railspreview/internal/provision"
	uitls "github.com/loykin/railspreview/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. RAILSPREVIEW_SERVER_PORT.
const EnvPrefix = "RAILSPREVIEW"

// Config is the top-level TOML structure.
type Config struct {
	Workspace   string            `toml:"workspace" mapstructure:"workspace"`
	Server      ServerConfig      `toml:"server" mapstructure:"server"`
	Credentials CredentialsConfig `toml:"credentials" mapstructure:"credentials"`
	Provision   ProvisionConfig   `toml:"provision" mapstructure:"provision"`
	Routes      RoutesConfig      `toml:"routes" mapstructure:"routes"`
	UI          UIConfig          `toml:"ui" mapstructure:"ui"`
	Log         LogConfig         `toml:"log" mapstructure:"log"`
	History     HistoryConfig     `toml:"history" mapstructure:"history"`
	Metrics     MetricsConfig     `toml:"metrics" mapstructure:"metrics"`
}

type ServerConfig struct {
	Host           string        `toml:"host" mapstructure:"host"`
	Bind           string        `toml:"bind" mapstructure:"bind"`
	Port           int           `toml:"port" mapstructure:"port"`
	Command        string        `toml:"command" mapstructure:"command"`
	PollInterval   time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	ReadyTimeout   time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	LogDir         string        `toml:"log_dir" mapstructure:"log_dir"`
	PIDFile        string        `toml:"pid_file" mapstructure:"pid_file"`
	PortDetector   string        `toml:"port_detector" mapstructure:"port_detector"`
	Env            []string      `toml:"env" mapstructure:"env"`
	EnvFiles       []string      `toml:"env_files" mapstructure:"env_files"`
}

type CredentialsConfig struct {
	UserEnv     string `toml:"user_env" mapstructure:"user_env"`
	PasswordEnv string `toml:"password_env" mapstructure:"password_env"`
}

type ProvisionConfig struct {
	Gem    string            `toml:"gem" mapstructure:"gem"`
	Bundle string            `toml:"bundle" mapstructure:"bundle"`
	Rails  string            `toml:"rails" mapstructure:"rails"`
	Policy map[string]string `toml:"policy" mapstructure:"policy"`
}

type RoutesConfig struct {
	Strict bool `toml:"strict" mapstructure:"strict"`
}

type UIConfig struct {
	Listen       string    `toml:"listen" mapstructure:"listen"`
	BasePath     string    `toml:"base_path" mapstructure:"base_path"`
	Username     string    `toml:"username" mapstructure:"username"`
	PasswordHash string    `toml:"password_hash" mapstructure:"password_hash"`
	TLS          TLSConfig `toml:"tls" mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	File       string `toml:"file" mapstructure:"file"`
	NoColor    bool   `toml:"no_color" mapstructure:"no_color"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled        bool          `toml:"enabled" mapstructure:"enabled"`
	Listen         string        `toml:"listen" mapstructure:"listen"`
	SampleInterval time.Duration `toml:"sample_interval" mapstructure:"sample_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace", "../tmp_clone")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.bind", "127.0.0.1")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.command", "rails server")
	v.SetDefault("server.poll_interval", "5s")
	v.SetDefault("server.ready_timeout", "5m")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.log_dir", ".railspreview/logs")
	v.SetDefault("server.pid_file", ".railspreview/server.pid")
	v.SetDefault("server.port_detector", detector.KindNet)
	v.SetDefault("server.env", []string{})
	v.SetDefault("server.env_files", []string{})

	v.SetDefault("credentials.user_env", "BASIC_AUTH_USER")
	v.SetDefault("credentials.password_env", "BASIC_AUTH_PASSWORD")

	v.SetDefault("provision.gem", "gem")
	v.SetDefault("provision.bundle", "bundle")
	v.SetDefault("provision.rails", "rails")

	v.SetDefault("routes.strict", false)

	v.SetDefault("ui.listen", "127.0.0.1:8501")
	v.SetDefault("ui.base_path", "")
	v.SetDefault("ui.username", "")
	v.SetDefault("ui.password_hash", "")
	v.SetDefault("ui.tls.enabled", false)
	v.SetDefault("ui.tls.cert_file", "")
	v.SetDefault("ui.tls.key_file", "")
	v.SetDefault("ui.tls.dir", "")
	v.SetDefault("ui.tls.auto_generate", false)
	v.SetDefault("ui.tls.min_version", "1.3")
	v.SetDefault("ui.tls.hosts", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.no_color", false)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("history.dsn", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.sample_interval", "15s")
}

// Load reads the TOML file at path (optional) on top of the defaults and
// applies RAILSPREVIEW_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the configuration used when no file is given, with
// RAILSPREVIEW_* environment overrides applied.
func Default() (*Config, error) { return Load("") }

// Validate checks value ranges; errors name the offending key.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, format string, a ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", key, fmt.Sprintf(format, a...)))
	}
	if strings.TrimSpace(c.Workspace) == "" {
		bad("workspace", "must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		bad("server.port", "%d out of range 1-65535", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Command) == "" {
		bad("server.command", "must not be empty")
	}
	if c.Server.PollInterval <= 0 {
		bad("server.poll_interval", "must be positive")
	}
	if c.Server.ReadyTimeout < 0 {
		bad("server.ready_timeout", "must not be negative (0 waits forever)")
	}
	if c.Server.RequestTimeout <= 0 {
		bad("server.request_timeout", "must be positive")
	}
	switch c.Server.PortDetector {
	case detector.KindNet, detector.KindLsof:
	default:
		bad("server.port_detector", "unknown detector %q (want net or lsof)", c.Server.PortDetector)
	}
	for step, p := range c.Provision.Policy {
		if !provision.IsKnownStep(step) {
			bad("provision.policy."+step, "unknown step")
			continue
		}
		if _, err := provision.ParsePolicy(p); err != nil {
			bad("provision.policy."+step, "%v", err)
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		bad("log.level", "%v", err)
	}
	if c.UI.Username != "" && !strings.HasPrefix(c.UI.PasswordHash, "$2") {
		bad("ui.password_hash", "must be a bcrypt hash when ui.username is set")
	}
	if t := c.UI.TLS; t.Enabled {
		if (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
			bad("ui.tls", "needs cert_file and key_file, or dir")
		}
		if _, err := uitls.ParseVersion(t.MinVersion); err != nil {
			bad("ui.tls.min_version", "%v", err)
		}
	}
	if c.Metrics.Enabled && c.Metrics.SampleInterval <= 0 {
		bad("metrics.sample_interval", "must be positive")
	}
	return errors.Join(errs...)
}

// LoggerConfig maps the [log] table onto the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		NoColor:    c.Log.NoColor,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Policies returns the per-step failure policy; steps not listed continue.
func (c *Config) Policies() map[string]provision.Policy {
	out := make(map[string]provision.Policy, len(c.Provision.Policy))
	for step, p := range c.Provision.Policy {
		if pol, err := provision.ParsePolicy(p); err == nil {
			out[step] = pol
		}
	}
	return out
}

// TLSOptions maps the [ui.tls] table onto the tls package.
func (c *Config) TLSOptions() uitls.Options {
	t := c.UI.TLS
	return uitls.Options{
		Enabled:      t.Enabled,
		CertFile:     t.CertFile,
		KeyFile:      t.KeyFile,
		Dir:          t.Dir,
		AutoGenerate: t.AutoGenerate,
		MinVersion:   t.MinVersion,
		Hosts:        t.Hosts,
	}
}

// Tools returns the provisioning binaries.
func (c *Config) Tools() provision.Tools {
	return provision.Tools{Gem: c.Provision.Gem, Bundle: c.Provision.Bundle, Rails: c.Provision.Rails}
}
