// Package config loads the pojie command configuration from a file and the
// environment.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	pojie "github.com/Pojie/pojie-go"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. POJIE_ATTEMPT_RETRY_LIMIT.
const EnvPrefix = "POJIE"

type Config struct {
	Attempt   pojie.AttemptConfig `mapstructure:"attempt"`
	Logger    pojie.LoggerConfig  `mapstructure:"logger"`
	Redis     RedisConfig         `mapstructure:"redis"`
	HTTP      HTTPConfig          `mapstructure:"http"`
	Sources   SourcesConfig       `mapstructure:"sources"`
	Connector ConnectorConfig     `mapstructure:"connector"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Session     string        `mapstructure:"session"`
	TTL         time.Duration `mapstructure:"ttl"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type HTTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// APIKey protects every route when set.
	APIKey string `mapstructure:"api_key"`
}

func (h *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// SourcesConfig selects the event sources. An empty command disables the
// source.
type SourcesConfig struct {
	// LogCommand follows the supplicant log, e.g. ["journalctl", "-fu", "wpa_supplicant"].
	LogCommand []string `mapstructure:"log_command"`
	// StateCommand prints wpa_cli events, e.g. ["wpa_cli", "-i", "wlan0"].
	StateCommand []string `mapstructure:"state_command"`
	// WatchdogTimeout arms the state source's handshake watchdog; zero disables it.
	WatchdogTimeout time.Duration `mapstructure:"watchdog_timeout"`
}

type ConnectorConfig struct {
	Connect    []string `mapstructure:"connect"`
	Disconnect []string `mapstructure:"disconnect"`
	ReportExit bool     `mapstructure:"report_exit"`
	// MinInterval spaces consecutive connect commands.
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Attempt: pojie.DefaultAttemptConfig(),
		Logger: pojie.LoggerConfig{
			Level:            "info",
			Encoding:         "console",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			Session:     "default",
			TTL:         24 * time.Hour,
			MinInterval: 200 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8089,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  time.Minute,
		},
		Sources: SourcesConfig{
			LogCommand:      []string{"journalctl", "-f", "-n", "0", "-u", "wpa_supplicant"},
			WatchdogTimeout: 0,
		},
	}
}

// SetDefaults registers every default on v so that environment overrides
// apply to keys missing from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("attempt.max_attempt_duration", d.Attempt.MaxAttemptDuration)
	v.SetDefault("attempt.failure_mode", string(d.Attempt.FailureMode))
	v.SetDefault("attempt.handshake_timeout", d.Attempt.HandshakeTimeout)
	v.SetDefault("attempt.max_handshake_retries", d.Attempt.MaxHandshakeRetries)
	v.SetDefault("attempt.retry_limit", d.Attempt.RetryLimit)
	v.SetDefault("attempt.backoff_base", d.Attempt.BackoffBase)
	v.SetDefault("attempt.retry_delay", d.Attempt.RetryDelay)
	v.SetDefault("attempt.idle_poll", d.Attempt.IdlePoll)
	v.SetDefault("attempt.stop_on_success", d.Attempt.StopOnSuccess)
	v.SetDefault("attempt.reject_grace", d.Attempt.RejectGrace)
	v.SetDefault("attempt.cancel_timeout", d.Attempt.CancelTimeout)

	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.encoding", d.Logger.Encoding)
	v.SetDefault("logger.output_paths", d.Logger.OutputPaths)
	v.SetDefault("logger.error_output_paths", d.Logger.ErrorOutputPaths)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.session", d.Redis.Session)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("redis.min_interval", d.Redis.MinInterval)

	v.SetDefault("http.enabled", d.HTTP.Enabled)
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)
	v.SetDefault("http.api_key", d.HTTP.APIKey)

	v.SetDefault("sources.log_command", d.Sources.LogCommand)
	v.SetDefault("sources.state_command", d.Sources.StateCommand)
	v.SetDefault("sources.watchdog_timeout", d.Sources.WatchdogTimeout)

	v.SetDefault("connector.connect", d.Connector.Connect)
	v.SetDefault("connector.disconnect", d.Connector.Disconnect)
	v.SetDefault("connector.report_exit", d.Connector.ReportExit)
	v.SetDefault("connector.min_interval", d.Connector.MinInterval)
}

// Loader reads one configuration file, or only the environment when the path
// is empty.
type Loader struct {
	v    *viper.Viper
	path string

	watchOnce sync.Once
}

func NewLoader(path string) *Loader {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, path: path}
}

// Load reads and validates the configuration.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Watch calls fn with the re-read configuration every time the file changes.
// It is a no-op without a file and only registers fn once.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.path == "" {
		return
	}
	l.watchOnce.Do(func() {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			fn(l.decode())
		})
		l.v.WatchConfig()
	})
}

// Settings returns every effective key, for display.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}
