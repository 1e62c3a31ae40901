package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h3poteto/livecamera/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrNoEndpoint = errors.New("config: endpoint is required")

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	Endpoint   string             `mapstructure:"endpoint"`
	Room       string             `mapstructure:"room"`
	ICEServers []domain.ICEServer `mapstructure:"ice_servers"`

	InvokeTimeout time.Duration `mapstructure:"invoke_timeout"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	SendBuffer    int           `mapstructure:"send_buffer"`

	StatusAddr string `mapstructure:"status_addr"`
	PublishIVF string `mapstructure:"publish_ivf"`
	RecordDir  string `mapstructure:"record_dir"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, then LIVECAMERA_* environment
// variables, then command line flags, each overriding the previous one.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("livecamera", pflag.ContinueOnError)
	configDir := fs.String("config-dir", "config", "directory holding config.<env>.yaml")
	fs.String("mode", "release", "debug enables request logging on the status API")
	fs.String("log-level", "info", "zerolog level")
	fs.String("endpoint", "", "SFU websocket endpoint")
	fs.String("room", "", "room name appended to the endpoint")
	fs.String("status-addr", ":8090", "status API listen address, empty disables it")
	fs.String("publish-ivf", "", "IVF file published as the local track")
	fs.String("record-dir", "", "directory remote tracks are recorded to")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := filepath.Join(*configDir, fmt.Sprintf("config.%s.yaml", env))
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("endpoint", "")
	v.SetDefault("room", "")
	v.SetDefault("ice_servers", []map[string]any{})
	v.SetDefault("invoke_timeout", "10s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("status_addr", ":8090")
	v.SetDefault("publish_ivf", "")
	v.SetDefault("record_dir", "")

	v.SetEnvPrefix("LIVECAMERA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"mode", "log-level", "endpoint", "room", "status-addr", "publish-ivf", "record-dir"} {
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("config: ping_period %s must be shorter than pong_wait %s", cfg.PingPeriod, cfg.PongWait)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Str("endpoint", cfg.Endpoint).
		Str("room", cfg.Room).
		Int("ice_servers", len(cfg.ICEServers)).
		Msg("config ready")
	return &cfg, nil
}

// SignalURL is the endpoint with the room added as a query parameter.
func (c *Config) SignalURL() (string, error) {
	if c.Endpoint == "" {
		return "", ErrNoEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("config: endpoint: %w", err)
	}
	if c.Room != "" {
		q := u.Query()
		q.Set("room", c.Room)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
