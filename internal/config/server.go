package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "github.com/gaspardpetit/csms/core/config"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the csms server.
type ServerConfig struct {
	Port              int               `yaml:"port"`
	MetricsAddr       string            `yaml:"metrics_addr"`
	APIKey            string            `yaml:"api_key"`
	ConfigFile        string            `yaml:"-"`
	LogLevel          string            `yaml:"log_level"`
	RedisAddr         string            `yaml:"redis_addr"`
	AllowedOrigins    []string          `yaml:"allowed_origins"`
	CallTimeout       time.Duration     `yaml:"call_timeout"`
	DrainTimeout      time.Duration     `yaml:"drain_timeout"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	StationPasswords  map[string]string `yaml:"station_passwords"`
	AcceptedTokens    []string          `yaml:"accepted_tokens"`
	EventLogPath      string            `yaml:"event_log_path"`
	EventLogTTL       time.Duration     `yaml:"event_log_ttl"`
	EventLogLimit     int               `yaml:"event_log_limit"`
	NotifyBuffer      int               `yaml:"notify_buffer"`
	ReadLimit         int64             `yaml:"read_limit"`
	PingInterval      time.Duration     `yaml:"ping_interval"`
	ReplyToMalformed  bool              `yaml:"reply_to_malformed"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Minute
	}
	if c.EventLogTTL == 0 {
		c.EventLogTTL = 7 * 24 * time.Hour
	}
	if c.EventLogLimit == 0 {
		c.EventLogLimit = 100
	}
	if c.NotifyBuffer == 0 {
		c.NotifyBuffer = 256
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("server.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := commoncfg.GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := commoncfg.GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := commoncfg.GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	} else if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if v := commoncfg.GetEnv("API_KEY", ""); v != "" {
		c.APIKey = v
	}
	if v := commoncfg.GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	envDuration("CALL_TIMEOUT", &c.CallTimeout)
	envDuration("DRAIN_TIMEOUT", &c.DrainTimeout)
	envDuration("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)
	envDuration("EVENT_LOG_TTL", &c.EventLogTTL)
	envDuration("PING_INTERVAL", &c.PingInterval)
	if v := commoncfg.GetEnv("STATION_PASSWORDS", ""); v != "" {
		if m, err := parsePasswords(v); err == nil {
			c.StationPasswords = m
		}
	}
	if v := commoncfg.GetEnv("ACCEPTED_TOKENS", ""); v != "" {
		c.AcceptedTokens = splitComma(v)
	}
	if v := commoncfg.GetEnv("EVENT_LOG_PATH", ""); v != "" {
		c.EventLogPath = v
	}
	if v := commoncfg.GetEnv("EVENT_LOG_LIMIT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.EventLogLimit = n
		}
	}
	if v := commoncfg.GetEnv("NOTIFY_BUFFER", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NotifyBuffer = n
		}
	}
	if v := commoncfg.GetEnv("READ_LIMIT", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ReadLimit = n
		}
	}
	if v := commoncfg.GetEnv("REPLY_TO_MALFORMED", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ReplyToMalformed = b
		}
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent() {
	c.BindFlagSet(flag.CommandLine)
}

// BindFlagSet binds the config to fs.
func (c *ServerConfig) BindFlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for stations and the API")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "API key required for /api requests; leave empty to disable auth")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for the station directory and server state")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.DurationVar(&c.CallTimeout, "call-timeout", c.CallTimeout, "default time to wait for a station to answer a request")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight handlers on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "heartbeat interval returned to booting stations")
	fs.Func("station-passwords", "comma separated station=password pairs for basic auth", func(v string) error {
		m, err := parsePasswords(v)
		if err != nil {
			return err
		}
		c.StationPasswords = m
		return nil
	})
	fs.Func("accepted-tokens", "comma separated id tokens accepted by Authorize; empty accepts all", func(v string) error {
		c.AcceptedTokens = splitComma(v)
		return nil
	})
	fs.StringVar(&c.EventLogPath, "event-log-path", c.EventLogPath, "event log directory; empty keeps events in memory")
	fs.DurationVar(&c.EventLogTTL, "event-log-ttl", c.EventLogTTL, "retention of event log entries")
	fs.IntVar(&c.EventLogLimit, "event-log-limit", c.EventLogLimit, "default number of events returned by /api/events")
	fs.IntVar(&c.NotifyBuffer, "notify-buffer", c.NotifyBuffer, "per-subscriber notification buffer")
	fs.Int64Var(&c.ReadLimit, "read-limit", c.ReadLimit, "maximum size in bytes of a station frame")
	fs.DurationVar(&c.PingInterval, "ping-interval", c.PingInterval, "websocket ping interval (0 disables)")
	fs.BoolVar(&c.ReplyToMalformed, "reply-to-malformed", c.ReplyToMalformed, "answer malformed frames with a CallError when the message id is readable")
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func envDuration(key string, dst *time.Duration) {
	if v := commoncfg.GetEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePasswords reads "id=secret,id2=secret2".
func parsePasswords(v string) (map[string]string, error) {
	m := map[string]string{}
	for _, kv := range splitComma(v) {
		id, pw, ok := strings.Cut(kv, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid station password %q: expected id=password", kv)
		}
		m[id] = pw
	}
	return m, nil
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
