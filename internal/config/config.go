package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

type Config struct {
	Environment string     `yaml:"environment"`
	LogLevelRaw string     `yaml:"log_level"`
	LogLevel    slog.Level `yaml:"-"`

	Server    ServerConfig   `yaml:"server"`
	BridgeURL string         `yaml:"bridge_url"`
	Whitelist []string       `yaml:"whitelist"`
	Bounds    geom.Bounds    `yaml:"bounds"`
	Trade     TradeConfig    `yaml:"trade"`
	Timing    TimingConfig   `yaml:"timing"`
	Movement  MovementConfig `yaml:"movement"`
	AntiIdle  AntiIdleConfig `yaml:"anti_idle"`
	Notifier  NotifierConfig `yaml:"notifier"`
	RedisURL  string         `yaml:"redis_url"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// ServerConfig is sent to the bridge in its login request. The bridge owns
// the game connection itself.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Version  string `yaml:"version"`
	Auth     string `yaml:"auth"`
}

type TradeConfig struct {
	Currency   string   `yaml:"currency"`
	Keywords   []string `yaml:"keywords"`
	Order      string   `yaml:"order"`
	RefillLow  int      `yaml:"refill_low"`
	RefillHigh int      `yaml:"refill_high"`
}

type TimingConfig struct {
	MoveTimeout    time.Duration `yaml:"move_timeout"`
	PreTradeDelay  time.Duration `yaml:"pre_trade_delay"`
	WindowSettle   time.Duration `yaml:"window_settle"`
	TradeDelay     time.Duration `yaml:"trade_delay"`
	VillagerDelay  time.Duration `yaml:"villager_delay"`
	EmptyScanWait  time.Duration `yaml:"empty_scan_wait"`
	CycleWait      time.Duration `yaml:"cycle_wait"`
	ErrorBackoff   time.Duration `yaml:"error_backoff"`
	NotSpawnedWait time.Duration `yaml:"not_spawned_wait"`
}

type MovementConfig struct {
	AllowDig         bool    `yaml:"allow_dig"`
	AllowPlace       bool    `yaml:"allow_place"`
	AllowSprint      bool    `yaml:"allow_sprint"`
	GoalRadius       float64 `yaml:"goal_radius"`
	InteractionRange float64 `yaml:"interaction_range"`
}

type AntiIdleConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Command    string        `yaml:"command"`
	LookJitter float64       `yaml:"look_jitter"` // radians
}

type NotifierConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	Redis   RedisConfig   `yaml:"redis"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Footer     string `yaml:"footer"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the YAML file at path (optional), applies defaults and
// environment overrides, then validates. A .env file in the working directory
// is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevelRaw: "info",
		Server: ServerConfig{
			Host:    "localhost",
			Port:    25565,
			Version: "1.20.4",
			Auth:    "microsoft",
		},
		BridgeURL: "ws://localhost:8765/ws",
		Trade: TradeConfig{
			Currency:   "emerald",
			Keywords:   slices.Clone(trade.DefaultKeywords),
			Order:      string(trade.OrderDeterministic),
			RefillLow:  16,
			RefillHigh: 64,
		},
		Timing: TimingConfig{
			MoveTimeout:    10 * time.Second,
			PreTradeDelay:  time.Second,
			WindowSettle:   500 * time.Millisecond,
			TradeDelay:     250 * time.Millisecond,
			VillagerDelay:  5 * time.Second,
			EmptyScanWait:  5 * time.Minute,
			CycleWait:      10 * time.Minute,
			ErrorBackoff:   50 * time.Second,
			NotSpawnedWait: 5 * time.Second,
		},
		Movement: MovementConfig{
			GoalRadius:       2,
			InteractionRange: 4,
		},
		AntiIdle: AntiIdleConfig{
			Enabled:    true,
			Interval:   4 * time.Second,
			Command:    "/ping",
			LookJitter: 0.3,
		},
		Notifier: NotifierConfig{
			Redis: RedisConfig{Channel: "tradebot-events"},
		},
	}
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevelRaw = getEnv("LOG_LEVEL", c.LogLevelRaw)
	c.BridgeURL = getEnv("BRIDGE_URL", c.BridgeURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	if url := getEnv("DISCORD_WEBHOOK_URL", ""); url != "" {
		c.Notifier.Discord.WebhookURL = url
		c.Notifier.Discord.Enabled = true
	}
}

// Normalize trims names and parses the log level.
func (c *Config) Normalize() {
	c.LogLevel = parseLogLevel(c.LogLevelRaw)
	c.Whitelist = trimAll(c.Whitelist)
	c.Trade.Keywords = trimAll(c.Trade.Keywords)
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Server.Username = strings.TrimSpace(c.Server.Username)
	c.Trade.Currency = strings.TrimSpace(c.Trade.Currency)
	c.Trade.Order = strings.ToLower(strings.TrimSpace(c.Trade.Order))
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Username == "" {
		errs = append(errs, errors.New("server.username is required"))
	}
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.BridgeURL == "" {
		errs = append(errs, errors.New("bridge_url is required"))
	}
	if c.Trade.Currency == "" {
		errs = append(errs, errors.New("trade.currency is required"))
	}
	if _, err := trade.ParseOrder(c.Trade.Order); err != nil {
		errs = append(errs, err)
	}
	if c.Trade.RefillLow < 0 || c.Trade.RefillHigh <= 0 {
		errs = append(errs, errors.New("trade refill marks must be positive"))
	}
	if c.Trade.RefillLow > c.Trade.RefillHigh {
		errs = append(errs, fmt.Errorf("trade.refill_low (%d) exceeds trade.refill_high (%d)", c.Trade.RefillLow, c.Trade.RefillHigh))
	}
	if c.Timing.MoveTimeout <= 0 {
		errs = append(errs, errors.New("timing.move_timeout must be positive"))
	}
	if c.Movement.GoalRadius <= 0 || c.Movement.InteractionRange <= 0 {
		errs = append(errs, errors.New("movement goal_radius and interaction_range must be positive"))
	}
	if c.AntiIdle.Enabled && c.AntiIdle.Interval <= 0 {
		errs = append(errs, errors.New("anti_idle.interval must be positive"))
	}
	if c.AntiIdle.LookJitter < 0 {
		errs = append(errs, errors.New("anti_idle.look_jitter must not be negative"))
	}
	if c.Notifier.Discord.Enabled && c.Notifier.Discord.WebhookURL == "" {
		errs = append(errs, errors.New("notifier.discord.webhook_url is required when discord is enabled"))
	}
	if c.Notifier.Redis.Enabled && c.RedisURL == "" {
		errs = append(errs, errors.New("redis_url is required when the redis notifier is enabled"))
	}
	if (c.Bounds.Corner1 == nil) != (c.Bounds.Corner2 == nil) {
		errs = append(errs, errors.New("bounds need both corner1 and corner2, or neither"))
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Summary renders the effective configuration for the validate command.
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Server:      %s:%d as %s (version %s, auth %s)\n", c.Server.Host, c.Server.Port, c.Server.Username, c.Server.Version, c.Server.Auth)
	fmt.Fprintf(&b, "Bridge:      %s\n", c.BridgeURL)
	fmt.Fprintf(&b, "Whitelist:   %s\n", joinOrNone(c.Whitelist))
	fmt.Fprintf(&b, "Bounds:      %s\n", c.Bounds)
	fmt.Fprintf(&b, "Trade:       %s for %s (%s order, refill %d..%d)\n", c.Trade.Currency, strings.Join(c.Trade.Keywords, ", "), c.Trade.Order, c.Trade.RefillLow, c.Trade.RefillHigh)
	fmt.Fprintf(&b, "Anti-idle:   %s\n", onOff(c.AntiIdle.Enabled))
	fmt.Fprintf(&b, "Discord:     %s\n", onOff(c.Notifier.Discord.Enabled))
	fmt.Fprintf(&b, "Redis:       %s\n", onOff(c.RedisURL != ""))
	fmt.Fprintf(&b, "Metrics:     %s\n", onOff(c.Metrics.Addr != ""))
	return b.String()
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "None"
	}
	return strings.Join(s, ", ")
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
