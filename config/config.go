package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Bot          BotConfig          `yaml:"bot"`
	Crafty       CraftyConfig       `yaml:"crafty"`
	GCP          GCPConfig          `yaml:"gcp"`
	Stats        StatsConfig        `yaml:"stats"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Poller       PollerConfig       `yaml:"poller"`
	Graph        GraphConfig        `yaml:"graph"`
	Database     DatabaseConfig     `yaml:"database"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BotConfig holds the chat bot configuration.
type BotConfig struct {
	Token            string   `yaml:"token"`
	Prefix           string   `yaml:"prefix"`
	AdminRoleIDs     []string `yaml:"admin_role_ids"`
	BroadcastChannel string   `yaml:"broadcast_channel"`
	RequiredVotes    int      `yaml:"required_votes"`
	VoteEmoji        string   `yaml:"vote_emoji"`
	CommandsPerMin   int      `yaml:"commands_per_minute"`
}

// CraftyConfig holds the game-server management API settings.
type CraftyConfig struct {
	URL                string `yaml:"url"`
	Token              string `yaml:"token"`
	ServerID           string `yaml:"server_id"`
	ServerAddress      string `yaml:"server_address"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	StatusTimeoutSecs  int    `yaml:"status_timeout_seconds"`
}

// GCPConfig identifies the compute instance that hosts the game server.
type GCPConfig struct {
	ProjectID            string `yaml:"project_id"`
	Zone                 string `yaml:"zone"`
	InstanceName         string `yaml:"instance_name"`
	ServiceAccountBase64 string `yaml:"-"`
}

// StatsConfig holds the telemetry endpoint settings.
type StatsConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OrchestratorConfig controls idle detection.
type OrchestratorConfig struct {
	Disabled             bool          `yaml:"disabled"`
	TickSeconds          int           `yaml:"tick_seconds"`
	IdleThresholdSeconds int           `yaml:"idle_threshold_seconds"`
	ManualNotice         bool          `yaml:"manual_notice"`
	TickInterval         time.Duration `yaml:"-"`
	IdleThreshold        time.Duration `yaml:"-"`
}

// PollerConfig controls the telemetry poller.
type PollerConfig struct {
	Disabled        bool          `yaml:"disabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	SkipPlayers     bool          `yaml:"skip_players"`
}

// GraphConfig controls series gap detection and chart output.
type GraphConfig struct {
	GapMultiplier  float64 `yaml:"gap_multiplier"`
	DefaultMinutes int     `yaml:"default_minutes"`
	MaxMinutes     int     `yaml:"max_minutes"`
	OutputDir      string  `yaml:"output_dir"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether web push is configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path. A .env file in the
// working directory is loaded first; environment variables win over YAML.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("config file %s not found; using defaults and environment", path)
	default:
		return nil, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BOT_TOKEN", &cfg.Bot.Token)
	str("CRAFTY_TOKEN", &cfg.Crafty.Token)
	str("CRAFTY_URL", &cfg.Crafty.URL)
	str("SERVER_ID", &cfg.Crafty.ServerID)
	str("SERVER_IP", &cfg.Crafty.ServerAddress)
	str("GCP_PROJECT_ID", &cfg.GCP.ProjectID)
	str("GCP_ZONE", &cfg.GCP.Zone)
	str("GCP_INSTANCE_NAME", &cfg.GCP.InstanceName)
	str("GOOGLE_SERVICE_ACCOUNT_BASE64", &cfg.GCP.ServiceAccountBase64)
	str("STATS_ENDPOINT", &cfg.Stats.Endpoint)
	str("STATS_TOKEN", &cfg.Stats.Token)
	str("DATABASE_DSN", &cfg.Database.DSN)

	if v, ok := lookup("ADMIN_ID"); ok && v != "" {
		cfg.Bot.AdminRoleIDs = SplitList(v)
	}
	if v, ok := lookup("POLL_INTERVAL"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.Poller.IntervalSeconds = n
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 7860
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}

	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = "$"
	}
	if cfg.Bot.BroadcastChannel == "" {
		cfg.Bot.BroadcastChannel = "minecraft-chat"
	}
	if cfg.Bot.RequiredVotes <= 0 {
		cfg.Bot.RequiredVotes = 3
	}
	if cfg.Bot.VoteEmoji == "" {
		cfg.Bot.VoteEmoji = "✅"
	}
	if cfg.Bot.CommandsPerMin <= 0 {
		cfg.Bot.CommandsPerMin = 12
	}

	if cfg.Crafty.TimeoutSeconds <= 0 {
		cfg.Crafty.TimeoutSeconds = 30
	}
	if cfg.Crafty.StatusTimeoutSecs <= 0 {
		cfg.Crafty.StatusTimeoutSecs = 5
	}
	if cfg.Stats.TimeoutSeconds <= 0 {
		cfg.Stats.TimeoutSeconds = 2
	}
	if cfg.Stats.Endpoint == "" && cfg.Crafty.ServerAddress != "" {
		cfg.Stats.Endpoint = "http://" + cfg.Crafty.ServerAddress + "/mc/stats"
	}

	if cfg.Orchestrator.TickSeconds <= 0 {
		cfg.Orchestrator.TickSeconds = 10
	}
	cfg.Orchestrator.TickInterval = time.Duration(cfg.Orchestrator.TickSeconds) * time.Second
	if cfg.Orchestrator.IdleThresholdSeconds <= 0 {
		cfg.Orchestrator.IdleThresholdSeconds = 60
	}
	cfg.Orchestrator.IdleThreshold = time.Duration(cfg.Orchestrator.IdleThresholdSeconds) * time.Second

	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 10
	}
	cfg.Poller.Interval = time.Duration(cfg.Poller.IntervalSeconds) * time.Second

	if cfg.Graph.GapMultiplier <= 0 {
		cfg.Graph.GapMultiplier = 2.2
	}
	if cfg.Graph.DefaultMinutes <= 0 {
		cfg.Graph.DefaultMinutes = 60
	}
	if cfg.Graph.MaxMinutes <= 0 {
		cfg.Graph.MaxMinutes = 7 * 24 * 60
	}
	if cfg.Graph.OutputDir == "" {
		cfg.Graph.OutputDir = os.TempDir()
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:stats.db?_busy_timeout=5000"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// Validate reports the first missing setting needed to run the bot.
func (cfg *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"bot.token (BOT_TOKEN)", cfg.Bot.Token},
		{"crafty.url (CRAFTY_URL)", cfg.Crafty.URL},
		{"crafty.token (CRAFTY_TOKEN)", cfg.Crafty.Token},
		{"crafty.server_id (SERVER_ID)", cfg.Crafty.ServerID},
		{"crafty.server_address (SERVER_IP)", cfg.Crafty.ServerAddress},
		{"gcp.project_id (GCP_PROJECT_ID)", cfg.GCP.ProjectID},
		{"gcp.zone (GCP_ZONE)", cfg.GCP.Zone},
		{"gcp.instance_name (GCP_INSTANCE_NAME)", cfg.GCP.InstanceName},
		{"GOOGLE_SERVICE_ACCOUNT_BASE64", cfg.GCP.ServiceAccountBase64},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("missing required setting %s", r.name)
		}
	}
	if len(cfg.Bot.AdminRoleIDs) == 0 {
		return errors.New("missing required setting bot.admin_role_ids (ADMIN_ID)")
	}
	return nil
}

// CredentialsJSON decodes the base64 service-account key.
func (g GCPConfig) CredentialsJSON() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(g.ServiceAccountBase64))
	if err != nil {
		return nil, fmt.Errorf("decode service account: %w", err)
	}
	return raw, nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
