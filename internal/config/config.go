// Package config defines MeshMonitor's runtime configuration surface.
package config

import "time"

// Config is the complete configuration for one gateway process.
type Config struct {
	Radio      RadioConfig      `mapstructure:"radio"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Store      StoreConfig      `mapstructure:"store"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Automation AutomationConfig `mapstructure:"automation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RadioConfig describes how to reach the single upstream Meshtastic node.
type RadioConfig struct {
	Transport string `mapstructure:"transport"` // tcp, http, serial
	NodeIP    string `mapstructure:"node_ip"`
	UseTLS    bool   `mapstructure:"use_tls"`
	SerialDev string `mapstructure:"serial_device"`
	BaudRate  int    `mapstructure:"baud_rate"`
}

// HTTPConfig describes the API surface's listener.
type HTTPConfig struct {
	Port    int      `mapstructure:"port"`
	BaseURL string   `mapstructure:"base_url"`
	CORS    []string `mapstructure:"cors_origins"`
}

// StoreConfig describes the SQLite-backed persistent state store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RetentionConfig sets per-kind retention horizons.
type RetentionConfig struct {
	Telemetry     time.Duration `mapstructure:"telemetry"`
	Messages      time.Duration `mapstructure:"messages"`
	PositionHist  time.Duration `mapstructure:"position_history"`
	NeighborInfo  time.Duration `mapstructure:"neighbor_info"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SchedulerConfig sets the default cadence for the cooperative jobs.
type SchedulerConfig struct {
	TracerouteInterval time.Duration `mapstructure:"traceroute_interval"`
	AnnounceInterval   time.Duration `mapstructure:"announce_interval"`
	AnnounceOnStart    bool          `mapstructure:"announce_on_start"`
	NodeRefreshWarmup  time.Duration `mapstructure:"node_refresh_warmup"`
	NodeRefreshEvery   time.Duration `mapstructure:"node_refresh_interval"`
	VersionCheckEvery  time.Duration `mapstructure:"version_check_interval"`
}

// AutomationConfig configures auto-ack, auto-welcome and auto-announce.
type AutomationConfig struct {
	AckEnabled     bool   `mapstructure:"ack_enabled"`
	AckRegex       string `mapstructure:"ack_regex"`
	AckReply       string `mapstructure:"ack_reply"`
	AckChannels    []int  `mapstructure:"ack_channels"`
	AckAllowDM     bool   `mapstructure:"ack_allow_dm"`
	WelcomeEnabled bool   `mapstructure:"welcome_enabled"`
	WelcomeText    string `mapstructure:"welcome_text"`
	WaitForName    bool   `mapstructure:"wait_for_name"`
	AnnounceText   string `mapstructure:"announce_text"`
	AnnounceChan   int    `mapstructure:"announce_channel"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a Config pre-populated with sane defaults for a
// single-radio deployment.
func Default() *Config {
	return &Config{
		Radio: RadioConfig{
			Transport: "tcp",
			NodeIP:    "meshtastic.local",
			BaudRate:  115200,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			BaseURL: "/",
			CORS:    []string{"*"},
		},
		Store: StoreConfig{
			Path: "./data/meshmonitor.db",
		},
		Retention: RetentionConfig{
			Telemetry:     30 * 24 * time.Hour,
			Messages:      90 * 24 * time.Hour,
			PositionHist:  7 * 24 * time.Hour,
			NeighborInfo:  24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Scheduler: SchedulerConfig{
			TracerouteInterval: 180 * time.Second,
			AnnounceInterval:   6 * time.Hour,
			NodeRefreshWarmup:  5 * time.Minute,
			NodeRefreshEvery:   60 * time.Minute,
			VersionCheckEvery:  4 * time.Hour,
		},
		Automation: AutomationConfig{
			AckReply:    "ack: {from}",
			WelcomeText: "Welcome to the mesh, {from}!",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
