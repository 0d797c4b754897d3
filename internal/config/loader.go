package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file, a local .env file,
// and the environment, layered on top of Default(). Env vars win over the
// file: MESHTASTIC_NODE_IP, MESHTASTIC_USE_TLS, BASE_URL, DB_PATH and
// HTTP_PORT are honored as-is for compatibility with existing deployments.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := Default()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("") // the compatibility env vars above carry no prefix
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyLegacyEnv(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv wires the spec-mandated environment variable names onto their
// mapstructure keys so viper.AutomaticEnv's underscore-mangling doesn't need
// to guess at the mapping.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("radio.node_ip", "MESHTASTIC_NODE_IP")
	_ = v.BindEnv("radio.use_tls", "MESHTASTIC_USE_TLS")
	_ = v.BindEnv("http.base_url", "BASE_URL")
	_ = v.BindEnv("store.path", "DB_PATH")
	_ = v.BindEnv("http.port", "HTTP_PORT")
}

// applyLegacyEnv re-applies the bound spec env vars after Unmarshal, since
// viper's Unmarshal does not always observe BindEnv aliases for nested keys
// depending on key-delimiter configuration.
func applyLegacyEnv(v *viper.Viper, cfg *Config) {
	if s := v.GetString("radio.node_ip"); s != "" {
		cfg.Radio.NodeIP = s
	}
	if v.IsSet("radio.use_tls") {
		cfg.Radio.UseTLS = v.GetBool("radio.use_tls")
	}
	if s := v.GetString("http.base_url"); s != "" {
		cfg.HTTP.BaseURL = s
	}
	if s := v.GetString("store.path"); s != "" {
		cfg.Store.Path = s
	}
	if p := v.GetInt("http.port"); p != 0 {
		cfg.HTTP.Port = p
	}
}

// Validate rejects configuration combinations that cannot run.
func (c *Config) Validate() error {
	switch c.Radio.Transport {
	case "tcp", "http", "serial":
	default:
		return fmt.Errorf("config: radio.transport must be tcp, http or serial, got %q", c.Radio.Transport)
	}
	if c.Radio.Transport == "serial" && c.Radio.SerialDev == "" {
		return fmt.Errorf("config: radio.serial_device is required for serial transport")
	}
	if c.Radio.Transport != "serial" && c.Radio.NodeIP == "" {
		return fmt.Errorf("config: radio.node_ip is required for tcp/http transport")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}
