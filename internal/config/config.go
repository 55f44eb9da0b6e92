// Package config loads process configuration from a JSON file plus
// environment variables. Credentials are env-only and required;
// everything else has a documented default.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
//  1. Environment variables (XMPP credentials only — never accepted from file)
//  2. Config file (JSON, default "config.json")
//  3. Defaults
//
// # Example Config File
//
//	{
//	  "expressPort": 8433,
//	  "nwwsoi": {
//	    "resource": "SparkAlerts NWWS Ingest Client",
//	    "maxReconnectAttempts": 10,
//	    "initialReconnectDelay": 2000
//	  },
//	  "apiKeys": {
//	    "abc123": {"name": "dashboard", "rateLimit": 120, "active": true}
//	  },
//	  "domainWhitelist": ["example.com"],
//	  "allowNoOrigin": false,
//	  "allowNoGeometry": false,
//	  "allowedAlerts": ["Special Weather Statement"],
//	  "rateLimit": {"windowMs": 60000, "defaultMax": 60}
//	}
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// NWWSOIConfig controls the ingest supervisor's connection behavior.
type NWWSOIConfig struct {
	Resource              string `mapstructure:"resource"`
	MaxReconnectAttempts  int    `mapstructure:"maxReconnectAttempts"`
	InitialReconnectDelay int    `mapstructure:"initialReconnectDelay"` // ms
}

// APIKey is one entry in the apiKeys map.
type APIKey struct {
	Name      string    `mapstructure:"name"`
	RateLimit int       `mapstructure:"rateLimit"`
	Active    bool      `mapstructure:"active"`
	LastUsed  time.Time `mapstructure:"-"`
}

// RateLimitConfig controls the windowed counter in the Auth Gate.
// WindowMs is in milliseconds; the default is 60000 (a one-minute window).
type RateLimitConfig struct {
	WindowMs   int `mapstructure:"windowMs"`
	DefaultMax int `mapstructure:"defaultMax"`
}

// Config is the complete process configuration.
type Config struct {
	XMPPUsername string `mapstructure:"-"`
	XMPPPassword string `mapstructure:"-"`

	NWWSOI      NWWSOIConfig       `mapstructure:"nwwsoi"`
	ExpressPort int                `mapstructure:"expressPort"`
	APIKeys     map[string]*APIKey `mapstructure:"apiKeys"`

	DomainWhitelist []string `mapstructure:"domainWhitelist"`
	AllowNoOrigin   bool     `mapstructure:"allowNoOrigin"`
	AllowNoGeometry bool     `mapstructure:"allowNoGeometry"`
	AllowedAlerts   []string `mapstructure:"allowedAlerts"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit"`

	StorePath    string `mapstructure:"storePath"`
	GeometryPath string `mapstructure:"geometryPath"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("nwwsoi.resource", "SparkAlerts NWWS Ingest Client")
	v.SetDefault("nwwsoi.maxReconnectAttempts", 10)
	v.SetDefault("nwwsoi.initialReconnectDelay", 2000)
	v.SetDefault("expressPort", 8433)
	v.SetDefault("allowNoOrigin", false)
	v.SetDefault("allowNoGeometry", false)
	v.SetDefault("rateLimit.windowMs", 60000)
	v.SetDefault("rateLimit.defaultMax", 60)
	v.SetDefault("storePath", "alerts.json")
	v.SetDefault("geometryPath", "fips_county_geometry.json")
}

// Load reads path (a JSON config file, optional) layered over defaults, then
// requires XMPPUsername/XMPPPassword from the environment (missing
// credentials are fatal at startup). A missing config file is not an error — the
// process can run on defaults plus environment alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				if !os.IsNotExist(err) {
					return nil, fmt.Errorf("reading config file %s: %w", path, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.XMPPUsername = os.Getenv("XMPP_USERNAME")
	cfg.XMPPPassword = os.Getenv("XMPP_PASSWORD")
	if cfg.XMPPUsername == "" || cfg.XMPPPassword == "" {
		return nil, fmt.Errorf("missing required XMPP_USERNAME/XMPP_PASSWORD environment variables")
	}

	for key, entry := range cfg.APIKeys {
		if entry == nil {
			delete(cfg.APIKeys, key)
		}
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = make(map[string]*APIKey)
	}

	return &cfg, nil
}
