package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the buddy configuration file (~/.config/buddy/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	// Conversion defaults
	ChannelMap     string   `yaml:"channel_map"`
	IntegrityCheck *bool    `yaml:"integrity_check"`
	CornerSplit    *bool    `yaml:"corner_split"`
	UpAxis         string   `yaml:"up_axis"`
	Scale          *float64 `yaml:"scale"`
	Workers        *int64   `yaml:"workers"`

	// Server
	ServerAddress string `yaml:"server_address"`
	MaxBodyBytes  *int64 `yaml:"max_body_bytes"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "buddy", "config.yaml")
}

// applyLogConfig applies config file defaults to the logging flags when the
// corresponding flag was not explicitly set.
func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") && !c.IsSet("debug") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.LogFile != "" && !c.IsSet("log-file") {
		logFile = cfg.LogFile
	}
}

// applyConvertConfig applies config file defaults to convert command variables.
func applyConvertConfig(c *cli.Command, cfg Config, o *convertFlags) {
	if cfg.ChannelMap != "" && !c.IsSet("channel-map") {
		o.channelMap = cfg.ChannelMap
	}
	if cfg.IntegrityCheck != nil && !c.IsSet("no-integrity-check") {
		o.noIntegrityCheck = !*cfg.IntegrityCheck
	}
	if cfg.CornerSplit != nil && !c.IsSet("corner-split") {
		o.cornerSplit = *cfg.CornerSplit
	}
	if cfg.UpAxis != "" && !c.IsSet("up-axis") {
		o.upAxis = cfg.UpAxis
	}
	if cfg.Scale != nil && !c.IsSet("scale") {
		o.scale = *cfg.Scale
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		o.workers = *cfg.Workers
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxBody *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxBodyBytes != nil && !c.IsSet("max-body") {
		*maxBody = *cfg.MaxBodyBytes
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
