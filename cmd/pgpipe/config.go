package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kvisten/pgpipe/client"
)

// fileConfig mirrors pgpipe.toml. All fields are optional; environment
// variables and flags override file values.
type fileConfig struct {
	Conn        string `toml:"conn"`
	LogLevel    string `toml:"log_level"`
	ReceiveWait string `toml:"receive_wait"`
	Debug       bool   `toml:"debug"`
}

type cliConfig struct {
	Conn    string
	Options client.Options
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then environment variables. Flag overrides are applied by the
// callers on top.
func loadConfig() (cliConfig, error) {
	cfg := cliConfig{Options: client.DefaultOptions()}

	path := os.Getenv("PGPIPE_CONFIG")
	explicit := path != ""
	if path == "" {
		path = "pgpipe.toml"
	}

	var fc fileConfig
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if explicit {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}

	if fc.Conn != "" {
		cfg.Conn = fc.Conn
	}
	if fc.LogLevel != "" {
		cfg.Options.LogLevel = fc.LogLevel
	}
	if fc.ReceiveWait != "" {
		d, err := time.ParseDuration(fc.ReceiveWait)
		if err != nil {
			return cfg, fmt.Errorf("parse receive_wait: %w", err)
		}
		cfg.Options.ReceiveWait = d
	}
	cfg.Options.DebugMode = fc.Debug

	if v := os.Getenv("PGPIPE_CONN"); v != "" {
		cfg.Conn = v
	}
	if v := os.Getenv("PGPIPE_LOG_LEVEL"); v != "" {
		cfg.Options.LogLevel = v
	}

	return cfg, nil
}
