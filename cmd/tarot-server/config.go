package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"

	"tarot/server"
)

// fileConfig mirrors server.Options for the TOML config file.
//
//	network = "tcp"
//	host = "0.0.0.0"
//	port = 4000
//	name = "table-1"
//	ws_addr = "0.0.0.0:4080"
//	write_timeout = "5s"
//	max_frame = 1048576
//	send_queue = 64
//	log_level = "debug"
type fileConfig struct {
	Network      string   `toml:"network"`
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	Name         string   `toml:"name"`
	WSAddr       string   `toml:"ws_addr"`
	WriteTimeout duration `toml:"write_timeout"`
	MaxFrame     int      `toml:"max_frame"`
	SendQueue    int      `toml:"send_queue"`
	LogLevel     string   `toml:"log_level"`
}

// duration decodes TOML strings such as "250ms".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

const defaultPort = 4000

func loadConfig(path string) (fileConfig, error) {
	cfg := fileConfig{Port: defaultPort}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return cfg, fmt.Errorf("load config %s: unknown key %q", path, undec[0].String())
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("load config %s: port must be in range 0-65535", path)
	}
	return cfg, nil
}

func (c fileConfig) options() server.Options {
	return server.Options{
		Network:        c.Network,
		Host:           c.Host,
		Port:           uint16(c.Port),
		Name:           c.Name,
		WSAddr:         c.WSAddr,
		WriteTimeout:   c.WriteTimeout.Duration,
		MaxFrameSize:   c.MaxFrame,
		SendQueueLimit: c.SendQueue,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}
