package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tarot/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file; flags given explicitly override it")
		network    = flag.String("network", "", "network type: tcp, tcp4, tcp6, unix (default tcp)")
		host       = flag.String("host", "", "listen address or unix socket path (default 127.0.0.1)")
		port       = flag.Int("port", defaultPort, "listen port (ignored for unix)")
		name       = flag.String("name", "", "server name sent in ping answers (default tarot)")
		wsAddr     = flag.String("ws", "", "websocket listen address, e.g. 127.0.0.1:4080 (disabled when empty)")
		writeTO    = flag.Duration("write-timeout", 0, "per-packet write timeout (0 = default 5s)")
		maxFrame   = flag.Int("max-frame", 0, "max length field in bytes (0 = default 16MB)")
		sendQueue  = flag.Int("send-queue", 0, "per-session send queue limit (0 = unbounded)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	var cfg fileConfig
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
	} else {
		cfg.Port = defaultPort
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			cfg.Network = *network
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "name":
			cfg.Name = *name
		case "ws":
			cfg.WSAddr = *wsAddr
		case "write-timeout":
			cfg.WriteTimeout.Duration = *writeTO
		case "max-frame":
			cfg.MaxFrame = *maxFrame
		case "send-queue":
			cfg.SendQueue = *sendQueue
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		}
	})

	if cfg.Port < 0 || cfg.Port > 65535 {
		fmt.Fprintln(os.Stderr, "error: -port must be in range 0-65535")
		os.Exit(2)
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	opts := cfg.options()
	opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := server.NewServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := s.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("tarot-server listening on %s\n", s.Addr())
	if u := s.WSURL(); u != "" {
		fmt.Printf("websocket endpoint %s\n", u)
	}

	// Wait for interrupt signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Println("shutting down (5s grace period)...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("bye")
}
