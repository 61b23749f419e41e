package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"tarot/protocol"
	"tarot/transport"
)

type conn = transport.Duplex[protocol.Serverbound, protocol.Clientbound]

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the whole client; it returns the process exit code so deferred
// cleanup happens before main exits.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tarot-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		network = fs.String("network", "tcp", "network type: tcp, tcp4, tcp6, unix, ws, wss")
		addr    = fs.String("addr", "127.0.0.1:4000", "server address, unix socket path, or websocket URL")
		timeout = fs.Duration("timeout", 5*time.Second, "answer timeout")
		debug   = fs.Bool("debug", false, "enable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	nc, err := transport.Dial(ctx, *network, *addr)
	cancel()
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to connect: %v\n", err)
		return 1
	}

	c := transport.NewDuplex(nc, protocol.ServerboundCodec(), protocol.ClientboundCodec(),
		transport.Options{Logger: logger})
	defer c.Close()

	fmt.Fprintf(stdout, "connected to %s\n", *addr)
	fmt.Fprintln(stdout, "commands: ping, join, quit")
	fmt.Fprintln(stdout)

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			return 0
		}

		var pkt protocol.Serverbound
		switch cmd := strings.ToLower(strings.TrimSpace(scanner.Text())); cmd {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(stdout, "bye")
			return 0
		case "ping":
			pkt = protocol.Ping{}
		case "join":
			pkt = protocol.Join{}
		default:
			fmt.Fprintf(stdout, "unknown command %q\n", cmd)
			continue
		}

		if err := c.Submit(pkt); err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			return 1
		}
		answer, err := await(c, *timeout)
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			if isConnectionError(err) {
				fmt.Fprintln(stdout, "connection lost, exiting")
				return 1
			}
			continue
		}
		printAnswer(stdout, answer)
	}
}

var errNoAnswer = errors.New("no answer")

// await polls for the next packet the way a frame loop would, without ever
// blocking on the connection.
func await(c *conn, timeout time.Duration) (protocol.Clientbound, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(timeout)

	for {
		pkt, ok, err := c.Poll()
		if err != nil {
			return nil, err
		}
		if ok {
			return pkt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w within %v", errNoAnswer, timeout)
		}
		<-ticker.C
	}
}

func printAnswer(w io.Writer, pkt protocol.Clientbound) {
	switch p := pkt.(type) {
	case protocol.PingAnswer:
		fmt.Fprintf(w, "pong from %q\n", p.Text)
	case protocol.Accept:
		fmt.Fprintln(w, "seated")
	default:
		fmt.Fprintf(w, "unexpected packet %T\n", p)
	}
}

func isConnectionError(err error) bool {
	return errors.Is(err, transport.ErrStreamClosed) ||
		errors.Is(err, transport.ErrCorruptStream) ||
		errors.Is(err, transport.ErrClosed) ||
		errors.Is(err, io.EOF)
}
