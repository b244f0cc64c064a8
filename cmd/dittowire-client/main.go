package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/marmos91/dittowire/pkg/client"
	"github.com/marmos91/dittowire/pkg/protocol"
)

const banner = `Connected to %s
Enter requests as: PATH | key=value;key2=value2 | body
Keep-Alive defaults to true. Type "exit" to quit.
`

func main() {
	addr := flag.String("addr", "127.0.0.1:9998", "Server address")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	flag.Parse()

	if err := run(*addr, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, timeout time.Duration) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wire> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize console: %w", err)
	}
	defer rl.Close()

	opts := client.Options{RequestTimeout: timeout}
	c, err := client.Dial(context.Background(), addr, opts)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	fmt.Fprintf(rl.Stdout(), banner, addr)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isExit(line) {
			return nil
		}

		req, err := parseInput(line)
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "Invalid input: %v\n", err)
			continue
		}

		// Reconnect lazily after the server closed a non keep-alive exchange
		if c.Closed() {
			c, err = client.Dial(context.Background(), addr, opts)
			if err != nil {
				return err
			}
		}

		resp, err := c.Do(context.Background(), req)
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "Request failed: %v\n", err)
			continue
		}

		fmt.Fprintf(rl.Stdout(), "[%d] %s\n", resp.StatusCode, resp.Body)
		if !protocol.KeepAlive(req) {
			fmt.Fprintln(rl.Stdout(), "(connection closed by request; next request reconnects)")
		}
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dittowire_history")
}
